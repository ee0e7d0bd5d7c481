package signaling

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	// ErrHealthCheckFailed means the backend liveness probe did not report ok.
	ErrHealthCheckFailed = errors.New("health check failed")
	// ErrUnauthorized marks a 401 from the backend; the token should be refreshed.
	ErrUnauthorized = errors.New("unauthorized")
)

// StatusError is a non-2xx response.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("Server error: %d - %s", e.StatusCode, e.Body)
}

// Is lets errors.Is(err, ErrUnauthorized) match 401 responses.
func (e *StatusError) Is(target error) bool {
	return target == ErrUnauthorized && e.StatusCode == http.StatusUnauthorized
}

// RejectedError is a 2xx offer answer whose payload reports failure.
type RejectedError struct {
	Reason string
}

func (e *RejectedError) Error() string {
	return e.Reason
}
