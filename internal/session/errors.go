package session

import "errors"

var (
	// ErrSessionBusy rejects a start while another is pending or active.
	ErrSessionBusy = errors.New("session already active or starting")
	// ErrPermissionDenied means the microphone could not be acquired.
	ErrPermissionDenied = errors.New("microphone permission denied")
	// ErrIceGatheringTimeout means candidates were not gathered in time.
	ErrIceGatheringTimeout = errors.New("ICE gathering timed out")
	// ErrMalformedMessage marks a data channel record that failed to parse.
	ErrMalformedMessage = errors.New("malformed data channel message")
)
