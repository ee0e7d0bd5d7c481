// Package signaling implements the HTTP contract of the translation backend.
package signaling

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"go.uber.org/zap"
)

// maxErrorBody caps how much of an error response is kept for messages.
const maxErrorBody = 4096

// Client talks to the backend signaling endpoints.
type Client struct {
	logger  *zap.Logger
	baseURL string
	http    *http.Client
	tokens  TokenSource
}

// NewClient creates a client rooted at baseURL.
func NewClient(logger *zap.Logger, baseURL string, httpClient *http.Client, tokens TokenSource) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	if tokens == nil {
		tokens = StaticToken("")
	}

	return &Client{
		logger:  logger.Named("signaling"),
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    httpClient,
		tokens:  tokens,
	}
}

// Health probes GET /health and expects {"status":"ok"}.
func (c *Client) Health(ctx context.Context) error {
	var resp healthResponse
	if err := c.do(ctx, http.MethodGet, "/health", nil, &resp); err != nil {
		return fmt.Errorf("%w: %w", ErrHealthCheckFailed, err)
	}
	if resp.Status != "ok" {
		return fmt.Errorf("%w: status %q", ErrHealthCheckFailed, resp.Status)
	}

	return nil
}

// Reset calls GET /dev/reset, clearing backend state before a new session.
func (c *Client) Reset(ctx context.Context) error {
	return c.do(ctx, http.MethodGet, "/dev/reset", nil, nil)
}

// Offer posts the local description and returns the backend answer.
func (c *Client) Offer(ctx context.Context, req OfferRequest) (*Answer, error) {
	var answer Answer
	if err := c.do(ctx, http.MethodPost, "/webrtc/offer", req, &answer); err != nil {
		return nil, err
	}

	if answer.Status == "failed" {
		reason := answer.Meta.Error
		if reason == "" {
			reason = "Unknown server error"
		}

		return nil, &RejectedError{Reason: reason}
	}

	return &answer, nil
}

// SetLanguage configures the translation direction for a session.
func (c *Client) SetLanguage(ctx context.Context, req LanguageRequest) error {
	return c.do(ctx, http.MethodPost, "/set_language", req, nil)
}

// RefreshToken asks the token source for a new token.
func (c *Client) RefreshToken(ctx context.Context) error {
	return c.tokens.Refresh(ctx)
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode %s body: %w", path, err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("build %s request: %w", path, err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	token, err := c.tokens.Token(ctx)
	if err != nil {
		return fmt.Errorf("resolve token: %w", err)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		statusErr := &StatusError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(raw))}

		c.logger.Warn("Signaling request failed",
			zap.String("method", method),
			zap.String("path", path),
			zap.Int("status", resp.StatusCode))

		return statusErr
	}

	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)

		return nil
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("decode %s response: %w", path, err)
	}

	return nil
}
