package recorder

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"voice-copilot/internal/auth"
	"voice-copilot/internal/calls"
	"voice-copilot/internal/config"
)

// Recorder opens/closes backend session records and appends conversation
// turns.
//
// Rules:
// - The caller gates everything on the user's logging preference; when
//   logging is disabled none of these methods are invoked.
// - AppendTurn is best-effort: a failure never blocks or fails the call.
// - DeleteAll is an out-of-band bulk operation, unrelated to live call flow.
type Recorder interface {
	OpenSession(ctx context.Context, callContext calls.Context) (string, error)
	AppendTurn(ctx context.Context, backendSessionID string, turn Turn) error
	CloseSession(ctx context.Context, backendSessionID string, endedAt time.Time) error
	DeleteAll(ctx context.Context) error
}

// Turn is one conversation turn as sent to the backend.
type Turn struct {
	Speaker   calls.Speaker `json:"speaker"`
	Text      string        `json:"text"`
	Timestamp time.Time     `json:"timestamp"`
}

// Client is the HTTP Recorder against the copilot backend.
type Client struct {
	baseURL string
	http    *http.Client
	tokens  auth.TokenSource
}

func NewClient(cfg config.BackendConfig, tokens auth.TokenSource) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("recorder: backend base URL is required")
	}
	if tokens == nil {
		return nil, fmt.Errorf("recorder: token source is required")
	}
	timeout := cfg.RequestTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		http:    &http.Client{Timeout: timeout},
		tokens:  tokens,
	}, nil
}

func (c *Client) OpenSession(ctx context.Context, callContext calls.Context) (string, error) {
	var out struct {
		SessionID string `json:"session_id"`
	}
	err := c.do(ctx, http.MethodPost, "/v1/sessions/start", map[string]any{"context": callContext}, http.StatusOK, &out)
	if err != nil {
		return "", err
	}
	if out.SessionID == "" {
		return "", fmt.Errorf("recorder: empty session id in response")
	}
	return out.SessionID, nil
}

func (c *Client) AppendTurn(ctx context.Context, backendSessionID string, turn Turn) error {
	if backendSessionID == "" {
		return fmt.Errorf("recorder: backend session id is required")
	}
	if !calls.ValidSpeaker(turn.Speaker) || turn.Text == "" {
		return fmt.Errorf("recorder: invalid turn")
	}
	path := "/v1/sessions/" + backendSessionID + "/turns"
	return c.do(ctx, http.MethodPost, path, turn, http.StatusCreated, nil)
}

func (c *Client) CloseSession(ctx context.Context, backendSessionID string, endedAt time.Time) error {
	if backendSessionID == "" {
		return fmt.Errorf("recorder: backend session id is required")
	}
	body := map[string]any{"session_id": backendSessionID}
	if !endedAt.IsZero() {
		body["ended_at"] = endedAt.UTC().Format(time.RFC3339Nano)
	}
	return c.do(ctx, http.MethodPost, "/v1/sessions/end", body, http.StatusNoContent, nil)
}

func (c *Client) DeleteAll(ctx context.Context) error {
	return c.do(ctx, http.MethodDelete, "/v1/sessions", nil, http.StatusNoContent, nil)
}

func (c *Client) do(ctx context.Context, method, path string, body any, wantStatus int, out any) error {
	var rd io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("recorder: encode request: %w", err)
		}
		rd = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, rd)
	if err != nil {
		return fmt.Errorf("recorder: build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	tok, err := c.tokens.Token(ctx)
	if err != nil {
		return fmt.Errorf("recorder: credential: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+tok)

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("recorder: %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != wantStatus {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("recorder: %s %s returned %d: %s", method, path, resp.StatusCode, strings.TrimSpace(string(b)))
	}
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("recorder: decode response: %w", err)
		}
	}
	return nil
}
