package room

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

// Provisioner exchanges a session identity for a short-lived media room
// credential. One network round trip, no automatic retries: a provisioning
// failure fails the call attempt immediately, because silent retries risk
// blowing the provider's acknowledgment deadline.
type Provisioner interface {
	Provision(ctx context.Context, sessionID, participantIdentity string) (calls.MediaCredential, error)
}

// Client is the HTTP Provisioner against the copilot backend.
type Client struct {
	baseURL string
	http    *http.Client
	tokens  auth.TokenSource
}

func NewClient(cfg config.BackendConfig, tokens auth.TokenSource) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("room: backend base URL is required")
	}
	if tokens == nil {
		return nil, fmt.Errorf("room: token source is required")
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

type provisionRequest struct {
	SessionID           string `json:"session_id"`
	ParticipantIdentity string `json:"participant_identity"`
}

type provisionResponse struct {
	RoomName    string `json:"room_name"`
	JoinToken   string `json:"join_token"`
	EndpointURL string `json:"endpoint_url"`
}

func (c *Client) Provision(ctx context.Context, sessionID, participantIdentity string) (calls.MediaCredential, error) {
	if sessionID == "" || participantIdentity == "" {
		return calls.MediaCredential{}, fmt.Errorf("room: session id and participant identity are required")
	}

	body, err := json.Marshal(provisionRequest{SessionID: sessionID, ParticipantIdentity: participantIdentity})
	if err != nil {
		return calls.MediaCredential{}, fmt.Errorf("room: encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/rooms/provision", bytes.NewReader(body))
	if err != nil {
		return calls.MediaCredential{}, fmt.Errorf("room: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	tok, err := c.tokens.Token(ctx)
	if err != nil {
		return calls.MediaCredential{}, fmt.Errorf("room: credential: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+tok)

	resp, err := c.http.Do(req)
	if err != nil {
		return calls.MediaCredential{}, fmt.Errorf("room: provision request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return calls.MediaCredential{}, fmt.Errorf("room: provision returned %d: %s", resp.StatusCode, strings.TrimSpace(string(b)))
	}

	var out provisionResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return calls.MediaCredential{}, fmt.Errorf("room: decode response: %w", err)
	}
	if out.RoomName == "" || out.JoinToken == "" || out.EndpointURL == "" {
		return calls.MediaCredential{}, fmt.Errorf("room: incomplete provision response")
	}

	return calls.MediaCredential{
		RoomName:    out.RoomName,
		JoinToken:   out.JoinToken,
		EndpointURL: out.EndpointURL,
	}, nil
}
