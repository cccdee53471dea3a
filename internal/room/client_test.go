package room

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"voice-copilot/internal/auth"
	"voice-copilot/internal/config"
)

func TestProvisionSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/rooms/provision" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer tok" {
			t.Errorf("unexpected auth header %q", got)
		}
		var req map[string]string
		_ = json.NewDecoder(r.Body).Decode(&req)
		if req["session_id"] != "s1" || req["participant_identity"] != "user-1-dev" {
			t.Errorf("unexpected request body %v", req)
		}
		_ = json.NewEncoder(w).Encode(map[string]string{
			"room_name":    "room-abc",
			"join_token":   "jwt",
			"endpoint_url": "wss://media.example.com",
		})
	}))
	defer srv.Close()

	c, err := NewClient(config.BackendConfig{BaseURL: srv.URL}, auth.StaticTokenSource("tok"))
	if err != nil {
		t.Fatalf("client: %v", err)
	}

	cred, err := c.Provision(context.Background(), "s1", "user-1-dev")
	if err != nil {
		t.Fatalf("provision: %v", err)
	}
	if cred.RoomName != "room-abc" || cred.JoinToken != "jwt" || cred.EndpointURL != "wss://media.example.com" {
		t.Fatalf("unexpected credential: %+v", cred)
	}
}

func TestProvisionServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":"media unavailable"}`, http.StatusBadGateway)
	}))
	defer srv.Close()

	c, _ := NewClient(config.BackendConfig{BaseURL: srv.URL}, auth.StaticTokenSource("tok"))
	if _, err := c.Provision(context.Background(), "s1", "p1"); err == nil {
		t.Fatalf("expected error on 502")
	}
}

func TestProvisionHonorsCancellation(t *testing.T) {
	block := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-block
	}))
	defer srv.Close()
	defer close(block)

	c, _ := NewClient(config.BackendConfig{BaseURL: srv.URL}, auth.StaticTokenSource("tok"))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := c.Provision(ctx, "s1", "p1"); err == nil {
		t.Fatalf("expected context cancellation error")
	}
}
