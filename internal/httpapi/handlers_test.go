package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"voice-copilot/internal/auth"
	"voice-copilot/internal/calls"
	"voice-copilot/internal/config"
	"voice-copilot/internal/recorder"
	"voice-copilot/internal/room"
	"voice-copilot/internal/roomtoken"
	"voice-copilot/internal/store"

	"github.com/gin-gonic/gin"
)

func newTestServer(t *testing.T) (*httptest.Server, *auth.Manager) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	authManager, err := auth.NewManager(config.AuthConfig{
		JWTSecret:       "test-secret",
		AccessTokenTTL:  time.Hour,
		RefreshTokenTTL: 24 * time.Hour,
	})
	if err != nil {
		t.Fatalf("auth: %v", err)
	}
	sessions, err := store.NewService(store.NewMemoryRepo(), nil)
	if err != nil {
		t.Fatalf("store: %v", err)
	}
	minter, err := roomtoken.NewMinter(config.MediaConfig{
		APIKey:    "media-key",
		APISecret: "media-secret",
		URL:       "wss://media.test",
		TokenTTL:  time.Hour,
	})
	if err != nil {
		t.Fatalf("minter: %v", err)
	}

	r := gin.New()
	Register(r, Handlers{
		Auth:     authManager,
		Sessions: sessions,
		Minter:   minter,
	}, auth.RequireAccessToken(authManager))

	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return srv, authManager
}

func accessToken(t *testing.T, m *auth.Manager, userID string) string {
	t.Helper()
	pair, err := m.IssuePair(time.Now(), userID)
	if err != nil {
		t.Fatalf("issue pair: %v", err)
	}
	return pair.AccessToken
}

func TestLoginAndRefresh(t *testing.T) {
	srv, _ := newTestServer(t)

	resp, err := http.Post(srv.URL+"/v1/auth/login", "application/json",
		bytes.NewReader([]byte(`{"user_id":"user-1"}`)))
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("login status %d", resp.StatusCode)
	}
	var body map[string]string
	_ = json.NewDecoder(resp.Body).Decode(&body)
	if body["access_token"] == "" || body["refresh_token"] == "" {
		t.Fatalf("missing tokens: %v", body)
	}

	rb, _ := json.Marshal(map[string]string{"refresh_token": body["refresh_token"]})
	resp2, err := http.Post(srv.URL+"/v1/auth/refresh", "application/json", bytes.NewReader(rb))
	if err != nil {
		t.Fatalf("refresh: %v", err)
	}
	defer resp2.Body.Close()
	if resp2.StatusCode != http.StatusOK {
		t.Fatalf("refresh status %d", resp2.StatusCode)
	}
}

func TestRefreshRejectsAccessToken(t *testing.T) {
	srv, m := newTestServer(t)

	rb, _ := json.Marshal(map[string]string{"refresh_token": accessToken(t, m, "user-1")})
	resp, err := http.Post(srv.URL+"/v1/auth/refresh", "application/json", bytes.NewReader(rb))
	if err != nil {
		t.Fatalf("refresh: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("access token must not refresh, got %d", resp.StatusCode)
	}
}

func TestSessionsRequireAuth(t *testing.T) {
	srv, _ := newTestServer(t)

	resp, err := http.Post(srv.URL+"/v1/sessions/start", "application/json",
		bytes.NewReader([]byte(`{"context":"phone"}`)))
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("unauthenticated start must 401, got %d", resp.StatusCode)
	}
}

// TestRecorderClientRoundTrip drives the real device-side recorder client
// against the API to pin the contract between the two.
func TestRecorderClientRoundTrip(t *testing.T) {
	srv, m := newTestServer(t)
	ctx := context.Background()

	rec, err := recorder.NewClient(config.BackendConfig{BaseURL: srv.URL},
		auth.StaticTokenSource(accessToken(t, m, "user-1")))
	if err != nil {
		t.Fatalf("recorder client: %v", err)
	}

	id, err := rec.OpenSession(ctx, calls.ContextHandsFree)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if err := rec.AppendTurn(ctx, id, recorder.Turn{
		Speaker:   calls.SpeakerUser,
		Text:      "hello",
		Timestamp: time.Now(),
	}); err != nil {
		t.Fatalf("append: %v", err)
	}
	if err := rec.CloseSession(ctx, id, time.Now()); err != nil {
		t.Fatalf("close: %v", err)
	}
	// Closing twice is harmless on the device side.
	if err := rec.CloseSession(ctx, id, time.Now()); err != nil {
		t.Fatalf("second close: %v", err)
	}
	if err := rec.DeleteAll(ctx); err != nil {
		t.Fatalf("delete all: %v", err)
	}
}

// TestRoomClientRoundTrip drives the device-side provisioner client against
// the API.
func TestRoomClientRoundTrip(t *testing.T) {
	srv, m := newTestServer(t)

	rooms, err := room.NewClient(config.BackendConfig{BaseURL: srv.URL},
		auth.StaticTokenSource(accessToken(t, m, "user-1")))
	if err != nil {
		t.Fatalf("room client: %v", err)
	}

	cred, err := rooms.Provision(context.Background(), "sess-1", "user-1-1700000")
	if err != nil {
		t.Fatalf("provision: %v", err)
	}
	if cred.RoomName != "call-sess-1" {
		t.Fatalf("unexpected room %q", cred.RoomName)
	}
	if cred.JoinToken == "" || cred.EndpointURL != "wss://media.test" {
		t.Fatalf("incomplete credential: %+v", cred)
	}
}

func TestTurnsOnForeignSessionAre404(t *testing.T) {
	srv, m := newTestServer(t)
	ctx := context.Background()

	owner, err := recorder.NewClient(config.BackendConfig{BaseURL: srv.URL},
		auth.StaticTokenSource(accessToken(t, m, "user-1")))
	if err != nil {
		t.Fatalf("recorder client: %v", err)
	}
	id, err := owner.OpenSession(ctx, calls.ContextPhone)
	if err != nil {
		t.Fatalf("open: %v", err)
	}

	req, _ := http.NewRequest(http.MethodGet, srv.URL+"/v1/sessions/"+id+"/turns", nil)
	req.Header.Set("Authorization", "Bearer "+accessToken(t, m, "user-2"))
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("turns: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("foreign turns must 404, got %d", resp.StatusCode)
	}
}

func TestListSessions(t *testing.T) {
	srv, m := newTestServer(t)
	ctx := context.Background()
	tok := accessToken(t, m, "user-1")

	rec, err := recorder.NewClient(config.BackendConfig{BaseURL: srv.URL}, auth.StaticTokenSource(tok))
	if err != nil {
		t.Fatalf("recorder client: %v", err)
	}
	if _, err := rec.OpenSession(ctx, calls.ContextPhone); err != nil {
		t.Fatalf("open: %v", err)
	}
	if _, err := rec.OpenSession(ctx, calls.ContextHandsFree); err != nil {
		t.Fatalf("open: %v", err)
	}

	req, _ := http.NewRequest(http.MethodGet, srv.URL+"/v1/sessions", nil)
	req.Header.Set("Authorization", "Bearer "+tok)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("list status %d", resp.StatusCode)
	}
	var body struct {
		Sessions []store.Session `json:"sessions"`
	}
	_ = json.NewDecoder(resp.Body).Decode(&body)
	if len(body.Sessions) != 2 {
		t.Fatalf("expected 2 sessions, got %d", len(body.Sessions))
	}
}
