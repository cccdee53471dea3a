package roomtoken

import (
	"testing"
	"time"

	"voice-copilot/internal/config"

	"github.com/golang-jwt/jwt/v5"
)

func testMinter(t *testing.T, ttl time.Duration) *Minter {
	t.Helper()
	m, err := NewMinter(config.MediaConfig{
		APIKey:    "media-key",
		APISecret: "media-secret",
		URL:       "wss://media.example.com",
		TokenTTL:  ttl,
	})
	if err != nil {
		t.Fatalf("minter: %v", err)
	}
	return m
}

func TestMintedTokenCarriesRoomScopedGrant(t *testing.T) {
	m := testMinter(t, time.Hour)
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	tok, err := m.Mint(now, "room-42", "user-1-170000")
	if err != nil {
		t.Fatalf("mint: %v", err)
	}

	var claims Claims
	parsed, err := jwt.ParseWithClaims(tok, &claims, func(token *jwt.Token) (any, error) {
		return []byte("media-secret"), nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithTimeFunc(func() time.Time { return now }))
	if err != nil || !parsed.Valid {
		t.Fatalf("parse: %v", err)
	}

	if claims.Issuer != "media-key" {
		t.Errorf("issuer must be the api key, got %q", claims.Issuer)
	}
	if claims.Subject != "user-1-170000" {
		t.Errorf("subject must be the identity, got %q", claims.Subject)
	}
	if claims.Video.Room != "room-42" || !claims.Video.RoomJoin {
		t.Errorf("grant must join exactly room-42: %+v", claims.Video)
	}
	if !claims.Video.CanPublish || !claims.Video.CanSubscribe || !claims.Video.CanPublishData {
		t.Errorf("grant must allow publish/subscribe/data: %+v", claims.Video)
	}

	exp := claims.ExpiresAt.Time
	if want := now.Add(time.Hour); !exp.Equal(want) {
		t.Errorf("expiry = %v, want %v", exp, want)
	}
}

func TestMintDefaultsTTL(t *testing.T) {
	m := testMinter(t, 0)
	now := time.Now()

	tok, err := m.Mint(now, "room-1", "id-1")
	if err != nil {
		t.Fatalf("mint: %v", err)
	}
	var claims Claims
	if _, err := jwt.ParseWithClaims(tok, &claims, func(token *jwt.Token) (any, error) {
		return []byte("media-secret"), nil
	}); err != nil {
		t.Fatalf("parse: %v", err)
	}
	if got := claims.ExpiresAt.Sub(now); got < 9*time.Hour {
		t.Fatalf("default ttl too short: %v", got)
	}
}

func TestMintValidation(t *testing.T) {
	m := testMinter(t, time.Hour)
	if _, err := m.Mint(time.Now(), "", "id"); err == nil {
		t.Fatalf("empty room must be rejected")
	}
	if _, err := m.Mint(time.Now(), "room", ""); err == nil {
		t.Fatalf("empty identity must be rejected")
	}
}
