package roomtoken

import (
	"errors"
	"time"

	"voice-copilot/internal/config"

	"github.com/golang-jwt/jwt/v5"
)

// Minter issues media-server join tokens. A token is scoped to exactly one
// room and one participant identity; it authorizes joining, publishing and
// subscribing in that room and nothing else.
//
// The token is not a security perimeter for the call itself: the TTL is
// deliberately generous so a token minted at call start comfortably outlives
// any plausible call.
type Minter struct {
	apiKey    string
	apiSecret []byte
	url       string
	ttl       time.Duration
}

// Grant is the room-scoped permission set embedded in the token.
type Grant struct {
	Room           string `json:"room"`
	RoomJoin       bool   `json:"roomJoin"`
	CanPublish     bool   `json:"canPublish"`
	CanSubscribe   bool   `json:"canSubscribe"`
	CanPublishData bool   `json:"canPublishData"`
}

// Claims is the signed token payload. The media server identifies the signing
// key by the issuer claim.
type Claims struct {
	jwt.RegisteredClaims
	Video Grant `json:"video"`
}

func NewMinter(cfg config.MediaConfig) (*Minter, error) {
	if cfg.APIKey == "" || cfg.APISecret == "" {
		return nil, errors.New("roomtoken: media api key and secret are required")
	}
	if cfg.URL == "" {
		return nil, errors.New("roomtoken: media server url is required")
	}
	ttl := cfg.TokenTTL
	if ttl <= 0 {
		ttl = 10 * time.Hour
	}
	return &Minter{
		apiKey:    cfg.APIKey,
		apiSecret: []byte(cfg.APISecret),
		url:       cfg.URL,
		ttl:       ttl,
	}, nil
}

// URL returns the media server endpoint clients connect to with the token.
func (m *Minter) URL() string { return m.url }

// Mint signs a join token for identity in room.
func (m *Minter) Mint(now time.Time, room, identity string) (string, error) {
	if room == "" {
		return "", errors.New("roomtoken: room is required")
	}
	if identity == "" {
		return "", errors.New("roomtoken: identity is required")
	}

	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    m.apiKey,
			Subject:   identity,
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(m.ttl)),
		},
		Video: Grant{
			Room:           room,
			RoomJoin:       true,
			CanPublish:     true,
			CanSubscribe:   true,
			CanPublishData: true,
		},
	}

	t := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return t.SignedString(m.apiSecret)
}
