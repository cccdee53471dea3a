package auth

import "context"

// TokenSource supplies a bearer credential for outbound backend requests.
// Device-side clients attach the credential; they never validate it.
type TokenSource interface {
	Token(ctx context.Context) (string, error)
}

// StaticTokenSource returns the same token on every call. Useful for tests
// and for processes handed a long-lived credential at startup.
type StaticTokenSource string

func (s StaticTokenSource) Token(context.Context) (string, error) {
	return string(s), nil
}
