package audio

import (
	"context"
	"errors"
	"testing"
)

type countingBinding struct {
	configures int
	releases   int
	configErr  error
	releaseErr error
}

func (b *countingBinding) Configure(context.Context) error {
	b.configures++
	return b.configErr
}

func (b *countingBinding) Release(context.Context) error {
	b.releases++
	return b.releaseErr
}

func TestActivateIsIdempotentWhileActive(t *testing.T) {
	b := &countingBinding{}
	s := NewSession(b, nil)

	if err := s.Activate(context.Background()); err != nil {
		t.Fatalf("activate: %v", err)
	}
	if err := s.Activate(context.Background()); err != nil {
		t.Fatalf("re-activate should be a no-op success, got %v", err)
	}
	if b.configures != 1 {
		t.Fatalf("expected one configure, got %d", b.configures)
	}
	if !s.Active() {
		t.Fatalf("expected active")
	}
}

func TestActivateFailureLeavesInactive(t *testing.T) {
	b := &countingBinding{configErr: errors.New("device busy")}
	s := NewSession(b, nil)

	if err := s.Activate(context.Background()); err == nil {
		t.Fatalf("expected activation error")
	}
	if s.Active() {
		t.Fatalf("failed activation must not mark the path active")
	}

	// Retry succeeds once the device frees up.
	b.configErr = nil
	if err := s.Activate(context.Background()); err != nil {
		t.Fatalf("retry: %v", err)
	}
	if b.configures != 2 {
		t.Fatalf("expected two configure attempts, got %d", b.configures)
	}
}

func TestDeactivateReleasesSlotEvenOnError(t *testing.T) {
	b := &countingBinding{releaseErr: errors.New("flaky")}
	s := NewSession(b, nil)

	if err := s.Activate(context.Background()); err != nil {
		t.Fatalf("activate: %v", err)
	}
	if err := s.Deactivate(context.Background()); err == nil {
		t.Fatalf("expected release error")
	}
	if s.Active() {
		t.Fatalf("slot must be freed after deactivate")
	}

	// Deactivating while inactive is a no-op.
	if err := s.Deactivate(context.Background()); err != nil {
		t.Fatalf("second deactivate: %v", err)
	}
	if b.releases != 1 {
		t.Fatalf("expected one release, got %d", b.releases)
	}
}
