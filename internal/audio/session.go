package audio

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
)

// Resource is the exclusive hardware audio path for two-way voice. At most
// one activation may be outstanding process-wide.
//
// Rules:
// - Only the call manager may call Activate/Deactivate, never concurrently.
// - Activating while already active is a no-op that succeeds.
// - Activation failures are transient-retryable at the caller's discretion.
type Resource interface {
	Activate(ctx context.Context) error
	Deactivate(ctx context.Context) error
}

// Binding performs the actual hardware configuration. It is injected so the
// session logic stays testable and platform wiring stays at the edges.
type Binding interface {
	// Configure sets up and activates the two-way voice path.
	Configure(ctx context.Context) error
	// Release tears the path down.
	Release(ctx context.Context) error
}

// NopBinding is a Binding with no hardware behind it. Used in local dev and
// anywhere the real device wiring is absent.
type NopBinding struct{}

func (NopBinding) Configure(context.Context) error { return nil }
func (NopBinding) Release(context.Context) error   { return nil }

// Session owns the singular audio channel. It is constructed once and passed
// into the call manager; there is no ambient global.
type Session struct {
	mu      sync.Mutex
	active  bool
	binding Binding
	log     *slog.Logger
}

func NewSession(binding Binding, log *slog.Logger) *Session {
	if binding == nil {
		binding = NopBinding{}
	}
	if log == nil {
		log = slog.Default()
	}
	return &Session{binding: binding, log: log}
}

func (s *Session) Activate(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.active {
		// Re-activation while active succeeds without touching hardware.
		return nil
	}
	if err := s.binding.Configure(ctx); err != nil {
		return fmt.Errorf("audio: activate: %w", err)
	}
	s.active = true
	s.log.Debug("audio path activated")
	return nil
}

func (s *Session) Deactivate(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.active {
		return nil
	}
	// The slot is freed even if release errors: hardware state is unknown
	// and holding the claim would wedge every future call.
	s.active = false
	if err := s.binding.Release(ctx); err != nil {
		return fmt.Errorf("audio: deactivate: %w", err)
	}
	s.log.Debug("audio path released")
	return nil
}

// Active reports the current activation state. Snapshot only; callers must
// not use it for check-then-act sequencing.
func (s *Session) Active() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active
}
