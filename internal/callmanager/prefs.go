package callmanager

import "sync/atomic"

// Preferences supplies the user's conversation-logging preference. It is
// read once per call and snapshotted onto the session; later changes never
// affect an in-progress call.
type Preferences interface {
	LoggingEnabled() bool
}

// StaticPreferences is a fixed preference value.
type StaticPreferences bool

func (p StaticPreferences) LoggingEnabled() bool { return bool(p) }

// AtomicPreferences is a mutable, concurrency-safe preference holder for
// processes that let the user flip logging at runtime.
type AtomicPreferences struct {
	enabled atomic.Bool
}

func NewAtomicPreferences(enabled bool) *AtomicPreferences {
	p := &AtomicPreferences{}
	p.enabled.Store(enabled)
	return p
}

func (p *AtomicPreferences) LoggingEnabled() bool { return p.enabled.Load() }
func (p *AtomicPreferences) SetLoggingEnabled(v bool) { p.enabled.Store(v) }
