package store

import (
	"errors"
	"time"

	"voice-copilot/internal/calls"
)

var (
	ErrNotFound     = errors.New("store: not found")
	ErrSessionEnded = errors.New("store: session already ended")
)

// SummaryStatus tracks post-call summarization of a session record.
type SummaryStatus string

const (
	SummaryNone    SummaryStatus = "none"
	SummaryPending SummaryStatus = "pending"
	SummaryDone    SummaryStatus = "done"
)

// Session is one recorded call session. EndedAt is nil while the session is
// open. LoggingEnabled is the preference snapshot taken at call start; it is
// stored so retention tooling can tell intentional records from strays.
type Session struct {
	ID             string        `json:"id"`
	UserID         string        `json:"user_id"`
	Context        calls.Context `json:"context"`
	StartedAt      time.Time     `json:"started_at"`
	EndedAt        *time.Time    `json:"ended_at,omitempty"`
	LoggingEnabled bool          `json:"logging_enabled"`
	SummaryStatus  SummaryStatus `json:"summary_status"`
}

// Open reports whether the session has not been ended yet.
func (s Session) Open() bool { return s.EndedAt == nil }

// Turn is one stored conversation turn.
type Turn struct {
	ID        string        `json:"id"`
	SessionID string        `json:"session_id"`
	Timestamp time.Time     `json:"timestamp"`
	Speaker   calls.Speaker `json:"speaker"`
	Text      string        `json:"text"`
}
