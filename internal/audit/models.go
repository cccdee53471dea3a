package audit

import "time"

// Event is an immutable, append-only audit record of a privacy-relevant data
// operation (session deletion, history wipe).
//
// Invariants:
// - Events are never updated or deleted.
// - user_id is required; every record is scoped to the data owner.
// - Capture is best-effort; never block the data operation on audit failures.
type Event struct {
	ID     string `json:"id" db:"id"`
	UserID string `json:"user_id" db:"user_id"`

	// Type indicates the category of the audit record.
	Type EventType `json:"type" db:"type"`

	// SessionID is the affected session, when the event targets one.
	SessionID string `json:"session_id,omitempty" db:"session_id"`

	// Message is a short human-readable description for internal ops.
	Message string `json:"message,omitempty" db:"message"`

	// Metadata is optional JSON for full details.
	Metadata string `json:"metadata,omitempty" db:"metadata"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

type EventType string

const (
	EventTypeSessionDeleted EventType = "session_deleted"
	EventTypeHistoryWiped   EventType = "history_wiped"
)
