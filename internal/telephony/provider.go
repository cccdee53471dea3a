package telephony

import (
	"context"

	"github.com/google/uuid"
)

// Provider wraps the external call-management provider behind a stable
// interface.
//
// Rules:
// - Actions are delivered to a single registered observer, one at a time,
//   in the order the provider emits them.
// - Application-level intent (user taps "call"/"hang up") goes out through
//   RequestTransaction; the real provider then redelivers it as an action,
//   so every state transition funnels through the same delivery path.
// - The adapter never retries and never times out actions; deadlines are
//   the provider's responsibility.
type Provider interface {
	// SetObserver registers the single action observer. Must be called
	// before the provider starts delivering.
	SetObserver(Observer)

	// RequestTransaction asks the provider to perform call-level events.
	// A nil error means the provider accepted the transaction, not that
	// the resulting actions have been delivered yet.
	RequestTransaction(ctx context.Context, actions []TransactionAction) error
}

// Observer consumes delivered actions. Implementations must resolve every
// action exactly once, on every code path.
type Observer interface {
	HandleStartCall(*StartCallAction)
	HandleEndCall(*EndCallAction)

	// HandleProviderReset reports a provider-level failure or timeout.
	// Any unresolved action handles are dead: no acknowledgment is
	// possible anymore, only best-effort resource release.
	HandleProviderReset(err error)
}

type TransactionKind string

const (
	TransactionStartCall TransactionKind = "start_call"
	TransactionEndCall   TransactionKind = "end_call"
)

// TransactionAction is one requested provider-level event.
type TransactionAction struct {
	Kind     TransactionKind `json:"kind"`
	CallUUID uuid.UUID       `json:"uuid"`
	Handle   string          `json:"handle,omitempty"`
}
