package store

import (
	"context"
	"time"
)

// Repository persists sessions and turns. Every method is scoped by userID:
// a user can never read or mutate another user's records, and a lookup for a
// foreign session id behaves exactly like a missing one.
type Repository interface {
	CreateSession(ctx context.Context, s Session) error
	GetSession(ctx context.Context, userID, id string) (Session, error)

	// EndSession stamps endedAt and the summary status on an open session.
	// Ending an already-ended session returns ErrSessionEnded.
	EndSession(ctx context.Context, userID, id string, endedAt time.Time, status SummaryStatus) (Session, error)

	ListSessions(ctx context.Context, userID string, limit, offset int) ([]Session, error)

	// AppendTurn adds a turn to an open session owned by userID.
	AppendTurn(ctx context.Context, userID string, t Turn) (Turn, error)
	ListTurns(ctx context.Context, userID, sessionID string) ([]Turn, error)

	DeleteSession(ctx context.Context, userID, id string) error
	DeleteAllSessions(ctx context.Context, userID string) error
}
