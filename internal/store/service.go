package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"voice-copilot/internal/calls"

	"github.com/google/uuid"
)

// Service owns the business rules around session records: validation, id
// generation and the summary-status lifecycle. Handlers call the service,
// never the repository directly.
type Service struct {
	repo  Repository
	clock func() time.Time
}

func NewService(repo Repository, clock func() time.Time) (*Service, error) {
	if repo == nil {
		return nil, errors.New("store: repository is required")
	}
	if clock == nil {
		clock = time.Now
	}
	return &Service{repo: repo, clock: clock}, nil
}

// StartSession opens a new session record.
func (s *Service) StartSession(ctx context.Context, userID string, callContext calls.Context, loggingEnabled bool) (Session, error) {
	if userID == "" {
		return Session{}, errors.New("store: user id is required")
	}
	if !calls.ValidContext(callContext) {
		return Session{}, fmt.Errorf("store: invalid context %q", callContext)
	}

	sess := Session{
		ID:             uuid.NewString(),
		UserID:         userID,
		Context:        callContext,
		StartedAt:      s.clock().UTC(),
		LoggingEnabled: loggingEnabled,
		SummaryStatus:  SummaryNone,
	}
	if err := s.repo.CreateSession(ctx, sess); err != nil {
		return Session{}, fmt.Errorf("store: create session: %w", err)
	}
	return sess, nil
}

// EndSession closes an open session. The device may supply the actual end
// time; otherwise the server clock is used. Ending an already-ended session
// is a no-op so device-side retries stay harmless.
func (s *Service) EndSession(ctx context.Context, userID, id string, endedAt time.Time) (Session, error) {
	if endedAt.IsZero() {
		endedAt = s.clock().UTC()
	}
	sess, err := s.repo.EndSession(ctx, userID, id, endedAt.UTC(), SummaryPending)
	if err != nil {
		if errors.Is(err, ErrSessionEnded) {
			return s.repo.GetSession(ctx, userID, id)
		}
		return Session{}, err
	}
	return sess, nil
}

func (s *Service) GetSession(ctx context.Context, userID, id string) (Session, error) {
	return s.repo.GetSession(ctx, userID, id)
}

const defaultListLimit = 50

func (s *Service) ListSessions(ctx context.Context, userID string, limit, offset int) ([]Session, error) {
	if limit <= 0 || limit > 200 {
		limit = defaultListLimit
	}
	if offset < 0 {
		offset = 0
	}
	return s.repo.ListSessions(ctx, userID, limit, offset)
}

// AppendTurn records one conversation turn on an open session.
func (s *Service) AppendTurn(ctx context.Context, userID, sessionID string, speaker calls.Speaker, text string, ts time.Time) (Turn, error) {
	if !calls.ValidSpeaker(speaker) {
		return Turn{}, fmt.Errorf("store: invalid speaker %q", speaker)
	}
	if text == "" {
		return Turn{}, errors.New("store: turn text is required")
	}
	if ts.IsZero() {
		ts = s.clock().UTC()
	}
	return s.repo.AppendTurn(ctx, userID, Turn{
		ID:        uuid.NewString(),
		SessionID: sessionID,
		Timestamp: ts.UTC(),
		Speaker:   speaker,
		Text:      text,
	})
}

func (s *Service) ListTurns(ctx context.Context, userID, sessionID string) ([]Turn, error) {
	return s.repo.ListTurns(ctx, userID, sessionID)
}

func (s *Service) DeleteSession(ctx context.Context, userID, id string) error {
	return s.repo.DeleteSession(ctx, userID, id)
}

// DeleteAllSessions wipes the user's whole history. This backs the privacy
// "delete my data" control, so it succeeds even when there is nothing to
// delete.
func (s *Service) DeleteAllSessions(ctx context.Context, userID string) error {
	return s.repo.DeleteAllSessions(ctx, userID)
}
