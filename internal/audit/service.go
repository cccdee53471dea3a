package audit

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// Repository is the persistence contract for audit events.
//
// It MUST be append-only.
// No Update/Delete methods are provided by design.
type Repository interface {
	Append(ctx context.Context, e Event) error
}

// Service logs internal audit information.
//
// IMPORTANT:
// - Audit is internal-only. Do not expose these records to users by default.
// - Callers should treat audit logging as best-effort.
type Service struct {
	repo  Repository
	clock func() time.Time
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo, clock: time.Now}
}

var ErrInvalidEvent = errors.New("audit: invalid event")

func (s *Service) Append(ctx context.Context, e Event) error {
	if s.repo == nil {
		return errors.New("audit: repository not configured")
	}
	if e.UserID == "" {
		return ErrInvalidEvent
	}
	if e.Type == "" {
		return ErrInvalidEvent
	}

	now := s.clock().UTC()
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = now
	}
	return s.repo.Append(ctx, e)
}

// LogSessionDeleted records the deletion of one session and its turns.
func (s *Service) LogSessionDeleted(ctx context.Context, userID, sessionID string) error {
	return s.Append(ctx, Event{
		UserID:    userID,
		Type:      EventTypeSessionDeleted,
		SessionID: sessionID,
		Message:   "session deleted by owner",
	})
}

// LogHistoryWiped records a full delete-my-data operation.
func (s *Service) LogHistoryWiped(ctx context.Context, userID string) error {
	return s.Append(ctx, Event{
		UserID:  userID,
		Type:    EventTypeHistoryWiped,
		Message: "all sessions deleted by owner",
	})
}
