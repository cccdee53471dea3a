package store

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemoryRepo is an in-memory Repository for tests and local development.
// It is not intended for production use.
type MemoryRepo struct {
	mu       sync.Mutex
	sessions map[string]Session
	turns    map[string][]Turn
}

func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{
		sessions: map[string]Session{},
		turns:    map[string][]Turn{},
	}
}

func (r *MemoryRepo) CreateSession(ctx context.Context, s Session) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions[s.ID] = s
	return nil
}

func (r *MemoryRepo) GetSession(ctx context.Context, userID, id string) (Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.getLocked(userID, id)
}

func (r *MemoryRepo) getLocked(userID, id string) (Session, error) {
	s, ok := r.sessions[id]
	if !ok || s.UserID != userID {
		return Session{}, ErrNotFound
	}
	return s, nil
}

func (r *MemoryRepo) EndSession(ctx context.Context, userID, id string, endedAt time.Time, status SummaryStatus) (Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, err := r.getLocked(userID, id)
	if err != nil {
		return Session{}, err
	}
	if !s.Open() {
		return Session{}, ErrSessionEnded
	}
	t := endedAt
	s.EndedAt = &t
	s.SummaryStatus = status
	r.sessions[id] = s
	return s, nil
}

func (r *MemoryRepo) ListSessions(ctx context.Context, userID string, limit, offset int) ([]Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	all := []Session{}
	for _, s := range r.sessions {
		if s.UserID == userID {
			all = append(all, s)
		}
	}
	sort.Slice(all, func(i, j int) bool { return all[i].StartedAt.After(all[j].StartedAt) })
	if offset >= len(all) {
		return []Session{}, nil
	}
	all = all[offset:]
	if limit > 0 && len(all) > limit {
		all = all[:limit]
	}
	return all, nil
}

func (r *MemoryRepo) AppendTurn(ctx context.Context, userID string, t Turn) (Turn, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, err := r.getLocked(userID, t.SessionID)
	if err != nil {
		return Turn{}, err
	}
	if !s.Open() {
		return Turn{}, ErrSessionEnded
	}
	r.turns[t.SessionID] = append(r.turns[t.SessionID], t)
	return t, nil
}

func (r *MemoryRepo) ListTurns(ctx context.Context, userID, sessionID string) ([]Turn, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, err := r.getLocked(userID, sessionID); err != nil {
		return nil, err
	}
	src := r.turns[sessionID]
	out := make([]Turn, len(src))
	copy(out, src)
	sort.Slice(out, func(i, j int) bool { return out[i].Timestamp.Before(out[j].Timestamp) })
	return out, nil
}

func (r *MemoryRepo) DeleteSession(ctx context.Context, userID, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, err := r.getLocked(userID, id); err != nil {
		return err
	}
	delete(r.sessions, id)
	delete(r.turns, id)
	return nil
}

func (r *MemoryRepo) DeleteAllSessions(ctx context.Context, userID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for id, s := range r.sessions {
		if s.UserID == userID {
			delete(r.sessions, id)
			delete(r.turns, id)
		}
	}
	return nil
}
