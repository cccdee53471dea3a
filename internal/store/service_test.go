package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"voice-copilot/internal/calls"
)

func testService(t *testing.T) (*Service, *MemoryRepo) {
	t.Helper()
	repo := NewMemoryRepo()
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	n := 0
	svc, err := NewService(repo, func() time.Time {
		n++
		return base.Add(time.Duration(n) * time.Second)
	})
	if err != nil {
		t.Fatalf("service: %v", err)
	}
	return svc, repo
}

func TestSessionLifecycle(t *testing.T) {
	svc, _ := testService(t)
	ctx := context.Background()

	sess, err := svc.StartSession(ctx, "user-1", calls.ContextHandsFree, true)
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if sess.ID == "" || !sess.Open() || sess.SummaryStatus != SummaryNone {
		t.Fatalf("unexpected session: %+v", sess)
	}

	if _, err := svc.AppendTurn(ctx, "user-1", sess.ID, calls.SpeakerUser, "hello", time.Time{}); err != nil {
		t.Fatalf("append: %v", err)
	}
	if _, err := svc.AppendTurn(ctx, "user-1", sess.ID, calls.SpeakerAssistant, "hi there", time.Time{}); err != nil {
		t.Fatalf("append: %v", err)
	}

	ended, err := svc.EndSession(ctx, "user-1", sess.ID, time.Time{})
	if err != nil {
		t.Fatalf("end: %v", err)
	}
	if ended.Open() || ended.SummaryStatus != SummaryPending {
		t.Fatalf("unexpected ended session: %+v", ended)
	}

	turns, err := svc.ListTurns(ctx, "user-1", sess.ID)
	if err != nil {
		t.Fatalf("turns: %v", err)
	}
	if len(turns) != 2 || turns[0].Speaker != calls.SpeakerUser || turns[1].Speaker != calls.SpeakerAssistant {
		t.Fatalf("unexpected turns: %+v", turns)
	}
	if !turns[0].Timestamp.Before(turns[1].Timestamp) {
		t.Fatalf("turns out of order")
	}
}

func TestEndSessionIsIdempotent(t *testing.T) {
	svc, _ := testService(t)
	ctx := context.Background()

	sess, _ := svc.StartSession(ctx, "user-1", calls.ContextPhone, false)
	first, err := svc.EndSession(ctx, "user-1", sess.ID, time.Time{})
	if err != nil {
		t.Fatalf("end: %v", err)
	}
	second, err := svc.EndSession(ctx, "user-1", sess.ID, time.Time{})
	if err != nil {
		t.Fatalf("second end must be a no-op, got %v", err)
	}
	if second.EndedAt == nil || !second.EndedAt.Equal(*first.EndedAt) {
		t.Fatalf("second end must not move ended_at: %v vs %v", second.EndedAt, first.EndedAt)
	}
}

func TestAppendTurnToEndedSessionFails(t *testing.T) {
	svc, _ := testService(t)
	ctx := context.Background()

	sess, _ := svc.StartSession(ctx, "user-1", calls.ContextPhone, true)
	if _, err := svc.EndSession(ctx, "user-1", sess.ID, time.Time{}); err != nil {
		t.Fatalf("end: %v", err)
	}
	_, err := svc.AppendTurn(ctx, "user-1", sess.ID, calls.SpeakerUser, "late", time.Time{})
	if !errors.Is(err, ErrSessionEnded) {
		t.Fatalf("expected ErrSessionEnded, got %v", err)
	}
}

func TestUserScoping(t *testing.T) {
	svc, _ := testService(t)
	ctx := context.Background()

	sess, _ := svc.StartSession(ctx, "user-1", calls.ContextPhone, true)

	if _, err := svc.GetSession(ctx, "user-2", sess.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("foreign get must look like not-found, got %v", err)
	}
	if _, err := svc.AppendTurn(ctx, "user-2", sess.ID, calls.SpeakerUser, "x", time.Time{}); !errors.Is(err, ErrNotFound) {
		t.Fatalf("foreign append must look like not-found, got %v", err)
	}
	if err := svc.DeleteSession(ctx, "user-2", sess.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("foreign delete must look like not-found, got %v", err)
	}

	list, err := svc.ListSessions(ctx, "user-2", 0, 0)
	if err != nil || len(list) != 0 {
		t.Fatalf("foreign list must be empty, got %v %v", list, err)
	}
}

func TestListSessionsNewestFirst(t *testing.T) {
	svc, _ := testService(t)
	ctx := context.Background()

	a, _ := svc.StartSession(ctx, "user-1", calls.ContextPhone, true)
	b, _ := svc.StartSession(ctx, "user-1", calls.ContextHandsFree, true)

	list, err := svc.ListSessions(ctx, "user-1", 0, 0)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(list) != 2 || list[0].ID != b.ID || list[1].ID != a.ID {
		t.Fatalf("expected newest first, got %+v", list)
	}

	page, err := svc.ListSessions(ctx, "user-1", 1, 1)
	if err != nil || len(page) != 1 || page[0].ID != a.ID {
		t.Fatalf("unexpected page: %+v err=%v", page, err)
	}
}

func TestDeleteAllSessions(t *testing.T) {
	svc, _ := testService(t)
	ctx := context.Background()

	sess, _ := svc.StartSession(ctx, "user-1", calls.ContextPhone, true)
	if _, err := svc.AppendTurn(ctx, "user-1", sess.ID, calls.SpeakerUser, "x", time.Time{}); err != nil {
		t.Fatalf("append: %v", err)
	}

	if err := svc.DeleteAllSessions(ctx, "user-1"); err != nil {
		t.Fatalf("delete all: %v", err)
	}
	if _, err := svc.GetSession(ctx, "user-1", sess.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("session must be gone, got %v", err)
	}
	// Deleting with nothing left still succeeds.
	if err := svc.DeleteAllSessions(ctx, "user-1"); err != nil {
		t.Fatalf("empty delete all: %v", err)
	}
}

func TestStartSessionValidation(t *testing.T) {
	svc, _ := testService(t)
	ctx := context.Background()

	if _, err := svc.StartSession(ctx, "", calls.ContextPhone, true); err == nil {
		t.Fatalf("empty user must be rejected")
	}
	if _, err := svc.StartSession(ctx, "user-1", "driving", true); err == nil {
		t.Fatalf("invalid context must be rejected")
	}
}
