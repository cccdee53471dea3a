package audit

import (
	"context"
	"testing"
)

func TestService_AppendRequiresUserAndType(t *testing.T) {
	repo := NewMemoryRepo()
	svc := NewService(repo)

	if err := svc.Append(context.Background(), Event{Type: EventTypeSessionDeleted}); err == nil {
		t.Fatalf("expected error")
	}
	if err := svc.Append(context.Background(), Event{UserID: "u"}); err == nil {
		t.Fatalf("expected error")
	}
}

func TestService_AppendsImmutableEvents(t *testing.T) {
	repo := NewMemoryRepo()
	svc := NewService(repo)

	if err := svc.LogSessionDeleted(context.Background(), "user-1", "sess-1"); err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if err := svc.LogHistoryWiped(context.Background(), "user-1"); err != nil {
		t.Fatalf("unexpected err: %v", err)
	}

	evs := repo.Events()
	if len(evs) != 2 {
		t.Fatalf("expected 2 events")
	}
	if evs[0].Type != EventTypeSessionDeleted || evs[0].SessionID != "sess-1" {
		t.Fatalf("unexpected event %+v", evs[0])
	}
	if evs[0].ID == "" || evs[0].CreatedAt.IsZero() {
		t.Fatalf("id and created_at must be filled")
	}
	if evs[1].Type != EventTypeHistoryWiped {
		t.Fatalf("expected history_wiped")
	}
}
