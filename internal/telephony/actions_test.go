package telephony

import (
	"errors"
	"sync"
	"testing"

	"github.com/google/uuid"
)

func TestActionResolvedExactlyOnce(t *testing.T) {
	var acks []Resolution
	a := NewStartCallAction(uuid.New(), "copilot", func(_ uuid.UUID, res Resolution, _ string) {
		acks = append(acks, res)
	})

	if a.Resolved() {
		t.Fatalf("new action must be unresolved")
	}
	if err := a.Fulfill(); err != nil {
		t.Fatalf("first fulfill: %v", err)
	}
	if err := a.Fulfill(); !errors.Is(err, ErrActionResolved) {
		t.Fatalf("second fulfill should report ErrActionResolved, got %v", err)
	}
	if err := a.Fail("late"); !errors.Is(err, ErrActionResolved) {
		t.Fatalf("fail after fulfill should report ErrActionResolved, got %v", err)
	}

	if len(acks) != 1 || acks[0] != ResolutionFulfilled {
		t.Fatalf("expected exactly one fulfilled ack, got %v", acks)
	}
	if a.Resolution() != ResolutionFulfilled {
		t.Fatalf("unexpected resolution %q", a.Resolution())
	}
}

func TestActionFailCarriesReason(t *testing.T) {
	var gotReason string
	a := NewEndCallAction(uuid.New(), func(_ uuid.UUID, res Resolution, reason string) {
		if res != ResolutionFailed {
			t.Fatalf("expected failed resolution, got %q", res)
		}
		gotReason = reason
	})
	if err := a.Fail("busy"); err != nil {
		t.Fatalf("fail: %v", err)
	}
	if gotReason != "busy" {
		t.Fatalf("expected reason busy, got %q", gotReason)
	}
}

func TestActionConcurrentResolutionSingleAck(t *testing.T) {
	var mu sync.Mutex
	count := 0
	a := NewEndCallAction(uuid.New(), func(uuid.UUID, Resolution, string) {
		mu.Lock()
		count++
		mu.Unlock()
	})

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if i%2 == 0 {
				_ = a.Fulfill()
			} else {
				_ = a.Fail("race")
			}
		}(i)
	}
	wg.Wait()

	if count != 1 {
		t.Fatalf("expected exactly one ack, got %d", count)
	}
}
