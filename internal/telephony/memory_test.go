package telephony

import (
	"context"
	"testing"

	"github.com/google/uuid"
)

type recordingObserver struct {
	starts []*StartCallAction
	ends   []*EndCallAction
	resets []error
}

func (o *recordingObserver) HandleStartCall(a *StartCallAction) { o.starts = append(o.starts, a) }
func (o *recordingObserver) HandleEndCall(a *EndCallAction)     { o.ends = append(o.ends, a) }
func (o *recordingObserver) HandleProviderReset(err error)      { o.resets = append(o.resets, err) }

func TestMemoryProviderDeliversAndRecordsAcks(t *testing.T) {
	p := NewMemoryProvider()
	o := &recordingObserver{}
	p.SetObserver(o)

	id := uuid.New()
	a := p.DeliverStartCall(id, "copilot")
	if len(o.starts) != 1 || o.starts[0] != a {
		t.Fatalf("start action not delivered")
	}

	if err := a.Fulfill(); err != nil {
		t.Fatalf("fulfill: %v", err)
	}
	acks := p.Acks()
	if len(acks) != 1 || acks[0].CallUUID != id || acks[0].Resolution != ResolutionFulfilled {
		t.Fatalf("unexpected acks: %+v", acks)
	}
}

func TestMemoryProviderAutoRedeliver(t *testing.T) {
	p := NewMemoryProvider()
	p.AutoRedeliver = true
	o := &recordingObserver{}
	p.SetObserver(o)

	id := uuid.New()
	err := p.RequestTransaction(context.Background(), []TransactionAction{{Kind: TransactionEndCall, CallUUID: id}})
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	if len(o.ends) != 1 || o.ends[0].UUID() != id {
		t.Fatalf("expected redelivered end action")
	}
	if len(p.Requests()) != 1 {
		t.Fatalf("expected recorded request")
	}
}

func TestMemoryProviderRejectsEmptyTransaction(t *testing.T) {
	p := NewMemoryProvider()
	if err := p.RequestTransaction(context.Background(), nil); err == nil {
		t.Fatalf("expected error for empty transaction")
	}
}
