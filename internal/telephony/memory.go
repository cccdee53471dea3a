package telephony

import (
	"context"
	"errors"
	"sync"

	"github.com/google/uuid"
)

// MemoryProvider is an in-process Provider for tests and local development.
// It delivers actions synchronously on the caller's goroutine, serialized by
// a mutex, and records every acknowledgment and requested transaction.
type MemoryProvider struct {
	mu       sync.Mutex
	observer Observer
	acks     []Ack
	requests [][]TransactionAction

	// OnRequest, when set, decides the outcome of RequestTransaction.
	OnRequest func(actions []TransactionAction) error

	// AutoRedeliver makes accepted transactions come back immediately as
	// delivered actions, mimicking the real provider's round trip.
	AutoRedeliver bool
}

// Ack is one recorded acknowledgment.
type Ack struct {
	CallUUID   uuid.UUID
	Resolution Resolution
	Reason     string
}

func NewMemoryProvider() *MemoryProvider { return &MemoryProvider{} }

func (p *MemoryProvider) SetObserver(o Observer) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.observer = o
}

func (p *MemoryProvider) recordAck(callUUID uuid.UUID, res Resolution, reason string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.acks = append(p.acks, Ack{CallUUID: callUUID, Resolution: res, Reason: reason})
}

// DeliverStartCall delivers a start action and returns it for inspection.
func (p *MemoryProvider) DeliverStartCall(callUUID uuid.UUID, handle string) *StartCallAction {
	a := NewStartCallAction(callUUID, handle, p.recordAck)
	p.mu.Lock()
	o := p.observer
	p.mu.Unlock()
	if o != nil {
		o.HandleStartCall(a)
	}
	return a
}

// DeliverEndCall delivers an end action and returns it for inspection.
func (p *MemoryProvider) DeliverEndCall(callUUID uuid.UUID) *EndCallAction {
	a := NewEndCallAction(callUUID, p.recordAck)
	p.mu.Lock()
	o := p.observer
	p.mu.Unlock()
	if o != nil {
		o.HandleEndCall(a)
	}
	return a
}

// Reset simulates a provider-level failure/timeout.
func (p *MemoryProvider) Reset(err error) {
	p.mu.Lock()
	o := p.observer
	p.mu.Unlock()
	if o != nil {
		o.HandleProviderReset(err)
	}
}

func (p *MemoryProvider) RequestTransaction(ctx context.Context, actions []TransactionAction) error {
	if len(actions) == 0 {
		return errors.New("telephony: empty transaction")
	}
	p.mu.Lock()
	p.requests = append(p.requests, actions)
	onRequest := p.OnRequest
	redeliver := p.AutoRedeliver
	p.mu.Unlock()

	if onRequest != nil {
		if err := onRequest(actions); err != nil {
			return err
		}
	}
	if redeliver {
		for _, a := range actions {
			switch a.Kind {
			case TransactionStartCall:
				p.DeliverStartCall(a.CallUUID, a.Handle)
			case TransactionEndCall:
				p.DeliverEndCall(a.CallUUID)
			}
		}
	}
	return nil
}

// Acks returns a copy of all recorded acknowledgments.
func (p *MemoryProvider) Acks() []Ack {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]Ack, len(p.acks))
	copy(out, p.acks)
	return out
}

// Requests returns a copy of all requested transactions.
func (p *MemoryProvider) Requests() [][]TransactionAction {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([][]TransactionAction, len(p.requests))
	copy(out, p.requests)
	return out
}
