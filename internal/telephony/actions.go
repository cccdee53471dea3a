package telephony

import (
	"errors"
	"sync"

	"github.com/google/uuid"
)

// Actions are provider-delivered requests (start/end call). The provider
// contract is strict: every delivered action must be resolved by calling
// exactly one of Fulfill/Fail, exactly once, or the provider will eventually
// time out and force-fail the call.
//
// Resolution is modeled as a token consumed exactly once: the guard lives in
// the action itself (sync.Once), not in caller discipline.

type Resolution string

const (
	ResolutionFulfilled Resolution = "fulfilled"
	ResolutionFailed    Resolution = "failed"
)

// ErrActionResolved is returned by Fulfill/Fail when the action has already
// been resolved. A second resolution is a contract violation by the caller;
// the first resolution always wins.
var ErrActionResolved = errors.New("telephony: action already resolved")

// AckFunc delivers a resolution back to the provider. reason is empty for
// fulfillments.
type AckFunc func(callUUID uuid.UUID, res Resolution, reason string)

type action struct {
	callUUID uuid.UUID

	mu       sync.Mutex
	resolved bool
	res      Resolution
	ack      AckFunc
}

func (a *action) UUID() uuid.UUID { return a.callUUID }

// Resolved reports whether Fulfill or Fail has been called.
func (a *action) Resolved() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.resolved
}

// Resolution returns the recorded resolution, or "" if unresolved.
func (a *action) Resolution() Resolution {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.res
}

// Fulfill acknowledges the action as successfully handled.
func (a *action) Fulfill() error {
	return a.resolve(ResolutionFulfilled, "")
}

// Fail acknowledges the action as not handled. reason feeds provider-side
// diagnostics; it is never shown to the orchestrator again.
func (a *action) Fail(reason string) error {
	return a.resolve(ResolutionFailed, reason)
}

func (a *action) resolve(res Resolution, reason string) error {
	a.mu.Lock()
	if a.resolved {
		a.mu.Unlock()
		return ErrActionResolved
	}
	a.resolved = true
	a.res = res
	ack := a.ack
	a.mu.Unlock()

	if ack != nil {
		ack(a.callUUID, res, reason)
	}
	return nil
}

// StartCallAction asks the orchestrator to begin a call. Handle is the
// provider-supplied display handle (room hint / callee label).
type StartCallAction struct {
	action
	Handle string
}

// EndCallAction asks the orchestrator to end the call identified by UUID.
type EndCallAction struct {
	action
}

// NewStartCallAction builds a start action bound to an ack path. Providers
// construct actions; the orchestrator only resolves them.
func NewStartCallAction(callUUID uuid.UUID, handle string, ack AckFunc) *StartCallAction {
	return &StartCallAction{action: action{callUUID: callUUID, ack: ack}, Handle: handle}
}

// NewEndCallAction builds an end action bound to an ack path.
func NewEndCallAction(callUUID uuid.UUID, ack AckFunc) *EndCallAction {
	return &EndCallAction{action: action{callUUID: callUUID, ack: ack}}
}
