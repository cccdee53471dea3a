package calls

import "testing"

func TestStateTerminal(t *testing.T) {
	for _, s := range []State{StateEnded, StateFailed} {
		if !s.Terminal() {
			t.Fatalf("%s should be terminal", s)
		}
	}
	for _, s := range []State{StateIdle, StateRequesting, StateConnecting, StateActive, StateEnding} {
		if s.Terminal() {
			t.Fatalf("%s should not be terminal", s)
		}
	}
}

func TestStateInProgress(t *testing.T) {
	for _, s := range []State{StateRequesting, StateConnecting, StateActive, StateEnding} {
		if !s.InProgress() {
			t.Fatalf("%s should count as in progress", s)
		}
	}
	if StateIdle.InProgress() || StateEnded.InProgress() || StateFailed.InProgress() {
		t.Fatalf("idle/ended/failed must not count as in progress")
	}
}

func TestCanTransition_ForwardOnly(t *testing.T) {
	allowed := []struct{ from, to State }{
		{StateIdle, StateRequesting},
		{StateRequesting, StateConnecting},
		{StateRequesting, StateEnded},
		{StateConnecting, StateActive},
		{StateConnecting, StateEnding},
		{StateActive, StateEnding},
		{StateEnding, StateEnded},
		{StateActive, StateFailed},
	}
	for _, tc := range allowed {
		if !CanTransition(tc.from, tc.to) {
			t.Fatalf("expected %s -> %s to be allowed", tc.from, tc.to)
		}
	}

	denied := []struct{ from, to State }{
		{StateActive, StateRequesting},
		{StateEnded, StateActive},
		{StateFailed, StateRequesting},
		{StateEnded, StateFailed},
		{StateConnecting, StateRequesting},
	}
	for _, tc := range denied {
		if CanTransition(tc.from, tc.to) {
			t.Fatalf("expected %s -> %s to be denied", tc.from, tc.to)
		}
	}
}
