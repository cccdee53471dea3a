package utils

import (
	"context"
	"testing"
)

func TestCallSlotScriptsCompile(t *testing.T) {
	// Compile-time smoke test: scripts should be initialized.
	if callSlotAcquireScript == nil || callSlotReleaseScript == nil {
		t.Fatalf("expected scripts to be initialized")
	}
}

func TestAcquireCallSlot_RejectsBadInput(t *testing.T) {
	if _, err := AcquireCallSlot(context.Background(), nil, "u", 0); err == nil {
		t.Fatalf("expected error for nil client")
	}
}
