package telephony

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// fulfillingObserver resolves every delivered action immediately.
type fulfillingObserver struct{}

func (fulfillingObserver) HandleStartCall(a *StartCallAction) { _ = a.Fulfill() }
func (fulfillingObserver) HandleEndCall(a *EndCallAction)     { _ = a.Fulfill() }
func (fulfillingObserver) HandleProviderReset(error)          {}

func startProviderStub(t *testing.T, handle func(conn *websocket.Conn)) string {
	t.Helper()
	up := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := up.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade: %v", err)
			return
		}
		defer conn.Close()
		handle(conn)
	}))
	t.Cleanup(srv.Close)
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func TestBridgeDeliversActionAndWritesAck(t *testing.T) {
	id := uuid.New()
	gotAck := make(chan frame, 1)

	url := startProviderStub(t, func(conn *websocket.Conn) {
		if err := conn.WriteJSON(frame{Type: frameStartCall, UUID: id.String(), Handle: "copilot"}); err != nil {
			return
		}
		var f frame
		if err := conn.ReadJSON(&f); err != nil {
			return
		}
		gotAck <- f
		// Hold the socket open until the client goes away.
		_, _, _ = conn.ReadMessage()
	})

	b, err := NewBridge(BridgeConfig{URL: url}, nil)
	if err != nil {
		t.Fatalf("bridge: %v", err)
	}
	b.SetObserver(fulfillingObserver{})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan struct{})
	go func() {
		_ = b.Run(ctx)
		close(done)
	}()

	select {
	case f := <-gotAck:
		if f.Type != frameAck || f.UUID != id.String() || f.Resolution != string(ResolutionFulfilled) {
			t.Fatalf("unexpected ack frame: %+v", f)
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("timed out waiting for ack")
	}

	cancel()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatalf("bridge did not stop")
	}
}

func TestBridgeTransactionRoundTrip(t *testing.T) {
	url := startProviderStub(t, func(conn *websocket.Conn) {
		var f frame
		if err := conn.ReadJSON(&f); err != nil {
			return
		}
		if f.Type != frameTransaction || len(f.Actions) != 1 {
			return
		}
		_ = conn.WriteJSON(frame{Type: frameTransactionResult, RequestID: f.RequestID, OK: true})
		_, _, _ = conn.ReadMessage()
	})

	b, err := NewBridge(BridgeConfig{URL: url}, nil)
	if err != nil {
		t.Fatalf("bridge: %v", err)
	}
	b.SetObserver(fulfillingObserver{})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = b.Run(ctx) }()

	// Wait for the socket to come up.
	deadline := time.Now().Add(5 * time.Second)
	for {
		b.mu.Lock()
		connected := b.conn != nil
		b.mu.Unlock()
		if connected {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("bridge never connected")
		}
		time.Sleep(10 * time.Millisecond)
	}

	reqCtx, reqCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer reqCancel()
	err = b.RequestTransaction(reqCtx, []TransactionAction{{Kind: TransactionEndCall, CallUUID: uuid.New()}})
	if err != nil {
		t.Fatalf("transaction: %v", err)
	}
}

func TestBridgeTransactionFailsWhenDisconnected(t *testing.T) {
	b, err := NewBridge(BridgeConfig{URL: "ws://127.0.0.1:1/ws"}, nil)
	if err != nil {
		t.Fatalf("bridge: %v", err)
	}
	if err := b.RequestTransaction(context.Background(), []TransactionAction{{Kind: TransactionEndCall, CallUUID: uuid.New()}}); err == nil {
		t.Fatalf("expected error when not connected")
	}
}
