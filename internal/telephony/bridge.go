package telephony

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// Bridge is the production Provider: a single WebSocket to the external
// call-management service. Actions arrive as JSON frames on the socket (the
// one serialized callback channel), resolutions go back as ack frames, and
// outbound transactions are correlated by request id.
//
// The read goroutine is the only one that touches the observer, so action
// delivery is naturally one-at-a-time and in order.
type Bridge struct {
	cfg BridgeConfig
	log *slog.Logger

	mu       sync.Mutex
	observer Observer
	conn     *websocket.Conn
	pending  map[string]chan transactionResult

	writeMu sync.Mutex
}

type BridgeConfig struct {
	URL               string
	HandshakeTimeout  time.Duration
	WriteTimeout      time.Duration
	MaxReconnectTries int
}

func (c BridgeConfig) withDefaults() BridgeConfig {
	out := c
	if out.HandshakeTimeout <= 0 {
		out.HandshakeTimeout = 10 * time.Second
	}
	if out.WriteTimeout <= 0 {
		out.WriteTimeout = 5 * time.Second
	}
	if out.MaxReconnectTries <= 0 {
		out.MaxReconnectTries = 10
	}
	return out
}

// frame is the single wire shape for every message on the socket.
type frame struct {
	Type       string              `json:"type"`
	UUID       string              `json:"uuid,omitempty"`
	Handle     string              `json:"handle,omitempty"`
	Resolution string              `json:"resolution,omitempty"`
	Reason     string              `json:"reason,omitempty"`
	RequestID  string              `json:"request_id,omitempty"`
	Actions    []TransactionAction `json:"actions,omitempty"`
	OK         bool                `json:"ok,omitempty"`
	Error      string              `json:"error,omitempty"`
}

const (
	frameStartCall         = "start_call"
	frameEndCall           = "end_call"
	frameReset             = "reset"
	frameAck               = "ack"
	frameTransaction       = "transaction"
	frameTransactionResult = "transaction_result"
)

type transactionResult struct {
	ok  bool
	err string
}

func NewBridge(cfg BridgeConfig, log *slog.Logger) (*Bridge, error) {
	if cfg.URL == "" {
		return nil, errors.New("telephony: bridge URL is required")
	}
	if log == nil {
		log = slog.Default()
	}
	return &Bridge{
		cfg:     cfg.withDefaults(),
		log:     log,
		pending: make(map[string]chan transactionResult),
	}, nil
}

func (b *Bridge) SetObserver(o Observer) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.observer = o
}

// Run connects and consumes frames until ctx is cancelled or reconnection is
// exhausted. Each disconnect is surfaced to the observer as a provider reset:
// any unresolved action handles died with the socket.
func (b *Bridge) Run(ctx context.Context) error {
	for {
		conn, err := b.connect(ctx)
		if err != nil {
			return fmt.Errorf("telephony: bridge connect: %w", err)
		}

		b.mu.Lock()
		b.conn = conn
		b.mu.Unlock()
		b.log.Info("provider bridge connected", "url", b.cfg.URL)

		readErr := b.readLoop(ctx, conn)
		_ = conn.Close()

		b.mu.Lock()
		b.conn = nil
		b.failPendingLocked(readErr)
		o := b.observer
		b.mu.Unlock()

		if ctx.Err() != nil {
			return ctx.Err()
		}
		b.log.Warn("provider bridge disconnected", "err", readErr)
		if o != nil {
			o.HandleProviderReset(readErr)
		}
	}
}

func (b *Bridge) connect(ctx context.Context) (*websocket.Conn, error) {
	dialer := websocket.Dialer{HandshakeTimeout: b.cfg.HandshakeTimeout}

	var conn *websocket.Conn
	op := func() error {
		c, _, err := dialer.DialContext(ctx, b.cfg.URL, nil)
		if err != nil {
			b.log.Debug("bridge dial failed", "err", err)
			return err
		}
		conn = c
		return nil
	}

	policy := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewExponentialBackOff(), uint64(b.cfg.MaxReconnectTries)),
		ctx,
	)
	if err := backoff.Retry(op, policy); err != nil {
		return nil, err
	}
	return conn, nil
}

func (b *Bridge) readLoop(ctx context.Context, conn *websocket.Conn) error {
	for {
		var f frame
		if err := conn.ReadJSON(&f); err != nil {
			return err
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		b.dispatch(f)
	}
}

func (b *Bridge) dispatch(f frame) {
	b.mu.Lock()
	o := b.observer
	b.mu.Unlock()

	switch f.Type {
	case frameStartCall:
		id, err := uuid.Parse(f.UUID)
		if err != nil {
			b.log.Error("bridge: bad start_call uuid", "uuid", f.UUID, "err", err)
			return
		}
		if o != nil {
			o.HandleStartCall(NewStartCallAction(id, f.Handle, b.ack))
		}
	case frameEndCall:
		id, err := uuid.Parse(f.UUID)
		if err != nil {
			b.log.Error("bridge: bad end_call uuid", "uuid", f.UUID, "err", err)
			return
		}
		if o != nil {
			o.HandleEndCall(NewEndCallAction(id, b.ack))
		}
	case frameReset:
		if o != nil {
			o.HandleProviderReset(fmt.Errorf("telephony: provider reset: %s", f.Reason))
		}
	case frameTransactionResult:
		b.mu.Lock()
		ch, ok := b.pending[f.RequestID]
		if ok {
			delete(b.pending, f.RequestID)
		}
		b.mu.Unlock()
		if ok {
			ch <- transactionResult{ok: f.OK, err: f.Error}
		}
	default:
		b.log.Warn("bridge: unknown frame type", "type", f.Type)
	}
}

// ack writes a resolution frame. A write failure here cannot be recovered by
// the orchestrator; the provider will treat the action as timed out.
func (b *Bridge) ack(callUUID uuid.UUID, res Resolution, reason string) {
	err := b.writeFrame(frame{
		Type:       frameAck,
		UUID:       callUUID.String(),
		Resolution: string(res),
		Reason:     reason,
	})
	if err != nil {
		b.log.Error("bridge: ack write failed", "uuid", callUUID, "resolution", res, "err", err)
	}
}

func (b *Bridge) RequestTransaction(ctx context.Context, actions []TransactionAction) error {
	if len(actions) == 0 {
		return errors.New("telephony: empty transaction")
	}

	requestID := uuid.NewString()
	ch := make(chan transactionResult, 1)

	b.mu.Lock()
	if b.conn == nil {
		b.mu.Unlock()
		return errors.New("telephony: bridge not connected")
	}
	b.pending[requestID] = ch
	b.mu.Unlock()

	err := b.writeFrame(frame{Type: frameTransaction, RequestID: requestID, Actions: actions})
	if err != nil {
		b.mu.Lock()
		delete(b.pending, requestID)
		b.mu.Unlock()
		return fmt.Errorf("telephony: transaction write: %w", err)
	}

	select {
	case <-ctx.Done():
		b.mu.Lock()
		delete(b.pending, requestID)
		b.mu.Unlock()
		return ctx.Err()
	case res := <-ch:
		if !res.ok {
			return fmt.Errorf("telephony: transaction rejected: %s", res.err)
		}
		return nil
	}
}

func (b *Bridge) writeFrame(f frame) error {
	b.mu.Lock()
	conn := b.conn
	b.mu.Unlock()
	if conn == nil {
		return errors.New("telephony: bridge not connected")
	}

	b.writeMu.Lock()
	defer b.writeMu.Unlock()
	_ = conn.SetWriteDeadline(time.Now().Add(b.cfg.WriteTimeout))
	return conn.WriteJSON(f)
}

// failPendingLocked resolves all in-flight transactions with a connection
// error. Caller holds b.mu.
func (b *Bridge) failPendingLocked(err error) {
	for id, ch := range b.pending {
		ch <- transactionResult{ok: false, err: fmt.Sprintf("connection lost: %v", err)}
		delete(b.pending, id)
	}
}
