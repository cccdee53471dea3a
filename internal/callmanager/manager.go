package callmanager

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"voice-copilot/internal/audio"
	"voice-copilot/internal/calls"
	"voice-copilot/internal/recorder"
	"voice-copilot/internal/room"
	"voice-copilot/internal/telephony"

	"github.com/google/uuid"
)

// Manager is the call session orchestrator. It consumes provider actions,
// drives the audio resource, room provisioner and session recorder in order,
// and acknowledges every delivered action exactly once.
//
// Synchronization model: all session mutations happen under m.mu, the single
// exclusive-access domain for the current session. Side-effecting calls
// (provisioning, recorder traffic, teardown) run off the action-delivery
// path and report back into that domain, re-checking the session identity
// and state before applying their results.
//
// Invariants:
// - At most one session is in a non-terminal state at any time.
// - A session's credential, once issued, is never mutated or reused.
// - Audio activation for a new call never precedes the prior call's
//   deactivation: a terminal state is only recorded after release returns,
//   and new calls are rejected as busy until then.
type Manager struct {
	provider telephony.Provider
	audio    audio.Resource
	rooms    room.Provisioner
	rec      recorder.Recorder
	prefs    Preferences

	identity    string
	callContext calls.Context

	endAckDeadline time.Duration
	effectTimeout  time.Duration

	log   *slog.Logger
	clock func() time.Time

	mu              sync.Mutex
	current         *calls.Session
	provisionCancel context.CancelFunc
}

// Config wires the manager's collaborators. Everything is passed in
// explicitly; the manager holds no ambient global state.
type Config struct {
	Provider telephony.Provider
	Audio    audio.Resource
	Rooms    room.Provisioner
	Recorder recorder.Recorder
	Prefs    Preferences

	// Identity is the participant identity base (typically the user id);
	// each call derives a unique participant identity from it.
	Identity string

	// CallContext tags recorded sessions ("phone" or "handsfree").
	CallContext calls.Context

	// EndAckDeadline bounds how long teardown may delay fulfilling an end
	// action; past it the action is fulfilled and teardown finishes async.
	EndAckDeadline time.Duration

	Logger *slog.Logger
	Clock  func() time.Time
}

var ErrNoActiveCall = errors.New("callmanager: no active call")

func New(cfg Config) (*Manager, error) {
	if cfg.Provider == nil {
		return nil, errors.New("callmanager: provider is required")
	}
	if cfg.Audio == nil {
		return nil, errors.New("callmanager: audio resource is required")
	}
	if cfg.Rooms == nil {
		return nil, errors.New("callmanager: room provisioner is required")
	}
	if cfg.Recorder == nil {
		return nil, errors.New("callmanager: recorder is required")
	}
	if cfg.Identity == "" {
		return nil, errors.New("callmanager: identity is required")
	}
	if cfg.Prefs == nil {
		cfg.Prefs = StaticPreferences(false)
	}
	if !calls.ValidContext(cfg.CallContext) {
		cfg.CallContext = calls.ContextPhone
	}
	if cfg.EndAckDeadline <= 0 {
		cfg.EndAckDeadline = 2 * time.Second
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}

	m := &Manager{
		provider:       cfg.Provider,
		audio:          cfg.Audio,
		rooms:          cfg.Rooms,
		rec:            cfg.Recorder,
		prefs:          cfg.Prefs,
		identity:       cfg.Identity,
		callContext:    cfg.CallContext,
		endAckDeadline: cfg.EndAckDeadline,
		effectTimeout:  5 * time.Second,
		log:            cfg.Logger,
		clock:          cfg.Clock,
	}
	cfg.Provider.SetObserver(m)
	return m, nil
}

// Snapshot returns a copy of the current session, if any. Read-only: the
// manager remains the session's sole owner.
func (m *Manager) Snapshot() (calls.Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.current == nil {
		return calls.Session{}, false
	}
	return *m.current, true
}

/* ===================== APP INTENT ===================== */

// RequestStartCall asks the provider to start a call. The provider redelivers
// the request as a StartCallAction, so the actual transition happens on the
// action path like every other one.
func (m *Manager) RequestStartCall(ctx context.Context, handle string) (uuid.UUID, error) {
	id := uuid.New()
	err := m.provider.RequestTransaction(ctx, []telephony.TransactionAction{{
		Kind:     telephony.TransactionStartCall,
		CallUUID: id,
		Handle:   handle,
	}})
	if err != nil {
		return uuid.Nil, fmt.Errorf("callmanager: start transaction: %w", err)
	}
	return id, nil
}

// RequestEndCall asks the provider to end the current call.
func (m *Manager) RequestEndCall(ctx context.Context) error {
	m.mu.Lock()
	var id uuid.UUID
	ok := m.current != nil && m.current.State.InProgress()
	if ok {
		parsed, err := uuid.Parse(m.current.ID)
		if err == nil {
			id = parsed
		} else {
			ok = false
		}
	}
	m.mu.Unlock()

	if !ok {
		return ErrNoActiveCall
	}
	err := m.provider.RequestTransaction(ctx, []telephony.TransactionAction{{
		Kind:     telephony.TransactionEndCall,
		CallUUID: id,
	}})
	if err != nil {
		return fmt.Errorf("callmanager: end transaction: %w", err)
	}
	return nil
}

// RecordTurn feeds one conversation turn to the recorder. Best-effort: when
// logging is disabled, the call is not active, or the backend is down, the
// turn is dropped and the call is unaffected.
func (m *Manager) RecordTurn(speaker calls.Speaker, text string) {
	m.mu.Lock()
	sess := m.current
	ok := sess != nil && sess.State == calls.StateActive && sess.LoggingEnabled && sess.BackendSessionID != ""
	var backendID string
	if ok {
		backendID = sess.BackendSessionID
	}
	m.mu.Unlock()

	if !ok {
		return
	}

	turn := recorder.Turn{Speaker: speaker, Text: text, Timestamp: m.clock().UTC()}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), m.effectTimeout)
		defer cancel()
		if err := m.rec.AppendTurn(ctx, backendID, turn); err != nil {
			// Recorder trouble never surfaces to the call flow.
			m.log.Warn("turn append failed", "backend_session_id", backendID, "err", err)
		}
	}()
}

/* ===================== PROVIDER ACTIONS ===================== */

// HandleStartCall processes a provider-delivered start. The start is
// fulfilled before media is ready: the provider contract requires it, at the
// cost of the call showing as started slightly before the room is joined.
func (m *Manager) HandleStartCall(a *telephony.StartCallAction) {
	m.mu.Lock()

	if m.current != nil && m.current.State.InProgress() {
		activeID := m.current.ID
		m.mu.Unlock()
		if err := a.Fail(string(calls.FailureBusy)); err != nil {
			m.log.Error("busy rejection failed", "uuid", a.UUID(), "err", err)
		}
		m.log.Warn("start rejected: another call in progress", "uuid", a.UUID(), "active_id", activeID)
		return
	}

	now := m.clock().UTC()
	sess := &calls.Session{
		ID:                  a.UUID().String(),
		State:               calls.StateRequesting,
		ParticipantIdentity: fmt.Sprintf("%s-%d", m.identity, now.UnixMilli()),
		LoggingEnabled:      m.prefs.LoggingEnabled(),
		PendingActionID:     a.UUID().String(),
	}
	m.current = sess

	ctx, cancel := context.WithCancel(context.Background())
	m.provisionCancel = cancel
	m.mu.Unlock()

	if err := a.Fulfill(); err != nil {
		m.log.Error("start fulfill failed", "uuid", a.UUID(), "err", err)
	}
	m.mu.Lock()
	sess.PendingActionID = ""
	m.mu.Unlock()

	m.log.Info("call starting", "session_id", sess.ID, "handle", a.Handle, "logging", sess.LoggingEnabled)
	go m.provisionAndConnect(ctx, sess.ID, sess.ParticipantIdentity)
}

// HandleEndCall processes a provider-delivered end from whichever state the
// call has reached.
func (m *Manager) HandleEndCall(a *telephony.EndCallAction) {
	m.mu.Lock()
	sess := m.current

	if sess == nil || sess.ID != a.UUID().String() {
		m.mu.Unlock()
		if err := a.Fail("unknown call"); err != nil {
			m.log.Error("end rejection failed", "uuid", a.UUID(), "err", err)
		}
		return
	}

	switch sess.State {
	case calls.StateRequesting:
		// User cancelled before provisioning finished: cancel the in-flight
		// request; a late credential is discarded by the worker. Nothing was
		// acquired yet, so there is nothing to release.
		m.cancelProvisionLocked()
		sess.State = calls.StateEnded
		sess.EndedAt = m.clock().UTC()
		m.mu.Unlock()

		if err := a.Fulfill(); err != nil {
			m.log.Error("end fulfill failed", "uuid", a.UUID(), "err", err)
		}
		m.log.Info("call cancelled before connect", "session_id", sess.ID)

	case calls.StateConnecting:
		// The connect worker is mid-flight; it finalizes teardown once its
		// current step returns.
		m.cancelProvisionLocked()
		sess.State = calls.StateEnding
		m.mu.Unlock()

		if err := a.Fulfill(); err != nil {
			m.log.Error("end fulfill failed", "uuid", a.UUID(), "err", err)
		}
		m.log.Info("call cancelled while connecting", "session_id", sess.ID)

	case calls.StateActive:
		sess.State = calls.StateEnding
		sess.PendingActionID = a.UUID().String()
		backendID := sess.BackendSessionID
		logging := sess.LoggingEnabled
		m.mu.Unlock()

		// Race teardown against the provider's end-action deadline: if the
		// releases are slow, fulfill anyway and let them finish async.
		done := make(chan struct{})
		go func() {
			m.teardown(sess.ID, backendID, logging)
			close(done)
		}()

		select {
		case <-done:
		case <-time.After(m.endAckDeadline):
			m.log.Warn("teardown exceeded end-ack deadline, fulfilling anyway", "session_id", sess.ID)
		}
		if err := a.Fulfill(); err != nil {
			m.log.Error("end fulfill failed", "uuid", a.UUID(), "err", err)
		}

	default:
		// Ending/Ended/Failed: a redelivered end for a call that is already
		// torn down (e.g. after a provider-requested end). Fulfill so the
		// provider UI settles; there is nothing left to release.
		m.mu.Unlock()
		if err := a.Fulfill(); err != nil {
			m.log.Error("late end fulfill failed", "uuid", a.UUID(), "err", err)
		}
	}
}

// HandleProviderReset handles a provider-level failure or timeout. The
// pending action handles are dead, so no acknowledgment is possible; the
// session rides the normal teardown path so it only turns terminal (and the
// busy gate only opens) after the audio release has returned.
func (m *Manager) HandleProviderReset(err error) {
	m.mu.Lock()
	sess := m.current
	if sess == nil || !sess.State.InProgress() {
		m.mu.Unlock()
		return
	}
	if sess.State == calls.StateEnding {
		// A teardown already owns the session's finalization.
		m.mu.Unlock()
		m.log.Error("provider reset during teardown", "session_id", sess.ID, "err", err)
		return
	}

	m.cancelProvisionLocked()
	sess.PendingActionID = ""
	prev := sess.State

	switch sess.State {
	case calls.StateRequesting:
		// Nothing acquired yet; fail in place.
		sess.State = calls.StateFailed
		sess.FailureReason = calls.FailureProviderTimeout
		sess.EndedAt = m.clock().UTC()
		m.mu.Unlock()

	case calls.StateConnecting:
		// The connect worker owns the just-acquired resources; it finalizes
		// teardown when it re-locks and sees Ending.
		sess.State = calls.StateEnding
		sess.FailureReason = calls.FailureProviderTimeout
		m.mu.Unlock()

	default: // Active
		sess.State = calls.StateEnding
		sess.FailureReason = calls.FailureProviderTimeout
		backendID := sess.BackendSessionID
		logging := sess.LoggingEnabled
		m.mu.Unlock()
		go m.teardown(sess.ID, backendID, logging)
	}

	m.log.Error("provider reset with call in progress", "session_id", sess.ID, "state", prev, "err", err)
}

/* ===================== WORKERS ===================== */

// provisionAndConnect runs the requesting->connecting->active leg off the
// action-delivery path.
func (m *Manager) provisionAndConnect(ctx context.Context, sessionID, identity string) {
	cred, provErr := m.rooms.Provision(ctx, sessionID, identity)

	m.mu.Lock()
	sess := m.current
	if sess == nil || sess.ID != sessionID || sess.State != calls.StateRequesting {
		m.mu.Unlock()
		if provErr == nil {
			// The call was cancelled while the request was in flight; the
			// credential is single-use and simply dropped.
			m.log.Info("discarding credential for cancelled call", "session_id", sessionID)
		}
		return
	}

	if provErr != nil {
		if errors.Is(provErr, context.Canceled) {
			// Cancellation is owned by the end path; nothing to do here.
			m.mu.Unlock()
			return
		}
		sess.State = calls.StateFailed
		sess.FailureReason = calls.FailureProvisioning
		sess.EndedAt = m.clock().UTC()
		m.mu.Unlock()

		m.log.Error("provisioning failed", "session_id", sessionID, "err", provErr)
		// The start was already fulfilled, so the only way to surface the
		// failure is a provider-level end.
		m.requestProviderEnd(sessionID)
		return
	}

	credCopy := cred
	sess.Credential = &credCopy
	sess.RoomName = cred.RoomName
	sess.State = calls.StateConnecting
	logging := sess.LoggingEnabled
	m.mu.Unlock()

	if logging {
		go m.openRecorderSession(sessionID)
	}

	// Activation failures are considered transient once: retry a single
	// time before giving up on the attempt.
	actErr := m.audio.Activate(ctx)
	if actErr != nil {
		m.log.Warn("audio activation failed, retrying once", "session_id", sessionID, "err", actErr)
		actErr = m.audio.Activate(ctx)
	}

	m.mu.Lock()
	sess = m.current
	if sess == nil || sess.ID != sessionID {
		m.mu.Unlock()
		if actErr == nil {
			m.releaseAudio()
		}
		return
	}

	switch {
	case sess.State == calls.StateEnding:
		// An end arrived mid-activation; this worker owns the just-acquired
		// resource and finalizes the teardown.
		backendID := sess.BackendSessionID
		m.mu.Unlock()
		m.teardown(sessionID, backendID, logging)

	case sess.State != calls.StateConnecting:
		m.mu.Unlock()
		if actErr == nil {
			m.releaseAudio()
		}

	case actErr != nil:
		sess.State = calls.StateEnding
		sess.FailureReason = calls.FailureAudioActivation
		backendID := sess.BackendSessionID
		m.mu.Unlock()

		m.log.Error("audio activation failed after retry", "session_id", sessionID, "err", actErr)
		m.requestProviderEnd(sessionID)
		m.teardown(sessionID, backendID, logging)

	default:
		sess.State = calls.StateActive
		sess.StartedAt = m.clock().UTC()
		m.mu.Unlock()
		m.log.Info("call active", "session_id", sessionID, "room", cred.RoomName)
	}
}

// openRecorderSession opens the backend session record. Recorder trouble is
// absorbed: the call proceeds without logging.
func (m *Manager) openRecorderSession(sessionID string) {
	ctx, cancel := context.WithTimeout(context.Background(), m.effectTimeout)
	defer cancel()

	backendID, err := m.rec.OpenSession(ctx, m.callContext)
	if err != nil {
		m.log.Warn("recorder unavailable, call proceeds without logging", "session_id", sessionID, "err", err)
		return
	}

	m.mu.Lock()
	sess := m.current
	if sess == nil || sess.ID != sessionID ||
		(sess.State != calls.StateConnecting && sess.State != calls.StateActive) {
		m.mu.Unlock()
		// The call is over or already winding down. A teardown in flight has
		// snapshotted its backend id, so attaching now would leak the record;
		// close the orphan right away instead.
		m.closeRecorderSession(backendID)
		return
	}
	sess.BackendSessionID = backendID
	m.mu.Unlock()
}

// teardown releases the audio path and closes the recorder record, then
// marks the session terminal. Ordering matters: the terminal state is
// recorded only after the audio release returns, which is what keeps the
// next call's activation behind this call's deactivation. A failure reason
// recorded on the session during the Ending phase turns the terminal state
// into Failed instead of Ended.
func (m *Manager) teardown(sessionID, backendID string, logging bool) {
	ctx, cancel := context.WithTimeout(context.Background(), m.effectTimeout)
	defer cancel()

	if err := m.audio.Deactivate(ctx); err != nil {
		m.log.Error("audio deactivation failed", "session_id", sessionID, "err", err)
	}
	if logging && backendID != "" {
		m.closeRecorderSession(backendID)
	}

	m.mu.Lock()
	state := calls.StateEnded
	sess := m.current
	if sess != nil && sess.ID == sessionID && !sess.State.Terminal() {
		if sess.FailureReason != "" {
			state = calls.StateFailed
		}
		sess.State = state
		sess.EndedAt = m.clock().UTC()
		sess.PendingActionID = ""
	}
	m.mu.Unlock()
	m.log.Info("call torn down", "session_id", sessionID, "state", state)
}

func (m *Manager) releaseAudio() {
	ctx, cancel := context.WithTimeout(context.Background(), m.effectTimeout)
	defer cancel()
	if err := m.audio.Deactivate(ctx); err != nil {
		m.log.Error("audio release failed", "err", err)
	}
}

func (m *Manager) closeRecorderSession(backendID string) {
	ctx, cancel := context.WithTimeout(context.Background(), m.effectTimeout)
	defer cancel()
	if err := m.rec.CloseSession(ctx, backendID, m.clock().UTC()); err != nil {
		m.log.Warn("recorder close failed", "backend_session_id", backendID, "err", err)
	}
}

// requestProviderEnd asks the provider to end a call whose start was already
// fulfilled but which cannot proceed.
func (m *Manager) requestProviderEnd(sessionID string) {
	id, err := uuid.Parse(sessionID)
	if err != nil {
		m.log.Error("bad session id for provider end", "session_id", sessionID, "err", err)
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), m.effectTimeout)
	defer cancel()
	err = m.provider.RequestTransaction(ctx, []telephony.TransactionAction{{
		Kind:     telephony.TransactionEndCall,
		CallUUID: id,
	}})
	if err != nil {
		m.log.Error("provider end transaction failed", "session_id", sessionID, "err", err)
	}
}

// cancelProvisionLocked cancels any in-flight provisioning. Caller holds m.mu.
func (m *Manager) cancelProvisionLocked() {
	if m.provisionCancel != nil {
		m.provisionCancel()
		m.provisionCancel = nil
	}
}
