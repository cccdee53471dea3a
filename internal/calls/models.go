package calls

import "time"

// Session is one live or recently-completed voice call.
//
// Ownership invariant: the call manager exclusively owns the Session value
// for its whole lifetime. No other component may mutate it; external readers
// get value snapshots only.
//
// Single-active-call invariant: at most one Session is in a non-terminal
// state ({Requesting, Connecting, Active, Ending}) at any time.

type Session struct {
	ID string `json:"id"`

	State State `json:"state"`

	// RoomName and ParticipantIdentity are assigned once, at the start of
	// provisioning, and are immutable afterwards.
	RoomName            string `json:"room_name,omitempty"`
	ParticipantIdentity string `json:"participant_identity,omitempty"`

	// Credential is absent until provisioning succeeds. Once issued it is
	// never mutated and never reused across sessions.
	Credential *MediaCredential `json:"credential,omitempty"`

	// BackendSessionID is set once the recorder confirms session creation.
	// It stays empty when conversation logging is disabled.
	BackendSessionID string `json:"backend_session_id,omitempty"`

	// LoggingEnabled is snapshotted at call start; later preference changes
	// never affect an in-progress call.
	LoggingEnabled bool `json:"logging_enabled"`

	// PendingActionID identifies the provider action currently awaiting
	// acknowledgment, if any.
	PendingActionID string `json:"pending_action_id,omitempty"`

	StartedAt time.Time `json:"started_at"`
	EndedAt   time.Time `json:"ended_at"`

	// FailureReason is set only in StateFailed.
	FailureReason FailureReason `json:"failure_reason,omitempty"`
}

// MediaCredential is the room-join token plus endpoint returned by
// provisioning. Scoped to exactly one room; expires after a bounded lifetime.
type MediaCredential struct {
	RoomName    string `json:"room_name"`
	JoinToken   string `json:"join_token"`
	EndpointURL string `json:"endpoint_url"`
}

// Context distinguishes where a call was placed from.
type Context string

const (
	ContextPhone     Context = "phone"
	ContextHandsFree Context = "handsfree"
)

func ValidContext(c Context) bool {
	return c == ContextPhone || c == ContextHandsFree
}

// Speaker identifies who produced a conversation turn.
type Speaker string

const (
	SpeakerUser      Speaker = "user"
	SpeakerAssistant Speaker = "assistant"
)

func ValidSpeaker(s Speaker) bool {
	return s == SpeakerUser || s == SpeakerAssistant
}

type State string

const (
	StateIdle       State = "idle"
	StateRequesting State = "requesting"
	StateConnecting State = "connecting"
	StateActive     State = "active"
	StateEnding     State = "ending"
	StateEnded      State = "ended"
	StateFailed     State = "failed"
)

// Terminal reports whether the state can never be left again.
func (s State) Terminal() bool {
	switch s {
	case StateEnded, StateFailed:
		return true
	default:
		return false
	}
}

// InProgress reports whether the session still counts against the
// single-active-call invariant.
func (s State) InProgress() bool {
	switch s {
	case StateRequesting, StateConnecting, StateActive, StateEnding:
		return true
	default:
		return false
	}
}

// FailureReason is the closed error taxonomy for failed call attempts.
type FailureReason string

const (
	// FailureBusy: another call was active; the new start was failed
	// immediately and no session was created.
	FailureBusy FailureReason = "busy"

	// FailureProvisioning: room credential issuance failed.
	FailureProvisioning FailureReason = "provisioning_failed"

	// FailureAudioActivation: the audio path could not be activated,
	// even after one retry.
	FailureAudioActivation FailureReason = "audio_activation_failed"

	// FailureProviderTimeout: the provider force-terminated the call before
	// we acknowledged; no further acknowledgment is possible.
	FailureProviderTimeout FailureReason = "provider_timeout"
)

// CanTransition encodes the forward-only state diagram. A session never
// reverts, except that any in-progress state may fall to StateFailed.
func CanTransition(from, to State) bool {
	if from.Terminal() {
		return false
	}
	if to == StateFailed {
		return from.InProgress()
	}
	switch from {
	case StateIdle:
		return to == StateRequesting
	case StateRequesting:
		return to == StateConnecting || to == StateEnding || to == StateEnded
	case StateConnecting:
		return to == StateActive || to == StateEnding || to == StateEnded
	case StateActive:
		return to == StateEnding || to == StateEnded
	case StateEnding:
		return to == StateEnded
	default:
		return false
	}
}
