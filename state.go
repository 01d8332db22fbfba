package latch

import "encoding/json"

// Phase represents the lifecycle phase of a tracked operation.
type Phase int32

const (
	// PhaseInit indicates the operation has never been invoked. This is the
	// zero value, so keys that were never written read as Init.
	PhaseInit Phase = iota

	// PhaseLoading indicates the operation is in flight.
	PhaseLoading

	// PhaseLoaded indicates the operation completed successfully. Result
	// data stays with the caller; the phase carries no payload.
	PhaseLoaded

	// PhaseFailed indicates the operation completed with an error. The
	// caller-reported message travels with the CallState value.
	PhaseFailed
)

// String returns the string representation of the phase.
func (p Phase) String() string {
	switch p {
	case PhaseInit:
		return "init"
	case PhaseLoading:
		return "loading"
	case PhaseLoaded:
		return "loaded"
	case PhaseFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// CallState is the lifecycle state of one tracked operation: a phase plus,
// for failed operations, the message reported by the caller.
//
// CallState is an immutable value. The zero value is the Init state, so a
// never-written operation reads as Init with every derivation false and an
// empty message. Values are comparable: two states are equal exactly when
// their phase and message are equal, which stores rely on to suppress
// writes that restate the current state.
type CallState struct {
	phase   Phase
	message string
}

// Init returns the state of an operation that has never been invoked.
// It is the zero value of CallState.
func Init() CallState { return CallState{} }

// Loading returns the state of an operation that is in flight.
func Loading() CallState { return CallState{phase: PhaseLoading} }

// Loaded returns the state of an operation that completed successfully.
func Loaded() CallState { return CallState{phase: PhaseLoaded} }

// Failed returns the state of an operation that completed with an error.
// The message is stored verbatim. Callers own its formatting and should
// extract display text from their error values before constructing the
// state; non-failed states never carry a message.
func Failed(message string) CallState {
	return CallState{phase: PhaseFailed, message: message}
}

// Phase returns the lifecycle phase.
func (s CallState) Phase() Phase { return s.phase }

// Loading reports whether the operation is in flight.
func (s CallState) Loading() bool { return s.phase == PhaseLoading }

// Loaded reports whether the operation completed successfully.
func (s CallState) Loaded() bool { return s.phase == PhaseLoaded }

// Failed reports whether the operation completed with an error.
func (s CallState) Failed() bool { return s.phase == PhaseFailed }

// Message returns the failure message, or the empty string for any
// non-failed state.
func (s CallState) Message() string { return s.message }

// String returns "failed: <message>" for failed states and the phase name
// otherwise.
func (s CallState) String() string {
	if s.phase == PhaseFailed {
		return "failed: " + s.message
	}
	return s.phase.String()
}

// MarshalJSON encodes the state as {"state":"<phase>"} with an additional
// "error" member for failed states. The encoding matches the status
// document entries accepted by Register.Feed.
func (s CallState) MarshalJSON() ([]byte, error) {
	entry := struct {
		State string `json:"state"`
		Error string `json:"error,omitempty"`
	}{State: s.phase.String()}
	if s.phase == PhaseFailed {
		entry.Error = s.message
	}
	return json.Marshal(entry)
}
