package session

import "fmt"

// State is the lifecycle state of the call session.
type State int

const (
	// StateIdle means no call has been placed yet.
	StateIdle State = iota
	// StateConnecting covers token fetch and the connect request.
	StateConnecting
	// StateRinging means the remote side is alerting.
	StateRinging
	// StateConnected means media is established.
	StateConnected
	// StateDisconnected is the terminal state of a call that ended.
	StateDisconnected
	// StateFailed is the terminal state of a call that could not be established.
	StateFailed
)

// String returns the string representation of the state
func (s State) String() string {
	switch s {
	case StateIdle:
		return "Idle"
	case StateConnecting:
		return "Connecting"
	case StateRinging:
		return "Ringing"
	case StateConnected:
		return "Connected"
	case StateDisconnected:
		return "Disconnected"
	case StateFailed:
		return "Failed"
	default:
		return fmt.Sprintf("Unknown(%d)", s)
	}
}

// validTransitions defines which state transitions are allowed
var validTransitions = map[State][]State{
	StateIdle:         {StateConnecting},
	StateConnecting:   {StateRinging, StateConnected, StateDisconnected, StateFailed},
	StateRinging:      {StateConnected, StateDisconnected, StateFailed},
	StateConnected:    {StateDisconnected, StateFailed},
	StateDisconnected: {StateConnecting},
	StateFailed:       {StateConnecting},
}

// CanTransitionTo checks if a transition from current state to next state is valid
func (s State) CanTransitionTo(next State) bool {
	for _, state := range validTransitions[s] {
		if state == next {
			return true
		}
	}
	return false
}

// IsTerminal reports whether no more transport events are expected for the call.
func (s State) IsTerminal() bool {
	return s == StateDisconnected || s == StateFailed
}

// CanStartCall reports whether a new call may be placed from this state.
func (s State) CanStartCall() bool {
	return s == StateIdle || s.IsTerminal()
}

// IsActive reports whether a call is in progress.
func (s State) IsActive() bool {
	return s == StateConnecting || s == StateRinging || s == StateConnected
}
