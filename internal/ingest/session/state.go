package session

import (
	"github.com/vietddude/tokenstream/internal/core/domain"
)

// State is an alias for domain.SessionState for internal use.
type State = domain.SessionState

// ValidTransitions defines allowed state transitions.
// Key is the current state, value is the list of valid next states.
var ValidTransitions = map[State][]State{
	domain.SessionStateConnecting: {domain.SessionStateSubscribed, domain.SessionStateClosed},
	domain.SessionStateSubscribed: {domain.SessionStateStreaming, domain.SessionStateClosed},
	domain.SessionStateStreaming:  {domain.SessionStateClosed},
}

// CanTransition checks if a transition from one state to another is valid.
func CanTransition(from, to State) bool {
	for _, target := range ValidTransitions[from] {
		if target == to {
			return true
		}
	}
	return false
}

// StateDescription returns a human-readable description of a state.
func StateDescription(s State) string {
	switch s {
	case domain.SessionStateConnecting:
		return "Connecting - opening sink and channel"
	case domain.SessionStateSubscribed:
		return "Subscribed - request sent, waiting for first message"
	case domain.SessionStateStreaming:
		return "Streaming - dispatching messages in delivery order"
	case domain.SessionStateClosed:
		return "Closed - channel ended, session finished"
	default:
		return "Unknown state"
	}
}
