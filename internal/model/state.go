package model

// State is a publication's lifecycle state.
//
// Normal path:
//
//	intaking → resolving → awaiting-acceptance → ready → submitting → archived
//
// Failure branches:
//   - rejected: terminal, entered from awaiting-acceptance when any
//     requirement tuple is rejected.
//   - failed: terminal, entered from any non-terminal state on malformed
//     input, an unknown base identifier, or a non-retryable commit error.
type State string

const (
	StateIntaking           State = "intaking"
	StateResolving          State = "resolving"
	StateAwaitingAcceptance State = "awaiting-acceptance"
	StateReady              State = "ready"
	StateSubmitting         State = "submitting"
	StateArchived           State = "archived"
	StateRejected           State = "rejected"
	StateFailed             State = "failed"
)

// transitions enumerates the legal state graph. Every non-terminal state
// may additionally move to failed.
var transitions = map[State][]State{
	StateIntaking:           {StateResolving},
	StateResolving:          {StateAwaitingAcceptance},
	StateAwaitingAcceptance: {StateReady, StateRejected},
	StateReady:              {StateSubmitting},
	StateSubmitting:         {StateArchived, StateReady},
	StateArchived:           {},
	StateRejected:           {},
	StateFailed:             {},
}

// Terminal reports whether no further transitions are possible.
func (s State) Terminal() bool {
	return s == StateArchived || s == StateRejected || s == StateFailed
}

// CanTransition reports whether from → to is a legal move. Any
// non-terminal state may move to failed.
func CanTransition(from, to State) bool {
	if to == StateFailed {
		return !from.Terminal()
	}
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Valid reports whether s names a known state.
func (s State) Valid() bool {
	_, ok := transitions[s]
	return ok
}
