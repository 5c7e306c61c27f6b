package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCanTransition_NormalPath(t *testing.T) {
	path := []State{
		StateIntaking,
		StateResolving,
		StateAwaitingAcceptance,
		StateReady,
		StateSubmitting,
		StateArchived,
	}
	for i := 0; i < len(path)-1; i++ {
		assert.True(t, CanTransition(path[i], path[i+1]),
			"%s -> %s should be legal", path[i], path[i+1])
	}
}

func TestCanTransition_FailureBranches(t *testing.T) {
	// Any non-terminal state may fail.
	for _, from := range []State{
		StateIntaking, StateResolving, StateAwaitingAcceptance,
		StateReady, StateSubmitting,
	} {
		assert.True(t, CanTransition(from, StateFailed), "%s -> failed", from)
	}

	// Terminal states never move again.
	for _, from := range []State{StateArchived, StateRejected, StateFailed} {
		for _, to := range []State{
			StateIntaking, StateResolving, StateAwaitingAcceptance,
			StateReady, StateSubmitting, StateArchived, StateRejected, StateFailed,
		} {
			assert.False(t, CanTransition(from, to), "%s -> %s", from, to)
		}
	}
}

func TestCanTransition_RejectionOnlyFromAwaiting(t *testing.T) {
	assert.True(t, CanTransition(StateAwaitingAcceptance, StateRejected))

	for _, from := range []State{
		StateIntaking, StateResolving, StateReady, StateSubmitting,
	} {
		assert.False(t, CanTransition(from, StateRejected), "%s -> rejected", from)
	}
}

func TestCanTransition_NoSkippingAhead(t *testing.T) {
	assert.False(t, CanTransition(StateIntaking, StateReady))
	assert.False(t, CanTransition(StateResolving, StateArchived))
	assert.False(t, CanTransition(StateAwaitingAcceptance, StateArchived))
	assert.False(t, CanTransition(StateReady, StateArchived))
}

func TestState_Terminal(t *testing.T) {
	assert.True(t, StateArchived.Terminal())
	assert.True(t, StateRejected.Terminal())
	assert.True(t, StateFailed.Terminal())
	assert.False(t, StateReady.Terminal())
	assert.False(t, StateAwaitingAcceptance.Terminal())
}

func TestState_Valid(t *testing.T) {
	assert.True(t, StateIntaking.Valid())
	assert.True(t, StateFailed.Valid())
	assert.False(t, State("published").Valid())
	assert.False(t, State("").Valid())
}
