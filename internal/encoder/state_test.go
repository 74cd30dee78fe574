package encoder

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStateTransitions(t *testing.T) {
	s := stateUninitialized
	require.NoError(t, s.to(stateOpen))
	require.NoError(t, s.to(stateDraining))
	require.NoError(t, s.to(stateClosed))
	assert.Equal(t, stateClosed, s)

	assert.ErrorIs(t, s.to(stateOpen), ErrSessionState)
	assert.ErrorIs(t, s.to(stateDraining), ErrSessionState)
}

func TestStateIllegalMoves(t *testing.T) {
	testCases := []struct {
		from, to state
	}{
		{stateUninitialized, stateDraining},
		{stateOpen, stateOpen},
		{stateDraining, stateOpen},
		{stateDraining, stateDraining},
		{stateClosed, stateClosed},
	}

	for _, tc := range testCases {
		t.Run(tc.from.String()+"->"+tc.to.String(), func(t *testing.T) {
			s := tc.from
			assert.ErrorIs(t, s.to(tc.to), ErrSessionState)
			assert.Equal(t, tc.from, s, "failed transition must not move")
		})
	}
}

func TestStateRequire(t *testing.T) {
	assert.NoError(t, stateOpen.require(stateOpen, "feed"))
	err := stateDraining.require(stateOpen, "feed")
	assert.ErrorIs(t, err, ErrSessionState)
	assert.ErrorContains(t, err, "feed requires open session, have draining")
}
