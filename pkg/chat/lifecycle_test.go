package chat

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLifecycleStartsStopped(t *testing.T) {
	l := NewLifecycle(nil)
	assert.Equal(t, StateStopped, l.State())
}

func TestLifecycleTransitions(t *testing.T) {
	tests := []struct {
		from    State
		to      State
		allowed bool
	}{
		{StateStopped, StateListening, true},
		{StateStopped, StateClosed, true},
		{StateListening, StateStopped, true},
		{StateListening, StateClosed, true},
		{StateClosed, StateListening, false},
		{StateClosed, StateStopped, false},
	}

	for _, tt := range tests {
		t.Run(tt.from.String()+"->"+tt.to.String(), func(t *testing.T) {
			l := NewLifecycle(nil)
			l.state = tt.from

			assert.Equal(t, tt.allowed, l.CanTransition(tt.to))

			err := l.Transition(tt.to)
			if tt.allowed {
				require.NoError(t, err)
				assert.Equal(t, tt.to, l.State())
			} else {
				assert.ErrorIs(t, err, ErrInvalidTransition)
				assert.Equal(t, tt.from, l.State())
			}
		})
	}
}

func TestLifecycleSameStateIsNoop(t *testing.T) {
	calls := 0
	l := NewLifecycle(func(from, to State) { calls++ })

	require.NoError(t, l.Transition(StateStopped))
	assert.Equal(t, 0, calls)

	require.NoError(t, l.Transition(StateClosed))
	require.NoError(t, l.Transition(StateClosed))
	assert.Equal(t, 1, calls)
}

func TestLifecycleReportsChanges(t *testing.T) {
	var seen []string
	l := NewLifecycle(func(from, to State) {
		seen = append(seen, from.String()+"->"+to.String())
	})

	require.NoError(t, l.Transition(StateListening))
	require.NoError(t, l.Transition(StateStopped))
	require.NoError(t, l.Transition(StateClosed))
	assert.Error(t, l.Transition(StateListening))

	assert.Equal(t, []string{"stopped->listening", "listening->stopped", "stopped->closed"}, seen)
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "stopped", StateStopped.String())
	assert.Equal(t, "listening", StateListening.String())
	assert.Equal(t, "closed", StateClosed.String())
	assert.Equal(t, "state(9)", State(9).String())
}
