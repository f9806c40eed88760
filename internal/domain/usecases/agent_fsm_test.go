package usecases

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestTurnMachine_ToolRoundTrip(t *testing.T) {
	m := newTurnMachine(zap.NewNop())
	ctx := context.Background()

	steps := []struct {
		event string
		want  string
	}{
		{EventStart, StateAwaitingModel},
		{EventModelResponded, StateEvaluatingToolCalls},
		{EventToolRequested, StateExecutingTool},
		{EventToolCompleted, StateAwaitingModel},
		{EventModelResponded, StateEvaluatingToolCalls},
		{EventAnswered, StateDone},
	}
	for _, s := range steps {
		require.NoError(t, m.fire(ctx, s.event), s.event)
		assert.Equal(t, s.want, m.current())
	}
	assert.True(t, m.finished())
}

func TestTurnMachine_RejectsOutOfOrderEvents(t *testing.T) {
	m := newTurnMachine(zap.NewNop())
	ctx := context.Background()

	err := m.fire(ctx, EventToolCompleted)
	assert.ErrorIs(t, err, errInvalidTransition)
	assert.Equal(t, StateIdle, m.current())

	require.NoError(t, m.fire(ctx, EventStart))
	assert.ErrorIs(t, m.fire(ctx, EventAnswered), errInvalidTransition, "answer before the model responded")
	assert.Equal(t, StateAwaitingModel, m.current())
	assert.False(t, m.finished())
}

func TestTurnMachine_FailsFromAnyActivePhase(t *testing.T) {
	for _, prefix := range [][]string{
		nil,
		{EventStart},
		{EventStart, EventModelResponded},
		{EventStart, EventModelResponded, EventToolRequested},
	} {
		m := newTurnMachine(zap.NewNop())
		ctx, cancel := context.WithCancel(context.Background())
		for _, ev := range prefix {
			require.NoError(t, m.fire(ctx, ev))
		}
		cancel()
		require.NoError(t, m.fire(ctx, EventFailed), "a cancelled turn still reaches error")
		assert.Equal(t, StateError, m.current())
		assert.ErrorIs(t, m.fire(context.Background(), EventFailed), errInvalidTransition)
	}
}
