package usecases

import (
	"context"
	"errors"
	"fmt"

	"github.com/looplab/fsm"
	"go.uber.org/zap"
)

const (
	StateIdle                = "idle"
	StateAwaitingModel       = "awaiting_model"
	StateEvaluatingToolCalls = "evaluating_tool_calls"
	StateExecutingTool       = "executing_tool"
	StateDone                = "done"
	StateError               = "error"
)

const (
	EventStart          = "start"
	EventModelResponded = "model_responded"
	EventToolRequested  = "tool_requested"
	EventToolCompleted  = "tool_completed"
	EventAnswered       = "answered"
	EventHalted         = "halted"
	EventFailed         = "failed"
)

func turnFSMEvents() fsm.Events {
	return fsm.Events{
		{Name: EventStart, Src: []string{StateIdle}, Dst: StateAwaitingModel},
		{Name: EventModelResponded, Src: []string{StateAwaitingModel}, Dst: StateEvaluatingToolCalls},
		{Name: EventToolRequested, Src: []string{StateEvaluatingToolCalls}, Dst: StateExecutingTool},
		{Name: EventToolCompleted, Src: []string{StateExecutingTool}, Dst: StateAwaitingModel},
		{Name: EventAnswered, Src: []string{StateEvaluatingToolCalls}, Dst: StateDone},
		{Name: EventHalted, Src: []string{StateEvaluatingToolCalls}, Dst: StateDone},
		{
			Name: EventFailed,
			Src: []string{
				StateIdle,
				StateAwaitingModel,
				StateEvaluatingToolCalls,
				StateExecutingTool,
			},
			Dst: StateError,
		},
	}
}

// errInvalidTransition marks a turn step fired out of order.
var errInvalidTransition = errors.New("invalid turn transition")

// turnMachine is the phase of one turn. Every step of the loop must be a legal
// transition; the agent ends the turn as failed when one is not.
type turnMachine struct {
	fsm    *fsm.FSM
	logger *zap.Logger
}

func newTurnMachine(logger *zap.Logger) *turnMachine {
	m := &turnMachine{logger: logger}
	m.fsm = fsm.NewFSM(
		StateIdle,
		turnFSMEvents(),
		fsm.Callbacks{
			"enter_state": func(_ context.Context, e *fsm.Event) {
				m.logger.Debug("turn transition",
					zap.String("event", e.Event),
					zap.String("from", e.Src),
					zap.String("to", e.Dst),
				)
			},
		},
	)
	return m
}

// fire applies event. Transitions still apply after ctx is cancelled so a
// timed-out turn can reach error.
func (m *turnMachine) fire(ctx context.Context, event string) error {
	if !m.fsm.Can(event) {
		return fmt.Errorf("%w: %s from %s", errInvalidTransition, event, m.fsm.Current())
	}
	if err := m.fsm.Event(context.WithoutCancel(ctx), event); err != nil {
		return fmt.Errorf("%w: %s: %v", errInvalidTransition, event, err)
	}
	return nil
}

func (m *turnMachine) current() string {
	return m.fsm.Current()
}

// finished reports whether the turn reached done or error.
func (m *turnMachine) finished() bool {
	switch m.fsm.Current() {
	case StateDone, StateError:
		return true
	}
	return false
}
