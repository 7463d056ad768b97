package datacall

import (
	"context"
	"errors"

	"github.com/looplab/fsm"
)

// State is the lifecycle state of a data-call context.
type State string

const (
	StateIdle       State = "idle"
	StateIniting    State = "initing"
	StateActivating State = "activating"
	StateActive     State = "active"
	StateFailed     State = "failed"
)

// Lifecycle events.
const (
	EventInit     = "init"
	EventActivate = "activate"
	EventConnect  = "connect"
	EventFail     = "fail"
	EventRelease  = "release"
)

// newMachine builds the lifecycle of one context. A context only moves
// forward or falls to failed, and returns to idle by release.
func newMachine(callbacks fsm.Callbacks) *fsm.FSM {
	return fsm.NewFSM(
		string(StateIdle),
		fsm.Events{
			{Name: EventInit, Src: []string{string(StateIdle)}, Dst: string(StateIniting)},
			{Name: EventActivate, Src: []string{string(StateIniting)}, Dst: string(StateActivating)},
			{Name: EventConnect, Src: []string{string(StateActivating)}, Dst: string(StateActive)},
			{Name: EventFail, Src: []string{string(StateIniting), string(StateActivating), string(StateActive)}, Dst: string(StateFailed)},
			{Name: EventRelease, Src: []string{string(StateFailed), string(StateActive)}, Dst: string(StateIdle)},
		},
		callbacks,
	)
}

// fire runs event and treats a no-op transition as success.
func fire(ctx context.Context, m *fsm.FSM, event string) error {
	err := m.Event(ctx, event)
	var noTransition fsm.NoTransitionError
	if errors.As(err, &noTransition) {
		return nil
	}
	return err
}
