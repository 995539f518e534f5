package workflow

import "fmt"

// transitions lists every permitted move. Terminal states have no entry,
// so every trigger fired from them is rejected.
var transitions = map[State]map[Trigger]State{
	StatePending: {
		TriggerApprove: StateApproved,
		TriggerReject:  StateRejected,
		TriggerExpire:  StateTimeout,
		TriggerCancel:  StateCancelled,
	},
}

// Machine tracks one approval's lifecycle state
type Machine struct {
	state State
}

// State returns the current state
func (m *Machine) State() State {
	return m.state
}

// CanFire returns true if the trigger is permitted in the current state
func (m *Machine) CanFire(trigger Trigger) bool {
	_, ok := transitions[m.state][trigger]
	return ok
}

// Fire moves the machine to the trigger's target state
func (m *Machine) Fire(trigger Trigger) error {
	if !m.CanFire(trigger) {
		return fmt.Errorf("%w: cannot fire trigger %s from state %s", ErrInvalidTransition, trigger, m.state)
	}
	m.state = transitions[m.state][trigger]
	return nil
}
