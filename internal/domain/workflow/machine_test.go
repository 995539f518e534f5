package workflow

import (
	"errors"
	"testing"
)

func TestState_IsTerminal(t *testing.T) {
	tests := []struct {
		state    State
		expected bool
	}{
		{StatePending, false},
		{StateApproved, true},
		{StateRejected, true},
		{StateTimeout, true},
		{StateCancelled, true},
		{State("INVALID"), false},
	}

	for _, tt := range tests {
		t.Run(string(tt.state), func(t *testing.T) {
			if got := tt.state.IsTerminal(); got != tt.expected {
				t.Errorf("State.IsTerminal() = %v, want %v", got, tt.expected)
			}
		})
	}
}

func TestState_IsValid(t *testing.T) {
	tests := []struct {
		name     string
		state    State
		expected bool
	}{
		{"pending", StatePending, true},
		{"cancelled", StateCancelled, true},
		{"invalid state", State("INVALID"), false},
		{"empty state", State(""), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.state.IsValid(); got != tt.expected {
				t.Errorf("State.IsValid() = %v, want %v", got, tt.expected)
			}
		})
	}
}

func TestTrigger_String(t *testing.T) {
	if got := TriggerExpire.String(); got != "EXPIRE" {
		t.Errorf("Trigger.String() = %v, want %v", got, "EXPIRE")
	}
}

func TestTransitions_ReferenceValidStates(t *testing.T) {
	if len(transitions) == 0 {
		t.Fatal("transition table is empty")
	}
	for from, moves := range transitions {
		if !from.IsValid() {
			t.Errorf("invalid source state %q", from)
		}
		for trigger, to := range moves {
			if !to.IsValid() {
				t.Errorf("%s --%s--> invalid target %q", from, trigger, to)
			}
		}
	}
}

func TestLifecycle_PendingTransitions(t *testing.T) {
	tests := []struct {
		trigger Trigger
		want    State
	}{
		{TriggerApprove, StateApproved},
		{TriggerReject, StateRejected},
		{TriggerExpire, StateTimeout},
		{TriggerCancel, StateCancelled},
	}

	for _, tt := range tests {
		t.Run(tt.trigger.String(), func(t *testing.T) {
			machine, err := ForStatus("pending")
			if err != nil {
				t.Fatalf("ForStatus() failed: %v", err)
			}
			if !machine.CanFire(tt.trigger) {
				t.Errorf("CanFire(%v) = false, want true", tt.trigger)
			}
			if err := machine.Fire(tt.trigger); err != nil {
				t.Fatalf("Fire() failed: %v", err)
			}
			if machine.State() != tt.want {
				t.Errorf("State = %v, want %v", machine.State(), tt.want)
			}
			if machine.CanFire(TriggerCancel) {
				t.Error("terminal state should not permit further triggers")
			}
		})
	}
}

func TestLifecycle_TerminalStatesRejectEverything(t *testing.T) {
	for _, status := range []string{"approved", "rejected", "timeout", "cancelled"} {
		machine, err := ForStatus(status)
		if err != nil {
			t.Fatalf("ForStatus(%s) failed: %v", status, err)
		}
		for _, trigger := range []Trigger{TriggerApprove, TriggerReject, TriggerExpire, TriggerCancel} {
			err := machine.Fire(trigger)
			if !errors.Is(err, ErrInvalidTransition) {
				t.Errorf("%s: Fire(%v) error = %v, want %v", status, trigger, err, ErrInvalidTransition)
			}
			if machine.State() != State(status) {
				t.Errorf("%s: state changed to %v after rejected trigger", status, machine.State())
			}
		}
	}
}

func TestForStatus_Invalid(t *testing.T) {
	if _, err := ForStatus("unknown"); !errors.Is(err, ErrInvalidState) {
		t.Errorf("ForStatus() error = %v, want %v", err, ErrInvalidState)
	}
}

func TestResolve(t *testing.T) {
	tests := []struct {
		name    string
		status  string
		result  string
		want    string
		wantErr error
	}{
		{"approve", "pending", "approve", "approved", nil},
		{"reject", "pending", "reject", "rejected", nil},
		{"timeout", "pending", "timeout", "timeout", nil},
		{"cancel", "pending", "cancelled", "cancelled", nil},
		{"already terminal", "approved", "reject", "", ErrInvalidTransition},
		{"unknown result", "pending", "maybe", "", ErrInvalidTransition},
		{"unknown status", "paused", "approve", "", ErrInvalidState},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Resolve(tt.status, tt.result)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Errorf("Resolve() error = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("Resolve() failed: %v", err)
			}
			if got != tt.want {
				t.Errorf("Resolve() = %v, want %v", got, tt.want)
			}
		})
	}
}
