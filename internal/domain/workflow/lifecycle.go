package workflow

import (
	"fmt"

	"github.com/garyjia/approval-gateway/internal/domain/entity"
)

// ForStatus returns a lifecycle machine positioned at the given approval status
func ForStatus(status string) (*Machine, error) {
	s := State(status)
	if !s.IsValid() {
		return nil, fmt.Errorf("%w: %s", ErrInvalidState, status)
	}
	return &Machine{state: s}, nil
}

// TriggerForResult maps a result code onto the trigger that produces it
func TriggerForResult(resultCode string) (Trigger, error) {
	switch resultCode {
	case entity.ResultApprove:
		return TriggerApprove, nil
	case entity.ResultReject:
		return TriggerReject, nil
	case entity.ResultTimeout:
		return TriggerExpire, nil
	case entity.ResultCancelled:
		return TriggerCancel, nil
	}
	return "", fmt.Errorf("%w: unknown result code %q", ErrInvalidTransition, resultCode)
}

// Resolve computes the status an approval in status moves to when resultCode
// is applied. It fails with ErrInvalidTransition when the approval is already terminal.
func Resolve(status, resultCode string) (string, error) {
	machine, err := ForStatus(status)
	if err != nil {
		return "", err
	}
	trigger, err := TriggerForResult(resultCode)
	if err != nil {
		return "", err
	}
	if err := machine.Fire(trigger); err != nil {
		return "", err
	}
	return machine.State().String(), nil
}
