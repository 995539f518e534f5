package workflow

import "github.com/garyjia/approval-gateway/internal/domain/entity"

// State is a status in the approval lifecycle
type State string

const (
	StatePending   State = entity.StatusPending
	StateApproved  State = entity.StatusApproved
	StateRejected  State = entity.StatusRejected
	StateTimeout   State = entity.StatusTimeout
	StateCancelled State = entity.StatusCancelled
)

// IsTerminal returns true once the approval has been resolved
func (s State) IsTerminal() bool {
	return s.IsValid() && s != StatePending
}

// String returns the string representation of the state
func (s State) String() string {
	return string(s)
}

// IsValid returns true if the state is a known lifecycle state
func (s State) IsValid() bool {
	switch s {
	case StatePending, StateApproved, StateRejected, StateTimeout, StateCancelled:
		return true
	}
	return false
}
