package workflow

// Trigger is an event that moves an approval out of pending
type Trigger string

const (
	TriggerApprove Trigger = "APPROVE"
	TriggerReject  Trigger = "REJECT"
	TriggerExpire  Trigger = "EXPIRE"
	TriggerCancel  Trigger = "CANCEL"
)

// String returns the string representation of the trigger
func (t Trigger) String() string {
	return string(t)
}
