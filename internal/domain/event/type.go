package event

// Type identifies the type of domain event
type Type string

const (
	TypeApprovalCreated   Type = "approval.created"
	TypeApproverResponded Type = "approver.responded"
	TypeApprovalResolved  Type = "approval.resolved"
	TypeApprovalCancelled Type = "approval.cancelled"
	TypeApprovalTimedOut  Type = "approval.timed_out"
	TypeDeliveryFailed    Type = "result.delivery_failed"
)

// String returns the string representation of the event type
func (t Type) String() string {
	return string(t)
}

// IsValid checks if the event type is one of the defined constants
func (t Type) IsValid() bool {
	switch t {
	case TypeApprovalCreated,
		TypeApproverResponded,
		TypeApprovalResolved,
		TypeApprovalCancelled,
		TypeApprovalTimedOut,
		TypeDeliveryFailed:
		return true
	default:
		return false
	}
}

// IsResolution reports whether the event marks an approval leaving pending
func (t Type) IsResolution() bool {
	switch t {
	case TypeApprovalResolved, TypeApprovalCancelled, TypeApprovalTimedOut:
		return true
	}
	return false
}
