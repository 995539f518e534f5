package entity

// Status constants for Approval. Everything except pending is terminal.
const (
	StatusPending   = "pending"
	StatusApproved  = "approved"
	StatusRejected  = "rejected"
	StatusTimeout   = "timeout"
	StatusCancelled = "cancelled"
)

// Approver status constants
const (
	ApproverStatusPending  = "pending"
	ApproverStatusApproved = "approved"
	ApproverStatusRejected = "rejected"
	ApproverStatusTimeout  = "timeout"
)

// Consensus mode constants
const (
	ModeSingle        = "single"
	ModeWaitAll       = "wait_all"
	ModeFirstResponse = "first_response"
)

// Result code constants reported back to the origin system
const (
	ResultApprove   = "approve"
	ResultReject    = "reject"
	ResultTimeout   = "timeout"
	ResultCancelled = "cancelled"
)

// Defaults applied when the caller leaves a field empty
const (
	DefaultApproveLabel = "Approve"
	DefaultRejectLabel  = "Reject"
	DefaultTimeoutHours = 24
	MinTimeoutHours     = 1
	MaxTimeoutHours     = 168

	// MaxApprovalIDLength keeps "reject:<id>" within Telegram's 64 byte callback_data.
	MaxApprovalIDLength = 50

	// SystemResponder is recorded as respondedBy for resolutions nobody clicked.
	SystemResponder = "System"
)

var legacyModes = map[string]string{
	"multiple_wait_all": ModeWaitAll,
	"multiple_first":    ModeFirstResponse,
}

// NormalizeMode maps legacy mode names onto the current ones and defaults
// an empty mode to single. Unknown modes are returned unchanged.
func NormalizeMode(mode string) string {
	if mode == "" {
		return ModeSingle
	}
	if m, ok := legacyModes[mode]; ok {
		return m
	}
	return mode
}

// IsValidMode reports whether mode is one of the supported consensus modes.
func IsValidMode(mode string) bool {
	switch mode {
	case ModeSingle, ModeWaitAll, ModeFirstResponse:
		return true
	}
	return false
}

// IsTerminalStatus reports whether an approval status can no longer change.
func IsTerminalStatus(status string) bool {
	switch status {
	case StatusApproved, StatusRejected, StatusTimeout, StatusCancelled:
		return true
	}
	return false
}

// StatusForResult maps a result code onto the approval status it produces.
func StatusForResult(resultCode string) string {
	switch resultCode {
	case ResultApprove:
		return StatusApproved
	case ResultReject:
		return StatusRejected
	case ResultTimeout:
		return StatusTimeout
	case ResultCancelled:
		return StatusCancelled
	}
	return ""
}

// ApproverStatusForResult maps an approve/reject response onto the approver status.
func ApproverStatusForResult(resultCode string) string {
	switch resultCode {
	case ResultApprove:
		return ApproverStatusApproved
	case ResultReject:
		return ApproverStatusRejected
	}
	return ""
}
