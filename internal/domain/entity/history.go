package entity

import "time"

// ApprovalEvent is one row of the append-only audit trail of an approval
type ApprovalEvent struct {
	ID         string    `json:"id"`
	ApprovalID string    `json:"approval_id"`
	EventType  string    `json:"event_type"`
	Actor      string    `json:"actor,omitempty"`
	Payload    string    `json:"payload"`
	Timestamp  time.Time `json:"timestamp"`
}

// ApprovalStats holds approval counts grouped by status
type ApprovalStats struct {
	Total     int            `json:"total"`
	ByStatus  map[string]int `json:"by_status"`
	Approvers int            `json:"approvers"`
}
