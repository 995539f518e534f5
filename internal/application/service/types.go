package service

import (
	"github.com/garyjia/approval-gateway/internal/application/port"
	"github.com/garyjia/approval-gateway/internal/domain/entity"
)

// ApproverInput names one approver by origin user reference
type ApproverInput struct {
	OriginUserRef string `json:"origin_user_ref" validate:"required,max=128"`
	// ChannelHint is an optional channel username used when the user ref has no mapping
	ChannelHint string `json:"channel_hint,omitempty" validate:"max=128"`
}

// CreateApprovalInput is a request from the origin system to open an approval
type CreateApprovalInput struct {
	ApprovalID        string          `json:"approval_id" validate:"omitempty,printascii,max=50"`
	OriginSystemRef   string          `json:"origin_system_ref" validate:"required,max=255"`
	RequestingUserRef string          `json:"requesting_user_ref" validate:"max=128"`
	DocumentType      string          `json:"document_type" validate:"max=128"`
	DocumentID        string          `json:"document_id" validate:"max=128"`
	DocumentTitle     string          `json:"document_title" validate:"max=512"`
	DocumentURL       string          `json:"document_url" validate:"omitempty,url,max=2048"`
	MessageText       string          `json:"message_text" validate:"required,max=3000"`
	ApproveLabel      string          `json:"button_approve" validate:"max=64"`
	RejectLabel       string          `json:"button_reject" validate:"max=64"`
	Mode              string          `json:"mode"`
	TimeoutHours      int             `json:"timeout_hours"`
	Approvers         []ApproverInput `json:"approvers" validate:"required,min=1,max=50,dive"`
}

// CreateResult summarizes a created approval
type CreateResult struct {
	ApprovalID        string   `json:"approval_id"`
	ApproversCreated  int      `json:"approvers_created"`
	NotificationsSent int      `json:"notifications_sent"`
	Unmapped          []string `json:"unmapped,omitempty"`
}

// ResponseInput is one approver decision arriving from the channel
type ResponseInput struct {
	ApprovalID string
	// Recipient is the responder's channel identity
	Recipient string
	// Action is webhook.ActionApprove or webhook.ActionReject
	Action  string
	Comment string
}

// ResponseOutcome reports what a response did
type ResponseOutcome struct {
	ApprovalID string
	Result     port.ResponseResult
	// Resolved is set when this response resolved the approval
	Resolved bool
	Status   string
}

// StatusView is an approval with its assignments and audit trail
type StatusView struct {
	Approval  *entity.Approval
	Approvers []*entity.Approver
	Events    []*entity.ApprovalEvent
}
