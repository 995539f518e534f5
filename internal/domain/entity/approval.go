package entity

import "time"

// Approval is one request for one or more yes/no decisions raised by the origin system
type Approval struct {
	ApprovalID        string `json:"approval_id"`
	OriginSystemRef   string `json:"origin_system_ref"`
	RequestingUserRef string `json:"requesting_user_ref"`
	DocumentType      string `json:"document_type"`
	DocumentID        string `json:"document_id"`
	DocumentTitle     string `json:"document_title"`
	DocumentURL       string `json:"document_url"`
	MessageText       string `json:"message_text"`
	ApproveLabel      string `json:"approve_label"`
	RejectLabel       string `json:"reject_label"`
	Mode              string `json:"mode"`
	TimeoutHours      int    `json:"timeout_hours"`
	Status            string `json:"status"`

	// Result fields, set only on resolution
	ResultCode  string     `json:"result_code,omitempty"`
	ResultLabel string     `json:"result_label,omitempty"`
	Comment     string     `json:"comment,omitempty"`
	RespondedBy string     `json:"responded_by,omitempty"`
	RespondedAt *time.Time `json:"responded_at,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ExpiresAt returns the moment the approval becomes eligible for the timeout sweep.
func (a *Approval) ExpiresAt() time.Time {
	return a.CreatedAt.Add(time.Duration(a.TimeoutHours) * time.Hour)
}

// IsTerminal reports whether the approval has been resolved.
func (a *Approval) IsTerminal() bool {
	return IsTerminalStatus(a.Status)
}

// LabelFor returns the button label configured for a result code.
func (a *Approval) LabelFor(resultCode string) string {
	switch resultCode {
	case ResultApprove:
		return a.ApproveLabel
	case ResultReject:
		return a.RejectLabel
	}
	return resultCode
}

// Approver is the per-person assignment of an approval
type Approver struct {
	ID               int64      `json:"id"`
	ApprovalID       string     `json:"approval_id"`
	ApproverRef      string     `json:"approver_ref"`
	ChannelRecipient string     `json:"channel_recipient"`
	ChannelUsername  string     `json:"channel_username,omitempty"`
	DisplayName      string     `json:"display_name,omitempty"`
	Status           string     `json:"status"`
	ResponseCode     string     `json:"response_code,omitempty"`
	ResponseLabel    string     `json:"response_label,omitempty"`
	Comment          string     `json:"comment,omitempty"`
	RespondedAt      *time.Time `json:"responded_at,omitempty"`
	ChannelChatID    string     `json:"channel_chat_id,omitempty"`
	ChannelMessageID string     `json:"channel_message_id,omitempty"`
	CreatedAt        time.Time  `json:"created_at"`
}

// IsPending reports whether the approver has not responded yet.
func (a *Approver) IsPending() bool {
	return a.Status == ApproverStatusPending
}

// HasMessage reports whether a channel message was delivered to the approver.
func (a *Approver) HasMessage() bool {
	return a.ChannelMessageID != ""
}

// Name returns the most human-friendly identity known for the approver.
func (a *Approver) Name() string {
	switch {
	case a.DisplayName != "":
		return a.DisplayName
	case a.ChannelUsername != "":
		return "@" + a.ChannelUsername
	}
	return a.ApproverRef
}
