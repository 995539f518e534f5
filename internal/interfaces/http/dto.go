package http

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/garyjia/approval-gateway/internal/application/service"
	"github.com/garyjia/approval-gateway/internal/domain/entity"
)

// FlexibleString accepts a JSON string or number. Origin systems send
// user and document ids either way.
type FlexibleString string

// UnmarshalJSON implements json.Unmarshaler
func (s *FlexibleString) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*s = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var str string
		if err := json.Unmarshal(data, &str); err != nil {
			return err
		}
		*s = FlexibleString(str)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("expected string or number, got %s", data)
	}
	*s = FlexibleString(n.String())
	return nil
}

// FlexibleInt accepts a JSON number or a numeric string
type FlexibleInt int

// UnmarshalJSON implements json.Unmarshaler
func (i *FlexibleInt) UnmarshalJSON(data []byte) error {
	var s FlexibleString
	if err := s.UnmarshalJSON(data); err != nil {
		return err
	}
	if s == "" {
		*i = 0
		return nil
	}
	n, err := strconv.Atoi(string(s))
	if err != nil {
		return fmt.Errorf("expected integer, got %q", string(s))
	}
	*i = FlexibleInt(n)
	return nil
}

// ApproverRequest names one approver. Legacy field names are accepted.
type ApproverRequest struct {
	OriginUserRef    FlexibleString `json:"origin_user_ref"`
	ChannelHint      string         `json:"channel_hint"`
	Bitrix24UserID   FlexibleString `json:"bitrix24_user_id"`
	TelegramUsername string         `json:"telegram_username"`
}

// CreateApprovalRequest is the body of POST /api/v1/approvals and its legacy alias
type CreateApprovalRequest struct {
	ApprovalID        FlexibleString    `json:"approval_id"`
	OriginSystemRef   string            `json:"origin_system_ref"`
	RequestingUserRef FlexibleString    `json:"requesting_user_ref"`
	DocumentType      string            `json:"document_type"`
	DocumentID        FlexibleString    `json:"document_id"`
	DocumentTitle     string            `json:"document_title"`
	DocumentURL       string            `json:"document_url"`
	MessageText       string            `json:"message_text"`
	ButtonApprove     string            `json:"button_approve"`
	ButtonReject      string            `json:"button_reject"`
	Mode              string            `json:"mode"`
	TimeoutHours      FlexibleInt       `json:"timeout_hours"`
	Approvers         []ApproverRequest `json:"approvers"`

	// Legacy Bitrix24 names
	Bitrix24Portal string         `json:"bitrix24_portal"`
	Bitrix24UserID FlexibleString `json:"bitrix24_user_id"`
}

// ToInput converts the request into the orchestrator input
func (r CreateApprovalRequest) ToInput() service.CreateApprovalInput {
	in := service.CreateApprovalInput{
		ApprovalID:        string(r.ApprovalID),
		OriginSystemRef:   firstNonEmpty(r.OriginSystemRef, r.Bitrix24Portal),
		RequestingUserRef: firstNonEmpty(string(r.RequestingUserRef), string(r.Bitrix24UserID)),
		DocumentType:      r.DocumentType,
		DocumentID:        string(r.DocumentID),
		DocumentTitle:     r.DocumentTitle,
		DocumentURL:       r.DocumentURL,
		MessageText:       r.MessageText,
		ApproveLabel:      r.ButtonApprove,
		RejectLabel:       r.ButtonReject,
		Mode:              r.Mode,
		TimeoutHours:      int(r.TimeoutHours),
	}
	for _, a := range r.Approvers {
		in.Approvers = append(in.Approvers, service.ApproverInput{
			OriginUserRef: firstNonEmpty(string(a.OriginUserRef), string(a.Bitrix24UserID)),
			ChannelHint:   firstNonEmpty(a.ChannelHint, a.TelegramUsername),
		})
	}
	return in
}

// CancelRequest is the optional body of the cancel endpoints
type CancelRequest struct {
	Reason string `json:"reason"`
}

// Response represents a standard JSON response
type Response struct {
	Success bool              `json:"success"`
	Data    interface{}       `json:"data,omitempty"`
	Error   string            `json:"error,omitempty"`
	Fields  map[string]string `json:"fields,omitempty"`
}

// CreateApprovalResponse is returned on successful creation
type CreateApprovalResponse struct {
	Success           bool     `json:"success"`
	ApprovalID        string   `json:"approval_id"`
	ApproversCreated  int      `json:"approvers_created"`
	NotificationsSent int      `json:"notifications_sent"`
	Unmapped          []string `json:"unmapped,omitempty"`
	// TelegramMessagesSent repeats NotificationsSent on the legacy route
	TelegramMessagesSent *int `json:"telegram_messages_sent,omitempty"`
}

// ApproverStatus is one approver in a status response
type ApproverStatus struct {
	OriginUserRef   string  `json:"origin_user_ref"`
	ChannelIdentity string  `json:"channel_identity"`
	ChannelUsername string  `json:"channel_username,omitempty"`
	DisplayName     string  `json:"display_name,omitempty"`
	Status          string  `json:"status"`
	ResponseCode    string  `json:"response_code,omitempty"`
	Comment         string  `json:"comment,omitempty"`
	RespondedAt     *string `json:"responded_at,omitempty"`
}

// ApprovalStatusResponse is returned by the status endpoints
type ApprovalStatusResponse struct {
	ApprovalID      string           `json:"approval_id"`
	OriginSystemRef string           `json:"origin_system_ref"`
	Mode            string           `json:"mode"`
	Status          string           `json:"status"`
	CreatedAt       string           `json:"created_at"`
	ExpiresAt       string           `json:"expires_at"`
	RespondedAt     *string          `json:"responded_at,omitempty"`
	ResultCode      string           `json:"result_code,omitempty"`
	ResultLabel     string           `json:"result_label,omitempty"`
	RespondedBy     string           `json:"responded_by,omitempty"`
	Comment         string           `json:"comment,omitempty"`
	Approvers       []ApproverStatus `json:"approvers"`
	Events          []EventResponse  `json:"events,omitempty"`
}

// EventResponse is one audit trail entry
type EventResponse struct {
	Type      string          `json:"type"`
	Actor     string          `json:"actor,omitempty"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	Timestamp string          `json:"timestamp"`
}

// CancelResponse is returned on successful cancellation
type CancelResponse struct {
	Success    bool   `json:"success"`
	ApprovalID string `json:"approval_id"`
	Status     string `json:"status"`
}

func toStatusResponse(view *service.StatusView) ApprovalStatusResponse {
	a := view.Approval
	resp := ApprovalStatusResponse{
		ApprovalID:      a.ApprovalID,
		OriginSystemRef: a.OriginSystemRef,
		Mode:            a.Mode,
		Status:          a.Status,
		CreatedAt:       formatTime(a.CreatedAt),
		ExpiresAt:       formatTime(a.ExpiresAt()),
		RespondedAt:     formatTimePtr(a.RespondedAt),
		ResultCode:      a.ResultCode,
		ResultLabel:     a.ResultLabel,
		RespondedBy:     a.RespondedBy,
		Comment:         a.Comment,
		Approvers:       make([]ApproverStatus, 0, len(view.Approvers)),
	}
	for _, ap := range view.Approvers {
		resp.Approvers = append(resp.Approvers, toApproverStatus(ap))
	}
	for _, evt := range view.Events {
		var payload json.RawMessage
		if json.Valid([]byte(evt.Payload)) {
			payload = json.RawMessage(evt.Payload)
		}
		resp.Events = append(resp.Events, EventResponse{
			Type:      evt.EventType,
			Actor:     evt.Actor,
			Payload:   payload,
			Timestamp: formatTime(evt.Timestamp),
		})
	}
	return resp
}

func toApproverStatus(ap *entity.Approver) ApproverStatus {
	return ApproverStatus{
		OriginUserRef:   ap.ApproverRef,
		ChannelIdentity: ap.ChannelRecipient,
		ChannelUsername: ap.ChannelUsername,
		DisplayName:     ap.DisplayName,
		Status:          ap.Status,
		ResponseCode:    ap.ResponseCode,
		Comment:         ap.Comment,
		RespondedAt:     formatTimePtr(ap.RespondedAt),
	}
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}

func formatTimePtr(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := formatTime(*t)
	return &s
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
