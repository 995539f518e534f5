package webhook

import (
	"strings"
)

// Button actions carried in callback tokens
const (
	ActionApprove = "approve"
	ActionReject  = "reject"
)

// ChannelUpdate is an inbound messaging-channel event decoded at the
// boundary. It is one of ButtonPress, TextReply or Unrecognized.
type ChannelUpdate interface {
	// Key identifies the update for redelivery detection. Empty when the channel gives no stable id.
	Key() string
	channelUpdate()
}

// ButtonPress is an approver pressing an inline button
type ButtonPress struct {
	UpdateID   string
	CallbackID string
	Action     string
	ApprovalID string
	Responder  Responder
	// ChatID and MessageID locate the message carrying the button
	ChatID    string
	MessageID string
}

// TextReply is a free-text message sent by an approver
type TextReply struct {
	UpdateID  string
	Text      string
	Responder Responder
	ChatID    string
}

// Unrecognized is any update the engine does not act on
type Unrecognized struct {
	UpdateID string
	Reason   string
	// CallbackID is set when the update was a button press with an unreadable token
	CallbackID string
}

// Responder identifies who sent an update on the channel
type Responder struct {
	Recipient   string
	Username    string
	DisplayName string
}

// Name returns a display name for logs and notices
func (r Responder) Name() string {
	switch {
	case r.DisplayName != "":
		return r.DisplayName
	case r.Username != "":
		return "@" + r.Username
	}
	return r.Recipient
}

func (u ButtonPress) Key() string  { return u.UpdateID }
func (u TextReply) Key() string    { return u.UpdateID }
func (u Unrecognized) Key() string { return u.UpdateID }

func (ButtonPress) channelUpdate()  {}
func (TextReply) channelUpdate()    {}
func (Unrecognized) channelUpdate() {}

// CallbackToken encodes an action and approval id as button callback data
func CallbackToken(action, approvalID string) string {
	return action + ":" + approvalID
}

// ParseCallbackToken decodes "approve:<id>" and "reject:<id>", plus the
// older underscore form "approve_<id>".
func ParseCallbackToken(token string) (action, approvalID string, ok bool) {
	for _, a := range []string{ActionApprove, ActionReject} {
		for _, sep := range []string{":", "_"} {
			prefix := a + sep
			if strings.HasPrefix(token, prefix) {
				id := strings.TrimSpace(strings.TrimPrefix(token, prefix))
				if id == "" {
					return "", "", false
				}
				return a, id, true
			}
		}
	}
	return "", "", false
}
