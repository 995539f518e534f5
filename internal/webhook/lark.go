package webhook

import (
	"encoding/json"
	"fmt"
)

// LarkCallback is a decoded Lark card callback. Exactly one of Challenge
// and Update is set.
type LarkCallback struct {
	Challenge string
	Update    ChannelUpdate
}

// larkCardAction covers both the legacy card request body and the
// card.action.trigger event schema.
type larkCardAction struct {
	Type          string `json:"type"`
	Token         string `json:"token"`
	OpenID        string `json:"open_id"`
	UserID        string `json:"user_id"`
	OpenMessageID string `json:"open_message_id"`
	OpenChatID    string `json:"open_chat_id"`
	Action        *struct {
		Value map[string]interface{} `json:"value"`
		Tag   string                 `json:"tag"`
	} `json:"action"`

	Schema string `json:"schema"`
	Header *struct {
		EventID   string `json:"event_id"`
		EventType string `json:"event_type"`
		Token     string `json:"token"`
	} `json:"header"`
	Event *struct {
		Operator struct {
			OpenID string `json:"open_id"`
			UserID string `json:"user_id"`
		} `json:"operator"`
		Token  string `json:"token"`
		Action struct {
			Value map[string]interface{} `json:"value"`
			Tag   string                 `json:"tag"`
		} `json:"action"`
		Context struct {
			OpenMessageID string `json:"open_message_id"`
			OpenChatID    string `json:"open_chat_id"`
		} `json:"context"`
	} `json:"event"`
}

// DecodeLarkCallback decrypts, authenticates and decodes a Lark callback body
func (v *LarkVerifier) DecodeLarkCallback(body []byte) (*LarkCallback, error) {
	plain, err := v.Decrypt(body)
	if err != nil {
		return nil, err
	}

	var cb larkCardAction
	if err := json.Unmarshal(plain, &cb); err != nil {
		return nil, fmt.Errorf("failed to decode lark callback: %w", err)
	}

	if cb.Type == "url_verification" {
		challenge, err := v.VerifyChallenge(plain)
		if err != nil {
			return nil, err
		}
		return &LarkCallback{Challenge: challenge}, nil
	}

	var (
		updateID  string
		token     string
		recipient string
		messageID string
		chatID    string
		value     map[string]interface{}
	)
	switch {
	case cb.Header != nil && cb.Event != nil:
		updateID = "lark:" + cb.Header.EventID
		token = cb.Header.Token
		recipient = cb.Event.Operator.OpenID
		messageID = cb.Event.Context.OpenMessageID
		chatID = cb.Event.Context.OpenChatID
		value = cb.Event.Action.Value
	case cb.Action != nil:
		token = cb.Token
		recipient = cb.OpenID
		messageID = cb.OpenMessageID
		chatID = cb.OpenChatID
		value = cb.Action.Value
		if messageID != "" {
			updateID = "lark:" + messageID + ":" + recipient
		}
	default:
		return &LarkCallback{Update: Unrecognized{Reason: "unsupported lark callback"}}, nil
	}

	if !v.TokenMatches(token) {
		return nil, fmt.Errorf("invalid verification token")
	}

	raw, _ := value["token"].(string)
	action, approvalID, ok := ParseCallbackToken(raw)
	if !ok || recipient == "" {
		return &LarkCallback{Update: Unrecognized{UpdateID: updateID, Reason: "unknown card action"}}, nil
	}

	return &LarkCallback{Update: ButtonPress{
		UpdateID:   updateID,
		Action:     action,
		ApprovalID: approvalID,
		Responder:  Responder{Recipient: recipient},
		ChatID:     chatID,
		MessageID:  messageID,
	}}, nil
}
