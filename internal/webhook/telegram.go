package webhook

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// telegramUpdate is the subset of a Bot API Update the engine reads
type telegramUpdate struct {
	UpdateID      int64                  `json:"update_id"`
	Message       *telegramMessage       `json:"message"`
	CallbackQuery *telegramCallbackQuery `json:"callback_query"`
}

type telegramUser struct {
	ID        int64  `json:"id"`
	IsBot     bool   `json:"is_bot"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Username  string `json:"username"`
}

type telegramChat struct {
	ID int64 `json:"id"`
}

type telegramMessage struct {
	MessageID int64         `json:"message_id"`
	From      *telegramUser `json:"from"`
	Chat      telegramChat  `json:"chat"`
	Text      string        `json:"text"`
}

type telegramCallbackQuery struct {
	ID      string           `json:"id"`
	From    telegramUser     `json:"from"`
	Message *telegramMessage `json:"message"`
	Data    string           `json:"data"`
}

// DecodeTelegramUpdate turns a raw Telegram update into a ChannelUpdate.
// Only malformed JSON is an error; anything else unusable is Unrecognized.
func DecodeTelegramUpdate(body []byte) (ChannelUpdate, error) {
	var upd telegramUpdate
	if err := json.Unmarshal(body, &upd); err != nil {
		return nil, fmt.Errorf("failed to decode telegram update: %w", err)
	}
	updateID := ""
	if upd.UpdateID != 0 {
		updateID = "telegram:" + strconv.FormatInt(upd.UpdateID, 10)
	}

	switch {
	case upd.CallbackQuery != nil:
		cq := upd.CallbackQuery
		action, approvalID, ok := ParseCallbackToken(cq.Data)
		if !ok {
			return Unrecognized{UpdateID: updateID, Reason: "unknown callback data", CallbackID: cq.ID}, nil
		}
		press := ButtonPress{
			UpdateID:   updateID,
			CallbackID: cq.ID,
			Action:     action,
			ApprovalID: approvalID,
			Responder:  telegramResponder(cq.From),
		}
		if cq.Message != nil {
			press.ChatID = strconv.FormatInt(cq.Message.Chat.ID, 10)
			press.MessageID = strconv.FormatInt(cq.Message.MessageID, 10)
		}
		return press, nil

	case upd.Message != nil && upd.Message.From != nil:
		msg := upd.Message
		if msg.From.IsBot {
			return Unrecognized{UpdateID: updateID, Reason: "message from bot"}, nil
		}
		text := strings.TrimSpace(msg.Text)
		if text == "" {
			return Unrecognized{UpdateID: updateID, Reason: "message without text"}, nil
		}
		return TextReply{
			UpdateID:  updateID,
			Text:      text,
			Responder: telegramResponder(*msg.From),
			ChatID:    strconv.FormatInt(msg.Chat.ID, 10),
		}, nil
	}

	return Unrecognized{UpdateID: updateID, Reason: "unsupported update type"}, nil
}

func telegramResponder(u telegramUser) Responder {
	return Responder{
		Recipient:   strconv.FormatInt(u.ID, 10),
		Username:    u.Username,
		DisplayName: strings.TrimSpace(u.FirstName + " " + u.LastName),
	}
}
