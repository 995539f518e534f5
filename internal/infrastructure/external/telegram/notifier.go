package telegram

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/garyjia/approval-gateway/internal/application/port"
	"github.com/garyjia/approval-gateway/internal/webhook"
)

// ChannelName identifies the Telegram channel in logs and metrics
const ChannelName = "telegram"

const botInfoTTL = 5 * time.Minute

// Notifier implements port.Notifier on the Telegram Bot API
type Notifier struct {
	client *Client
	logger *zap.Logger

	mu          sync.Mutex
	botName     string
	botCachedAt time.Time
}

// NewNotifier creates a Telegram notifier
func NewNotifier(client *Client, logger *zap.Logger) *Notifier {
	return &Notifier{
		client: client,
		logger: logger,
	}
}

// Channel implements port.Notifier
func (n *Notifier) Channel() string {
	return ChannelName
}

// SendApproval sends the request text with approve and reject buttons
func (n *Notifier) SendApproval(ctx context.Context, recipient string, msg port.ApprovalMessage) (port.MessageRef, error) {
	if recipient == "" {
		return port.MessageRef{}, fmt.Errorf("recipient cannot be empty")
	}

	markup := &InlineKeyboardMarkup{
		InlineKeyboard: [][]InlineKeyboardButton{{
			{Text: msg.ApproveLabel, CallbackData: webhook.CallbackToken(webhook.ActionApprove, msg.ApprovalID)},
			{Text: msg.RejectLabel, CallbackData: webhook.CallbackToken(webhook.ActionReject, msg.ApprovalID)},
		}},
	}

	sent, err := n.client.SendMessage(ctx, recipient, formatApprovalMessage(msg), markup)
	if err != nil {
		n.logger.Error("Failed to send approval message",
			zap.String("approval_id", msg.ApprovalID),
			zap.String("recipient", recipient),
			zap.Error(err))
		return port.MessageRef{}, fmt.Errorf("failed to send approval message: %w", err)
	}

	ref := port.MessageRef{
		ChatID:    strconv.FormatInt(sent.Chat.ID, 10),
		MessageID: strconv.FormatInt(sent.MessageID, 10),
	}
	n.logger.Info("Approval message sent",
		zap.String("approval_id", msg.ApprovalID),
		zap.String("chat_id", ref.ChatID),
		zap.String("message_id", ref.MessageID))
	return ref, nil
}

// Finalize replaces the buttons of a delivered message with the outcome
func (n *Notifier) Finalize(ctx context.Context, ref port.MessageRef, notice port.FinalNotice) error {
	if ref.IsZero() {
		return fmt.Errorf("message reference is empty")
	}
	messageID, err := strconv.ParseInt(ref.MessageID, 10, 64)
	if err != nil {
		return fmt.Errorf("invalid telegram message id %q: %w", ref.MessageID, err)
	}

	err = n.client.EditMessageText(ctx, ref.ChatID, messageID, formatFinalMessage(notice), nil)
	if isNotModified(err) {
		return nil
	}
	if err != nil {
		n.logger.Warn("Failed to finalize approval message",
			zap.String("approval_id", notice.ApprovalID),
			zap.String("chat_id", ref.ChatID),
			zap.String("message_id", ref.MessageID),
			zap.Error(err))
		return fmt.Errorf("failed to finalize approval message: %w", err)
	}
	return nil
}

// SendText sends a plain informational message
func (n *Notifier) SendText(ctx context.Context, recipient, text string) error {
	if _, err := n.client.SendMessage(ctx, recipient, escape(text), nil); err != nil {
		return fmt.Errorf("failed to send text message: %w", err)
	}
	return nil
}

// AnswerCallback acknowledges a button press
func (n *Notifier) AnswerCallback(ctx context.Context, callbackID, text string) error {
	if callbackID == "" {
		return nil
	}
	if err := n.client.AnswerCallbackQuery(ctx, callbackID, text); err != nil {
		return fmt.Errorf("failed to answer callback query: %w", err)
	}
	return nil
}

// Ping returns the bot username, cached for a few minutes
func (n *Notifier) Ping(ctx context.Context) (string, error) {
	n.mu.Lock()
	if n.botName != "" && time.Since(n.botCachedAt) < botInfoTTL {
		name := n.botName
		n.mu.Unlock()
		return name, nil
	}
	n.mu.Unlock()

	me, err := n.client.GetMe(ctx)
	if err != nil {
		return "", fmt.Errorf("telegram getMe failed: %w", err)
	}
	name := "@" + me.Username

	n.mu.Lock()
	n.botName = name
	n.botCachedAt = time.Now()
	n.mu.Unlock()
	return name, nil
}

// isNotModified reports the Bot API error for an edit that changes nothing
func isNotModified(err error) bool {
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		return false
	}
	return apiErr.Code == 400 && strings.Contains(apiErr.Description, "message is not modified")
}

var _ port.Notifier = (*Notifier)(nil)
