package lark

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/garyjia/approval-gateway/internal/application/port"
)

// ChannelName identifies the Lark channel in logs and metrics
const ChannelName = "lark"

// Notifier implements port.Notifier with interactive Lark cards
type Notifier struct {
	messages      messageAPI
	receiveIDType string
	ping          func(ctx context.Context) (string, error)
	logger        *zap.Logger
}

// NewNotifier creates a Lark notifier on top of the SDK client
func NewNotifier(client *SDKClient, logger *zap.Logger) *Notifier {
	return &Notifier{
		messages:      NewMessenger(client, logger),
		receiveIDType: client.ReceiveIDType(),
		ping: func(ctx context.Context) (string, error) {
			if _, err := client.TenantAccessToken(ctx); err != nil {
				return "", err
			}
			return "app:" + client.cfg.AppID, nil
		},
		logger: logger,
	}
}

// Channel implements port.Notifier
func (n *Notifier) Channel() string {
	return ChannelName
}

// SendApproval sends the approval card to recipient
func (n *Notifier) SendApproval(ctx context.Context, recipient string, msg port.ApprovalMessage) (port.MessageRef, error) {
	if recipient == "" {
		return port.MessageRef{}, fmt.Errorf("recipient cannot be empty")
	}

	content, err := marshalContent(buildApprovalCard(msg))
	if err != nil {
		return port.MessageRef{}, err
	}

	messageID, chatID, err := n.messages.Create(ctx, n.receiveIDType, recipient, "interactive", content)
	if err != nil {
		return port.MessageRef{}, fmt.Errorf("failed to send approval card: %w", err)
	}

	n.logger.Info("Approval card sent",
		zap.String("approval_id", msg.ApprovalID),
		zap.String("recipient", recipient),
		zap.String("message_id", messageID))
	return port.MessageRef{ChatID: chatID, MessageID: messageID}, nil
}

// Finalize replaces the approval card with its final form
func (n *Notifier) Finalize(ctx context.Context, ref port.MessageRef, notice port.FinalNotice) error {
	if ref.IsZero() {
		return fmt.Errorf("message reference is empty")
	}

	content, err := marshalContent(buildFinalCard(notice))
	if err != nil {
		return err
	}
	if err := n.messages.Patch(ctx, ref.MessageID, content); err != nil {
		return fmt.Errorf("failed to finalize approval card: %w", err)
	}
	return nil
}

// SendText sends a plain text message
func (n *Notifier) SendText(ctx context.Context, recipient, text string) error {
	content, err := marshalContent(map[string]string{"text": text})
	if err != nil {
		return err
	}
	if _, _, err := n.messages.Create(ctx, n.receiveIDType, recipient, "text", content); err != nil {
		return fmt.Errorf("failed to send text message: %w", err)
	}
	return nil
}

// AnswerCallback is a no-op: card callbacks are acknowledged by the HTTP response
func (n *Notifier) AnswerCallback(ctx context.Context, callbackID, text string) error {
	return nil
}

// Ping verifies the app credentials
func (n *Notifier) Ping(ctx context.Context) (string, error) {
	return n.ping(ctx)
}

var _ port.Notifier = (*Notifier)(nil)
