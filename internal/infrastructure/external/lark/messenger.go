package lark

import (
	"context"
	"fmt"

	larkIm "github.com/larksuite/oapi-sdk-go/v3/service/im/v1"
	"go.uber.org/zap"
)

// messageAPI is the slice of the IM API the notifier needs
type messageAPI interface {
	Create(ctx context.Context, receiveIDType, receiveID, msgType, content string) (messageID, chatID string, err error)
	Patch(ctx context.Context, messageID, content string) error
}

// Messenger sends and updates IM messages through the SDK
type Messenger struct {
	client *SDKClient
	logger *zap.Logger
}

// NewMessenger creates a new Lark message sender
func NewMessenger(client *SDKClient, logger *zap.Logger) *Messenger {
	return &Messenger{
		client: client,
		logger: logger,
	}
}

// Create sends a message to a user or chat
func (m *Messenger) Create(ctx context.Context, receiveIDType, receiveID, msgType, content string) (string, string, error) {
	req := larkIm.NewCreateMessageReqBuilder().
		ReceiveIdType(receiveIDType).
		Body(larkIm.NewCreateMessageReqBodyBuilder().
			ReceiveId(receiveID).
			MsgType(msgType).
			Content(content).
			Build()).
		Build()

	resp, err := m.client.GetClient().Im.Message.Create(ctx, req)
	if err != nil {
		m.logger.Error("Failed to send message",
			zap.String("receive_id", receiveID),
			zap.Error(err))
		return "", "", fmt.Errorf("failed to send message: %w", err)
	}

	if !resp.Success() {
		m.logger.Error("API returned failure",
			zap.String("receive_id", receiveID),
			zap.Int("code", resp.Code),
			zap.String("msg", resp.Msg))
		return "", "", fmt.Errorf("API error: code=%d, msg=%s", resp.Code, resp.Msg)
	}

	var messageID, chatID string
	if resp.Data != nil {
		if resp.Data.MessageId != nil {
			messageID = *resp.Data.MessageId
		}
		if resp.Data.ChatId != nil {
			chatID = *resp.Data.ChatId
		}
	}
	return messageID, chatID, nil
}

// Patch replaces the content of an interactive card the bot sent
func (m *Messenger) Patch(ctx context.Context, messageID, content string) error {
	req := larkIm.NewPatchMessageReqBuilder().
		MessageId(messageID).
		Body(larkIm.NewPatchMessageReqBodyBuilder().
			Content(content).
			Build()).
		Build()

	resp, err := m.client.GetClient().Im.Message.Patch(ctx, req)
	if err != nil {
		m.logger.Error("Failed to update card",
			zap.String("message_id", messageID),
			zap.Error(err))
		return fmt.Errorf("failed to update card: %w", err)
	}

	if !resp.Success() {
		m.logger.Error("API returned failure",
			zap.String("message_id", messageID),
			zap.Int("code", resp.Code),
			zap.String("msg", resp.Msg))
		return fmt.Errorf("API error: code=%d, msg=%s", resp.Code, resp.Msg)
	}
	return nil
}
