package webhook

import (
	"context"
	"crypto/subtle"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/garyjia/approval-gateway/internal/application/port"
	"github.com/garyjia/approval-gateway/internal/metrics"
)

// TelegramSecretHeader carries the secret token registered with setWebhook
const TelegramSecretHeader = "X-Telegram-Bot-Api-Secret-Token"

const defaultProcessTimeout = 30 * time.Second

// UpdateProcessor consumes decoded channel updates
type UpdateProcessor interface {
	HandleChannelUpdate(ctx context.Context, update ChannelUpdate) error
}

// HandlerConfig configures channel webhook handling
type HandlerConfig struct {
	TelegramSecret string
	Lark           *LarkVerifier
	Deduper        port.UpdateDeduper
	ProcessTimeout time.Duration
}

// Handler receives messaging-channel webhooks. Every request is
// acknowledged before the update is processed.
type Handler struct {
	processor UpdateProcessor
	cfg       HandlerConfig
	logger    *zap.Logger
	wg        sync.WaitGroup
}

// NewHandler creates a new channel webhook handler
func NewHandler(processor UpdateProcessor, cfg HandlerConfig, logger *zap.Logger) *Handler {
	if cfg.ProcessTimeout <= 0 {
		cfg.ProcessTimeout = defaultProcessTimeout
	}
	return &Handler{
		processor: processor,
		cfg:       cfg,
		logger:    logger,
	}
}

// HandleTelegram processes Telegram Bot API updates
func (h *Handler) HandleTelegram(c *gin.Context) {
	if h.cfg.TelegramSecret != "" {
		got := c.GetHeader(TelegramSecretHeader)
		if subtle.ConstantTimeCompare([]byte(got), []byte(h.cfg.TelegramSecret)) != 1 {
			h.logger.Warn("Telegram webhook secret mismatch",
				zap.String("event", "security"),
				zap.String("ip", c.ClientIP()))
			metrics.RecordSignatureFailure("telegram_secret")
			c.JSON(http.StatusUnauthorized, gin.H{"ok": false})
			return
		}
	}

	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		h.logger.Error("Failed to read request body", zap.Error(err))
		c.JSON(http.StatusOK, gin.H{"ok": true})
		return
	}

	update, err := DecodeTelegramUpdate(body)
	if err != nil {
		h.logger.Warn("Failed to decode telegram update", zap.Error(err))
		c.JSON(http.StatusOK, gin.H{"ok": true})
		return
	}

	h.dispatch("telegram", update)
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

// HandleLark processes Lark card callbacks and the url_verification handshake
func (h *Handler) HandleLark(c *gin.Context) {
	if h.cfg.Lark == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "lark channel not configured"})
		return
	}

	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		h.logger.Error("Failed to read request body", zap.Error(err))
		c.JSON(http.StatusOK, gin.H{})
		return
	}

	timestamp := c.GetHeader("X-Lark-Request-Timestamp")
	nonce := c.GetHeader("X-Lark-Request-Nonce")
	signature := c.GetHeader("X-Lark-Signature")
	if signature != "" && !h.cfg.Lark.VerifySignature(timestamp, nonce, signature, body) {
		h.logger.Warn("Invalid lark callback signature",
			zap.String("event", "security"),
			zap.String("timestamp", timestamp),
			zap.String("nonce", nonce))
		metrics.RecordSignatureFailure("lark_signature")
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid signature"})
		return
	}

	cb, err := h.cfg.Lark.DecodeLarkCallback(body)
	if err != nil {
		h.logger.Warn("Rejected lark callback", zap.String("event", "security"), zap.Error(err))
		c.JSON(http.StatusOK, gin.H{})
		return
	}

	if cb.Challenge != "" {
		h.logger.Info("Lark challenge verified successfully")
		c.JSON(http.StatusOK, gin.H{"challenge": cb.Challenge})
		return
	}

	h.dispatch("lark", cb.Update)
	c.JSON(http.StatusOK, gin.H{})
}

// AcceptLarkEvent processes a card callback delivered over the Lark long
// connection. The body is authenticated like a webhook delivery.
func (h *Handler) AcceptLarkEvent(body []byte) error {
	if h.cfg.Lark == nil {
		return fmt.Errorf("lark channel not configured")
	}

	cb, err := h.cfg.Lark.DecodeLarkCallback(body)
	if err != nil {
		return err
	}
	if cb.Update == nil {
		return nil
	}

	h.dispatch("lark", cb.Update)
	return nil
}

// dispatch hands the update to the processor in the background
func (h *Handler) dispatch(channel string, update ChannelUpdate) {
	metrics.RecordChannelUpdate(channel, kindOf(update))

	h.wg.Add(1)
	go func() {
		defer h.wg.Done()
		defer func() {
			if r := recover(); r != nil {
				h.logger.Error("Panic in channel update processing",
					zap.String("channel", channel),
					zap.Any("panic", r))
			}
		}()

		ctx, cancel := context.WithTimeout(context.Background(), h.cfg.ProcessTimeout)
		defer cancel()

		if key := update.Key(); key != "" && h.cfg.Deduper != nil {
			first, err := h.cfg.Deduper.FirstSeen(ctx, key)
			if err != nil {
				h.logger.Warn("Update de-duplication unavailable", zap.String("key", key), zap.Error(err))
			} else if !first {
				h.logger.Info("Dropping redelivered update", zap.String("key", key))
				return
			}
		}

		if err := h.processor.HandleChannelUpdate(ctx, update); err != nil {
			h.logger.Error("Failed to process channel update",
				zap.String("channel", channel),
				zap.String("kind", kindOf(update)),
				zap.Error(err))
		}
	}()
}

// Wait blocks until all in-flight updates are processed
func (h *Handler) Wait() {
	h.wg.Wait()
}

func kindOf(update ChannelUpdate) string {
	switch update.(type) {
	case ButtonPress:
		return "button_press"
	case TextReply:
		return "text_reply"
	default:
		return "unrecognized"
	}
}
