// Package websocket receives channel updates over persistent connections
// instead of inbound webhooks.
package websocket

import (
	"context"
	"fmt"
	"sync"

	larkevent "github.com/larksuite/oapi-sdk-go/v3/event"
	larkdispatcher "github.com/larksuite/oapi-sdk-go/v3/event/dispatcher"
	larkws "github.com/larksuite/oapi-sdk-go/v3/ws"
	"go.uber.org/zap"
)

// CardActionEvent is the Lark event type raised when an approver presses a card button
const CardActionEvent = "card.action.trigger"

// LarkEventSink accepts raw Lark callback bodies
type LarkEventSink interface {
	AcceptLarkEvent(body []byte) error
}

// LarkAdapterConfig holds configuration for the Lark long connection
type LarkAdapterConfig struct {
	AppID     string
	AppSecret string
	// BaseURL overrides the open platform domain, e.g. https://open.larksuite.com
	BaseURL string
}

// LarkAdapter wraps the Lark WebSocket SDK client and forwards card
// actions to the channel webhook pipeline. It replaces the public
// /webhook/lark endpoint for deployments that cannot accept inbound traffic.
type LarkAdapter struct {
	cfg    LarkAdapterConfig
	sink   LarkEventSink
	logger *zap.Logger

	wsClient *larkws.Client
	mu       sync.RWMutex
	started  bool
}

// NewLarkAdapter creates a new Lark long-connection adapter
func NewLarkAdapter(cfg LarkAdapterConfig, sink LarkEventSink, logger *zap.Logger) *LarkAdapter {
	return &LarkAdapter{
		cfg:    cfg,
		sink:   sink,
		logger: logger,
	}
}

// Start opens the connection and blocks while events are received
func (a *LarkAdapter) Start(ctx context.Context) error {
	a.mu.Lock()
	if a.started {
		a.mu.Unlock()
		return fmt.Errorf("adapter already started")
	}

	// Verification token and encrypt key are not used on the long connection
	sdkDispatcher := larkdispatcher.NewEventDispatcher("", "")
	sdkDispatcher.OnCustomizedEvent(CardActionEvent, a.handleLarkEvent)

	opts := []larkws.ClientOption{larkws.WithEventHandler(sdkDispatcher)}
	if a.cfg.BaseURL != "" {
		opts = append(opts, larkws.WithDomain(a.cfg.BaseURL))
	}
	a.wsClient = larkws.NewClient(a.cfg.AppID, a.cfg.AppSecret, opts...)

	a.started = true
	a.mu.Unlock()

	a.logger.Info("Starting Lark long connection", zap.String("app_id", a.cfg.AppID))

	if err := a.wsClient.Start(ctx); err != nil {
		a.mu.Lock()
		a.started = false
		a.mu.Unlock()
		a.logger.Error("Lark WebSocket client error", zap.Error(err))
		return fmt.Errorf("websocket client error: %w", err)
	}

	return nil
}

// Stop marks the adapter stopped. The SDK client closes its connection
// when the context passed to Start is cancelled.
func (a *LarkAdapter) Stop() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if !a.started {
		return nil
	}

	a.started = false
	a.logger.Info("Lark long connection stopped")
	return nil
}

// IsRunning returns whether the adapter is currently running
func (a *LarkAdapter) IsRunning() bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.started
}

// handleLarkEvent is called by the SDK for every card action
func (a *LarkAdapter) handleLarkEvent(ctx context.Context, evt *larkevent.EventReq) error {
	a.logger.Debug("Received Lark event", zap.Int("body_length", len(evt.Body)))

	if err := a.sink.AcceptLarkEvent(evt.Body); err != nil {
		a.logger.Warn("Rejected Lark event", zap.String("event", "security"), zap.Error(err))
		return fmt.Errorf("failed to accept event: %w", err)
	}
	return nil
}
