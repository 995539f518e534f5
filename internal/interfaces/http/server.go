// Package http provides HTTP server adapter for the application layer.
// This is a thin adapter layer that translates HTTP requests to application service calls.
package http

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/garyjia/approval-gateway/internal/application/service"
	"github.com/garyjia/approval-gateway/internal/domain/entity"
	"github.com/garyjia/approval-gateway/internal/metrics"
	"github.com/garyjia/approval-gateway/internal/webhook"
)

// Logger interface for logging operations
type Logger interface {
	Info(msg string, keysAndValues ...interface{})
	Warn(msg string, keysAndValues ...interface{})
	Error(msg string, keysAndValues ...interface{})
}

// ApprovalService is the orchestrator surface used by the handlers
type ApprovalService interface {
	Create(ctx context.Context, input service.CreateApprovalInput) (*service.CreateResult, error)
	Status(ctx context.Context, approvalID string) (*service.StatusView, error)
	Cancel(ctx context.Context, approvalID, reason string) (*entity.Approval, error)
	Stats(ctx context.Context) (*entity.ApprovalStats, error)
}

// ChannelWebhooks receives messaging-channel callbacks
type ChannelWebhooks interface {
	HandleTelegram(c *gin.Context)
	HandleLark(c *gin.Context)
}

// RequestVerifier checks signed origin requests
type RequestVerifier interface {
	Verify(body []byte, signature, timestamp string) error
}

// HealthCheck is one dependency probe of /health/detailed. Check returns
// an optional detail such as the bot identity.
type HealthCheck struct {
	Name  string
	Check func(ctx context.Context) (string, error)
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host         string
	Port         int
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	Version      string
}

// DefaultServerConfig returns default server configuration
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		Host:         "0.0.0.0",
		Port:         8080,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		Version:      "1.0.0",
	}
}

// ServerDeps are the collaborators of the HTTP server
type ServerDeps struct {
	Approvals    ApprovalService
	Webhooks     ChannelWebhooks
	Verifier     RequestVerifier
	HealthChecks []HealthCheck
	Logger       Logger
}

// Server is the HTTP server adapter
type Server struct {
	config       ServerConfig
	httpServer   *http.Server
	router       *gin.Engine
	approvals    ApprovalService
	webhooks     ChannelWebhooks
	verifier     RequestVerifier
	healthChecks []HealthCheck
	logger       Logger
}

// NewServer creates a new HTTP server with the given services
func NewServer(config ServerConfig, deps ServerDeps) *Server {
	gin.SetMode(gin.ReleaseMode)

	router := gin.New()

	server := &Server{
		config:       config,
		router:       router,
		approvals:    deps.Approvals,
		webhooks:     deps.Webhooks,
		verifier:     deps.Verifier,
		healthChecks: deps.HealthChecks,
		logger:       deps.Logger,
	}

	server.setupMiddleware()
	server.setupRoutes()

	return server
}

// setupMiddleware configures middleware for the router
func (s *Server) setupMiddleware() {
	s.router.Use(gin.Recovery())
	s.router.Use(s.loggingMiddleware())
}

// setupRoutes configures all HTTP routes
func (s *Server) setupRoutes() {
	h := NewHandlers(s.approvals, s.healthChecks, s.config.Version, s.logger)
	signed := s.signatureMiddleware()

	s.router.GET("/health", h.HealthCheck)
	s.router.GET("/health/detailed", h.DetailedHealthCheck)
	s.router.GET("/health/ready", h.ReadinessCheck)
	s.router.GET("/health/live", h.LivenessCheck)
	s.router.GET("/metrics", gin.WrapH(metrics.Handler()))

	v1 := s.router.Group("/api/v1")
	{
		v1.POST("/approvals", signed, h.CreateApproval)
		v1.GET("/approvals/:approval_id", h.GetApproval)
		v1.POST("/approvals/:approval_id/cancel", signed, h.CancelApproval)
		v1.GET("/stats", h.Stats)
	}

	b24 := s.router.Group("/api/b24")
	{
		b24.POST("/notify", signed, h.CreateApprovalLegacy)
		b24.GET("/status/:approval_id", h.GetApproval)
		b24.POST("/cancel/:approval_id", signed, h.CancelApproval)
	}

	if s.webhooks != nil {
		s.router.POST("/webhook/telegram", s.webhooks.HandleTelegram)
		s.router.POST("/webhook/lark", s.webhooks.HandleLark)
	}
}

// Start starts the HTTP server and blocks until ctx is cancelled
func (s *Server) Start(ctx context.Context) error {
	addr := s.Address()

	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  s.config.ReadTimeout,
		WriteTimeout: s.config.WriteTimeout,
	}

	s.logger.Info("Starting HTTP server", "address", addr)

	errCh := make(chan error, 1)
	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		s.logger.Info("HTTP server shutdown requested")
		return s.Stop()
	case err := <-errCh:
		s.logger.Error("HTTP server error", "error", err)
		return err
	}
}

// Stop gracefully stops the HTTP server
func (s *Server) Stop() error {
	if s.httpServer == nil {
		return nil
	}

	s.logger.Info("Stopping HTTP server")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := s.httpServer.Shutdown(ctx); err != nil {
		s.logger.Error("HTTP server shutdown error", "error", err)
		return err
	}

	s.logger.Info("HTTP server stopped")
	return nil
}

// Router returns the underlying gin router (for testing)
func (s *Server) Router() *gin.Engine {
	return s.router
}

// Address returns the server address
func (s *Server) Address() string {
	return fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
}

var _ ChannelWebhooks = (*webhook.Handler)(nil)
