package container

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/garyjia/approval-gateway/internal/application/dispatcher"
	"github.com/garyjia/approval-gateway/internal/application/port"
	"github.com/garyjia/approval-gateway/internal/application/service"
	"github.com/garyjia/approval-gateway/internal/infrastructure/external/origin"
	"github.com/garyjia/approval-gateway/internal/infrastructure/persistence/sqlite"
	"github.com/garyjia/approval-gateway/internal/infrastructure/worker"
	httpServer "github.com/garyjia/approval-gateway/internal/interfaces/http"
	"github.com/garyjia/approval-gateway/internal/interfaces/websocket"
	"github.com/garyjia/approval-gateway/internal/webhook"
	"github.com/garyjia/approval-gateway/pkg/database"
)

// Container manages all application dependencies and lifecycle.
// It follows Clean Architecture principles with ordered initialization
// and reverse-order teardown.
type Container struct {
	config *Config
	logger *zap.Logger

	// Infrastructure - Data
	conn         *database.DB
	db           *sqlite.DB
	repositories *RepositoryBundle

	// Infrastructure - External
	channel  *ChannelBundle
	reporter *origin.Reporter
	deduper  *DeduperBundle

	// Application
	dispatcher   dispatcher.Dispatcher
	orchestrator *service.Orchestrator

	// Interfaces
	webhooks *webhook.Handler
	server   *httpServer.Server
	larkWS   *websocket.LarkAdapter

	// Workers
	workers *worker.WorkerManager

	// Lifecycle
	mu     sync.RWMutex
	ctx    context.Context
	cancel context.CancelFunc
	ready  atomic.Bool
	closed atomic.Bool
}

// RepositoryBundle groups all repositories for convenient access.
type RepositoryBundle struct {
	Approvals *sqlite.ApprovalStore
	Mappings  port.IdentityMappingRepository
	Events    port.EventRepository
}

// HealthStatus represents the health of all components.
type HealthStatus struct {
	Overall    bool                       `json:"overall"`
	Components map[string]ComponentHealth `json:"components"`
}

// ComponentHealth represents health of a single component.
type ComponentHealth struct {
	Healthy bool   `json:"healthy"`
	Message string `json:"message,omitempty"`
}

// NewContainer creates a new container from configuration.
// It does not initialize components - call Start() to initialize.
func NewContainer(cfg *Config, logger *zap.Logger) (*Container, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &Container{
		config: cfg,
		logger: logger,
	}, nil
}

// Start initializes all components and begins processing.
// Components are initialized in dependency order:
// 1. Database and repositories
// 2. External clients (channel, reporter, deduper)
// 3. Event dispatcher
// 4. Orchestrator
// 5. Channel webhooks and HTTP server
// 6. Workers
func (c *Container) Start(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed.Load() {
		return fmt.Errorf("container has been closed")
	}

	if c.ready.Load() {
		return fmt.Errorf("container already started")
	}

	c.ctx, c.cancel = context.WithCancel(ctx)
	c.logger.Info("Starting container initialization")

	// Step 1: Initialize database and repositories
	if err := c.initDatabase(); err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	c.logger.Info("Database initialized")

	// Step 2: Initialize external clients
	if err := c.initExternalClients(); err != nil {
		return fmt.Errorf("failed to initialize external clients: %w", err)
	}
	c.logger.Info("External clients initialized", zap.String("channel", c.channel.Notifier.Channel()))

	// Step 3: Initialize dispatcher
	if err := c.initDispatcher(); err != nil {
		return fmt.Errorf("failed to initialize dispatcher: %w", err)
	}
	c.logger.Info("Dispatcher initialized")

	// Step 4: Initialize orchestrator
	if err := c.initOrchestrator(); err != nil {
		return fmt.Errorf("failed to initialize orchestrator: %w", err)
	}
	c.logger.Info("Orchestrator initialized")

	// Step 5: Initialize interfaces
	if err := c.initInterfaces(); err != nil {
		return fmt.Errorf("failed to initialize interfaces: %w", err)
	}
	c.logger.Info("Interfaces initialized")

	// Step 6: Initialize and start workers
	if err := c.initWorkers(); err != nil {
		return fmt.Errorf("failed to initialize workers: %w", err)
	}
	c.logger.Info("Workers initialized and started")

	c.ready.Store(true)
	c.logger.Info("Container started successfully")

	return nil
}

// Close gracefully shuts down all components in reverse order.
func (c *Container) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed.Load() {
		return fmt.Errorf("container already closed")
	}

	c.logger.Info("Closing container")

	var errs []error

	// Cancel context to signal all goroutines
	if c.cancel != nil {
		c.cancel()
	}

	// Step 1: Stop workers (reverse of step 6)
	if c.workers != nil {
		if err := c.workers.StopAll(); err != nil {
			c.logger.Error("Failed to stop workers", zap.Error(err))
			errs = append(errs, fmt.Errorf("stop workers: %w", err))
		} else {
			c.logger.Info("Workers stopped")
		}
	}

	// Step 2: Drain in-flight channel updates (reverse of step 5)
	if c.larkWS != nil {
		_ = c.larkWS.Stop()
	}
	if c.webhooks != nil {
		c.webhooks.Wait()
		c.logger.Info("Channel updates drained")
	}
	if c.orchestrator != nil {
		c.orchestrator.Wait()
		c.logger.Info("Result deliveries drained")
	}

	// Step 3: Close dispatcher (reverse of step 3)
	if c.dispatcher != nil {
		if err := c.dispatcher.Close(); err != nil {
			c.logger.Error("Failed to close dispatcher", zap.Error(err))
			errs = append(errs, fmt.Errorf("close dispatcher: %w", err))
		} else {
			c.logger.Info("Dispatcher closed")
		}
	}

	// Step 4: Close Redis (reverse of step 2)
	if c.deduper != nil && c.deduper.Redis != nil {
		if err := c.deduper.Redis.Close(); err != nil {
			c.logger.Error("Failed to close redis", zap.Error(err))
			errs = append(errs, fmt.Errorf("close redis: %w", err))
		} else {
			c.logger.Info("Redis closed")
		}
	}

	// Step 5: Close database (reverse of step 1)
	if c.conn != nil {
		if err := c.conn.Close(); err != nil {
			c.logger.Error("Failed to close database", zap.Error(err))
			errs = append(errs, fmt.Errorf("close database: %w", err))
		} else {
			c.logger.Info("Database closed")
		}
	}

	c.closed.Store(true)
	c.ready.Store(false)

	if len(errs) > 0 {
		c.logger.Error("Container closed with errors", zap.Int("error_count", len(errs)))
		return fmt.Errorf("container closed with %d errors", len(errs))
	}

	c.logger.Info("Container closed successfully")
	return nil
}

// Ready returns true when all components are initialized.
func (c *Container) Ready() bool {
	return c.ready.Load()
}

// Health returns health status of all components.
func (c *Container) Health(ctx context.Context) *HealthStatus {
	status := &HealthStatus{
		Overall:    true,
		Components: make(map[string]ComponentHealth),
	}

	for _, hc := range c.healthChecks() {
		detail, err := hc.Check(ctx)
		if err != nil {
			status.Components[hc.Name] = ComponentHealth{Healthy: false, Message: err.Error()}
			status.Overall = false
			continue
		}
		status.Components[hc.Name] = ComponentHealth{Healthy: true, Message: detail}
	}

	return status
}

// healthChecks lists the dependency probes served on /health/detailed
func (c *Container) healthChecks() []httpServer.HealthCheck {
	checks := []httpServer.HealthCheck{
		{
			Name: "database",
			Check: func(ctx context.Context) (string, error) {
				if c.conn == nil {
					return "", fmt.Errorf("not initialized")
				}
				if err := c.conn.PingContext(ctx); err != nil {
					return "", fmt.Errorf("ping failed: %w", err)
				}
				return "", nil
			},
		},
		{
			Name: "channel",
			Check: func(ctx context.Context) (string, error) {
				if c.channel == nil {
					return "", fmt.Errorf("not initialized")
				}
				return c.channel.Notifier.Ping(ctx)
			},
		},
		{
			Name: "workers",
			Check: func(ctx context.Context) (string, error) {
				if c.workers == nil {
					return "", fmt.Errorf("not initialized")
				}
				if !c.workers.IsRunning() {
					return "", fmt.Errorf("workers stopped")
				}
				return fmt.Sprintf("worker count: %d", c.workers.GetWorkerCount()), nil
			},
		},
	}

	if c.larkWS != nil {
		checks = append(checks, httpServer.HealthCheck{
			Name: "lark_connection",
			Check: func(ctx context.Context) (string, error) {
				if !c.larkWS.IsRunning() {
					return "", fmt.Errorf("not connected")
				}
				return "", nil
			},
		})
	}

	if c.deduper != nil && c.deduper.Redis != nil {
		checks = append(checks, httpServer.HealthCheck{
			Name: "redis",
			Check: func(ctx context.Context) (string, error) {
				return "", c.deduper.Redis.Ping(ctx)
			},
		})
	}

	return checks
}

// initDatabase initializes the database and all repositories using providers.
func (c *Container) initDatabase() error {
	dbBundle, err := ProvideDatabase(&c.config.Database, c.logger)
	if err != nil {
		return err
	}

	c.conn = dbBundle.Conn
	c.db = dbBundle.TransactionMgr

	repos, err := ProvideRepositories(c.db, c.logger)
	if err != nil {
		_ = c.conn.Close()
		return err
	}

	c.repositories = repos
	return nil
}

// initExternalClients initializes the channel, reporter and deduper using providers.
func (c *Container) initExternalClients() error {
	channel, err := ProvideChannel(c.config, c.logger)
	if err != nil {
		return err
	}
	c.channel = channel

	reporter, err := ProvideReporter(&c.config.Reporter, c.config.Security.BackendSecret, c.logger)
	if err != nil {
		return err
	}
	c.reporter = reporter

	deduper, err := ProvideDeduper(c.ctx, &c.config.Redis, &c.config.Engine, c.logger)
	if err != nil {
		return err
	}
	c.deduper = deduper

	return nil
}

// initDispatcher initializes the event dispatcher using providers.
func (c *Container) initDispatcher() error {
	disp, err := ProvideDispatcher(c.repositories.Events, c.logger)
	if err != nil {
		return err
	}
	c.dispatcher = disp
	return nil
}

// initOrchestrator initializes the approval orchestrator using providers.
func (c *Container) initOrchestrator() error {
	orch, err := ProvideOrchestrator(&OrchestratorDeps{
		Repos:      c.repositories,
		Notifier:   c.channel.Notifier,
		Reporter:   c.reporter,
		Dispatcher: c.dispatcher,
		EngineCfg:  &c.config.Engine,
		Logger:     c.logger,
	})
	if err != nil {
		return err
	}
	c.orchestrator = orch
	return nil
}

// initInterfaces builds the channel webhook handler and the HTTP server.
// The server is started by the caller.
func (c *Container) initInterfaces() error {
	handler, err := ProvideWebhookHandler(c.orchestrator, c.config, c.channel, c.deduper.Deduper, c.logger)
	if err != nil {
		return err
	}
	c.webhooks = handler

	if c.config.ChannelType == ChannelLark && c.config.Lark.LongConnection {
		c.larkWS = websocket.NewLarkAdapter(websocket.LarkAdapterConfig{
			AppID:     c.config.Lark.AppID,
			AppSecret: c.config.Lark.AppSecret,
			BaseURL:   c.config.Lark.BaseURL,
		}, c.webhooks, c.logger)

		ctx := c.ctx
		go func() {
			if err := c.larkWS.Start(ctx); err != nil && ctx.Err() == nil {
				c.logger.Error("Lark long connection terminated", zap.Error(err))
			}
		}()
	}

	c.server = httpServer.NewServer(
		httpServer.ServerConfig{
			Host:         c.config.Server.Host,
			Port:         c.config.Server.Port,
			ReadTimeout:  c.config.Server.ReadTimeout,
			WriteTimeout: c.config.Server.WriteTimeout,
			Version:      c.config.Server.Version,
		},
		httpServer.ServerDeps{
			Approvals:    c.orchestrator,
			Webhooks:     c.webhooks,
			Verifier:     webhook.NewSignatureVerifier(c.config.Security.BackendSecret, c.config.Security.ReplayWindow),
			HealthChecks: c.healthChecks(),
			Logger:       &zapLoggerAdapter{logger: c.logger},
		},
	)
	return nil
}

// initWorkers initializes and starts all background workers using providers.
func (c *Container) initWorkers() error {
	workers, err := ProvideWorkers(&WorkerDeps{
		Repos:        c.repositories,
		Orchestrator: c.orchestrator,
		WorkerCfg:    &c.config.Worker,
		Logger:       c.logger,
	})
	if err != nil {
		return err
	}
	c.workers = workers

	if err := c.workers.StartAll(c.ctx); err != nil {
		return fmt.Errorf("failed to start workers: %w", err)
	}

	return nil
}

// Getters for accessing container components

// DB returns the transaction manager.
func (c *Container) DB() port.TransactionManager {
	return c.db
}

// Repositories returns all repositories.
func (c *Container) Repositories() *RepositoryBundle {
	return c.repositories
}

// Notifier returns the messaging channel notifier.
func (c *Container) Notifier() port.Notifier {
	return c.channel.Notifier
}

// Dispatcher returns the event dispatcher.
func (c *Container) Dispatcher() dispatcher.Dispatcher {
	return c.dispatcher
}

// Orchestrator returns the approval orchestrator.
func (c *Container) Orchestrator() *service.Orchestrator {
	return c.orchestrator
}

// HTTPServer returns the HTTP server. It is not started by the container.
func (c *Container) HTTPServer() *httpServer.Server {
	return c.server
}

// Workers returns the worker manager.
func (c *Container) Workers() *worker.WorkerManager {
	return c.workers
}

// Logger returns the container's logger.
func (c *Container) Logger() *zap.Logger {
	return c.logger
}

// Config returns the container's configuration.
func (c *Container) Config() *Config {
	return c.config
}

// zapLoggerAdapter adapts zap.Logger to the key-value Logger interfaces
// of the service, dispatcher and http packages.
type zapLoggerAdapter struct {
	logger *zap.Logger
}

func (a *zapLoggerAdapter) Info(msg string, keysAndValues ...interface{}) {
	a.logger.Info(msg, convertToZapFields(keysAndValues...)...)
}

func (a *zapLoggerAdapter) Warn(msg string, keysAndValues ...interface{}) {
	a.logger.Warn(msg, convertToZapFields(keysAndValues...)...)
}

func (a *zapLoggerAdapter) Error(msg string, keysAndValues ...interface{}) {
	a.logger.Error(msg, convertToZapFields(keysAndValues...)...)
}

// convertToZapFields converts key-value pairs to zap fields.
func convertToZapFields(keysAndValues ...interface{}) []zap.Field {
	fields := make([]zap.Field, 0, len(keysAndValues)/2)
	for i := 0; i+1 < len(keysAndValues); i += 2 {
		key, ok := keysAndValues[i].(string)
		if !ok {
			continue
		}
		if err, ok := keysAndValues[i+1].(error); ok {
			fields = append(fields, zap.NamedError(key, err))
			continue
		}
		fields = append(fields, zap.Any(key, keysAndValues[i+1]))
	}
	return fields
}
