// Package container provides dependency injection and lifecycle management
// for the approval gateway following Clean Architecture principles.
package container

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/garyjia/approval-gateway/internal/application/dispatcher"
	"github.com/garyjia/approval-gateway/internal/application/port"
	"github.com/garyjia/approval-gateway/internal/application/service"
	"github.com/garyjia/approval-gateway/internal/infrastructure/cache"
	infraLark "github.com/garyjia/approval-gateway/internal/infrastructure/external/lark"
	"github.com/garyjia/approval-gateway/internal/infrastructure/external/origin"
	"github.com/garyjia/approval-gateway/internal/infrastructure/external/telegram"
	"github.com/garyjia/approval-gateway/internal/infrastructure/persistence/sqlite"
	"github.com/garyjia/approval-gateway/internal/infrastructure/worker"
	"github.com/garyjia/approval-gateway/internal/webhook"
	"github.com/garyjia/approval-gateway/migrations"
	"github.com/garyjia/approval-gateway/pkg/database"
)

// DatabaseBundle holds database-related components.
type DatabaseBundle struct {
	Conn           *database.DB
	TransactionMgr *sqlite.DB
}

// ChannelBundle holds the messaging channel of this deployment.
// Exactly one of Telegram and Lark is set.
type ChannelBundle struct {
	Notifier     port.Notifier
	Telegram     *telegram.Client
	Lark         *infraLark.SDKClient
	LarkVerifier *webhook.LarkVerifier
}

// DeduperBundle holds the channel update deduper. Redis is nil when the
// deduper lives in process memory.
type DeduperBundle struct {
	Deduper port.UpdateDeduper
	Redis   *cache.RedisDeduper
}

// ProvideDatabase opens the database and applies the embedded migrations.
func ProvideDatabase(cfg *DatabaseConfig, logger *zap.Logger) (*DatabaseBundle, error) {
	if cfg == nil {
		return nil, fmt.Errorf("database config is required")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}

	if dir := filepath.Dir(cfg.Path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	conn, err := database.New(database.Config{
		Path:            cfg.Path,
		MaxOpenConns:    cfg.MaxOpenConns,
		MaxIdleConns:    cfg.MaxIdleConns,
		ConnMaxLifetime: cfg.ConnMaxLifetime,
	}, logger)
	if err != nil {
		return nil, err
	}

	migrator := database.NewMigrator(conn, logger)
	if err := migrator.RunMigrations(migrations.FS); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return &DatabaseBundle{
		Conn:           conn,
		TransactionMgr: sqlite.NewDB(conn.DB, logger),
	}, nil
}

// ProvideRepositories creates all repositories from a database connection.
func ProvideRepositories(db *sqlite.DB, logger *zap.Logger) (*RepositoryBundle, error) {
	if db == nil {
		return nil, fmt.Errorf("database connection is required")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}

	return &RepositoryBundle{
		Approvals: sqlite.NewApprovalStore(db, logger),
		Mappings:  sqlite.NewIdentityMappingRepository(db, logger),
		Events:    sqlite.NewEventRepository(db, logger),
	}, nil
}

// ProvideChannel creates the notifier of the configured messaging channel.
func ProvideChannel(cfg *Config, logger *zap.Logger) (*ChannelBundle, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}

	switch cfg.ChannelType {
	case ChannelTelegram:
		client := telegram.NewClient(telegram.Config{
			BotToken:   cfg.Telegram.BotToken,
			APIBaseURL: cfg.Telegram.APIBaseURL,
			Timeout:    cfg.Telegram.Timeout,
		}, logger)
		return &ChannelBundle{
			Notifier: telegram.NewNotifier(client, logger),
			Telegram: client,
		}, nil

	case ChannelLark:
		client := infraLark.NewSDKClient(infraLark.Config{
			AppID:         cfg.Lark.AppID,
			AppSecret:     cfg.Lark.AppSecret,
			BaseURL:       cfg.Lark.BaseURL,
			ReceiveIDType: cfg.Lark.ReceiveIDType,
			Timeout:       cfg.Lark.APITimeout,
		}, logger)
		return &ChannelBundle{
			Notifier:     infraLark.NewNotifier(client, logger),
			Lark:         client,
			LarkVerifier: webhook.NewLarkVerifier(cfg.Lark.VerifyToken, cfg.Lark.EncryptKey, logger),
		}, nil

	default:
		return nil, fmt.Errorf("unsupported channel type %q", cfg.ChannelType)
	}
}

// ProvideReporter creates the signed result callback reporter.
func ProvideReporter(cfg *ReporterConfig, secret string, logger *zap.Logger) (*origin.Reporter, error) {
	if cfg == nil {
		return nil, fmt.Errorf("reporter config is required")
	}
	if secret == "" {
		return nil, fmt.Errorf("backend secret is required")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}

	return origin.NewReporter(origin.Config{
		Secret:         secret,
		CallbackPath:   cfg.CallbackPath,
		MaxAttempts:    cfg.MaxAttempts,
		InitialBackoff: cfg.InitialBackoff,
		MaxBackoff:     cfg.MaxBackoff,
		Timeout:        cfg.Timeout,
		UserAgent:      cfg.UserAgent,
	}, logger), nil
}

// ProvideDeduper creates the update deduper. A configured Redis address
// shares seen updates across replicas.
func ProvideDeduper(ctx context.Context, cfg *RedisConfig, engine *EngineConfig, logger *zap.Logger) (*DeduperBundle, error) {
	if cfg == nil || engine == nil {
		return nil, fmt.Errorf("redis and engine config are required")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}

	if cfg.Addr == "" {
		logger.Info("Using in-memory update de-duplication")
		return &DeduperBundle{Deduper: cache.NewMemoryDeduper(engine.DedupeRetention)}, nil
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	deduper := cache.NewRedisDeduper(client, cfg.Prefix, engine.DedupeRetention, logger)
	if err := deduper.Ping(ctx); err != nil {
		// Dedupe falls back to memory per call, so an unreachable Redis is not fatal
		logger.Warn("Redis not reachable at startup", zap.String("addr", cfg.Addr), zap.Error(err))
	} else {
		logger.Info("Using Redis update de-duplication", zap.String("addr", cfg.Addr))
	}

	return &DeduperBundle{Deduper: deduper, Redis: deduper}, nil
}

// ProvideDispatcher creates the event dispatcher and registers the
// history recorder on every event type.
func ProvideDispatcher(events port.EventRepository, logger *zap.Logger) (dispatcher.Dispatcher, error) {
	if events == nil {
		return nil, fmt.Errorf("event repository is required")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}

	disp := dispatcher.NewDispatcher(
		dispatcher.WithLogger(&zapLoggerAdapter{logger: logger}),
	)
	service.NewHistoryRecorder(events).Register(disp)

	return disp, nil
}

// OrchestratorDeps holds dependencies required for creating the orchestrator.
type OrchestratorDeps struct {
	Repos      *RepositoryBundle
	Notifier   port.Notifier
	Reporter   port.ResultReporter
	Dispatcher dispatcher.Dispatcher
	EngineCfg  *EngineConfig
	Logger     *zap.Logger
}

// ProvideOrchestrator creates the approval orchestrator.
func ProvideOrchestrator(deps *OrchestratorDeps) (*service.Orchestrator, error) {
	if deps == nil {
		return nil, fmt.Errorf("orchestrator dependencies are required")
	}
	if deps.Repos == nil {
		return nil, fmt.Errorf("repositories are required")
	}
	if deps.Notifier == nil {
		return nil, fmt.Errorf("notifier is required")
	}
	if deps.Reporter == nil {
		return nil, fmt.Errorf("reporter is required")
	}
	if deps.EngineCfg == nil {
		return nil, fmt.Errorf("engine config is required")
	}
	if deps.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}

	var reportTimeout time.Duration
	if b, ok := deps.Reporter.(interface{ Budget() time.Duration }); ok {
		reportTimeout = b.Budget()
	}

	return service.NewOrchestrator(service.OrchestratorDeps{
		Store:      deps.Repos.Approvals,
		Mappings:   deps.Repos.Mappings,
		Events:     deps.Repos.Events,
		Notifier:   deps.Notifier,
		Reporter:   deps.Reporter,
		Dispatcher: deps.Dispatcher,
		Config: service.OrchestratorConfig{
			ReportCancellations: deps.EngineCfg.ReportCancellations,
			DefaultApproveLabel: deps.EngineCfg.DefaultApproveLabel,
			DefaultRejectLabel:  deps.EngineCfg.DefaultRejectLabel,
			DefaultTimeoutHours: deps.EngineCfg.DefaultTimeoutHours,
			ReportTimeout:       reportTimeout,
		},
		Logger: &zapLoggerAdapter{logger: deps.Logger},
	}), nil
}

// ProvideWebhookHandler creates the channel webhook handler.
func ProvideWebhookHandler(orch *service.Orchestrator, cfg *Config, channel *ChannelBundle, deduper port.UpdateDeduper, logger *zap.Logger) (*webhook.Handler, error) {
	if orch == nil {
		return nil, fmt.Errorf("orchestrator is required")
	}
	if cfg == nil || channel == nil {
		return nil, fmt.Errorf("config and channel are required")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}

	return webhook.NewHandler(orch, webhook.HandlerConfig{
		TelegramSecret: cfg.Telegram.WebhookSecret,
		Lark:           channel.LarkVerifier,
		Deduper:        deduper,
		ProcessTimeout: cfg.Engine.ProcessTimeout,
	}, logger), nil
}

// WorkerDeps holds dependencies required for creating workers.
type WorkerDeps struct {
	Repos        *RepositoryBundle
	Orchestrator *service.Orchestrator
	WorkerCfg    *WorkerConfig
	Logger       *zap.Logger
}

// ProvideWorkers creates and registers all background workers.
// Returns *worker.WorkerManager with all workers registered but not started.
func ProvideWorkers(deps *WorkerDeps) (*worker.WorkerManager, error) {
	if deps == nil {
		return nil, fmt.Errorf("worker dependencies are required")
	}
	if deps.Repos == nil {
		return nil, fmt.Errorf("repositories are required")
	}
	if deps.Orchestrator == nil {
		return nil, fmt.Errorf("orchestrator is required")
	}
	if deps.WorkerCfg == nil {
		return nil, fmt.Errorf("worker config is required")
	}
	if deps.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}

	manager := worker.NewWorkerManager(deps.Logger)

	sweeper := worker.NewTimeoutSweeper(
		worker.SweeperConfig{
			Interval:    deps.WorkerCfg.SweepInterval,
			BatchSize:   deps.WorkerCfg.SweepBatchSize,
			TickTimeout: deps.WorkerCfg.SweepTickTimeout,
		},
		deps.Repos.Approvals,
		deps.Orchestrator,
		deps.Logger,
	)
	manager.Register(sweeper)

	return manager, nil
}
