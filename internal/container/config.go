// Package container provides dependency injection and lifecycle management
// for the approval gateway following Clean Architecture principles.
package container

import (
	"fmt"
	"time"
)

// Channel types
const (
	ChannelTelegram = "telegram"
	ChannelLark     = "lark"
)

// Config holds all configuration for the Container.
// It aggregates configurations for all subsystems.
type Config struct {
	// Database configuration
	Database DatabaseConfig

	// Security configuration
	Security SecurityConfig

	// ChannelType selects the messaging channel: telegram or lark
	ChannelType string

	// Telegram Bot API configuration
	Telegram TelegramConfig

	// Lark API configuration
	Lark LarkConfig

	// Reporter configuration
	Reporter ReporterConfig

	// Engine configuration
	Engine EngineConfig

	// Redis configuration
	Redis RedisConfig

	// Server configuration
	Server ServerConfig

	// Worker configuration
	Worker WorkerConfig
}

// DatabaseConfig holds database connection settings.
type DatabaseConfig struct {
	// Path to SQLite database file
	Path string

	// MaxOpenConns is the maximum number of open connections
	MaxOpenConns int

	// MaxIdleConns is the maximum number of idle connections
	MaxIdleConns int

	// ConnMaxLifetime is the maximum connection lifetime
	ConnMaxLifetime time.Duration
}

// SecurityConfig holds request signing settings.
type SecurityConfig struct {
	// BackendSecret is shared with the origin system
	BackendSecret string

	// ReplayWindow bounds the accepted signature age
	ReplayWindow time.Duration
}

// TelegramConfig holds Telegram Bot API settings.
type TelegramConfig struct {
	BotToken      string
	APIBaseURL    string
	WebhookSecret string
	Timeout       time.Duration
}

// LarkConfig holds Lark API settings.
type LarkConfig struct {
	// AppID is the Lark application ID
	AppID string

	// AppSecret is the Lark application secret
	AppSecret string

	// VerifyToken and EncryptKey authenticate card callbacks
	VerifyToken string
	EncryptKey  string

	BaseURL       string
	ReceiveIDType string

	// APITimeout is the timeout for API calls
	APITimeout time.Duration

	// LongConnection receives card actions over the SDK WebSocket
	LongConnection bool
}

// ReporterConfig holds result callback settings.
type ReporterConfig struct {
	CallbackPath   string
	MaxAttempts    int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	Timeout        time.Duration
	UserAgent      string
}

// EngineConfig holds orchestrator settings.
type EngineConfig struct {
	ReportCancellations bool
	DefaultApproveLabel string
	DefaultRejectLabel  string
	DefaultTimeoutHours int

	// ProcessTimeout bounds the handling of one channel update
	ProcessTimeout time.Duration

	// DedupeRetention is how long update ids are remembered
	DedupeRetention time.Duration
}

// RedisConfig holds the optional Redis connection. An empty Addr keeps
// update de-duplication in process memory.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	Prefix   string
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	// Host to bind to
	Host string

	// Port to listen on
	Port int

	// ReadTimeout for HTTP server
	ReadTimeout time.Duration

	// WriteTimeout for HTTP server
	WriteTimeout time.Duration

	Version string
}

// WorkerConfig holds background worker settings.
type WorkerConfig struct {
	SweepInterval    time.Duration
	SweepBatchSize   int
	SweepTickTimeout time.Duration
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Database: DatabaseConfig{
			Path:            "data/approvals.db",
			MaxOpenConns:    10,
			MaxIdleConns:    5,
			ConnMaxLifetime: 5 * time.Minute,
		},
		Security: SecurityConfig{
			ReplayWindow: 5 * time.Minute,
		},
		ChannelType: ChannelTelegram,
		Telegram: TelegramConfig{
			Timeout: 10 * time.Second,
		},
		Lark: LarkConfig{
			ReceiveIDType: "open_id",
			APITimeout:    10 * time.Second,
		},
		Engine: EngineConfig{
			ReportCancellations: true,
			DefaultTimeoutHours: 24,
			ProcessTimeout:      30 * time.Second,
			DedupeRetention:     24 * time.Hour,
		},
		Server: ServerConfig{
			Host:         "0.0.0.0",
			Port:         8080,
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 30 * time.Second,
			Version:      "1.0.0",
		},
		Worker: WorkerConfig{
			SweepInterval:    time.Minute,
			SweepBatchSize:   100,
			SweepTickTimeout: 5 * time.Minute,
		},
	}
}

// Validate checks that required configuration values are present.
func (c *Config) Validate() error {
	if c.Database.Path == "" {
		return fmt.Errorf("database.path is required")
	}
	if c.Security.BackendSecret == "" {
		return fmt.Errorf("security.backend_secret is required")
	}

	switch c.ChannelType {
	case ChannelTelegram:
		if c.Telegram.BotToken == "" {
			return fmt.Errorf("telegram.bot_token is required")
		}
	case ChannelLark:
		if c.Lark.AppID == "" {
			return fmt.Errorf("lark.app_id is required")
		}
		if c.Lark.AppSecret == "" {
			return fmt.Errorf("lark.app_secret is required")
		}
	default:
		return fmt.Errorf("unsupported channel type %q", c.ChannelType)
	}

	return nil
}
