package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Supported messaging channels
const (
	ChannelTelegram = "telegram"
	ChannelLark     = "lark"
)

// Config holds all application configuration
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	Security SecurityConfig `mapstructure:"security"`
	Channel  ChannelConfig  `mapstructure:"channel"`
	Telegram TelegramConfig `mapstructure:"telegram"`
	Lark     LarkConfig     `mapstructure:"lark"`
	Reporter ReporterConfig `mapstructure:"reporter"`
	Sweeper  SweeperConfig  `mapstructure:"sweeper"`
	Engine   EngineConfig   `mapstructure:"engine"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Logger   LoggerConfig   `mapstructure:"logger"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host         string        `mapstructure:"host"`
	Port         int           `mapstructure:"port"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	Version      string        `mapstructure:"version"`
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Path            string        `mapstructure:"path"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
}

// SecurityConfig holds the shared secret used between origin and gateway
type SecurityConfig struct {
	BackendSecret string        `mapstructure:"backend_secret"`
	ReplayWindow  time.Duration `mapstructure:"replay_window"`
}

// ChannelConfig selects the messaging channel of this deployment
type ChannelConfig struct {
	Type string `mapstructure:"type"`
}

// TelegramConfig holds Telegram Bot API configuration
type TelegramConfig struct {
	BotToken      string        `mapstructure:"bot_token"`
	APIBaseURL    string        `mapstructure:"api_base_url"`
	WebhookSecret string        `mapstructure:"webhook_secret"`
	Timeout       time.Duration `mapstructure:"timeout"`
}

// LarkConfig holds Lark API configuration
type LarkConfig struct {
	AppID         string        `mapstructure:"app_id"`
	AppSecret     string        `mapstructure:"app_secret"`
	VerifyToken   string        `mapstructure:"verify_token"`
	EncryptKey    string        `mapstructure:"encrypt_key"`
	BaseURL       string        `mapstructure:"base_url"`
	ReceiveIDType string        `mapstructure:"receive_id_type"`
	APITimeout    time.Duration `mapstructure:"api_timeout"`

	// LongConnection receives card actions over the SDK WebSocket instead of /webhook/lark
	LongConnection bool `mapstructure:"long_connection"`
}

// ReporterConfig holds result callback configuration
type ReporterConfig struct {
	CallbackPath   string        `mapstructure:"callback_path"`
	MaxAttempts    int           `mapstructure:"max_attempts"`
	InitialBackoff time.Duration `mapstructure:"initial_backoff"`
	MaxBackoff     time.Duration `mapstructure:"max_backoff"`
	Timeout        time.Duration `mapstructure:"timeout"`
	UserAgent      string        `mapstructure:"user_agent"`
}

// SweeperConfig holds timeout sweeper configuration
type SweeperConfig struct {
	Interval    time.Duration `mapstructure:"interval"`
	BatchSize   int           `mapstructure:"batch_size"`
	TickTimeout time.Duration `mapstructure:"tick_timeout"`
}

// EngineConfig tunes approval handling
type EngineConfig struct {
	ReportCancellations bool          `mapstructure:"report_cancellations"`
	DefaultApproveLabel string        `mapstructure:"default_approve_label"`
	DefaultRejectLabel  string        `mapstructure:"default_reject_label"`
	DefaultTimeoutHours int           `mapstructure:"default_timeout_hours"`
	ProcessTimeout      time.Duration `mapstructure:"process_timeout"`
	DedupeRetention     time.Duration `mapstructure:"dedupe_retention"`
}

// RedisConfig holds the optional Redis connection used for update de-duplication
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	Prefix   string `mapstructure:"prefix"`
}

// LoggerConfig holds logger configuration
type LoggerConfig struct {
	Level      string `mapstructure:"level"`
	OutputPath string `mapstructure:"output_path"`
	Format     string `mapstructure:"format"`
}

// Load loads configuration from file and environment variables and validates it.
// An empty configPath skips the file and uses defaults plus environment.
func Load(configPath string) (*Config, error) {
	cfg, err := Read(configPath)
	if err != nil {
		return nil, err
	}

	// Validate configuration
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Read loads configuration without validating it. Admin tools that only
// touch the database use it.
func Read(configPath string) (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Set defaults
	setDefaults(v)

	// Read config file
	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	// Override with environment variables
	if err := bindEnvVars(v); err != nil {
		return nil, fmt.Errorf("failed to bind environment: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	cfg.Channel.Type = strings.ToLower(strings.TrimSpace(cfg.Channel.Type))

	return &cfg, nil
}

// setDefaults sets default configuration values
func setDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", 30*time.Second)
	v.SetDefault("server.write_timeout", 30*time.Second)
	v.SetDefault("server.version", "1.0.0")

	// Database defaults
	v.SetDefault("database.path", "data/approvals.db")
	v.SetDefault("database.max_open_conns", 10)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.conn_max_lifetime", 5*time.Minute)

	// Security defaults
	v.SetDefault("security.replay_window", 5*time.Minute)

	// Channel defaults
	v.SetDefault("channel.type", ChannelTelegram)
	v.SetDefault("telegram.api_base_url", "https://api.telegram.org")
	v.SetDefault("telegram.timeout", 10*time.Second)
	v.SetDefault("lark.base_url", "https://open.feishu.cn")
	v.SetDefault("lark.receive_id_type", "open_id")
	v.SetDefault("lark.api_timeout", 10*time.Second)

	// Reporter defaults
	v.SetDefault("reporter.callback_path", "/rest/bizproc.event.send")
	v.SetDefault("reporter.max_attempts", 3)
	v.SetDefault("reporter.initial_backoff", time.Second)
	v.SetDefault("reporter.max_backoff", 10*time.Second)
	v.SetDefault("reporter.timeout", 8*time.Second)
	v.SetDefault("reporter.user_agent", "ApprovalGateway/1.0")

	// Sweeper defaults
	v.SetDefault("sweeper.interval", time.Minute)
	v.SetDefault("sweeper.batch_size", 100)
	v.SetDefault("sweeper.tick_timeout", 5*time.Minute)

	// Engine defaults
	v.SetDefault("engine.report_cancellations", true)
	v.SetDefault("engine.default_approve_label", "Approve")
	v.SetDefault("engine.default_reject_label", "Reject")
	v.SetDefault("engine.default_timeout_hours", 24)
	v.SetDefault("engine.process_timeout", 30*time.Second)
	v.SetDefault("engine.dedupe_retention", 24*time.Hour)

	// Redis defaults
	v.SetDefault("redis.prefix", "approval-gateway:updates")

	// Logger defaults
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.output_path", "stdout")
	v.SetDefault("logger.format", "json")
}

// bindEnvVars binds environment variables to configuration
func bindEnvVars(v *viper.Viper) error {
	// Sensitive credentials from environment
	bindings := [][2]string{
		{"security.backend_secret", "BACKEND_SECRET"},
		{"channel.type", "CHANNEL_TYPE"},
		{"telegram.bot_token", "TELEGRAM_BOT_TOKEN"},
		{"telegram.webhook_secret", "TELEGRAM_WEBHOOK_SECRET"},
		{"lark.app_id", "LARK_APP_ID"},
		{"lark.app_secret", "LARK_APP_SECRET"},
		{"lark.verify_token", "LARK_VERIFY_TOKEN"},
		{"lark.encrypt_key", "LARK_ENCRYPT_KEY"},
		{"lark.long_connection", "LARK_LONG_CONNECTION"},
		{"redis.addr", "REDIS_ADDR"},
		{"redis.password", "REDIS_PASSWORD"},
		{"database.path", "DATABASE_PATH"},
		{"server.port", "PORT"},
	}
	for _, b := range bindings {
		if err := v.BindEnv(b[0], b[1]); err != nil {
			return err
		}
	}
	return nil
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Security.BackendSecret == "" {
		return fmt.Errorf("security.backend_secret is required")
	}
	if c.Security.ReplayWindow <= 0 {
		return fmt.Errorf("security.replay_window must be positive")
	}
	if c.Database.Path == "" {
		return fmt.Errorf("database.path is required")
	}

	switch c.Channel.Type {
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
		return fmt.Errorf("channel.type must be %q or %q, got %q", ChannelTelegram, ChannelLark, c.Channel.Type)
	}

	if c.Engine.DefaultTimeoutHours < 1 || c.Engine.DefaultTimeoutHours > 168 {
		return fmt.Errorf("engine.default_timeout_hours must be between 1 and 168")
	}
	if c.Sweeper.Interval <= 0 {
		return fmt.Errorf("sweeper.interval must be positive")
	}

	// every attempt of a synchronous report must fit in one update's budget
	if c.Reporter.MaxAttempts > 0 && c.Reporter.Timeout > 0 && c.Engine.ProcessTimeout > 0 &&
		c.Reporter.Timeout*time.Duration(c.Reporter.MaxAttempts) >= c.Engine.ProcessTimeout {
		return fmt.Errorf("reporter.timeout (%s) must be below engine.process_timeout (%s) divided by reporter.max_attempts (%d)",
			c.Reporter.Timeout, c.Engine.ProcessTimeout, c.Reporter.MaxAttempts)
	}

	return nil
}
