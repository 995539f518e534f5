package config

import (
	"github.com/garyjia/approval-gateway/internal/container"
)

// ToContainerConfig converts the application Config to a container.Config.
// This provides a bridge between the file-based config loaded by viper
// and the container's configuration structure.
func (c *Config) ToContainerConfig() *container.Config {
	return &container.Config{
		Database: container.DatabaseConfig{
			Path:            c.Database.Path,
			MaxOpenConns:    c.Database.MaxOpenConns,
			MaxIdleConns:    c.Database.MaxIdleConns,
			ConnMaxLifetime: c.Database.ConnMaxLifetime,
		},
		Security: container.SecurityConfig{
			BackendSecret: c.Security.BackendSecret,
			ReplayWindow:  c.Security.ReplayWindow,
		},
		ChannelType: c.Channel.Type,
		Telegram: container.TelegramConfig{
			BotToken:      c.Telegram.BotToken,
			APIBaseURL:    c.Telegram.APIBaseURL,
			WebhookSecret: c.Telegram.WebhookSecret,
			Timeout:       c.Telegram.Timeout,
		},
		Lark: container.LarkConfig{
			AppID:          c.Lark.AppID,
			AppSecret:      c.Lark.AppSecret,
			VerifyToken:    c.Lark.VerifyToken,
			EncryptKey:     c.Lark.EncryptKey,
			BaseURL:        c.Lark.BaseURL,
			ReceiveIDType:  c.Lark.ReceiveIDType,
			APITimeout:     c.Lark.APITimeout,
			LongConnection: c.Lark.LongConnection,
		},
		Reporter: container.ReporterConfig{
			CallbackPath:   c.Reporter.CallbackPath,
			MaxAttempts:    c.Reporter.MaxAttempts,
			InitialBackoff: c.Reporter.InitialBackoff,
			MaxBackoff:     c.Reporter.MaxBackoff,
			Timeout:        c.Reporter.Timeout,
			UserAgent:      c.Reporter.UserAgent,
		},
		Engine: container.EngineConfig{
			ReportCancellations: c.Engine.ReportCancellations,
			DefaultApproveLabel: c.Engine.DefaultApproveLabel,
			DefaultRejectLabel:  c.Engine.DefaultRejectLabel,
			DefaultTimeoutHours: c.Engine.DefaultTimeoutHours,
			ProcessTimeout:      c.Engine.ProcessTimeout,
			DedupeRetention:     c.Engine.DedupeRetention,
		},
		Redis: container.RedisConfig{
			Addr:     c.Redis.Addr,
			Password: c.Redis.Password,
			DB:       c.Redis.DB,
			Prefix:   c.Redis.Prefix,
		},
		Server: container.ServerConfig{
			Host:         c.Server.Host,
			Port:         c.Server.Port,
			ReadTimeout:  c.Server.ReadTimeout,
			WriteTimeout: c.Server.WriteTimeout,
			Version:      c.Server.Version,
		},
		Worker: container.WorkerConfig{
			SweepInterval:    c.Sweeper.Interval,
			SweepBatchSize:   c.Sweeper.BatchSize,
			SweepTickTimeout: c.Sweeper.TickTimeout,
		},
	}
}
