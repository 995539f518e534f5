package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/subosito/gotenv"
	"go.uber.org/zap"

	"github.com/garyjia/approval-gateway/internal/config"
	"github.com/garyjia/approval-gateway/internal/container"
	"github.com/garyjia/approval-gateway/pkg/utils"
)

func main() {
	configPath := flag.String("config", "configs/config.yaml", "path to the YAML config file")
	envFile := flag.String("env", ".env", "optional dotenv file")
	flag.Parse()

	// A missing .env is fine; the real environment still applies
	_ = gotenv.Load(*envFile)

	// Load configuration
	cfg, err := config.Load(configFileIfExists(*configPath))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	logger, err := utils.NewLogger(utils.LoggerConfig{
		Level:      cfg.Logger.Level,
		OutputPath: cfg.Logger.OutputPath,
		Format:     cfg.Logger.Format,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	logger.Info("Starting Approval Gateway",
		zap.String("version", cfg.Server.Version),
		zap.String("channel", cfg.Channel.Type),
		zap.Int("port", cfg.Server.Port))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	c, err := container.NewContainer(cfg.ToContainerConfig(), logger)
	if err != nil {
		logger.Fatal("Failed to create container", zap.Error(err))
	}
	if err := c.Start(ctx); err != nil {
		logger.Fatal("Failed to start container", zap.Error(err))
	}

	// Blocks until a shutdown signal arrives
	if err := c.HTTPServer().Start(ctx); err != nil {
		logger.Error("HTTP server stopped with error", zap.Error(err))
	}

	logger.Info("Shutting down...")

	done := make(chan error, 1)
	go func() { done <- c.Close() }()

	select {
	case err := <-done:
		if err != nil {
			logger.Error("Shutdown finished with errors", zap.Error(err))
			os.Exit(1)
		}
	case <-time.After(30 * time.Second):
		logger.Error("Shutdown timed out")
		os.Exit(1)
	}

	logger.Info("Server exited successfully")
}

// configFileIfExists returns path when the file exists, otherwise "" so
// configuration comes from defaults and environment alone
func configFileIfExists(path string) string {
	if _, err := os.Stat(path); err != nil {
		return ""
	}
	return path
}
