package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/subosito/gotenv"
	"go.uber.org/zap"

	"github.com/garyjia/approval-gateway/internal/config"
	"github.com/garyjia/approval-gateway/internal/container"
	"github.com/garyjia/approval-gateway/pkg/utils"
)

type rootOptions struct {
	configPath string
	envFile    string
	verbose    bool
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:           "approvalctl",
		Short:         "Approval gateway administration tool",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			// A missing .env is fine
			_ = gotenv.Load(opts.envFile)
		},
	}

	cmd.PersistentFlags().StringVar(&opts.configPath, "config", "configs/config.yaml", "Path to the YAML config file")
	cmd.PersistentFlags().StringVar(&opts.envFile, "env", ".env", "Optional dotenv file")
	cmd.PersistentFlags().BoolVarP(&opts.verbose, "verbose", "v", false, "Log at debug level")

	cmd.AddCommand(newMappingCmd(opts))
	cmd.AddCommand(newSweepCmd(opts))
	cmd.AddCommand(newExportCmd(opts))
	cmd.AddCommand(newTelegramCmd(opts))
	return cmd
}

// Execute runs the root command and exits non-zero on failure
func Execute() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err.Error())
		os.Exit(1)
	}
}

// loadConfig reads configuration. Commands that reach the messaging channel
// or the origin pass validate=true.
func (o *rootOptions) loadConfig(validate bool) (*config.Config, error) {
	path := o.configPath
	if _, err := os.Stat(path); err != nil {
		path = ""
	}
	if validate {
		return config.Load(path)
	}
	return config.Read(path)
}

func (o *rootOptions) newLogger() (*zap.Logger, error) {
	level := "warn"
	if o.verbose {
		level = "debug"
	}
	return utils.NewLogger(utils.LoggerConfig{
		Level:      level,
		OutputPath: "stderr",
		Format:     "console",
	})
}

// store is an opened database with its repositories
type store struct {
	db    *container.DatabaseBundle
	repos *container.RepositoryBundle
}

func (s *store) Close() error {
	return s.db.Conn.Close()
}

func openStore(cfg *config.Config, logger *zap.Logger) (*store, error) {
	cc := cfg.ToContainerConfig()

	db, err := container.ProvideDatabase(&cc.Database, logger)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	repos, err := container.ProvideRepositories(db.TransactionMgr, logger)
	if err != nil {
		_ = db.Conn.Close()
		return nil, err
	}
	return &store{db: db, repos: repos}, nil
}
