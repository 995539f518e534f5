package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/garyjia/approval-gateway/internal/container"
	"github.com/garyjia/approval-gateway/internal/infrastructure/worker"
)

func newSweepCmd(root *rootOptions) *cobra.Command {
	var batchSize int

	cmd := &cobra.Command{
		Use:   "sweep",
		Short: "Expire overdue pending approvals once and report them to the origin",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			cfg, err := root.loadConfig(true)
			if err != nil {
				return err
			}
			logger, err := root.newLogger()
			if err != nil {
				return err
			}
			s, err := openStore(cfg, logger)
			if err != nil {
				return err
			}
			defer s.Close()

			cc := cfg.ToContainerConfig()
			channel, err := container.ProvideChannel(cc, logger)
			if err != nil {
				return err
			}
			reporter, err := container.ProvideReporter(&cc.Reporter, cc.Security.BackendSecret, logger)
			if err != nil {
				return err
			}
			disp, err := container.ProvideDispatcher(s.repos.Events, logger)
			if err != nil {
				return err
			}
			defer disp.Close()

			orch, err := container.ProvideOrchestrator(&container.OrchestratorDeps{
				Repos:      s.repos,
				Notifier:   channel.Notifier,
				Reporter:   reporter,
				Dispatcher: disp,
				EngineCfg:  &cc.Engine,
				Logger:     logger,
			})
			if err != nil {
				return err
			}

			sweeper := worker.NewTimeoutSweeper(worker.SweeperConfig{BatchSize: batchSize}, s.repos.Approvals, orch, logger)
			expired, err := sweeper.RunOnce(ctx)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "expired %d approval(s)\n", expired)
			return nil
		},
	}

	cmd.Flags().IntVar(&batchSize, "batch-size", 100, "Maximum approvals expired in this run")
	return cmd
}
