package main

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/garyjia/approval-gateway/internal/application/port"
	"github.com/garyjia/approval-gateway/internal/infrastructure/export"
)

func newExportCmd(root *rootOptions) *cobra.Command {
	var output, status, origin, since, until string

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export approvals and approver responses to an .xlsx workbook",
		RunE: func(cmd *cobra.Command, args []string) error {
			filter := port.ApprovalFilter{
				Status:          strings.TrimSpace(status),
				OriginSystemRef: strings.TrimSpace(origin),
			}
			var err error
			if filter.CreatedAfter, err = parseDate(since); err != nil {
				return fmt.Errorf("invalid --since: %w", err)
			}
			if filter.CreatedBefore, err = parseDate(until); err != nil {
				return fmt.Errorf("invalid --until: %w", err)
			}

			cfg, err := root.loadConfig(false)
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

			f, err := os.Create(output)
			if err != nil {
				return err
			}
			defer f.Close()

			n, err := export.NewXLSXExporter(s.repos.Approvals, logger).Export(cmd.Context(), filter, f)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "exported %d approval(s) to %s\n", n, output)
			return nil
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", "approvals.xlsx", "Output file")
	cmd.Flags().StringVar(&status, "status", "", "Only approvals in this status")
	cmd.Flags().StringVar(&origin, "origin", "", "Only approvals of this origin system")
	cmd.Flags().StringVar(&since, "since", "", "Created at or after (YYYY-MM-DD or RFC3339)")
	cmd.Flags().StringVar(&until, "until", "", "Created before (YYYY-MM-DD or RFC3339)")
	return cmd
}

// parseDate accepts YYYY-MM-DD or RFC3339; empty yields the zero time
func parseDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, nil
	}
	if t, err := time.Parse("2006-01-02", s); err == nil {
		return t, nil
	}
	return time.Parse(time.RFC3339, s)
}
