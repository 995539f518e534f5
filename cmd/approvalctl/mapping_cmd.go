package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/garyjia/approval-gateway/internal/domain/entity"
	"github.com/garyjia/approval-gateway/pkg/utils"
)

func newMappingCmd(root *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "mapping",
		Short: "Manage origin user to channel recipient mappings",
	}

	cmd.AddCommand(newMappingAddCmd(root))
	cmd.AddCommand(newMappingListCmd(root))
	cmd.AddCommand(newMappingDeactivateCmd(root))
	cmd.AddCommand(newMappingDeactivateOriginCmd(root))
	return cmd
}

func newMappingAddCmd(root *rootOptions) *cobra.Command {
	var m entity.IdentityMapping

	cmd := &cobra.Command{
		Use:   "add",
		Short: "Create or replace a mapping and activate it",
		RunE: func(cmd *cobra.Command, args []string) error {
			m.OriginSystemRef = strings.TrimSpace(m.OriginSystemRef)
			m.OriginUserRef = strings.TrimSpace(m.OriginUserRef)
			m.ChannelRecipient = strings.TrimSpace(m.ChannelRecipient)
			m.ChannelUsername = strings.TrimPrefix(strings.TrimSpace(m.ChannelUsername), "@")
			if m.OriginSystemRef == "" || m.OriginUserRef == "" || m.ChannelRecipient == "" {
				return fmt.Errorf("--origin, --user-ref and --recipient are required")
			}

			if m.OriginUserEmail != "" {
				if err := utils.ValidateEmail(m.OriginUserEmail); err != nil {
					return err
				}
			}
			m.DisplayName = utils.SanitizeString(m.DisplayName)
			m.OriginUserName = utils.SanitizeString(m.OriginUserName)

			cfg, err := root.loadConfig(false)
			if err != nil {
				return err
			}
			if err := utils.ValidateRecipient(cfg.Channel.Type, m.ChannelRecipient); err != nil {
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

			if err := s.repos.Mappings.Upsert(cmd.Context(), &m); err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), &m)
		},
	}

	cmd.Flags().StringVar(&m.OriginSystemRef, "origin", "", "Origin system reference, e.g. the portal URL (required)")
	cmd.Flags().StringVar(&m.OriginUserRef, "user-ref", "", "Origin user id (required)")
	cmd.Flags().StringVar(&m.ChannelRecipient, "recipient", "", "Channel recipient id: Telegram chat id or Lark open_id (required)")
	cmd.Flags().StringVar(&m.ChannelUsername, "username", "", "Channel username")
	cmd.Flags().StringVar(&m.OriginUserName, "name", "", "Origin user name")
	cmd.Flags().StringVar(&m.OriginUserEmail, "email", "", "Origin user email")
	cmd.Flags().StringVar(&m.DisplayName, "display-name", "", "Name shown in approval messages")
	return cmd
}

func newMappingListCmd(root *rootOptions) *cobra.Command {
	var origin string
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List active mappings",
		RunE: func(cmd *cobra.Command, args []string) error {
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

			mappings, err := s.repos.Mappings.ListActive(cmd.Context(), strings.TrimSpace(origin))
			if err != nil {
				return err
			}
			if asJSON {
				return writeJSON(cmd.OutOrStdout(), mappings)
			}

			rows := make([][]string, 0, len(mappings))
			for _, m := range mappings {
				rows = append(rows, []string{m.OriginSystemRef, m.OriginUserRef, m.ChannelRecipient, m.ChannelUsername, m.DisplayName})
			}
			return writeTable(cmd.OutOrStdout(), []string{"ORIGIN", "USER", "RECIPIENT", "USERNAME", "DISPLAY NAME"}, rows)
		},
	}

	cmd.Flags().StringVar(&origin, "origin", "", "Only mappings of this origin system")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print JSON instead of a table")
	return cmd
}

func newMappingDeactivateCmd(root *rootOptions) *cobra.Command {
	var origin, userRef string

	cmd := &cobra.Command{
		Use:   "deactivate",
		Short: "Deactivate one mapping",
		RunE: func(cmd *cobra.Command, args []string) error {
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

			if err := s.repos.Mappings.Deactivate(cmd.Context(), strings.TrimSpace(origin), strings.TrimSpace(userRef)); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "deactivated %s/%s\n", origin, userRef)
			return nil
		},
	}

	cmd.Flags().StringVar(&origin, "origin", "", "Origin system reference (required)")
	cmd.Flags().StringVar(&userRef, "user-ref", "", "Origin user id (required)")
	_ = cmd.MarkFlagRequired("origin")
	_ = cmd.MarkFlagRequired("user-ref")
	return cmd
}

func newMappingDeactivateOriginCmd(root *rootOptions) *cobra.Command {
	var origin string

	cmd := &cobra.Command{
		Use:   "deactivate-origin",
		Short: "Deactivate every mapping of an origin system",
		RunE: func(cmd *cobra.Command, args []string) error {
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

			n, err := s.repos.Mappings.DeactivateByOrigin(cmd.Context(), strings.TrimSpace(origin))
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "deactivated %d mapping(s) of %s\n", n, origin)
			return nil
		},
	}

	cmd.Flags().StringVar(&origin, "origin", "", "Origin system reference (required)")
	_ = cmd.MarkFlagRequired("origin")
	return cmd
}
