package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/garyjia/approval-gateway/internal/infrastructure/external/telegram"
)

func newTelegramCmd(root *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "telegram",
		Short: "Manage the Telegram bot webhook",
	}

	cmd.AddCommand(newTelegramSetWebhookCmd(root))
	cmd.AddCommand(newTelegramDeleteWebhookCmd(root))
	cmd.AddCommand(newTelegramInfoCmd(root))
	return cmd
}

// telegramClient returns a Bot API client and the configured webhook secret
func (o *rootOptions) telegramClient() (*telegram.Client, string, error) {
	cfg, err := o.loadConfig(false)
	if err != nil {
		return nil, "", err
	}
	if cfg.Telegram.BotToken == "" {
		return nil, "", fmt.Errorf("telegram.bot_token is required")
	}
	logger, err := o.newLogger()
	if err != nil {
		return nil, "", err
	}
	client := telegram.NewClient(telegram.Config{
		BotToken:   cfg.Telegram.BotToken,
		APIBaseURL: cfg.Telegram.APIBaseURL,
		Timeout:    cfg.Telegram.Timeout,
	}, logger)
	return client, cfg.Telegram.WebhookSecret, nil
}

func newTelegramSetWebhookCmd(root *rootOptions) *cobra.Command {
	var baseURL string

	cmd := &cobra.Command{
		Use:   "set-webhook",
		Short: "Point the bot webhook at <base-url>/webhook/telegram",
		RunE: func(cmd *cobra.Command, args []string) error {
			if !strings.HasPrefix(baseURL, "https://") {
				return fmt.Errorf("--url must be an https URL")
			}
			client, secret, err := root.telegramClient()
			if err != nil {
				return err
			}

			url := strings.TrimRight(baseURL, "/") + "/webhook/telegram"
			if err := client.SetWebhook(cmd.Context(), url, secret); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "webhook set to %s\n", url)
			return nil
		},
	}

	cmd.Flags().StringVar(&baseURL, "url", "", "Public https base URL of the gateway (required)")
	_ = cmd.MarkFlagRequired("url")
	return cmd
}

func newTelegramDeleteWebhookCmd(root *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "delete-webhook",
		Short: "Remove the bot webhook",
		RunE: func(cmd *cobra.Command, args []string) error {
			client, _, err := root.telegramClient()
			if err != nil {
				return err
			}
			if err := client.DeleteWebhook(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "webhook deleted")
			return nil
		},
	}
}

func newTelegramInfoCmd(root *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "info",
		Short: "Show the bot identity and webhook status",
		RunE: func(cmd *cobra.Command, args []string) error {
			client, _, err := root.telegramClient()
			if err != nil {
				return err
			}

			me, err := client.GetMe(cmd.Context())
			if err != nil {
				return err
			}
			info, err := client.GetWebhookInfo(cmd.Context())
			if err != nil {
				return err
			}

			rows := [][]string{
				{"bot", "@" + me.Username},
				{"bot_id", fmt.Sprint(me.ID)},
				{"webhook_url", info.URL},
				{"pending_updates", fmt.Sprint(info.PendingUpdateCount)},
			}
			if info.LastErrorDate > 0 {
				rows = append(rows,
					[]string{"last_error", info.LastErrorMessage},
					[]string{"last_error_at", time.Unix(info.LastErrorDate, 0).UTC().Format(time.RFC3339)},
				)
			}
			return writeTable(cmd.OutOrStdout(), []string{"FIELD", "VALUE"}, rows)
		},
	}
}
