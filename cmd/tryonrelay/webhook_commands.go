package main

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"tryonrelay/internal/telegram"
)

// webhookUpdates limits deliveries to the update kinds the relay consumes.
var webhookUpdates = []string{"message", "channel_post"}

func newWebhookCommand(ctx *commandContext) *cobra.Command {
	webhookCmd := &cobra.Command{
		Use:   "webhook",
		Short: "Manage the Telegram webhook registration",
	}
	webhookCmd.AddCommand(newWebhookSetCommand(ctx))
	webhookCmd.AddCommand(newWebhookInfoCommand(ctx))
	return webhookCmd
}

func newWebhookSetCommand(ctx *commandContext) *cobra.Command {
	var dropPending bool
	cmd := &cobra.Command{
		Use:   "set [url]",
		Short: "Register the public webhook URL with Telegram",
		Long: "Registers the URL Telegram delivers operator replies to. Defaults to\n" +
			"telegram.webhook_url. The configured webhook_secret is sent as secret_token.",
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			target := strings.TrimSpace(cfg.Telegram.WebhookURL)
			if len(args) == 1 {
				target = strings.TrimSpace(args[0])
			}
			if target == "" {
				return errors.New("webhook url required (argument or telegram.webhook_url)")
			}
			if !strings.HasPrefix(target, "https://") {
				return fmt.Errorf("webhook url %q must use https", target)
			}
			client, err := ctx.telegramClient()
			if err != nil {
				return err
			}
			err = client.SetWebhook(cmd.Context(), telegram.WebhookConfig{
				URL:                target,
				SecretToken:        cfg.Telegram.WebhookSecret,
				AllowedUpdates:     webhookUpdates,
				DropPendingUpdates: dropPending,
			})
			if err != nil {
				return fmt.Errorf("set webhook: %w", err)
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Webhook registered: %s\n", target)
			if cfg.Telegram.WebhookSecret == "" {
				fmt.Fprintln(out, "Warning: telegram.webhook_secret is empty; deliveries are not authenticated")
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&dropPending, "drop-pending", false, "Discard updates queued while no webhook was set")
	return cmd
}

func newWebhookInfoCommand(ctx *commandContext) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "info",
		Short: "Show the current webhook registration",
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := ctx.telegramClient()
			if err != nil {
				return err
			}
			info, err := client.GetWebhookInfo(cmd.Context())
			if err != nil {
				return fmt.Errorf("get webhook info: %w", err)
			}
			if asJSON {
				return writeJSON(cmd, info)
			}
			out := cmd.OutOrStdout()
			url := info.URL
			if url == "" {
				url = "(none)"
			}
			fmt.Fprintf(out, "URL:             %s\n", url)
			fmt.Fprintf(out, "Pending updates: %d\n", info.PendingUpdateCount)
			if len(info.AllowedUpdates) > 0 {
				fmt.Fprintf(out, "Allowed updates: %s\n", strings.Join(info.AllowedUpdates, ", "))
			}
			if info.LastErrorMessage != "" {
				at := time.Unix(info.LastErrorDate, 0).Local().Format(time.DateTime)
				fmt.Fprintf(out, "Last error:      %s (%s)\n", info.LastErrorMessage, at)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the raw webhook info")
	return cmd
}
