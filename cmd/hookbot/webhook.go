package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/hrygo/hookbot/internal/metrics"
	"github.com/hrygo/hookbot/internal/profile"
	"github.com/hrygo/hookbot/telegram"
)

// maxWebhookConnections is the concurrency Telegram is asked to use when
// delivering updates.
const maxWebhookConnections = 40

func newWebhookClient() (*telegram.Client, *profile.Profile, error) {
	p, err := loadProfile()
	if err != nil {
		return nil, nil, err
	}
	client, err := telegram.NewClient(p, metrics.New())
	if err != nil {
		return nil, nil, err
	}
	return client, p, nil
}

var webhookSetCmd = &cobra.Command{
	Use:   "webhook-set",
	Short: "Register the webhook URL and secret with Telegram",
	RunE: func(cmd *cobra.Command, _ []string) error {
		client, p, err := newWebhookClient()
		if err != nil {
			return err
		}
		hookURL := "https://" + p.HookHost + p.HookPath
		if err := client.SetWebhook(cmd.Context(), hookURL, p.APISecret, maxWebhookConnections, true); err != nil {
			return err
		}
		fmt.Printf("webhook set to %s\n", hookURL)
		return nil
	},
}

var webhookDelCmd = &cobra.Command{
	Use:   "webhook-del",
	Short: "Unregister the webhook, dropping pending updates",
	RunE: func(cmd *cobra.Command, _ []string) error {
		client, _, err := newWebhookClient()
		if err != nil {
			return err
		}
		if err := client.DeleteWebhook(cmd.Context()); err != nil {
			return err
		}
		fmt.Println("webhook deleted")
		return nil
	},
}

var webhookInfoCmd = &cobra.Command{
	Use:   "webhook-info",
	Short: "Show the webhook state Telegram currently holds",
	RunE: func(cmd *cobra.Command, _ []string) error {
		client, _, err := newWebhookClient()
		if err != nil {
			return err
		}
		info, err := client.WebhookInfo(cmd.Context())
		if err != nil {
			return err
		}
		fmt.Printf("url: %s\n", info.URL)
		fmt.Printf("pending updates: %d\n", info.PendingUpdateCount)
		if info.LastErrorMessage != "" {
			fmt.Printf("last error: %s (at %d)\n", info.LastErrorMessage, info.LastErrorDate)
		}
		return nil
	},
}
