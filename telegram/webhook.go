package telegram

import (
	"context"
	"strconv"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/pkg/errors"
)

// requester is implemented by *tgbotapi.BotAPI. MakeRequest is needed
// because setWebhook's secret_token parameter has no config struct field in
// this client version.
type requester interface {
	MakeRequest(endpoint string, params tgbotapi.Params) (*tgbotapi.APIResponse, error)
}

// SetWebhook registers the gateway's ingress URL with the platform. The
// secret token is echoed back by Telegram on every webhook delivery and
// checked at ingress.
func (c *Client) SetWebhook(ctx context.Context, hookURL, secret string, maxConnections int, dropPending bool) error {
	r, ok := c.api.(requester)
	if !ok {
		return errors.New("telegram: client does not support raw requests")
	}
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}
	params := tgbotapi.Params{
		"url":                  hookURL,
		"secret_token":         secret,
		"drop_pending_updates": strconv.FormatBool(dropPending),
		"allowed_updates":      `["message","callback_query"]`,
	}
	if maxConnections > 0 {
		params["max_connections"] = strconv.Itoa(maxConnections)
	}
	_, err := r.MakeRequest("setWebhook", params)
	c.observe("setWebhook", err)
	if err != nil {
		return errors.Wrap(err, "failed to set webhook")
	}
	return nil
}

// DeleteWebhook unregisters the webhook, dropping any queued updates.
func (c *Client) DeleteWebhook(ctx context.Context) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}
	_, err := c.api.Request(tgbotapi.DeleteWebhookConfig{DropPendingUpdates: true})
	c.observe("deleteWebhook", err)
	if err != nil {
		return errors.Wrap(err, "failed to delete webhook")
	}
	return nil
}

// WebhookInfo reports the webhook state Telegram currently holds.
func (c *Client) WebhookInfo(ctx context.Context) (tgbotapi.WebhookInfo, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return tgbotapi.WebhookInfo{}, err
	}
	info, err := c.api.GetWebhookInfo()
	c.observe("getWebhookInfo", err)
	if err != nil {
		return tgbotapi.WebhookInfo{}, errors.Wrap(err, "failed to get webhook info")
	}
	return info, nil
}
