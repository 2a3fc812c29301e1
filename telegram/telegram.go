// Package telegram wraps the Bot API client used for all outbound traffic.
package telegram

import (
	"context"
	"log/slog"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/pkg/errors"
	"golang.org/x/time/rate"

	"github.com/hrygo/hookbot/internal/metrics"
	"github.com/hrygo/hookbot/internal/profile"
	"github.com/hrygo/hookbot/store"
)

// botAPI is the subset of tgbotapi.BotAPI the client uses. Tests substitute
// a recording fake.
type botAPI interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
	GetChatAdministrators(cfg tgbotapi.ChatAdministratorsConfig) ([]tgbotapi.ChatMember, error)
	GetWebhookInfo() (tgbotapi.WebhookInfo, error)
}

// Client is the outbound Telegram surface. Every call passes the shared
// rate limiter first so a burst of handler replies cannot trip the
// platform's flood control.
type Client struct {
	api     botAPI
	limiter *rate.Limiter
	metrics *metrics.Metrics

	botUsername string
}

// Bot API flood control allows ~30 messages/second across all chats.
// Stay under it with a little headroom.
const (
	rateLimit = rate.Limit(25)
	rateBurst = 5
)

// NewClient authenticates against the Bot API with the profile's token.
func NewClient(p *profile.Profile, m *metrics.Metrics) (*Client, error) {
	bot, err := tgbotapi.NewBotAPI(p.APIToken)
	if err != nil {
		return nil, errors.Wrap(err, "failed to authenticate bot")
	}
	bot.Debug = false
	slog.Info("telegram: authenticated", "username", bot.Self.UserName, "id", bot.Self.ID)
	return &Client{
		api:         bot,
		limiter:     rate.NewLimiter(rateLimit, rateBurst),
		metrics:     m,
		botUsername: bot.Self.UserName,
	}, nil
}

// newClientWithAPI is the test constructor.
func newClientWithAPI(api botAPI, m *metrics.Metrics) *Client {
	return &Client{
		api:     api,
		limiter: rate.NewLimiter(rate.Inf, 0),
		metrics: m,
	}
}

// BotUsername returns the authenticated bot's username without the @.
func (c *Client) BotUsername() string {
	return c.botUsername
}

func (c *Client) observe(method string, err error) {
	if c.metrics == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	c.metrics.APICalls.WithLabelValues(method, outcome).Inc()
}

// SendText sends a plain or Markdown-formatted message. replyTo of zero
// means no reply threading. The sent message id is returned so callers can
// schedule a later delete.
func (c *Client) SendText(ctx context.Context, chatID int64, text string, formatted bool, replyTo int) (int, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return 0, err
	}
	msg := tgbotapi.NewMessage(chatID, text)
	if formatted {
		msg.ParseMode = tgbotapi.ModeMarkdown
	}
	if replyTo != 0 {
		msg.ReplyToMessageID = replyTo
	}
	sent, err := c.api.Send(msg)
	c.observe("sendMessage", err)
	if err != nil {
		return 0, errors.Wrapf(err, "failed to send message to chat %d", chatID)
	}
	return sent.MessageID, nil
}

// SendPhoto sends a photo by file path or URL with an optional caption.
func (c *Client) SendPhoto(ctx context.Context, chatID int64, photo tgbotapi.RequestFileData, caption string) (int, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return 0, err
	}
	msg := tgbotapi.NewPhoto(chatID, photo)
	msg.Caption = caption
	sent, err := c.api.Send(msg)
	c.observe("sendPhoto", err)
	if err != nil {
		return 0, errors.Wrapf(err, "failed to send photo to chat %d", chatID)
	}
	return sent.MessageID, nil
}

// SendInlineKeyboard sends text with an inline keyboard attached.
func (c *Client) SendInlineKeyboard(ctx context.Context, chatID int64, text string, keyboard tgbotapi.InlineKeyboardMarkup) (int, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return 0, err
	}
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ReplyMarkup = keyboard
	sent, err := c.api.Send(msg)
	c.observe("sendMessage", err)
	if err != nil {
		return 0, errors.Wrapf(err, "failed to send keyboard to chat %d", chatID)
	}
	return sent.MessageID, nil
}

// EditInlineKeyboard replaces the keyboard on an existing message, as done
// when a callback pages through a menu.
func (c *Client) EditInlineKeyboard(ctx context.Context, chatID int64, messageID int, text string, keyboard tgbotapi.InlineKeyboardMarkup) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}
	edit := tgbotapi.NewEditMessageTextAndMarkup(chatID, messageID, text, keyboard)
	_, err := c.api.Send(edit)
	c.observe("editMessageText", err)
	if err != nil {
		return errors.Wrapf(err, "failed to edit message %d in chat %d", messageID, chatID)
	}
	return nil
}

// AnswerCallback acknowledges a callback query so the client stops its
// spinner. text, when non-empty, shows as a toast.
func (c *Client) AnswerCallback(ctx context.Context, callbackID, text string) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}
	_, err := c.api.Request(tgbotapi.NewCallback(callbackID, text))
	c.observe("answerCallbackQuery", err)
	if err != nil {
		return errors.Wrap(err, "failed to answer callback query")
	}
	return nil
}

// DeleteMessage removes a message. Deleting an already-gone message is an
// API error; callers treat it as non-fatal.
func (c *Client) DeleteMessage(ctx context.Context, chatID int64, messageID int) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}
	_, err := c.api.Request(tgbotapi.NewDeleteMessage(chatID, messageID))
	c.observe("deleteMessage", err)
	if err != nil {
		return errors.Wrapf(err, "failed to delete message %d in chat %d", messageID, chatID)
	}
	return nil
}

// AnswerCallbackAlert is AnswerCallback with a modal alert box instead of a
// toast, used for permission rejections.
func (c *Client) AnswerCallbackAlert(ctx context.Context, callbackID, text string) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}
	_, err := c.api.Request(tgbotapi.NewCallbackWithAlert(callbackID, text))
	c.observe("answerCallbackQuery", err)
	if err != nil {
		return errors.Wrap(err, "failed to answer callback query")
	}
	return nil
}

// IsChatAdmin reports whether userID is currently an administrator of the
// chat, bots included. Used to check the bot's own standing before it acts
// on member join and leave notices.
func (c *Client) IsChatAdmin(ctx context.Context, chatID, userID int64) (bool, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return false, err
	}
	members, err := c.api.GetChatAdministrators(tgbotapi.ChatAdministratorsConfig{
		ChatConfig: tgbotapi.ChatConfig{ChatID: chatID},
	})
	c.observe("getChatAdministrators", err)
	if err != nil {
		return false, errors.Wrapf(err, "failed to get administrators for chat %d", chatID)
	}
	for _, m := range members {
		if m.User != nil && m.User.ID == userID {
			return true, nil
		}
	}
	return false, nil
}

// GetAdminList fetches the chat's current administrators mapped onto the
// stored privilege bits. The creator gets every bit.
func (c *Client) GetAdminList(ctx context.Context, chatID int64) ([]*store.Admin, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	members, err := c.api.GetChatAdministrators(tgbotapi.ChatAdministratorsConfig{
		ChatConfig: tgbotapi.ChatConfig{ChatID: chatID},
	})
	c.observe("getChatAdministrators", err)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to get administrators for chat %d", chatID)
	}

	admins := make([]*store.Admin, 0, len(members))
	for _, m := range members {
		if m.User == nil || m.User.IsBot {
			continue
		}
		admins = append(admins, &store.Admin{
			ChatID:     chatID,
			UserID:     m.User.ID,
			Privileges: privilegeBits(m),
			Anonymous:  m.IsAnonymous,
		})
	}
	return admins, nil
}

func privilegeBits(m tgbotapi.ChatMember) int64 {
	if m.IsCreator() {
		return store.PrivilegeManageChat | store.PrivilegeDeleteMessages |
			store.PrivilegeRestrictMembers | store.PrivilegePromoteMembers |
			store.PrivilegeChangeInfo | store.PrivilegeInviteUsers | store.PrivilegePinMessages
	}
	var bits int64
	if m.CanManageChat {
		bits |= store.PrivilegeManageChat
	}
	if m.CanDeleteMessages {
		bits |= store.PrivilegeDeleteMessages
	}
	if m.CanRestrictMembers {
		bits |= store.PrivilegeRestrictMembers
	}
	if m.CanPromoteMembers {
		bits |= store.PrivilegePromoteMembers
	}
	if m.CanChangeInfo {
		bits |= store.PrivilegeChangeInfo
	}
	if m.CanInviteUsers {
		bits |= store.PrivilegeInviteUsers
	}
	if m.CanPinMessages {
		bits |= store.PrivilegePinMessages
	}
	return bits
}
