package telegram

import (
	"context"
	"testing"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hrygo/hookbot/store"
)

type fakeAPI struct {
	sent      []tgbotapi.Chattable
	requested []tgbotapi.Chattable
	raw       []string
	admins    []tgbotapi.ChatMember
	sendErr   error
}

func (f *fakeAPI) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	f.sent = append(f.sent, c)
	if f.sendErr != nil {
		return tgbotapi.Message{}, f.sendErr
	}
	return tgbotapi.Message{MessageID: 77}, nil
}

func (f *fakeAPI) Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error) {
	f.requested = append(f.requested, c)
	return &tgbotapi.APIResponse{Ok: true}, nil
}

func (f *fakeAPI) MakeRequest(endpoint string, params tgbotapi.Params) (*tgbotapi.APIResponse, error) {
	f.raw = append(f.raw, endpoint)
	return &tgbotapi.APIResponse{Ok: true}, nil
}

func (f *fakeAPI) GetChatAdministrators(tgbotapi.ChatAdministratorsConfig) ([]tgbotapi.ChatMember, error) {
	return f.admins, nil
}

func (f *fakeAPI) GetWebhookInfo() (tgbotapi.WebhookInfo, error) {
	return tgbotapi.WebhookInfo{URL: "https://bot.example/hook"}, nil
}

func TestSendTextFormatting(t *testing.T) {
	api := &fakeAPI{}
	c := newClientWithAPI(api, nil)

	id, err := c.SendText(context.Background(), 42, "hi", true, 5)
	require.NoError(t, err)
	assert.Equal(t, 77, id)

	require.Len(t, api.sent, 1)
	msg, ok := api.sent[0].(tgbotapi.MessageConfig)
	require.True(t, ok)
	assert.Equal(t, tgbotapi.ModeMarkdown, msg.ParseMode)
	assert.Equal(t, 5, msg.ReplyToMessageID)

	_, err = c.SendText(context.Background(), 42, "plain", false, 0)
	require.NoError(t, err)
	msg = api.sent[1].(tgbotapi.MessageConfig)
	assert.Empty(t, msg.ParseMode)
	assert.Zero(t, msg.ReplyToMessageID)
}

func TestDeleteMessage(t *testing.T) {
	api := &fakeAPI{}
	c := newClientWithAPI(api, nil)

	require.NoError(t, c.DeleteMessage(context.Background(), 42, 9))
	require.Len(t, api.requested, 1)
	del, ok := api.requested[0].(tgbotapi.DeleteMessageConfig)
	require.True(t, ok)
	assert.Equal(t, int64(42), del.ChatID)
	assert.Equal(t, 9, del.MessageID)
}

func TestGetAdminListMapsPrivileges(t *testing.T) {
	api := &fakeAPI{admins: []tgbotapi.ChatMember{
		{User: &tgbotapi.User{ID: 1}, Status: "creator"},
		{User: &tgbotapi.User{ID: 2}, Status: "administrator", CanDeleteMessages: true, CanPinMessages: true},
		{User: &tgbotapi.User{ID: 3, IsBot: true}, Status: "administrator"},
	}}
	c := newClientWithAPI(api, nil)

	admins, err := c.GetAdminList(context.Background(), 42)
	require.NoError(t, err)
	require.Len(t, admins, 2) // bots are skipped

	assert.Equal(t, int64(1), admins[0].UserID)
	assert.NotZero(t, admins[0].Privileges&store.PrivilegePromoteMembers)

	assert.Equal(t, int64(2), admins[1].UserID)
	assert.Equal(t, store.PrivilegeDeleteMessages|store.PrivilegePinMessages, admins[1].Privileges)
}

func TestSetWebhookUsesRawRequest(t *testing.T) {
	api := &fakeAPI{}
	c := newClientWithAPI(api, nil)

	err := c.SetWebhook(context.Background(), "https://bot.example/hook", "s3cret", 40, true)
	require.NoError(t, err)
	require.Equal(t, []string{"setWebhook"}, api.raw)
}
