package store_test

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hrygo/hookbot/internal/profile"
	"github.com/hrygo/hookbot/store"
	"github.com/hrygo/hookbot/store/db/sqlite"
)

func newTestStore(t *testing.T) *store.Store {
	t.Helper()
	p := &profile.Profile{
		Mode:   "dev",
		Driver: "sqlite",
		DSN:    filepath.Join(t.TempDir(), "hookbot_test.db"),
	}
	driver, err := sqlite.NewDB(p)
	require.NoError(t, err)
	s := store.New(driver, p)
	require.NoError(t, s.Migrate(context.Background()))
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestMigrateSkipsInitializedSchema(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.SetChatFlags(ctx, 42, store.ChatFlagAllowExtern))

	// A second migrate sees the schema and leaves existing rows alone.
	require.NoError(t, s.Migrate(ctx))

	flags, err := s.GetChatFlags(ctx, 42)
	require.NoError(t, err)
	assert.Equal(t, store.ChatFlagAllowExtern, flags)
}

func TestChatFlagsMissingRowIsZero(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	flags, err := s.GetChatFlags(ctx, 42)
	require.NoError(t, err)
	assert.Equal(t, store.ChatFlag(0), flags)
}

func TestChatFlagsRoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	want := store.ChatFlagAllowNSFW | store.ChatFlagAllowExtern
	require.NoError(t, s.SetChatFlags(ctx, 42, want))

	flags, err := s.GetChatFlags(ctx, 42)
	require.NoError(t, err)
	assert.Equal(t, want, flags)
	assert.True(t, flags.Has(store.ChatFlagAllowNSFW))
	assert.False(t, flags.Has(store.ChatFlagAllowExtra))

	// Second write overwrites, not accumulates.
	require.NoError(t, s.SetChatFlags(ctx, 42, store.ChatFlagAllowExtra))
	flags, err = s.GetChatFlags(ctx, 42)
	require.NoError(t, err)
	assert.Equal(t, store.ChatFlagAllowExtra, flags)
}

func TestReplaceAdmins(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	first := []*store.Admin{
		{UserID: 1, Privileges: store.PrivilegeManageChat},
		{UserID: 2, Privileges: store.PrivilegeDeleteMessages},
	}
	require.NoError(t, s.ReplaceAdmins(ctx, 100, first))

	admins, err := s.ListAdmins(ctx, 100)
	require.NoError(t, err)
	require.Len(t, admins, 2)

	// Reload replaces the set wholesale.
	second := []*store.Admin{{UserID: 3, Privileges: store.PrivilegeManageChat}}
	require.NoError(t, s.ReplaceAdmins(ctx, 100, second))

	admins, err = s.ListAdmins(ctx, 100)
	require.NoError(t, err)
	require.Len(t, admins, 1)
	assert.Equal(t, int64(3), admins[0].UserID)

	// Privileges lookup falls to zero for evicted admins.
	priv, err := s.GetAdminPrivileges(ctx, 100, 1)
	require.NoError(t, err)
	assert.Zero(t, priv)

	priv, err = s.GetAdminPrivileges(ctx, 100, 3)
	require.NoError(t, err)
	assert.Equal(t, store.PrivilegeManageChat, priv)
}

func TestReplaceAdminsIdempotent(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	set := []*store.Admin{{UserID: 7, Privileges: store.PrivilegeManageChat}}
	require.NoError(t, s.ReplaceAdmins(ctx, 5, set))
	require.NoError(t, s.ReplaceAdmins(ctx, 5, set))

	admins, err := s.ListAdmins(ctx, 5)
	require.NoError(t, err)
	require.Len(t, admins, 1)
}

func TestMessageCommandUpsert(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.SetMessageCommand(ctx, 42, "/help", "see website", 9))

	m, err := s.GetMessageCommand(ctx, 42, "help")
	require.NoError(t, err)
	assert.Equal(t, "see website", m.Value)
	assert.Equal(t, int64(9), m.CreatedBy)

	// set(k,v); set(k,v) == set(k,v)
	require.NoError(t, s.SetMessageCommand(ctx, 42, "help", "see website", 10))
	m, err = s.GetMessageCommand(ctx, 42, "help")
	require.NoError(t, err)
	assert.Equal(t, "see website", m.Value)
	assert.Equal(t, int64(9), m.CreatedBy)
	assert.Equal(t, int64(10), m.UpdatedBy)

	// Empty value unsets.
	require.NoError(t, s.SetMessageCommand(ctx, 42, "help", "", 10))
	_, err = s.GetMessageCommand(ctx, 42, "help")
	assert.ErrorIs(t, err, store.ErrNotFound)

	// Unsetting a non-existent entry reports not found.
	err = s.SetMessageCommand(ctx, 42, "help", "", 10)
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestMessageCommandValidation(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	longName := make([]byte, store.MaxMessageCommandName+1)
	for i := range longName {
		longName[i] = 'a'
	}
	err := s.SetMessageCommand(ctx, 1, string(longName), "v", 1)
	assert.ErrorIs(t, err, store.ErrNameTooLong)

	err = s.SetMessageCommand(ctx, 1, "bad name", "v", 1)
	assert.ErrorIs(t, err, store.ErrNameInvalid)

	err = s.SetMessageCommand(ctx, 1, "", "v", 1)
	assert.ErrorIs(t, err, store.ErrNameInvalid)

	longValue := make([]byte, store.MaxMessageCommandValue+1)
	err = s.SetMessageCommand(ctx, 1, "ok", string(longValue), 1)
	assert.ErrorIs(t, err, store.ErrValueTooLong)
}

func TestValidateMessageCommandName(t *testing.T) {
	name, err := store.ValidateMessageCommandName("//greet_1")
	require.NoError(t, err)
	assert.Equal(t, "greet_1", name)

	_, err = store.ValidateMessageCommandName("///")
	assert.ErrorIs(t, err, store.ErrNameInvalid)
}

func TestScheduledActionLifecycle(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	now := time.Now().Unix()

	due, err := s.CreateScheduledAction(ctx, &store.ScheduledAction{
		Type: store.ActionDelete, ChatID: 100, MessageID: 5, NextRun: now - 1, ExpireSec: 10,
	})
	require.NoError(t, err)

	_, err = s.CreateScheduledAction(ctx, &store.ScheduledAction{
		Type: store.ActionSend, ChatID: 100, Value: "later", NextRun: now + 3600, ExpireSec: 10,
	})
	require.NoError(t, err)

	expired, err := s.CreateScheduledAction(ctx, &store.ScheduledAction{
		Type: store.ActionDelete, ChatID: 100, MessageID: 6, NextRun: now - 100, ExpireSec: 10,
	})
	require.NoError(t, err)

	// Only the due, unexpired row is picked.
	picked, err := s.PickDueActions(ctx, now, 32)
	require.NoError(t, err)
	require.Len(t, picked, 1)
	assert.Equal(t, due.ID, picked[0].ID)

	require.NoError(t, s.DeleteScheduledActions(ctx, []int64{picked[0].ID}))

	picked, err = s.PickDueActions(ctx, now, 32)
	require.NoError(t, err)
	assert.Empty(t, picked)

	// The expired row is purged, never dispatched.
	n, err := s.PurgeExpiredActions(ctx, now)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	_ = expired
}

func TestCreateScheduledActionRejectsUnknownType(t *testing.T) {
	s := newTestStore(t)
	_, err := s.CreateScheduledAction(context.Background(), &store.ScheduledAction{Type: "nope"})
	require.Error(t, err)
}

func TestExternCommands(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, err := s.CreateExternCommand(ctx, &store.ExternCommand{
		Name: "xyz", FilePath: "xyz.sh", ArgProfile: store.ArgProfileRawJSON,
	})
	require.NoError(t, err)
	_, err = s.CreateExternCommand(ctx, &store.ExternCommand{Name: "abc", FilePath: "abc.sh"})
	require.NoError(t, err)

	c, err := s.GetExternCommand(ctx, "xyz")
	require.NoError(t, err)
	assert.Equal(t, "xyz.sh", c.FilePath)

	_, err = s.GetExternCommand(ctx, "missing")
	assert.ErrorIs(t, err, store.ErrNotFound)

	list, err := s.ListExternCommands(ctx)
	require.NoError(t, err)
	assert.Len(t, list, 2)

	// Joining a chat disables every extern until an admin enables them.
	require.NoError(t, s.SeedExternDisabled(ctx, 100))
	disabled, err := s.IsExternDisabled(ctx, 100, "xyz")
	require.NoError(t, err)
	assert.True(t, disabled)

	require.NoError(t, s.SetExternDisabled(ctx, 100, "xyz", false))
	disabled, err = s.IsExternDisabled(ctx, 100, "xyz")
	require.NoError(t, err)
	assert.False(t, disabled)

	// Seeding again must not clobber the admin's choice.
	require.NoError(t, s.SeedExternDisabled(ctx, 100))
	disabled, err = s.IsExternDisabled(ctx, 100, "xyz")
	require.NoError(t, err)
	assert.False(t, disabled)
}
