package bot

import (
	"context"
	"log/slog"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/hrygo/hookbot/internal/metrics"
	"github.com/hrygo/hookbot/internal/profile"
	"github.com/hrygo/hookbot/store"
)

// API is the outbound platform surface the dispatcher consumes, implemented
// by telegram.Client.
type API interface {
	SendText(ctx context.Context, chatID int64, text string, formatted bool, replyTo int) (int, error)
	DeleteMessage(ctx context.Context, chatID int64, messageID int) error
	AnswerCallback(ctx context.Context, callbackID, text string) error
	AnswerCallbackAlert(ctx context.Context, callbackID, text string) error
	GetAdminList(ctx context.Context, chatID int64) ([]*store.Admin, error)
	IsChatAdmin(ctx context.Context, chatID, userID int64) (bool, error)
}

// Spawner launches external command handlers, implemented by
// runner.Supervisor.
type Spawner interface {
	Spawn(file string, args []string) (int, error)
}

// User-facing replies for the rejection paths.
const (
	replyPermissionDenied = "Permission denied!"
	replyInvalidCommand   = "Invalid command!"
	replySpawnFailed      = "Failed to execute external command!"
)

// Member join and leave notices are cleaned up a minute after they appear;
// welcomes linger a little longer. All carry a generous expiry so a stalled
// scheduler does not fire stale deletions.
const (
	noticeDeleteDelaySec  = 60
	welcomeDeleteDelaySec = 120
	noticeExpireSec       = 600
)

// Request is the per-invocation context handed to command handlers.
type Request struct {
	Update  *Update
	Command *Command

	ChatID    int64
	ChatType  string
	SenderID  int64
	MessageID int

	FromCallback bool
	CallbackID   string
	CallbackData *CallbackData
}

// IsPrivate reports whether the invocation came from a one-on-one chat.
func (r *Request) IsPrivate() bool {
	return r.ChatType == "private"
}

// Dispatcher routes decoded updates to their handler track.
type Dispatcher struct {
	profile  *profile.Profile
	store    *store.Store
	api      API
	spawner  Spawner
	metrics  *metrics.Metrics
	builtins map[string]*Builtin

	botUsername string
}

// NewDispatcher wires the command layer. botUsername is the authenticated
// bot's username without the @, used to filter commands addressed to other
// bots.
func NewDispatcher(p *profile.Profile, s *store.Store, api API, spawner Spawner, botUsername string, m *metrics.Metrics) *Dispatcher {
	d := &Dispatcher{
		profile:     p,
		store:       s,
		api:         api,
		spawner:     spawner,
		metrics:     m,
		builtins:    make(map[string]*Builtin),
		botUsername: botUsername,
	}
	registerBuiltins(d)
	return d
}

// Register adds a builtin to the dispatch map. All registration happens at
// startup; the map is read-only afterwards.
func (d *Dispatcher) Register(b *Builtin) {
	d.builtins[b.Name] = b
}

// Dispatch decodes one raw update and routes it. It is the job body
// submitted to the worker pool; all errors are contained here.
func (d *Dispatcher) Dispatch(ctx context.Context, raw []byte) {
	u, err := DecodeUpdate(raw)
	if err != nil {
		if d.metrics != nil {
			d.metrics.UpdatesDropped.Inc()
		}
		slog.Debug("bot: update dropped", "error", err)
		return
	}
	u.TraceID = uuid.NewString()

	switch {
	case u.Message != nil:
		d.routeMessage(ctx, u)
	case u.Callback != nil:
		d.routeCallback(ctx, u)
	}
}

func (d *Dispatcher) routeMessage(ctx context.Context, u *Update) {
	m := u.Message
	log := slog.With("trace", u.TraceID, "chat", m.ChatID, "sender", m.SenderID)

	switch m.Kind {
	case KindCommand:
		cmd, ok := ParseCommand(m.Text, d.botUsername)
		if !ok {
			return
		}
		req := &Request{
			Update: u, Command: cmd,
			ChatID: m.ChatID, ChatType: m.ChatType,
			SenderID: m.SenderID, MessageID: m.MessageID,
		}
		d.handleCommand(ctx, req)

	case KindNewMembers:
		for _, id := range m.NewMemberIDs {
			if id == d.profile.BotID {
				d.handleSelfJoin(ctx, u)
				return
			}
		}
		d.handleMemberJoin(ctx, u)

	case KindLeftMember:
		if m.LeftMemberID == d.profile.BotID {
			return
		}
		d.handleMemberLeft(ctx, u)

	default:
		log.Debug("bot: message ignored", "kind", int(m.Kind))
	}
}

func (d *Dispatcher) routeCallback(ctx context.Context, u *Update) {
	cb := u.Callback
	log := slog.With("trace", u.TraceID, "chat", cb.ChatID, "sender", cb.SenderID)

	data, err := ParseCallbackData(cb.Data)
	if err != nil {
		log.Warn("bot: bad callback data", "error", err)
		if err := d.api.AnswerCallback(ctx, cb.ID, ""); err != nil {
			log.Warn("bot: failed to answer callback", "error", err)
		}
		return
	}

	req := &Request{
		Update:  u,
		Command: &Command{Name: data.Context, Explicit: true},
		ChatID:  cb.ChatID, ChatType: cb.ChatType,
		SenderID: cb.SenderID, MessageID: cb.MessageID,
		FromCallback: true,
		CallbackID:   cb.ID,
		CallbackData: data,
	}
	d.handleCommand(ctx, req)
}

// handleCommand implements the three-track selection: stored message macro,
// builtin, external. Macro lookup wins over builtins and is never gated.
func (d *Dispatcher) handleCommand(ctx context.Context, req *Request) {
	log := slog.With("trace", req.Update.TraceID, "chat", req.ChatID, "command", req.Command.Name)

	if len(req.Command.Name) > MaxCommandName {
		d.rejectUnknown(ctx, req)
		return
	}

	if !req.FromCallback {
		if m, err := d.store.GetMessageCommand(ctx, req.ChatID, req.Command.Name); err == nil {
			if _, err := d.api.SendText(ctx, req.ChatID, m.Value, true, req.MessageID); err != nil {
				log.Warn("bot: failed to send macro reply", "error", err)
			}
			return
		}
	}

	if b, ok := d.builtins[req.Command.Name]; ok {
		allowed, err := d.authorize(ctx, req, b.Flags)
		if err != nil {
			log.Warn("bot: authorization check failed", "error", err)
			return
		}
		if !allowed {
			d.rejectDenied(ctx, req)
			return
		}
		if err := b.Handler(ctx, d, req); err != nil {
			log.Warn("bot: builtin failed", "error", err)
		}
		return
	}

	handled, err := d.tryExtern(ctx, req)
	if err != nil {
		log.Warn("bot: extern dispatch failed", "error", err)
		return
	}
	if handled {
		return
	}

	d.rejectUnknown(ctx, req)
}

// authorize evaluates a builtin's flags against the caller and chat state.
func (d *Dispatcher) authorize(ctx context.Context, req *Request, flags CommandFlag) (bool, error) {
	if req.FromCallback && !flags.Has(FlagCallback) {
		return false, nil
	}
	if flags.Has(FlagDisallowPrivateChat) && req.IsPrivate() {
		return false, nil
	}

	if flags.Has(FlagNSFW) || flags.Has(FlagExtra) {
		chatFlags, err := d.store.GetChatFlags(ctx, req.ChatID)
		if err != nil {
			return false, err
		}
		if flags.Has(FlagNSFW) && !chatFlags.Has(store.ChatFlagAllowNSFW) {
			return false, nil
		}
		if flags.Has(FlagExtra) && !chatFlags.Has(store.ChatFlagAllowExtra) {
			return false, nil
		}
	}

	if flags.Has(FlagAdmin) {
		return d.isAdmin(ctx, req.ChatID, req.SenderID)
	}
	return true, nil
}

// isAdmin grants the configured owner implicit admin everywhere; everyone
// else needs a non-zero privilege mask in the chat's admin set.
func (d *Dispatcher) isAdmin(ctx context.Context, chatID, userID int64) (bool, error) {
	if userID == d.profile.OwnerID {
		return true, nil
	}
	priv, err := d.store.GetAdminPrivileges(ctx, chatID, userID)
	if err != nil {
		return false, err
	}
	return priv != 0, nil
}

// tryExtern runs the external track: chat must allow externals, the
// command must be registered and not disabled for this chat, and the
// caller must satisfy the command's own flags. Returns handled=false when
// the command has no external registration.
func (d *Dispatcher) tryExtern(ctx context.Context, req *Request) (bool, error) {
	chatFlags, err := d.store.GetChatFlags(ctx, req.ChatID)
	if err != nil {
		return false, err
	}
	if !chatFlags.Has(store.ChatFlagAllowExtern) {
		return false, nil
	}

	cmd, err := d.store.GetExternCommand(ctx, req.Command.Name)
	if err != nil {
		if err == store.ErrNotFound {
			return false, nil
		}
		return false, err
	}
	disabled, err := d.store.IsExternDisabled(ctx, req.ChatID, cmd.Name)
	if err != nil {
		return false, err
	}
	if disabled {
		return false, nil
	}

	allowed, err := d.authorize(ctx, req, CommandFlag(cmd.Flags))
	if err != nil {
		return false, err
	}
	if !allowed {
		d.rejectDenied(ctx, req)
		return true, nil
	}

	args := d.externArgs(req, cmd)
	if _, err := d.spawner.Spawn(cmd.FilePath, args); err != nil {
		slog.Warn("bot: spawn failed", "trace", req.Update.TraceID, "command", cmd.Name, "error", err)
		if _, serr := d.api.SendText(ctx, req.ChatID, replySpawnFailed, false, req.MessageID); serr != nil {
			slog.Warn("bot: failed to send spawn failure reply", "error", serr)
		}
		return true, nil
	}
	return true, nil
}

// externArgs composes the handler argv tail: invocation kind, callback id
// when applicable, then chat, user, message identifiers, the text or
// callback payload, and optionally the raw update JSON.
func (d *Dispatcher) externArgs(req *Request, cmd *store.ExternCommand) []string {
	var args []string
	payload := ""
	if req.FromCallback {
		args = append(args, "callback", req.CallbackID)
		payload = req.Update.Callback.Data
	} else {
		args = append(args, "cmd")
		payload = req.Update.Message.Text
	}
	args = append(args,
		strconv.FormatInt(req.ChatID, 10),
		strconv.FormatInt(req.SenderID, 10),
		strconv.Itoa(req.MessageID),
		payload,
	)
	if !req.FromCallback && cmd.ArgProfile&store.ArgProfileRawJSON != 0 {
		args = append(args, string(req.Update.Raw))
	}
	return args
}

// rejectDenied tells the caller they lack permission. In callback context
// the reply is an alert on the query instead of a chat message.
func (d *Dispatcher) rejectDenied(ctx context.Context, req *Request) {
	var err error
	if req.FromCallback {
		err = d.api.AnswerCallbackAlert(ctx, req.CallbackID, replyPermissionDenied)
	} else {
		_, err = d.api.SendText(ctx, req.ChatID, replyPermissionDenied, false, req.MessageID)
	}
	if err != nil {
		slog.Warn("bot: failed to send denial", "trace", req.Update.TraceID, "error", err)
	}
}

// rejectUnknown replies only when the sender clearly addressed this bot:
// a private chat, an explicit @mention, or a callback.
func (d *Dispatcher) rejectUnknown(ctx context.Context, req *Request) {
	if req.FromCallback {
		if err := d.api.AnswerCallback(ctx, req.CallbackID, replyInvalidCommand); err != nil {
			slog.Warn("bot: failed to answer callback", "trace", req.Update.TraceID, "error", err)
		}
		return
	}
	if !req.IsPrivate() && !req.Command.Explicit {
		return
	}
	if _, err := d.api.SendText(ctx, req.ChatID, replyInvalidCommand, false, req.MessageID); err != nil {
		slog.Warn("bot: failed to send invalid-command reply", "trace", req.Update.TraceID, "error", err)
	}
}

// handleSelfJoin runs when the bot itself is added to a chat: capture the
// admin set and start with every external command disabled.
func (d *Dispatcher) handleSelfJoin(ctx context.Context, u *Update) {
	m := u.Message
	log := slog.With("trace", u.TraceID, "chat", m.ChatID)
	log.Info("bot: joined chat")

	if _, err := d.reloadAdmins(ctx, m.ChatID); err != nil {
		log.Warn("bot: failed to load admin set on join", "error", err)
	}
	if err := d.store.SeedExternDisabled(ctx, m.ChatID); err != nil {
		log.Warn("bot: failed to seed disabled externals", "error", err)
	}
}

// reloadAdmins replaces the chat's admin set with the platform's current
// administrator list, atomically.
func (d *Dispatcher) reloadAdmins(ctx context.Context, chatID int64) (int, error) {
	admins, err := d.api.GetAdminList(ctx, chatID)
	if err != nil {
		return 0, err
	}
	if err := d.store.ReplaceAdmins(ctx, chatID, admins); err != nil {
		return 0, err
	}
	return len(admins), nil
}

// handleMemberJoin cleans up the join notice and greets the newcomer, both
// deferred through the scheduler. Requires the bot to be a chat admin.
func (d *Dispatcher) handleMemberJoin(ctx context.Context, u *Update) {
	m := u.Message
	log := slog.With("trace", u.TraceID, "chat", m.ChatID)

	admin, err := d.api.IsChatAdmin(ctx, m.ChatID, d.profile.BotID)
	if err != nil {
		log.Warn("bot: admin check failed on member join", "error", err)
		return
	}
	if !admin {
		return
	}

	now := time.Now().Unix()
	d.scheduleDelete(ctx, u, m.ChatID, m.MessageID, now+noticeDeleteDelaySec)

	welcomeID, err := d.api.SendText(ctx, m.ChatID, "Welcome!", false, 0)
	if err != nil {
		log.Warn("bot: failed to send welcome", "error", err)
		return
	}
	d.scheduleDelete(ctx, u, m.ChatID, welcomeID, now+welcomeDeleteDelaySec)
}

// handleMemberLeft cleans up the leave notice when the bot can delete it.
func (d *Dispatcher) handleMemberLeft(ctx context.Context, u *Update) {
	m := u.Message
	log := slog.With("trace", u.TraceID, "chat", m.ChatID)

	admin, err := d.api.IsChatAdmin(ctx, m.ChatID, d.profile.BotID)
	if err != nil {
		log.Warn("bot: admin check failed on member left", "error", err)
		return
	}
	if !admin {
		return
	}
	d.scheduleDelete(ctx, u, m.ChatID, m.MessageID, time.Now().Unix()+noticeDeleteDelaySec)
}

func (d *Dispatcher) scheduleDelete(ctx context.Context, u *Update, chatID int64, messageID int, runAt int64) {
	_, err := d.store.CreateScheduledAction(ctx, &store.ScheduledAction{
		Type:      store.ActionDelete,
		ChatID:    chatID,
		MessageID: int64(messageID),
		NextRun:   runAt,
		ExpireSec: noticeExpireSec,
	})
	if err != nil {
		slog.Warn("bot: failed to schedule delete", "trace", u.TraceID, "chat", chatID, "error", err)
	}
}
