package bot

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"
	"unicode"

	"github.com/pkg/errors"

	"github.com/hrygo/hookbot/store"
)

// remindExpireSec keeps a reminder live for an hour past its due time
// before the scheduler discards it.
const remindExpireSec = 3600

func registerBuiltins(d *Dispatcher) {
	d.Register(&Builtin{
		Name:        "help",
		Description: "list available commands",
		Handler:     builtinHelp,
	})
	d.Register(&Builtin{
		Name:        "start",
		Description: "greeting",
		Flags:       FlagHidden,
		Handler:     builtinStart,
	})
	d.Register(&Builtin{
		Name:        "admin_reload",
		Description: "reload the chat admin list",
		Flags:       FlagAdmin | FlagDisallowPrivateChat,
		Handler:     builtinAdminReload,
	})
	d.Register(&Builtin{
		Name:        "flags",
		Description: "show or set chat permission flags",
		Flags:       FlagAdmin | FlagDisallowPrivateChat,
		Handler:     builtinFlags,
	})
	d.Register(&Builtin{
		Name:        "cmd",
		Description: "set or unset a chat message command",
		Flags:       FlagAdmin,
		Handler:     builtinCmd,
	})
	d.Register(&Builtin{
		Name:        "extern",
		Description: "list and toggle external commands",
		Flags:       FlagAdmin,
		Handler:     builtinExtern,
	})
	d.Register(&Builtin{
		Name:        "remind",
		Description: "schedule a reminder: /remind <seconds> <text>",
		Handler:     builtinRemind,
	})
}

// commandRemainder returns the message text after skipping the first n
// whitespace-delimited tokens, with internal spacing preserved.
func commandRemainder(text string, skip int) string {
	rest := text
	for i := 0; i < skip; i++ {
		rest = strings.TrimLeftFunc(rest, unicode.IsSpace)
		cut := strings.IndexFunc(rest, unicode.IsSpace)
		if cut < 0 {
			return ""
		}
		rest = rest[cut:]
	}
	return strings.TrimSpace(rest)
}

// builtinHelp lists the builtins the caller may actually use in this chat:
// hidden entries never show, admin entries only for admins, NSFW and extra
// entries only where the chat allows them.
func builtinHelp(ctx context.Context, d *Dispatcher, req *Request) error {
	chatFlags, err := d.store.GetChatFlags(ctx, req.ChatID)
	if err != nil {
		return err
	}
	callerAdmin, err := d.isAdmin(ctx, req.ChatID, req.SenderID)
	if err != nil {
		return err
	}

	names := make([]string, 0, len(d.builtins))
	for name := range d.builtins {
		names = append(names, name)
	}
	sort.Strings(names)

	var sb strings.Builder
	sb.WriteString("*Commands*\n")
	for _, name := range names {
		b := d.builtins[name]
		if b.Flags.Has(FlagHidden) {
			continue
		}
		if b.Flags.Has(FlagAdmin) && !callerAdmin {
			continue
		}
		if b.Flags.Has(FlagNSFW) && !chatFlags.Has(store.ChatFlagAllowNSFW) {
			continue
		}
		if b.Flags.Has(FlagExtra) && !chatFlags.Has(store.ChatFlagAllowExtra) {
			continue
		}
		fmt.Fprintf(&sb, "/%s - %s\n", b.Name, b.Description)
	}

	_, err = d.api.SendText(ctx, req.ChatID, sb.String(), true, req.MessageID)
	return err
}

func builtinStart(ctx context.Context, d *Dispatcher, req *Request) error {
	_, err := d.api.SendText(ctx, req.ChatID, "Hi! Use /help to see what I can do.", false, 0)
	return err
}

func builtinAdminReload(ctx context.Context, d *Dispatcher, req *Request) error {
	n, err := d.reloadAdmins(ctx, req.ChatID)
	if err != nil {
		if _, serr := d.api.SendText(ctx, req.ChatID, "Failed to reload admins!", false, req.MessageID); serr != nil {
			return serr
		}
		return err
	}
	_, err = d.api.SendText(ctx, req.ChatID, fmt.Sprintf("done: %d admins loaded", n), false, req.MessageID)
	return err
}

var flagNames = map[string]store.ChatFlag{
	"nsfw":   store.ChatFlagAllowNSFW,
	"extern": store.ChatFlagAllowExtern,
	"extra":  store.ChatFlagAllowExtra,
}

// builtinFlags shows the chat's flag bits, or sets one:
// /flags nsfw on, /flags extern off.
func builtinFlags(ctx context.Context, d *Dispatcher, req *Request) error {
	flags, err := d.store.GetChatFlags(ctx, req.ChatID)
	if err != nil {
		return err
	}

	args := req.Command.Args
	if len(args) == 0 {
		var sb strings.Builder
		sb.WriteString("*Chat flags*\n")
		for _, name := range []string{"nsfw", "extern", "extra"} {
			state := "off"
			if flags.Has(flagNames[name]) {
				state = "on"
			}
			fmt.Fprintf(&sb, "%s: %s\n", name, state)
		}
		_, err := d.api.SendText(ctx, req.ChatID, sb.String(), true, req.MessageID)
		return err
	}

	if len(args) != 2 {
		_, err := d.api.SendText(ctx, req.ChatID, "Usage: /flags <nsfw|extern|extra> <on|off>", false, req.MessageID)
		return err
	}
	bit, ok := flagNames[strings.ToLower(args[0])]
	if !ok {
		_, err := d.api.SendText(ctx, req.ChatID, "Unknown flag: "+args[0], false, req.MessageID)
		return err
	}
	switch strings.ToLower(args[1]) {
	case "on":
		flags |= bit
	case "off":
		flags &^= bit
	default:
		_, err := d.api.SendText(ctx, req.ChatID, "Usage: /flags <nsfw|extern|extra> <on|off>", false, req.MessageID)
		return err
	}
	if err := d.store.SetChatFlags(ctx, req.ChatID, flags); err != nil {
		return err
	}
	_, err = d.api.SendText(ctx, req.ChatID, "done", false, req.MessageID)
	return err
}

// builtinCmd sets or unsets a per-chat message command. The value is the
// raw text after the name so spacing survives; an empty value unsets.
func builtinCmd(ctx context.Context, d *Dispatcher, req *Request) error {
	if len(req.Command.Args) == 0 {
		_, err := d.api.SendText(ctx, req.ChatID, "Usage: /cmd <name> [value]", false, req.MessageID)
		return err
	}
	name := req.Command.Args[0]
	value := commandRemainder(req.Update.Message.Text, 2)

	err := d.store.SetMessageCommand(ctx, req.ChatID, name, value, req.SenderID)
	switch {
	case errors.Is(err, store.ErrNotFound):
		_, err = d.api.SendText(ctx, req.ChatID, "no such command message", false, req.MessageID)
		return err
	case errors.Is(err, store.ErrNameTooLong):
		_, err = d.api.SendText(ctx, req.ChatID, "command name too long", false, req.MessageID)
		return err
	case errors.Is(err, store.ErrNameInvalid):
		_, err = d.api.SendText(ctx, req.ChatID, "invalid command name", false, req.MessageID)
		return err
	case errors.Is(err, store.ErrValueTooLong):
		_, err = d.api.SendText(ctx, req.ChatID, "command message too long", false, req.MessageID)
		return err
	case err != nil:
		return err
	}

	reply := "done"
	if value == "" {
		reply = "removed"
	}
	_, err = d.api.SendText(ctx, req.ChatID, reply, false, req.MessageID)
	return err
}

// builtinExtern lists registered external commands with their per-chat
// state, or toggles one: /extern enable <name>, /extern disable <name>.
func builtinExtern(ctx context.Context, d *Dispatcher, req *Request) error {
	args := req.Command.Args
	if len(args) == 0 {
		commands, err := d.store.ListExternCommands(ctx)
		if err != nil {
			return err
		}
		if len(commands) == 0 {
			_, err := d.api.SendText(ctx, req.ChatID, "No external commands registered.", false, req.MessageID)
			return err
		}
		var sb strings.Builder
		sb.WriteString("*External commands*\n")
		for _, c := range commands {
			disabled, err := d.store.IsExternDisabled(ctx, req.ChatID, c.Name)
			if err != nil {
				return err
			}
			state := "enabled"
			if disabled {
				state = "disabled"
			}
			fmt.Fprintf(&sb, "/%s (%s) - %s\n", c.Name, state, c.Description)
		}
		_, err = d.api.SendText(ctx, req.ChatID, sb.String(), true, req.MessageID)
		return err
	}

	if len(args) != 2 {
		_, err := d.api.SendText(ctx, req.ChatID, "Usage: /extern <enable|disable> <name>", false, req.MessageID)
		return err
	}
	name := strings.TrimPrefix(args[1], "/")
	if _, err := d.store.GetExternCommand(ctx, name); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			_, err := d.api.SendText(ctx, req.ChatID, "Unknown external command: "+name, false, req.MessageID)
			return err
		}
		return err
	}

	switch strings.ToLower(args[0]) {
	case "enable":
		if err := d.store.SetExternDisabled(ctx, req.ChatID, name, false); err != nil {
			return err
		}
	case "disable":
		if err := d.store.SetExternDisabled(ctx, req.ChatID, name, true); err != nil {
			return err
		}
	default:
		_, err := d.api.SendText(ctx, req.ChatID, "Usage: /extern <enable|disable> <name>", false, req.MessageID)
		return err
	}
	_, err := d.api.SendText(ctx, req.ChatID, "done", false, req.MessageID)
	return err
}

// builtinRemind schedules a deferred send: /remind <seconds> <text>.
func builtinRemind(ctx context.Context, d *Dispatcher, req *Request) error {
	usage := "Usage: /remind <seconds> <text>"
	if len(req.Command.Args) < 2 {
		_, err := d.api.SendText(ctx, req.ChatID, usage, false, req.MessageID)
		return err
	}
	secs, err := strconv.ParseInt(req.Command.Args[0], 10, 64)
	if err != nil || secs <= 0 {
		_, err := d.api.SendText(ctx, req.ChatID, usage, false, req.MessageID)
		return err
	}
	text := commandRemainder(req.Update.Message.Text, 2)
	if text == "" {
		_, err := d.api.SendText(ctx, req.ChatID, usage, false, req.MessageID)
		return err
	}

	_, err = d.store.CreateScheduledAction(ctx, &store.ScheduledAction{
		Type:      store.ActionSend,
		ChatID:    req.ChatID,
		MessageID: int64(req.MessageID),
		Value:     text,
		NextRun:   time.Now().Unix() + secs,
		ExpireSec: remindExpireSec,
	})
	if err != nil {
		return err
	}
	_, err = d.api.SendText(ctx, req.ChatID, fmt.Sprintf("Reminder set for %ds from now.", secs), false, req.MessageID)
	return err
}
