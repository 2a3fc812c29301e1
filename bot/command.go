package bot

import (
	"context"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// MaxCommandArgs caps the tokenized argument list; extra tokens are
// silently truncated.
const MaxCommandArgs = 16

// MaxCommandName caps an invokable command name.
const MaxCommandName = 32

// CommandFlag gates who may invoke a command and from where.
type CommandFlag uint16

const (
	FlagAdmin CommandFlag = 1 << iota
	FlagNSFW
	FlagExtra
	FlagCallback
	FlagHidden
	FlagDisallowPrivateChat
	FlagExtern
)

// Has reports whether all bits of other are set.
func (f CommandFlag) Has(other CommandFlag) bool {
	return f&other == other
}

// Command is a parsed command invocation. Explicit records whether the
// sender addressed the bot by name, which decides if an unknown command
// gets an error reply in group chats.
type Command struct {
	Name     string
	Explicit bool
	Args     []string
}

// ParseCommand tokenizes a message text into a command. The second return
// is false when the text is not a command for this bot, including commands
// addressed to a different bot via the @suffix.
func ParseCommand(text, botUsername string) (*Command, bool) {
	fields := strings.Fields(text)
	if len(fields) == 0 || !strings.HasPrefix(fields[0], "/") {
		return nil, false
	}

	name := strings.TrimPrefix(fields[0], "/")
	explicit := false
	if at := strings.IndexByte(name, '@'); at >= 0 {
		target := name[at+1:]
		name = name[:at]
		if !strings.EqualFold(target, botUsername) {
			return nil, false
		}
		explicit = true
	}
	if name == "" {
		return nil, false
	}

	args := fields[1:]
	if len(args) > MaxCommandArgs {
		args = args[:MaxCommandArgs]
	}
	return &Command{Name: name, Explicit: explicit, Args: args}, true
}

// Builtin is a compile-time command descriptor. The set is fixed at startup.
type Builtin struct {
	Name        string
	Description string
	Flags       CommandFlag
	Handler     func(ctx context.Context, d *Dispatcher, req *Request) error
}

// CallbackData is the structured payload the bot places in inline keyboard
// buttons: the originating command name, an opaque token, the page the
// keyboard currently shows, the send timestamp, and free-form trailing data.
type CallbackData struct {
	Context   string
	Token     string
	Page      int
	Timestamp int64
	UserData  string
}

// ParseCallbackData splits a callback data string of the form
// "context token page timestamp userdata...".
func ParseCallbackData(data string) (*CallbackData, error) {
	fields := strings.SplitN(data, " ", 5)
	if len(fields) < 4 {
		return nil, errors.Errorf("bot: malformed callback data %q", data)
	}
	page, err := strconv.Atoi(fields[2])
	if err != nil {
		return nil, errors.Wrap(err, "bot: bad callback page")
	}
	ts, err := strconv.ParseInt(fields[3], 10, 64)
	if err != nil {
		return nil, errors.Wrap(err, "bot: bad callback timestamp")
	}
	cd := &CallbackData{
		Context:   fields[0],
		Token:     fields[1],
		Page:      page,
		Timestamp: ts,
	}
	if len(fields) == 5 {
		cd.UserData = fields[4]
	}
	return cd, nil
}

// String re-encodes the callback data for embedding into a keyboard button.
func (c *CallbackData) String() string {
	s := c.Context + " " + c.Token + " " + strconv.Itoa(c.Page) + " " + strconv.FormatInt(c.Timestamp, 10)
	if c.UserData != "" {
		s += " " + c.UserData
	}
	return s
}
