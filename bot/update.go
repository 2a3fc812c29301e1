// Package bot interprets decoded platform updates: it routes lifecycle
// events, parses commands, enforces authorization, and delegates to builtin
// handlers, stored message macros, or external executables.
package bot

import (
	"encoding/json"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/pkg/errors"
)

// MessageKind classifies a message payload.
type MessageKind int

const (
	KindText MessageKind = iota
	KindCommand
	KindPhoto
	KindAudio
	KindDocument
	KindVideo
	KindSticker
	KindNewMembers
	KindLeftMember
)

// ErrDropUpdate marks an update that is structurally unusable and must be
// discarded without a reply: a message without a sender, or a callback
// without a backing message or data.
var ErrDropUpdate = errors.New("bot: update dropped")

// Update is one decoded platform event, exactly one of Message or Callback.
// Raw is kept so external handlers can receive the unparsed JSON.
type Update struct {
	ID      int64
	TraceID string
	Raw     []byte

	Message  *Message
	Callback *Callback
}

// Message is the domain view of a chat message. ReplyTo is bounded to one
// level; the platform never nests deeper.
type Message struct {
	Kind      MessageKind
	MessageID int
	ChatID    int64
	ChatType  string // private, group, supergroup, channel
	SenderID  int64
	Date      int64
	Text      string
	ReplyTo   *Message

	NewMemberIDs []int64
	LeftMemberID int64
}

// IsPrivate reports whether the message came from a one-on-one chat.
func (m *Message) IsPrivate() bool {
	return m.ChatType == "private"
}

// Callback is a button press on a previously sent inline keyboard.
type Callback struct {
	ID        string
	SenderID  int64
	ChatID    int64
	ChatType  string
	MessageID int
	Data      string
}

// DecodeUpdate parses a raw webhook payload into the domain model.
// Returns ErrDropUpdate for structurally unusable updates.
func DecodeUpdate(raw []byte) (*Update, error) {
	var u tgbotapi.Update
	if err := json.Unmarshal(raw, &u); err != nil {
		return nil, errors.Wrap(err, "bot: failed to decode update")
	}

	out := &Update{ID: int64(u.UpdateID), Raw: raw}

	switch {
	case u.Message != nil:
		msg, err := decodeMessage(u.Message, true)
		if err != nil {
			return nil, err
		}
		out.Message = msg
	case u.CallbackQuery != nil:
		cb := u.CallbackQuery
		if cb.Message == nil || cb.Message.Chat == nil || cb.Data == "" || cb.From == nil {
			return nil, ErrDropUpdate
		}
		out.Callback = &Callback{
			ID:        cb.ID,
			SenderID:  cb.From.ID,
			ChatID:    cb.Message.Chat.ID,
			ChatType:  cb.Message.Chat.Type,
			MessageID: cb.Message.MessageID,
			Data:      cb.Data,
		}
	default:
		return nil, ErrDropUpdate
	}
	return out, nil
}

func decodeMessage(m *tgbotapi.Message, top bool) (*Message, error) {
	if m.From == nil {
		return nil, ErrDropUpdate
	}
	out := &Message{
		MessageID: m.MessageID,
		SenderID:  m.From.ID,
		Date:      int64(m.Date),
		Text:      m.Text,
	}
	if m.Chat != nil {
		out.ChatID = m.Chat.ID
		out.ChatType = m.Chat.Type
	}

	switch {
	case m.NewChatMembers != nil:
		out.Kind = KindNewMembers
		for _, u := range m.NewChatMembers {
			out.NewMemberIDs = append(out.NewMemberIDs, u.ID)
		}
	case m.LeftChatMember != nil:
		out.Kind = KindLeftMember
		out.LeftMemberID = m.LeftChatMember.ID
	case m.IsCommand():
		out.Kind = KindCommand
	case m.Photo != nil:
		out.Kind = KindPhoto
		out.Text = m.Caption
	case m.Audio != nil:
		out.Kind = KindAudio
	case m.Document != nil:
		out.Kind = KindDocument
	case m.Video != nil:
		out.Kind = KindVideo
	case m.Sticker != nil:
		out.Kind = KindSticker
	default:
		out.Kind = KindText
	}

	// One level of reply context only.
	if top && m.ReplyToMessage != nil && m.ReplyToMessage.From != nil {
		reply, err := decodeMessage(m.ReplyToMessage, false)
		if err == nil {
			out.ReplyTo = reply
		}
	}
	return out, nil
}
