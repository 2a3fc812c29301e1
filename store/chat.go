package store

import (
	"context"
	"database/sql"
	"time"

	"github.com/pkg/errors"
)

// ChatFlag is a per-chat permission bit.
type ChatFlag int64

const (
	ChatFlagAllowNSFW   ChatFlag = 1 << 0
	ChatFlagAllowExtern ChatFlag = 1 << 1
	ChatFlagAllowExtra  ChatFlag = 1 << 2
)

// Has reports whether all bits of other are set.
func (f ChatFlag) Has(other ChatFlag) bool {
	return f&other == other
}

// GetChatFlags returns the flag bitfield for a chat. A missing row is
// identical to flags=0.
func (s *Store) GetChatFlags(ctx context.Context, chatID int64) (ChatFlag, error) {
	var flags int64
	err := s.driver.GetDB().QueryRowContext(ctx,
		`SELECT flags FROM chat WHERE chat_id = $1`, chatID,
	).Scan(&flags)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, errors.Wrapf(err, "failed to get chat flags for %d", chatID)
	}
	return ChatFlag(flags), nil
}

// SetChatFlags stores the full flag bitfield for a chat, creating the row
// on first write.
func (s *Store) SetChatFlags(ctx context.Context, chatID int64, flags ChatFlag) error {
	_, err := s.driver.GetDB().ExecContext(ctx, `
		INSERT INTO chat (chat_id, flags, created_ts)
		VALUES ($1, $2, $3)
		ON CONFLICT (chat_id) DO UPDATE SET flags = $2`,
		chatID, int64(flags), time.Now().Unix(),
	)
	if err != nil {
		return errors.Wrapf(err, "failed to set chat flags for %d", chatID)
	}
	return nil
}
