package store

import (
	"context"
	"database/sql"
	"time"

	"github.com/pkg/errors"
)

// Validation limits for message commands.
const (
	MaxMessageCommandName  = 32
	MaxMessageCommandValue = 8192
)

// ErrNameTooLong and friends classify message-command validation failures so
// the command layer can phrase replies.
var (
	ErrNameTooLong  = errors.New("command name too long")
	ErrNameInvalid  = errors.New("command name invalid")
	ErrValueTooLong = errors.New("command message too long")
)

// MessageCommand is a per-chat text macro: at most one effective value per
// (chat_id, name). Writing an empty value removes the entry.
type MessageCommand struct {
	ID        int64
	ChatID    int64
	Name      string
	Value     string
	CreatedBy int64
	CreatedTs int64
	UpdatedBy int64
	UpdatedTs int64
}

// ValidateMessageCommandName normalizes and checks a command name: leading
// slashes stripped, remainder non-empty, at most 32 chars, alphanumeric or
// underscore only.
func ValidateMessageCommandName(name string) (string, error) {
	for len(name) > 0 && name[0] == '/' {
		name = name[1:]
	}
	if name == "" {
		return "", ErrNameInvalid
	}
	if len(name) > MaxMessageCommandName {
		return "", ErrNameTooLong
	}
	for i := 0; i < len(name); i++ {
		c := name[i]
		if c == '_' || (c >= '0' && c <= '9') || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') {
			continue
		}
		return "", ErrNameInvalid
	}
	return name, nil
}

// GetMessageCommand returns the stored macro for (chat, name).
// Returns ErrNotFound when unset.
func (s *Store) GetMessageCommand(ctx context.Context, chatID int64, name string) (*MessageCommand, error) {
	var m MessageCommand
	err := s.driver.GetDB().QueryRowContext(ctx, `
		SELECT id, chat_id, name, value, created_by, created_ts, updated_by, updated_ts
		FROM cmd_message WHERE chat_id = $1 AND name = $2`,
		chatID, name,
	).Scan(&m.ID, &m.ChatID, &m.Name, &m.Value, &m.CreatedBy, &m.CreatedTs, &m.UpdatedBy, &m.UpdatedTs)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, errors.Wrapf(err, "failed to get message command %s for chat %d", name, chatID)
	}
	return &m, nil
}

// SetMessageCommand upserts a per-chat macro. An empty value unsets the
// entry; unsetting a non-existent entry returns ErrNotFound. The probe and
// write run inside one transaction to keep the (chat_id, name) uniqueness
// invariant under concurrent writers.
func (s *Store) SetMessageCommand(ctx context.Context, chatID int64, name, value string, userID int64) error {
	name, err := ValidateMessageCommandName(name)
	if err != nil {
		return err
	}
	if len(value) > MaxMessageCommandValue {
		return ErrValueTooLong
	}

	now := time.Now().Unix()
	return s.withTx(ctx, func(tx *sql.Tx) error {
		var id int64
		err := tx.QueryRowContext(ctx,
			`SELECT id FROM cmd_message WHERE chat_id = $1 AND name = $2`,
			chatID, name,
		).Scan(&id)
		exists := err == nil
		if err != nil && !errors.Is(err, sql.ErrNoRows) {
			return errors.Wrap(err, "failed to probe message command")
		}

		if value == "" {
			if !exists {
				return ErrNotFound
			}
			_, err := tx.ExecContext(ctx, `DELETE FROM cmd_message WHERE id = $1`, id)
			return errors.Wrap(err, "failed to unset message command")
		}

		if exists {
			_, err := tx.ExecContext(ctx, `
				UPDATE cmd_message SET value = $2, updated_by = $3, updated_ts = $4
				WHERE id = $1`,
				id, value, userID, now,
			)
			return errors.Wrap(err, "failed to update message command")
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO cmd_message (chat_id, name, value, created_by, created_ts, updated_by, updated_ts)
			VALUES ($1, $2, $3, $4, $5, $4, $5)`,
			chatID, name, value, userID, now,
		)
		return errors.Wrap(err, "failed to insert message command")
	})
}
