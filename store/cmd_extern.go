package store

import (
	"context"
	"database/sql"
	"time"

	"github.com/pkg/errors"
)

// ExternCommand describes an out-of-process command handler. Commands are
// global by name; per-chat opt-outs live in the disabled set.
type ExternCommand struct {
	ID          int64
	Name        string
	FilePath    string
	ArgProfile  int64
	Flags       int64
	Description string
}

// Argument profile bits for external handlers.
const (
	ArgProfileRawJSON int64 = 1 << 0 // append the raw update JSON to argv
)

// CreateExternCommand registers a global external command.
func (s *Store) CreateExternCommand(ctx context.Context, create *ExternCommand) (*ExternCommand, error) {
	err := s.driver.GetDB().QueryRowContext(ctx, `
		INSERT INTO cmd_extern (name, file_path, arg_profile, flags, description, created_ts)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id`,
		create.Name, create.FilePath, create.ArgProfile, create.Flags, create.Description, time.Now().Unix(),
	).Scan(&create.ID)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to create extern command %s", create.Name)
	}
	return create, nil
}

// GetExternCommand looks up an external command by name.
// Returns ErrNotFound when no row exists.
func (s *Store) GetExternCommand(ctx context.Context, name string) (*ExternCommand, error) {
	var c ExternCommand
	err := s.driver.GetDB().QueryRowContext(ctx, `
		SELECT id, name, file_path, arg_profile, flags, description
		FROM cmd_extern WHERE name = $1`,
		name,
	).Scan(&c.ID, &c.Name, &c.FilePath, &c.ArgProfile, &c.Flags, &c.Description)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, errors.Wrapf(err, "failed to get extern command %s", name)
	}
	return &c, nil
}

// ListExternCommands returns every registered external command.
func (s *Store) ListExternCommands(ctx context.Context) ([]*ExternCommand, error) {
	rows, err := s.driver.GetDB().QueryContext(ctx, `
		SELECT id, name, file_path, arg_profile, flags, description
		FROM cmd_extern ORDER BY name`)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list extern commands")
	}
	defer rows.Close()

	var commands []*ExternCommand
	for rows.Next() {
		var c ExternCommand
		if err := rows.Scan(&c.ID, &c.Name, &c.FilePath, &c.ArgProfile, &c.Flags, &c.Description); err != nil {
			return nil, errors.Wrap(err, "failed to scan extern command")
		}
		commands = append(commands, &c)
	}
	return commands, rows.Err()
}

// IsExternDisabled reports whether a command is disabled for a chat.
func (s *Store) IsExternDisabled(ctx context.Context, chatID int64, name string) (bool, error) {
	var exists bool
	err := s.driver.GetDB().QueryRowContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM cmd_extern_disabled WHERE chat_id = $1 AND name = $2)`,
		chatID, name,
	).Scan(&exists)
	if err != nil {
		return false, errors.Wrapf(err, "failed to check disabled set for chat %d", chatID)
	}
	return exists, nil
}

// SetExternDisabled adds or removes a command from a chat's disabled set.
func (s *Store) SetExternDisabled(ctx context.Context, chatID int64, name string, disabled bool) error {
	var err error
	if disabled {
		_, err = s.driver.GetDB().ExecContext(ctx, `
			INSERT INTO cmd_extern_disabled (chat_id, name, created_ts)
			VALUES ($1, $2, $3)
			ON CONFLICT (chat_id, name) DO NOTHING`,
			chatID, name, time.Now().Unix(),
		)
	} else {
		_, err = s.driver.GetDB().ExecContext(ctx,
			`DELETE FROM cmd_extern_disabled WHERE chat_id = $1 AND name = $2`,
			chatID, name,
		)
	}
	return errors.Wrapf(err, "failed to update disabled set for chat %d", chatID)
}

// SeedExternDisabled disables every registered external command for a chat
// that has no disabled-set rows yet. Invoked when the bot joins a chat so
// externals start opted out until an admin enables them.
func (s *Store) SeedExternDisabled(ctx context.Context, chatID int64) error {
	now := time.Now().Unix()
	return s.withTx(ctx, func(tx *sql.Tx) error {
		var seeded bool
		if err := tx.QueryRowContext(ctx,
			`SELECT EXISTS(SELECT 1 FROM cmd_extern_disabled WHERE chat_id = $1)`, chatID,
		).Scan(&seeded); err != nil {
			return errors.Wrap(err, "failed to probe disabled set")
		}
		if seeded {
			return nil
		}
		_, err := tx.ExecContext(ctx, `
			INSERT INTO cmd_extern_disabled (chat_id, name, created_ts)
			SELECT $1, name, $2 FROM cmd_extern`,
			chatID, now,
		)
		return errors.Wrapf(err, "failed to seed disabled set for chat %d", chatID)
	})
}
