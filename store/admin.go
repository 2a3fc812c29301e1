package store

import (
	"context"
	"database/sql"
	"time"

	"github.com/pkg/errors"
)

// Admin is one row of a chat's authoritative admin set. The set for a chat
// is replaced wholesale by ReplaceAdmins; rows are otherwise immutable.
type Admin struct {
	ID         int64
	ChatID     int64
	UserID     int64
	Privileges int64
	Anonymous  bool
	CreatedTs  int64
}

// Privilege bits mirror the platform's administrator capabilities.
const (
	PrivilegeManageChat      int64 = 1 << 0
	PrivilegeDeleteMessages  int64 = 1 << 1
	PrivilegeRestrictMembers int64 = 1 << 2
	PrivilegePromoteMembers  int64 = 1 << 3
	PrivilegeChangeInfo      int64 = 1 << 4
	PrivilegeInviteUsers     int64 = 1 << 5
	PrivilegePinMessages     int64 = 1 << 6
)

// ListAdmins returns the current admin set for a chat.
func (s *Store) ListAdmins(ctx context.Context, chatID int64) ([]*Admin, error) {
	rows, err := s.driver.GetDB().QueryContext(ctx, `
		SELECT id, chat_id, user_id, privileges, anonymous, created_ts
		FROM admin WHERE chat_id = $1 ORDER BY user_id`,
		chatID,
	)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to list admins for chat %d", chatID)
	}
	defer rows.Close()

	var admins []*Admin
	for rows.Next() {
		var a Admin
		if err := rows.Scan(&a.ID, &a.ChatID, &a.UserID, &a.Privileges, &a.Anonymous, &a.CreatedTs); err != nil {
			return nil, errors.Wrap(err, "failed to scan admin row")
		}
		admins = append(admins, &a)
	}
	return admins, rows.Err()
}

// GetAdminPrivileges returns the privilege bitmask for (chat, user), or 0
// when the user is not in the chat's admin set.
func (s *Store) GetAdminPrivileges(ctx context.Context, chatID, userID int64) (int64, error) {
	var privileges int64
	err := s.driver.GetDB().QueryRowContext(ctx,
		`SELECT privileges FROM admin WHERE chat_id = $1 AND user_id = $2`,
		chatID, userID,
	).Scan(&privileges)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, errors.Wrapf(err, "failed to get admin privileges for chat %d user %d", chatID, userID)
	}
	return privileges, nil
}

// ReplaceAdmins atomically replaces the admin set for a chat: all existing
// rows are deleted and the new set inserted under one transaction.
func (s *Store) ReplaceAdmins(ctx context.Context, chatID int64, admins []*Admin) error {
	now := time.Now().Unix()
	return s.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM admin WHERE chat_id = $1`, chatID); err != nil {
			return errors.Wrapf(err, "failed to clear admins for chat %d", chatID)
		}
		for _, a := range admins {
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO admin (chat_id, user_id, privileges, anonymous, created_ts)
				VALUES ($1, $2, $3, $4, $5)`,
				chatID, a.UserID, a.Privileges, a.Anonymous, now,
			); err != nil {
				return errors.Wrapf(err, "failed to insert admin %d for chat %d", a.UserID, chatID)
			}
		}
		return nil
	})
}
