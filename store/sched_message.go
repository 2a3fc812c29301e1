package store

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/pkg/errors"
)

// ActionType selects what the scheduler does with a due row.
type ActionType string

const (
	ActionSend   ActionType = "send"
	ActionDelete ActionType = "delete"
)

// ScheduledAction is a persisted deferred chat action. A row is due while
// next_run <= now < next_run + expire_sec; past that window it must be
// discarded without execution.
type ScheduledAction struct {
	ID        int64
	Type      ActionType
	ChatID    int64
	MessageID int64
	Value     string
	NextRun   int64
	ExpireSec int64
}

// CreateScheduledAction inserts a new deferred action.
func (s *Store) CreateScheduledAction(ctx context.Context, create *ScheduledAction) (*ScheduledAction, error) {
	if create.Type != ActionSend && create.Type != ActionDelete {
		return nil, errors.Errorf("invalid action type: %s", create.Type)
	}
	err := s.driver.GetDB().QueryRowContext(ctx, `
		INSERT INTO sched_message (type, chat_id, message_id, value, next_run, expire_sec, created_ts)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id`,
		string(create.Type), create.ChatID, create.MessageID, create.Value,
		create.NextRun, create.ExpireSec, time.Now().Unix(),
	).Scan(&create.ID)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create scheduled action")
	}
	return create, nil
}

// PickDueActions returns up to limit rows due at now. Rows past their expiry
// window are never returned.
func (s *Store) PickDueActions(ctx context.Context, now int64, limit int) ([]*ScheduledAction, error) {
	rows, err := s.driver.GetDB().QueryContext(ctx, `
		SELECT id, type, chat_id, message_id, value, next_run, expire_sec
		FROM sched_message
		WHERE next_run <= $1 AND $1 < next_run + expire_sec
		ORDER BY next_run
		LIMIT $2`,
		now, limit,
	)
	if err != nil {
		return nil, errors.Wrap(err, "failed to pick due actions")
	}
	defer rows.Close()

	var actions []*ScheduledAction
	for rows.Next() {
		var a ScheduledAction
		var typ string
		if err := rows.Scan(&a.ID, &typ, &a.ChatID, &a.MessageID, &a.Value, &a.NextRun, &a.ExpireSec); err != nil {
			return nil, errors.Wrap(err, "failed to scan scheduled action")
		}
		a.Type = ActionType(typ)
		actions = append(actions, &a)
	}
	return actions, rows.Err()
}

// DeleteScheduledActions removes the picked rows in one statement.
func (s *Store) DeleteScheduledActions(ctx context.Context, ids []int64) error {
	if len(ids) == 0 {
		return nil
	}
	placeholders := make([]string, len(ids))
	args := make([]any, len(ids))
	for i, id := range ids {
		placeholders[i] = fmt.Sprintf("$%d", i+1)
		args[i] = id
	}
	_, err := s.driver.GetDB().ExecContext(ctx,
		fmt.Sprintf(`DELETE FROM sched_message WHERE id IN (%s)`, strings.Join(placeholders, ", ")),
		args...,
	)
	return errors.Wrap(err, "failed to delete scheduled actions")
}

// PurgeExpiredActions removes rows whose execution window has passed.
// Expired rows are garbage, never dispatched.
func (s *Store) PurgeExpiredActions(ctx context.Context, now int64) (int64, error) {
	res, err := s.driver.GetDB().ExecContext(ctx,
		`DELETE FROM sched_message WHERE $1 >= next_run + expire_sec`, now,
	)
	if err != nil {
		return 0, errors.Wrap(err, "failed to purge expired actions")
	}
	n, _ := res.RowsAffected()
	return n, nil
}
