package sqlite

import (
	"context"
	"database/sql"

	"github.com/pkg/errors"

	// Import the SQLite driver.
	_ "modernc.org/sqlite"

	"github.com/hrygo/hookbot/internal/profile"
	"github.com/hrygo/hookbot/store"
)

type DB struct {
	db      *sql.DB
	profile *profile.Profile
}

// NewDB opens the embedded store.
//
// Settings:
// - Journal mode WAL: prevents reader/writer locking stalls.
// - busy_timeout 10s: workers block briefly instead of failing on SQLITE_BUSY.
// - Single connection: optimal for SQLite under WAL; the pool above it
//   serializes writers anyway.
//
// When using the `modernc.org/sqlite` driver, each pragma must be prefixed
// with `_pragma=`.
func NewDB(profile *profile.Profile) (store.Driver, error) {
	if profile.DSN == "" {
		return nil, errors.New("dsn required")
	}

	sqliteDB, err := sql.Open("sqlite", profile.DSN+"?_pragma=foreign_keys(0)&_pragma=busy_timeout(10000)&_pragma=journal_mode(WAL)")
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open db with dsn: %s", profile.DSN)
	}

	sqliteDB.SetMaxOpenConns(1)
	sqliteDB.SetMaxIdleConns(1)
	sqliteDB.SetConnMaxLifetime(0)
	sqliteDB.SetConnMaxIdleTime(0)

	driver := DB{db: sqliteDB, profile: profile}

	return &driver, nil
}

func (d *DB) GetDB() *sql.DB {
	return d.db
}

func (d *DB) Close() error {
	return d.db.Close()
}

func (d *DB) IsInitialized(ctx context.Context) (bool, error) {
	var exists bool
	err := d.db.QueryRowContext(ctx, "SELECT EXISTS(SELECT 1 FROM sqlite_master WHERE type='table' AND name='chat')").Scan(&exists)
	if err != nil {
		return false, errors.Wrap(err, "failed to check if database is initialized")
	}
	return exists, nil
}

// Migrate creates the schema when missing.
func (d *DB) Migrate(ctx context.Context) error {
	for _, stmt := range schema {
		if _, err := d.db.ExecContext(ctx, stmt); err != nil {
			return errors.Wrap(err, "failed to apply schema")
		}
	}
	return nil
}

var schema = []string{
	`CREATE TABLE IF NOT EXISTS chat (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		chat_id BIGINT NOT NULL UNIQUE,
		flags BIGINT NOT NULL DEFAULT 0,
		created_ts BIGINT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS admin (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		chat_id BIGINT NOT NULL,
		user_id BIGINT NOT NULL,
		privileges BIGINT NOT NULL DEFAULT 0,
		anonymous INTEGER NOT NULL DEFAULT 0,
		created_ts BIGINT NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_admin_chat ON admin (chat_id)`,
	`CREATE TABLE IF NOT EXISTS sched_message (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		type TEXT NOT NULL,
		chat_id BIGINT NOT NULL,
		message_id BIGINT NOT NULL DEFAULT 0,
		value TEXT NOT NULL DEFAULT '',
		next_run BIGINT NOT NULL,
		expire_sec BIGINT NOT NULL,
		created_ts BIGINT NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_sched_message_next_run ON sched_message (next_run)`,
	`CREATE TABLE IF NOT EXISTS cmd_extern (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		name TEXT NOT NULL UNIQUE,
		file_path TEXT NOT NULL,
		arg_profile BIGINT NOT NULL DEFAULT 0,
		flags BIGINT NOT NULL DEFAULT 0,
		description TEXT NOT NULL DEFAULT '',
		created_ts BIGINT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS cmd_extern_disabled (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		chat_id BIGINT NOT NULL,
		name TEXT NOT NULL,
		created_ts BIGINT NOT NULL,
		UNIQUE (chat_id, name)
	)`,
	`CREATE TABLE IF NOT EXISTS cmd_message (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		chat_id BIGINT NOT NULL,
		name TEXT NOT NULL,
		value TEXT NOT NULL,
		created_by BIGINT NOT NULL,
		created_ts BIGINT NOT NULL,
		updated_by BIGINT NOT NULL,
		updated_ts BIGINT NOT NULL,
		UNIQUE (chat_id, name)
	)`,
}
