package postgres

import (
	"context"
	"database/sql"

	"github.com/pkg/errors"

	// Import the PostgreSQL driver.
	_ "github.com/lib/pq"

	"github.com/hrygo/hookbot/internal/profile"
	"github.com/hrygo/hookbot/store"
)

type DB struct {
	db      *sql.DB
	profile *profile.Profile
}

// NewDB opens a PostgreSQL-backed store. SQLite is the default for a
// single-node gateway; postgres exists for deployments that already run one.
func NewDB(profile *profile.Profile) (store.Driver, error) {
	if profile.DSN == "" {
		return nil, errors.New("dsn required")
	}

	pgDB, err := sql.Open("postgres", profile.DSN)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open db with dsn: %s", profile.DSN)
	}

	pgDB.SetMaxOpenConns(8)
	pgDB.SetMaxIdleConns(4)

	driver := DB{db: pgDB, profile: profile}

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
	err := d.db.QueryRowContext(ctx,
		"SELECT EXISTS(SELECT 1 FROM information_schema.tables WHERE table_name = 'chat')",
	).Scan(&exists)
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
		id BIGSERIAL PRIMARY KEY,
		chat_id BIGINT NOT NULL UNIQUE,
		flags BIGINT NOT NULL DEFAULT 0,
		created_ts BIGINT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS admin (
		id BIGSERIAL PRIMARY KEY,
		chat_id BIGINT NOT NULL,
		user_id BIGINT NOT NULL,
		privileges BIGINT NOT NULL DEFAULT 0,
		anonymous BOOLEAN NOT NULL DEFAULT FALSE,
		created_ts BIGINT NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_admin_chat ON admin (chat_id)`,
	`CREATE TABLE IF NOT EXISTS sched_message (
		id BIGSERIAL PRIMARY KEY,
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
		id BIGSERIAL PRIMARY KEY,
		name TEXT NOT NULL UNIQUE,
		file_path TEXT NOT NULL,
		arg_profile BIGINT NOT NULL DEFAULT 0,
		flags BIGINT NOT NULL DEFAULT 0,
		description TEXT NOT NULL DEFAULT '',
		created_ts BIGINT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS cmd_extern_disabled (
		id BIGSERIAL PRIMARY KEY,
		chat_id BIGINT NOT NULL,
		name TEXT NOT NULL,
		created_ts BIGINT NOT NULL,
		UNIQUE (chat_id, name)
	)`,
	`CREATE TABLE IF NOT EXISTS cmd_message (
		id BIGSERIAL PRIMARY KEY,
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
