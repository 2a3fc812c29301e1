package store

import (
	"context"
	"database/sql"
)

// Driver is a database access layer. Implementations live under store/db.
type Driver interface {
	GetDB() *sql.DB

	// IsInitialized reports whether the schema has been created.
	IsInitialized(ctx context.Context) (bool, error)

	// Migrate creates the schema when missing. Safe to call on every start.
	Migrate(ctx context.Context) error

	Close() error
}
