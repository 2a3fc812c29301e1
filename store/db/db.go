// Package db provides the database driver factory.
package db

import (
	"github.com/pkg/errors"

	"github.com/hrygo/hookbot/internal/profile"
	"github.com/hrygo/hookbot/store"
	"github.com/hrygo/hookbot/store/db/postgres"
	"github.com/hrygo/hookbot/store/db/sqlite"
)

// NewDBDriver creates the store driver selected by the profile.
func NewDBDriver(profile *profile.Profile) (store.Driver, error) {
	switch profile.Driver {
	case "sqlite":
		return sqlite.NewDB(profile)
	case "postgres":
		return postgres.NewDB(profile)
	default:
		return nil, errors.Errorf("unknown db driver: %s", profile.Driver)
	}
}
