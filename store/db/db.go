// Package db provides the database driver factory.
package db

import (
	"github.com/pkg/errors"

	"github.com/kotvirt/storyweave/internal/profile"
	"github.com/kotvirt/storyweave/store"
	"github.com/kotvirt/storyweave/store/db/postgres"
)

// NewDBDriver creates a new database driver based on the profile.
// Vector retrieval requires pgvector, so postgres is the only driver.
func NewDBDriver(profile *profile.Profile) (store.Driver, error) {
	driver, err := postgres.NewDB(profile)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create postgres driver")
	}
	return driver, nil
}
