package cache

import (
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/rainergb/omni-chat-app-sub001/internal/cache/migrations"
)

// SchemaVersion is the migration the cache is brought to.
const SchemaVersion uint = 1

// MigrateResult reports the schema state after Migrate.
type MigrateResult struct {
	Version uint
	Dirty   bool
	Changed bool
}

func (db *DB) migrator() (*migrate.Migrate, error) {
	src, err := iofs.New(migrations.FS, ".")
	if err != nil {
		return nil, fmt.Errorf("cache migration source: %w", err)
	}
	drv, err := sqlite3.WithInstance(db.DB, &sqlite3.Config{})
	if err != nil {
		return nil, fmt.Errorf("cache migration driver: %w", err)
	}
	return migrate.NewWithInstance("iofs", src, "sqlite3", drv)
}

// Migrate brings the cache schema up to SchemaVersion. A cache left dirty by an
// interrupted migration is refused; it holds only derived data, so deleting
// cache.db is always safe.
func (db *DB) Migrate() (*MigrateResult, error) {
	m, err := db.migrator()
	if err != nil {
		return nil, err
	}

	before, dirty, err := m.Version()
	switch {
	case errors.Is(err, migrate.ErrNilVersion):
	case err != nil:
		return nil, fmt.Errorf("read cache version: %w", err)
	case dirty:
		return nil, fmt.Errorf("cache schema dirty at version %d", before)
	}

	if err := m.Migrate(SchemaVersion); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return nil, fmt.Errorf("migrate cache: %w", err)
	}

	after, dirty, err := m.Version()
	if err != nil {
		return nil, fmt.Errorf("read cache version: %w", err)
	}
	return &MigrateResult{Version: after, Dirty: dirty, Changed: after != before}, nil
}
