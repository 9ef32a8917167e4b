package sqlite

import (
	"errors"
	"fmt"

	"github.com/aussiebroadwan/signinbot/internal/bot/store/drivers/sqlite/migrations"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"

	_ "modernc.org/sqlite"
)

// migrationsTable keeps the registry's schema history apart from anything
// else sharing the database file.
const migrationsTable = "login_registry_migrations"

// ErrDirtySchema is returned when an earlier migration run failed halfway.
var ErrDirtySchema = errors.New("sqlite: login registry schema is dirty")

// ApplyMigrations brings the login registry schema up to date. It is a no-op
// on an up to date database.
func (s *Store) ApplyMigrations() error {
	m, err := s.migrator()
	if err != nil {
		return err
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("sqlite: apply migrations: %w", err)
	}
	return nil
}

// SchemaVersion reports the applied migration version, 0 before the first
// run. A dirty schema is reported as ErrDirtySchema.
func (s *Store) SchemaVersion() (uint, error) {
	m, err := s.migrator()
	if err != nil {
		return 0, err
	}

	version, dirty, err := m.Version()
	switch {
	case errors.Is(err, migrate.ErrNilVersion):
		return 0, nil
	case err != nil:
		return 0, fmt.Errorf("sqlite: read schema version: %w", err)
	case dirty:
		return version, ErrDirtySchema
	}
	return version, nil
}

// migrator is never closed: closing it would close the store's *sql.DB.
func (s *Store) migrator() (*migrate.Migrate, error) {
	src, err := iofs.New(migrations.Migrations, ".")
	if err != nil {
		return nil, fmt.Errorf("sqlite: open embedded migrations: %w", err)
	}

	driver, err := sqlite.WithInstance(s.db, &sqlite.Config{MigrationsTable: migrationsTable})
	if err != nil {
		return nil, fmt.Errorf("sqlite: migration driver: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", src, "sqlite", driver)
	if err != nil {
		return nil, fmt.Errorf("sqlite: migrator: %w", err)
	}
	return m, nil
}
