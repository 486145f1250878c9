package storage

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
)

//go:embed migrations/sqlite/*.sql migrations/postgres/*.sql
var migrationsFS embed.FS

// RunMigrations applies the embedded migrations of driver to the database
// at dsn. It opens its own connection so the caller's pool is untouched.
func RunMigrations(driver, dsn string) error {
	migrateDB, err := sql.Open(driver, dsn)
	if err != nil {
		return fmt.Errorf("open migration database: %w", err)
	}
	defer migrateDB.Close()

	var target database.Driver
	switch driver {
	case DriverSQLite:
		target, err = sqlite.WithInstance(migrateDB, &sqlite.Config{})
	case DriverPostgres:
		target, err = postgres.WithInstance(migrateDB, &postgres.Config{})
	default:
		return fmt.Errorf("%w: %q", ErrUnknownDriver, driver)
	}
	if err != nil {
		return fmt.Errorf("create %s driver: %w", driver, err)
	}

	d, err := iofs.New(migrationsFS, "migrations/"+driver)
	if err != nil {
		return fmt.Errorf("create iofs source: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", d, driver, target)
	if err != nil {
		return fmt.Errorf("create migrate instance: %w", err)
	}
	defer m.Close()

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("run migrations: %w", err)
	}

	return nil
}
