// Package storage persists reconciliation runs in SQLite or Postgres.
package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"

	"cloudspend/internal/log"
)

// Supported drivers.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

var (
	ErrUnknownDriver = errors.New("unknown storage driver")
	ErrRunNotFound   = errors.New("run not found")
)

// Config selects the database backing a Repository.
type Config struct {
	Driver      string // sqlite (default) or postgres
	SQLitePath  string
	PostgresDSN string
}

// Repository stores runs with their records, ledger entries and
// comparisons.
type Repository struct {
	db     *sql.DB
	driver string
	logger *log.Logger
}

// Open connects to the configured database and brings its schema up to
// date.
func Open(ctx context.Context, cfg Config, logger *log.Logger) (*Repository, error) {
	if logger == nil {
		logger = log.Discard()
	}
	logger = logger.WithComponent(log.ComponentStorage)

	driver := cfg.Driver
	if driver == "" {
		driver = DriverSQLite
	}

	var dsn string
	switch driver {
	case DriverSQLite:
		if cfg.SQLitePath == "" {
			return nil, fmt.Errorf("sqlite path is required")
		}
		if err := os.MkdirAll(filepath.Dir(cfg.SQLitePath), 0755); err != nil {
			return nil, fmt.Errorf("create db directory: %w", err)
		}
		dsn = cfg.SQLitePath
	case DriverPostgres:
		if cfg.PostgresDSN == "" {
			return nil, fmt.Errorf("postgres dsn is required")
		}
		dsn = cfg.PostgresDSN
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownDriver, driver)
	}

	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s database: %w", driver, err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	if driver == DriverSQLite {
		// A single writer avoids SQLITE_BUSY between pooled connections.
		db.SetMaxOpenConns(1)
		if _, err := db.ExecContext(ctx, "PRAGMA foreign_keys = ON"); err != nil {
			db.Close()
			return nil, fmt.Errorf("enable foreign keys: %w", err)
		}
	}

	if err := RunMigrations(driver, dsn); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	logger.InfoContext(ctx, "Storage ready", "driver", driver)
	return &Repository{db: db, driver: driver, logger: logger}, nil
}

// Close releases the connection pool.
func (r *Repository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

// Driver reports the backing database driver.
func (r *Repository) Driver() string { return r.driver }

// rebind rewrites ? placeholders as $n for postgres.
func (r *Repository) rebind(query string) string {
	if r.driver != DriverPostgres {
		return query
	}
	var b strings.Builder
	n := 0
	for _, c := range query {
		if c == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(c)
	}
	return b.String()
}
