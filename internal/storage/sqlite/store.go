// Package sqlite provides a single-file storage backend for one-process
// deployments: key-value entries, room leases, accounts, and the event log
// in one SQLite database.
package sqlite

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/golang-migrate/migrate/v4"
	migratesqlite "github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrationFS embed.FS

// Options tune the event log of a Store.
type Options struct {
	// Consumer names this process in event leases.
	Consumer string
	// LeaseTTL is how long a delivered event stays invisible before redelivery.
	LeaseTTL time.Duration
	// PollInterval is the pause between empty polls of a topic.
	PollInterval time.Duration
	// Now supplies the time; nil means time.Now.
	Now func() time.Time
}

// Store implements storage.Store, storage.AccountStore, and storage.EventLog.
type Store struct {
	sqlDB *sql.DB
	opts  Options
}

// Open opens the SQLite database at path and applies migrations.
//
// Precondition: path is non-empty; opts.LeaseTTL and opts.PollInterval are > 0.
// Postcondition: Returns a migrated Store or a non-nil error.
func Open(path string, opts Options) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	cleanPath := filepath.Clean(path)
	dsn := cleanPath + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)"
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	// One writer at a time; lease retries would otherwise spin on SQLITE_BUSY.
	sqlDB.SetMaxOpenConns(1)
	if err := sqlDB.Ping(); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	if err := applyMigrations(sqlDB); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	return &Store{sqlDB: sqlDB, opts: opts}, nil
}

func applyMigrations(sqlDB *sql.DB) error {
	src, err := iofs.New(migrationFS, "migrations")
	if err != nil {
		return fmt.Errorf("open embedded migrations: %w", err)
	}
	driver, err := migratesqlite.WithInstance(sqlDB, &migratesqlite.Config{})
	if err != nil {
		return fmt.Errorf("migration driver: %w", err)
	}
	// The migrator is not closed: closing it would close sqlDB.
	m, err := migrate.NewWithInstance("iofs", src, "sqlite", driver)
	if err != nil {
		return fmt.Errorf("create migrator: %w", err)
	}
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return err
	}
	return nil
}

// Close releases the SQLite connection.
func (s *Store) Close() error {
	if s == nil || s.sqlDB == nil {
		return nil
	}
	return s.sqlDB.Close()
}

// Health pings the database.
func (s *Store) Health(ctx context.Context) error {
	return s.sqlDB.PingContext(ctx)
}

func (s *Store) nowMillis() int64 {
	return s.opts.Now().UTC().UnixMilli()
}
