package database

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"sync"
	"time"

	"waenhancer/internal/migrations"
	"waenhancer/internal/security"

	_ "github.com/mattn/go-sqlite3"
)

// Database is the single owner of every persisted key. Both the monitor and the
// popup reach it only through the background process.
type Database struct {
	db     *sql.DB
	sealer *sealer
	now    func() time.Time

	// settingsMu serializes read-merge-write of the settings partition.
	settingsMu sync.Mutex
}

type Option func(*options)

type options struct {
	encryptAPIKey bool
	now           func() time.Time
}

// WithAPIKeyEncryption seals aiApiKey at rest using WAE_ENCRYPTION_SECRET.
func WithAPIKeyEncryption(enabled bool) Option {
	return func(o *options) { o.encryptAPIKey = enabled }
}

// WithClock overrides the clock used for bookkeeping columns.
func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

func New(dbPath string, opts ...Option) (*Database, error) {
	o := options{now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}

	if err := security.ValidateFilePath(dbPath); err != nil {
		return nil, fmt.Errorf("invalid database path: %w", err)
	}

	file, err := os.OpenFile(dbPath, os.O_RDWR|os.O_CREATE, 0600)
	if err != nil {
		return nil, fmt.Errorf("failed to create database file: %w", err)
	}
	if err := file.Close(); err != nil {
		return nil, fmt.Errorf("failed to close database file: %w", err)
	}

	db, err := sql.Open("sqlite3", dbPath+"?_busy_timeout=5000&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	closeWith := func(cause error) error {
		if closeErr := db.Close(); closeErr != nil {
			return fmt.Errorf("%w (close error: %v)", cause, closeErr)
		}
		return cause
	}

	if err := db.Ping(); err != nil {
		return nil, closeWith(fmt.Errorf("failed to ping database: %w", err))
	}

	if err := migrate(db); err != nil {
		return nil, closeWith(err)
	}

	s, err := newSealer(o.encryptAPIKey)
	if err != nil {
		return nil, closeWith(fmt.Errorf("failed to initialize encryptor: %w", err))
	}

	return &Database{db: db, sealer: s, now: o.now}, nil
}

func (d *Database) Close() error {
	return d.db.Close()
}

// Ping reports whether the store is reachable.
func (d *Database) Ping(ctx context.Context) error {
	return d.db.PingContext(ctx)
}

func migrate(db *sql.DB) error {
	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS schema_migrations (
		version TEXT PRIMARY KEY,
		applied_at INTEGER NOT NULL
	)`); err != nil {
		return fmt.Errorf("failed to create migrations table: %w", err)
	}

	all, err := migrations.List()
	if err != nil {
		return fmt.Errorf("failed to read schema: %w", err)
	}

	for _, m := range all {
		var applied int
		if err := db.QueryRow(`SELECT COUNT(*) FROM schema_migrations WHERE version = ?`, m.Version).Scan(&applied); err != nil {
			return fmt.Errorf("failed to check migration %s: %w", m.Version, err)
		}
		if applied > 0 {
			continue
		}

		tx, err := db.Begin()
		if err != nil {
			return fmt.Errorf("failed to begin migration %s: %w", m.Version, err)
		}
		if _, err := tx.Exec(m.SQL); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("failed to initialize schema (%s): %w", m.Version, err)
		}
		if _, err := tx.Exec(`INSERT INTO schema_migrations (version, applied_at) VALUES (?, ?)`,
			m.Version, time.Now().Unix()); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("failed to record migration %s: %w", m.Version, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("failed to commit migration %s: %w", m.Version, err)
		}
	}
	return nil
}
