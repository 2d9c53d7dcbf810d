package db

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	"github.com/toreaa/ultra-gi-sub000/internal/config"
	"github.com/toreaa/ultra-gi-sub000/internal/errors"
	_ "modernc.org/sqlite"
)

// CurrentSchemaVersion is the latest schema version.
// Bump this when adding migrations.
const CurrentSchemaVersion = 2

// FileName is the database file inside the base directory.
const FileName = "ultragi.db"

// Querier is satisfied by both *sql.DB and *sql.Tx.
type Querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Init initializes the SQLite database at baseDir/ultragi.db.
// The baseDir parameter allows tests to use t.TempDir() instead of ~/.ultragi.
func Init(baseDir string) (*sql.DB, error) {
	// Create base directory with restricted permissions
	if err := os.MkdirAll(baseDir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create base directory: %w", err)
	}
	// Explicit chmod (best-effort, may not work on all platforms)
	_ = os.Chmod(baseDir, 0700)

	// Pragmas in the connection string apply to every pooled connection.
	// Transactions begin IMMEDIATE so concurrent writers wait on busy_timeout
	// instead of failing when a read inside the transaction upgrades to a write.
	dbPath := filepath.Join(baseDir, FileName)
	dsn := dbPath + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)&_pragma=synchronous(FULL)&_txlock=immediate"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := verifyWALMode(db); err != nil {
		db.Close()
		return nil, err
	}

	// Run migrations (this creates the file if it doesn't exist)
	if err := migrate(db); err != nil {
		db.Close()
		return nil, err
	}

	_ = os.Chmod(dbPath, 0600)

	return db, nil
}

// ConfigurePool applies connection pool settings from config.
// Only sets limits if explicitly configured (non-zero values).
func ConfigurePool(db *sql.DB, cfg *config.Config) {
	if cfg == nil {
		return
	}
	if cfg.DBMaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.DBMaxOpenConns)
	}
	if cfg.DBMaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.DBMaxIdleConns)
	}
}

// WithTx runs fn inside a transaction, committing on success.
// Errors from fn are returned unchanged; begin/commit failures are internal.
func WithTx(ctx context.Context, db *sql.DB, fn func(tx *sql.Tx) error) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return errors.NewInternal(err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return errors.NewInternal(err)
	}
	return nil
}

// migrate applies schema migrations based on user_version.
func migrate(db *sql.DB) error {
	version, err := GetUserVersion(db)
	if err != nil {
		return err
	}

	// Migration 0 -> 1: Initial schema
	if version < 1 {
		schema := `
		CREATE TABLE IF NOT EXISTS products (
		  id                TEXT PRIMARY KEY,
		  user_id           TEXT NOT NULL,
		  name              TEXT NOT NULL,
		  carbs_per_serving REAL NOT NULL CHECK(carbs_per_serving > 0),
		  created_at        INTEGER NOT NULL,
		  updated_at        INTEGER NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_products_user_name
		ON products(user_id, name);

		CREATE TABLE IF NOT EXISTS planned_sessions (
		  id               TEXT PRIMARY KEY,
		  user_id          TEXT NOT NULL,
		  name             TEXT NOT NULL,
		  duration_minutes INTEGER NOT NULL CHECK(duration_minutes > 0),
		  target_carbs     REAL NOT NULL,
		  total_carbs      REAL NOT NULL,
		  warning          TEXT,
		  items_json       TEXT NOT NULL,
		  created_at       INTEGER NOT NULL,
		  updated_at       INTEGER NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_planned_sessions_user_created
		ON planned_sessions(user_id, created_at DESC);

		CREATE TABLE IF NOT EXISTS session_logs (
		  id                 TEXT PRIMARY KEY,
		  user_id            TEXT NOT NULL,
		  planned_session_id TEXT REFERENCES planned_sessions(id),
		  started_at         INTEGER NOT NULL,
		  ended_at           INTEGER,
		  duration_minutes   INTEGER NOT NULL DEFAULT 0 CHECK(duration_minutes >= 0),
		  status             TEXT NOT NULL CHECK(status IN ('active', 'completed', 'abandoned')),
		  notes              TEXT,
		  created_at         INTEGER NOT NULL,
		  updated_at         INTEGER NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_session_logs_status_started
		ON session_logs(status, started_at DESC);

		CREATE INDEX IF NOT EXISTS idx_session_logs_user_started
		ON session_logs(user_id, started_at DESC);

		CREATE TABLE IF NOT EXISTS session_events (
		  id             TEXT PRIMARY KEY,
		  session_id     TEXT NOT NULL REFERENCES session_logs(id),
		  type           TEXT NOT NULL CHECK(type IN ('intake', 'discomfort', 'note')),
		  offset_seconds INTEGER NOT NULL CHECK(offset_seconds >= 0),
		  payload_json   TEXT NOT NULL,
		  created_at     INTEGER NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_session_events_session_offset
		ON session_events(session_id, offset_seconds);

		CREATE TABLE IF NOT EXISTS recovery_pointer (
		  slot       TEXT PRIMARY KEY CHECK(slot = 'active'),
		  session_id TEXT NOT NULL,
		  updated_at INTEGER NOT NULL
		);
		`
		if _, err := db.Exec(schema); err != nil {
			return fmt.Errorf("migration 1 failed: %w", err)
		}
		if err := SetUserVersion(db, 1); err != nil {
			return err
		}
	}

	// Migration 1 -> 2: heartbeat of the process that holds the pointed session
	if version < 2 {
		if _, err := db.Exec(`ALTER TABLE recovery_pointer ADD COLUMN heartbeat_at INTEGER`); err != nil {
			return fmt.Errorf("migration 2 failed: %w", err)
		}
		if err := SetUserVersion(db, 2); err != nil {
			return err
		}
	}

	return nil
}

// verifyWALMode checks that WAL mode is active (set via connection string).
func verifyWALMode(db *sql.DB) error {
	var journalMode string
	if err := db.QueryRow("PRAGMA journal_mode;").Scan(&journalMode); err != nil {
		return fmt.Errorf("failed to verify journal mode: %w", err)
	}
	if journalMode != "wal" {
		return fmt.Errorf("expected WAL mode, got %s", journalMode)
	}
	return nil
}

// GetUserVersion returns the current schema version (user_version pragma).
func GetUserVersion(db *sql.DB) (int, error) {
	var version int
	if err := db.QueryRow("PRAGMA user_version;").Scan(&version); err != nil {
		return 0, fmt.Errorf("failed to get user_version: %w", err)
	}
	return version, nil
}

// SetUserVersion sets the schema version (user_version pragma).
func SetUserVersion(db *sql.DB, version int) error {
	_, err := db.Exec(fmt.Sprintf("PRAGMA user_version=%d", version))
	if err != nil {
		return fmt.Errorf("failed to set user_version: %w", err)
	}
	return nil
}
