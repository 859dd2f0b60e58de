// Package embedded implements the Embedded Table Writer (C3): the
// single-file analytic database backend, used both for single-writer
// row storage and as the shared blob registry regardless of which
// backend (C2 or C3) is selected for the other relations.
package embedded

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"

	"github.com/scbrown/irs/internal/schema"
)

// DB wraps the single shared *sql.DB connection to the embedded
// engine. A single connection (SetMaxOpenConns(1)) matches the
// engine-level single-writer locking discipline this backend follows
// shared-resource table; concurrent callers within this process queue
// on Go's database/sql connection pool, and across processes on the
// engine's own file locking (handled by withRetry).
type DB struct {
	sqlDB *sql.DB
	path  string
}

// Open creates (if needed) the parent directory and opens the embedded
// engine file at path, in WAL mode with a busy timeout, then runs
// migrations.
func Open(path string) (*DB, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("embedded: mkdir: %w", err)
	}
	dsn := path + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)"
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("embedded: open %s: %w", path, err)
	}
	sqlDB.SetMaxOpenConns(1)

	db := &DB{sqlDB: sqlDB, path: path}
	if err := db.migrate(context.Background()); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("embedded: migrate: %w", err)
	}
	return db, nil
}

// Close releases the underlying connection.
func (db *DB) Close() error {
	return db.sqlDB.Close()
}

// SchemaVersion returns the schema version recorded in store_meta.
func (db *DB) SchemaVersion(ctx context.Context) (string, error) {
	var v string
	err := db.sqlDB.QueryRowContext(ctx, `SELECT value FROM store_meta WHERE key = ?`, "schema_version").Scan(&v)
	if err == sql.ErrNoRows {
		return "", nil
	}
	return v, err
}

func (db *DB) migrate(ctx context.Context) error {
	if _, err := db.sqlDB.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS schema_migrations (version INTEGER PRIMARY KEY)`); err != nil {
		return err
	}

	current := 0
	row := db.sqlDB.QueryRowContext(ctx, `SELECT COALESCE(MAX(version), 0) FROM schema_migrations`)
	if err := row.Scan(&current); err != nil {
		return err
	}

	migrations := []func(context.Context, *sql.Tx) error{
		migrateV1, // attempts, outcomes, store_meta
		migrateV2, // outputs, blob_registry
		migrateV3, // events, sessions
		migrateV4, // invocations view
	}

	for i, m := range migrations {
		version := i + 1
		if version <= current {
			continue
		}
		tx, err := db.sqlDB.BeginTx(ctx, nil)
		if err != nil {
			return err
		}
		if err := m(ctx, tx); err != nil {
			tx.Rollback()
			return fmt.Errorf("migration v%d: %w", version, err)
		}
		if _, err := tx.ExecContext(ctx, `INSERT INTO schema_migrations (version) VALUES (?)`, version); err != nil {
			tx.Rollback()
			return err
		}
		if err := tx.Commit(); err != nil {
			return err
		}
	}
	return nil
}

func migrateV1(ctx context.Context, tx *sql.Tx) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS attempts (
			id TEXT PRIMARY KEY,
			timestamp TEXT NOT NULL,
			cmd TEXT NOT NULL,
			executable TEXT,
			cwd TEXT,
			session_id TEXT,
			tag TEXT,
			source_client TEXT,
			machine_id TEXT,
			hostname TEXT,
			format_hint TEXT,
			runner_id TEXT,
			metadata TEXT,
			date TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_attempts_session ON attempts(session_id)`,
		`CREATE INDEX IF NOT EXISTS idx_attempts_date ON attempts(date)`,
		`CREATE TABLE IF NOT EXISTS outcomes (
			attempt_id TEXT PRIMARY KEY,
			completed_at TEXT NOT NULL,
			exit_code INTEGER,
			duration_ms INTEGER NOT NULL,
			signal INTEGER,
			timeout INTEGER NOT NULL DEFAULT 0,
			metadata TEXT,
			date TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS store_meta (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL
		)`,
	}
	for _, s := range stmts {
		if _, err := tx.ExecContext(ctx, s); err != nil {
			return err
		}
	}
	return nil
}

func migrateV2(ctx context.Context, tx *sql.Tx) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS outputs (
			id TEXT PRIMARY KEY,
			invocation_id TEXT,
			stream TEXT NOT NULL,
			content_hash TEXT NOT NULL,
			byte_length INTEGER NOT NULL,
			storage_type TEXT NOT NULL,
			storage_ref TEXT NOT NULL,
			date TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_outputs_invocation ON outputs(invocation_id)`,
		`CREATE TABLE IF NOT EXISTS blob_registry (
			content_hash TEXT PRIMARY KEY,
			byte_length INTEGER NOT NULL,
			compression TEXT NOT NULL DEFAULT 'none',
			ref_count INTEGER NOT NULL DEFAULT 0,
			first_seen TEXT NOT NULL,
			last_accessed TEXT NOT NULL,
			storage_tier TEXT NOT NULL DEFAULT 'recent',
			storage_path TEXT NOT NULL,
			verified_at TEXT,
			corrupt INTEGER NOT NULL DEFAULT 0
		)`,
	}
	for _, s := range stmts {
		if _, err := tx.ExecContext(ctx, s); err != nil {
			return err
		}
	}
	return nil
}

func migrateV3(ctx context.Context, tx *sql.Tx) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS events (
			id TEXT PRIMARY KEY,
			invocation_id TEXT,
			severity TEXT NOT NULL,
			event_type TEXT,
			ref_file TEXT,
			ref_line INTEGER,
			ref_column INTEGER,
			message TEXT,
			format_used TEXT,
			error_code TEXT,
			tool_name TEXT,
			category TEXT,
			fingerprint TEXT,
			test_name TEXT,
			test_status TEXT,
			log_line_start INTEGER,
			log_line_end INTEGER,
			metadata TEXT,
			date TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_events_invocation ON events(invocation_id)`,
		`CREATE TABLE IF NOT EXISTS sessions (
			session_id TEXT PRIMARY KEY,
			source_client TEXT,
			invoker TEXT,
			invoker_pid INTEGER,
			invoker_type TEXT,
			registered_at TEXT NOT NULL,
			cwd TEXT,
			date TEXT NOT NULL
		)`,
	}
	for _, s := range stmts {
		if _, err := tx.ExecContext(ctx, s); err != nil {
			return err
		}
	}
	return nil
}

func migrateV4(ctx context.Context, tx *sql.Tx) error {
	if _, err := tx.ExecContext(ctx, schema.InvocationsViewSQL); err != nil {
		return err
	}
	return nil
}
