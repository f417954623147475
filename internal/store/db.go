// Package store is the per-workspace SQLite database shared by the lexical
// and embedding stores. It owns the schema, its versioning, and the typed row
// structs that cross the SQL boundary.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	amerrors "github.com/Aman-CERP/amanidx/internal/errors"

	_ "modernc.org/sqlite" // Pure Go SQLite driver (no CGO)
)

// SchemaVersion is the schema this binary writes. A database carrying a
// higher version is opened read-only.
const SchemaVersion = 1

// FileName is the database file name inside a workspace data directory.
const FileName = "index.db"

// State keys persisted in the state table.
const (
	StateKeyEmbeddingModel     = "embedding_model"
	StateKeyEmbeddingDimension = "embedding_dimension"
	StateKeyLastIndexed        = "last_indexed"
)

// DB is one workspace's backing store.
type DB struct {
	mu       sync.RWMutex
	db       *sql.DB
	path     string
	version  int
	readOnly bool
	closed   bool
	logger   *slog.Logger
}

// Open opens or creates the database at path. An empty path creates an
// in-memory database. A corrupt file is removed and recreated.
func Open(ctx context.Context, path string, logger *slog.Logger) (*DB, error) {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	dsn := ":memory:"
	if path != "" {
		dir := filepath.Dir(path)
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create directory %s: %w", dir, err)
		}

		if validErr := validateIntegrity(path); validErr != nil {
			logger.Warn("workspace_db_corrupted",
				slog.String("path", path),
				slog.String("error", validErr.Error()))
			if err := Remove(path); err != nil {
				return nil, amerrors.New(amerrors.ErrCodeCorruptIndex,
					"index database is corrupted and cannot be removed", err).
					WithDetail("path", path)
			}
			logger.Info("workspace_db_cleared",
				slog.String("path", path),
				slog.String("reason", "corruption detected, reindex required"))
		}
		dsn = path
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Single writer; also keeps an in-memory database alive on one connection.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	// DSN params are ignored by modernc.org/sqlite, so pragmas go through Exec.
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA foreign_keys = ON",
		"PRAGMA temp_store = MEMORY",
	}
	for _, pragma := range pragmas {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to set pragma: %w", err)
		}
	}

	d := &DB{db: db, path: path, logger: logger}
	if err := d.migrate(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}

	return d, nil
}

// validateIntegrity checks an existing database file before opening it.
func validateIntegrity(path string) error {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil
	}

	db, err := sql.Open("sqlite", path+"?mode=ro")
	if err != nil {
		return fmt.Errorf("cannot open for validation: %w", err)
	}
	defer db.Close()

	var result string
	if err := db.QueryRow("PRAGMA quick_check").Scan(&result); err != nil {
		return fmt.Errorf("integrity check failed: %w", err)
	}
	if result != "ok" {
		return fmt.Errorf("database corrupted: %s", result)
	}
	return nil
}

func (d *DB) migrate(ctx context.Context) error {
	if _, err := d.db.ExecContext(ctx,
		`CREATE TABLE IF NOT EXISTS schema_version (version INTEGER PRIMARY KEY)`); err != nil {
		return fmt.Errorf("failed to create schema_version: %w", err)
	}

	var onDisk sql.NullInt64
	if err := d.db.QueryRowContext(ctx,
		`SELECT MAX(version) FROM schema_version`).Scan(&onDisk); err != nil {
		return fmt.Errorf("failed to read schema version: %w", err)
	}

	if onDisk.Valid && int(onDisk.Int64) > SchemaVersion {
		d.version = int(onDisk.Int64)
		d.readOnly = true
		d.logger.Warn("workspace_db_read_only",
			slog.String("path", d.path),
			slog.Int("on_disk_version", d.version),
			slog.Int("supported_version", SchemaVersion))
		return nil
	}

	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, schemaV1); err != nil {
		return fmt.Errorf("failed to initialize schema: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT OR IGNORE INTO schema_version (version) VALUES (?)`, SchemaVersion); err != nil {
		return fmt.Errorf("failed to record schema version: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit schema: %w", err)
	}

	d.version = SchemaVersion
	return nil
}

const schemaV1 = `
CREATE TABLE IF NOT EXISTS documents (
	uri          TEXT PRIMARY KEY,
	content_hash TEXT NOT NULL,
	language_id  TEXT NOT NULL DEFAULT '',
	chunk_count  INTEGER NOT NULL DEFAULT 0,
	indexed_at   INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS chunks (
	id           TEXT PRIMARY KEY,
	uri          TEXT NOT NULL REFERENCES documents(uri) ON DELETE CASCADE,
	ordinal      INTEGER NOT NULL,
	content      TEXT NOT NULL,
	start_line   INTEGER NOT NULL DEFAULT 0,
	start_column INTEGER NOT NULL DEFAULT 0,
	end_line     INTEGER NOT NULL DEFAULT 0,
	end_column   INTEGER NOT NULL DEFAULT 0,
	content_hash TEXT NOT NULL,
	language_id  TEXT NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS idx_chunks_uri ON chunks(uri);

CREATE TABLE IF NOT EXISTS vectors (
	chunk_id    TEXT PRIMARY KEY,
	uri         TEXT NOT NULL,
	model       TEXT NOT NULL,
	dimension   INTEGER NOT NULL,
	norm        REAL NOT NULL,
	chunk_hash  TEXT NOT NULL DEFAULT '',
	language_id TEXT NOT NULL DEFAULT '',
	vector      BLOB NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_vectors_uri ON vectors(uri);
CREATE INDEX IF NOT EXISTS idx_vectors_hash ON vectors(chunk_hash);

CREATE TABLE IF NOT EXISTS state (
	key   TEXT PRIMARY KEY,
	value TEXT NOT NULL
);
`

// Path returns the database path, or "" for an in-memory database.
func (d *DB) Path() string { return d.path }

// Version returns the schema version found on disk.
func (d *DB) Version() int { return d.version }

// ReadOnly reports whether the on-disk schema is newer than SchemaVersion.
func (d *DB) ReadOnly() bool { return d.readOnly }

// ErrReadOnly is returned by writes against a read-only database.
var ErrReadOnly = amerrors.New(amerrors.ErrCodeReadOnly,
	"index database was written by a newer version and is read-only", nil)

// ErrClosed is returned by operations on a closed database.
var ErrClosed = errors.New("store: database is closed")

// write runs fn inside a transaction, rejecting read-only databases.
func (d *DB) write(ctx context.Context, fn func(tx *sql.Tx) error) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return ErrClosed
	}
	if d.readOnly {
		return ErrReadOnly
	}

	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit()
}

// read runs fn under the read lock.
func (d *DB) read(fn func(db *sql.DB) error) error {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if d.closed {
		return ErrClosed
	}
	return fn(d.db)
}

// GetState returns a state value, or "" when unset.
func (d *DB) GetState(ctx context.Context, key string) (string, error) {
	var value string
	err := d.read(func(db *sql.DB) error {
		err := db.QueryRowContext(ctx, `SELECT value FROM state WHERE key = ?`, key).Scan(&value)
		if errors.Is(err, sql.ErrNoRows) {
			return nil
		}
		return err
	})
	return value, err
}

// SetState upserts a state value.
func (d *DB) SetState(ctx context.Context, key, value string) error {
	return d.write(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO state (key, value) VALUES (?, ?)
			 ON CONFLICT(key) DO UPDATE SET value = excluded.value`, key, value)
		return err
	})
}

// Close checkpoints the WAL and closes the database. Idempotent.
func (d *DB) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return nil
	}
	d.closed = true
	if d.path != "" && !d.readOnly {
		_, _ = d.db.Exec("PRAGMA wal_checkpoint(TRUNCATE)")
	}
	return d.db.Close()
}

// Remove deletes a database file along with its WAL and SHM files.
func Remove(path string) error {
	if path == "" {
		return nil
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return err
	}
	_ = os.Remove(path + "-wal")
	_ = os.Remove(path + "-shm")
	return nil
}
