// Package store provides deduplication storage backends for mediavault.
//
// This file implements the SQLite-backed deduplication store.
package store

import (
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	_ "embed"

	_ "github.com/mattn/go-sqlite3"
)

// DefaultDirPermissions defines the default permissions for database directories
const DefaultDirPermissions = 0755

//go:embed migrations_sqlite.sql
var sqliteMigrations string

// SQLiteStore is a DedupRepo backed by a SQLite database. Claim atomicity
// comes from the primary-key constraint on message_id.
type SQLiteStore struct {
	db *sql.DB
}

// Compile-time check that SQLiteStore implements DedupRepo.
var _ DedupRepo = (*SQLiteStore)(nil)

// NewSQLiteStore creates a new SQLite store with the given DSN.
// The DSN should be a file path to the SQLite database file.
// If the directory doesn't exist, it will be created.
func NewSQLiteStore(opts ...Option) (*SQLiteStore, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}

	dsn := cfg.DSN
	if dsn == "" {
		slog.Error("SQLiteStore DSN not set")
		return nil, fmt.Errorf("database DSN not set")
	}

	dir := filepath.Dir(dsn)
	if err := os.MkdirAll(dir, DefaultDirPermissions); err != nil {
		slog.Error("Failed to create database directory", "error", err, "dir", dir)
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		slog.Error("Failed to open SQLite connection", "error", err)
		return nil, err
	}

	// SQLite allows one writer at a time; a single connection serializes
	// concurrent claims instead of surfacing SQLITE_BUSY.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		slog.Error("SQLite ping failed", "error", err)
		return nil, err
	}

	if _, err := db.Exec(sqliteMigrations); err != nil {
		slog.Error("Failed to run migrations", "error", err)
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	slog.Debug("SQLite migrations applied", "dsn", dsn)

	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) IsProcessed(messageID string) (bool, error) {
	var id string
	err := s.db.QueryRow(
		`SELECT message_id FROM processed_ids WHERE message_id = ? AND processed_at IS NOT NULL`,
		messageID,
	).Scan(&id)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("dedup check failed: %w", err)
	}
	return true, nil
}

func (s *SQLiteStore) Claim(messageID string) (bool, error) {
	result, err := s.db.Exec(
		`INSERT OR IGNORE INTO processed_ids (message_id, claimed_at) VALUES (?, ?)`,
		messageID, time.Now(),
	)
	if err != nil {
		return false, fmt.Errorf("claim failed: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("claim rows affected check failed: %w", err)
	}
	return n > 0, nil
}

func (s *SQLiteStore) MarkProcessed(messageID string) error {
	_, err := s.db.Exec(
		`UPDATE processed_ids SET processed_at = ? WHERE message_id = ?`,
		time.Now(), messageID,
	)
	if err != nil {
		return fmt.Errorf("mark processed failed: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Release(messageID string) error {
	_, err := s.db.Exec(
		`DELETE FROM processed_ids WHERE message_id = ? AND processed_at IS NULL`,
		messageID,
	)
	if err != nil {
		return fmt.Errorf("release claim failed: %w", err)
	}
	return nil
}

// ReleaseStale deletes unfinalized claims older than the given cutoff. Called
// once at startup so ids claimed by a crashed process can be retried.
func (s *SQLiteStore) ReleaseStale(before time.Time) (int64, error) {
	result, err := s.db.Exec(
		`DELETE FROM processed_ids WHERE processed_at IS NULL AND claimed_at < ?`,
		before,
	)
	if err != nil {
		return 0, fmt.Errorf("release stale claims failed: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("release stale rows affected check failed: %w", err)
	}
	return n, nil
}

// Close closes the SQLite database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
