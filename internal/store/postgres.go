// Package store provides deduplication storage backends for mediavault.
//
// This file implements the PostgreSQL-backed deduplication store.
package store

import (
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	_ "embed"

	_ "github.com/lib/pq"
)

// Database connection pool configuration constants
const (
	// DefaultMaxOpenConns is the default maximum number of open connections to the database
	DefaultMaxOpenConns = 25
	// DefaultMaxIdleConns is the default maximum number of idle connections in the pool
	DefaultMaxIdleConns = 25
	// DefaultConnMaxLifetime is the default maximum amount of time a connection may be reused
	DefaultConnMaxLifetime = 5 * time.Minute
)

//go:embed migrations_postgres.sql
var postgresMigrations string

// PostgresStore is a DedupRepo backed by PostgreSQL. Claim atomicity comes
// from the unique-constraint insert with ON CONFLICT DO NOTHING.
type PostgresStore struct {
	db *sql.DB
}

// Compile-time check that PostgresStore implements DedupRepo.
var _ DedupRepo = (*PostgresStore)(nil)

// NewPostgresStore creates a new Postgres store based on provided options.
func NewPostgresStore(opts ...Option) (*PostgresStore, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}

	dsn := cfg.DSN
	if dsn == "" {
		slog.Error("PostgresStore DSN not set")
		return nil, fmt.Errorf("database DSN not set")
	}

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		slog.Error("Failed to open Postgres connection", "error", err)
		return nil, err
	}

	db.SetMaxOpenConns(DefaultMaxOpenConns)
	db.SetMaxIdleConns(DefaultMaxIdleConns)
	db.SetConnMaxLifetime(DefaultConnMaxLifetime)

	if err := db.Ping(); err != nil {
		slog.Error("Postgres ping failed", "error", err)
		return nil, err
	}

	if _, err := db.Exec(postgresMigrations); err != nil {
		slog.Error("Failed to run migrations", "error", err)
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	slog.Debug("Postgres migrations applied")

	return &PostgresStore{db: db}, nil
}

func (s *PostgresStore) IsProcessed(messageID string) (bool, error) {
	var id string
	err := s.db.QueryRow(
		`SELECT message_id FROM processed_ids WHERE message_id = $1 AND processed_at IS NOT NULL`,
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

func (s *PostgresStore) Claim(messageID string) (bool, error) {
	result, err := s.db.Exec(
		`INSERT INTO processed_ids (message_id, claimed_at) VALUES ($1, $2) ON CONFLICT (message_id) DO NOTHING`,
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

func (s *PostgresStore) MarkProcessed(messageID string) error {
	_, err := s.db.Exec(
		`UPDATE processed_ids SET processed_at = $1 WHERE message_id = $2`,
		time.Now(), messageID,
	)
	if err != nil {
		return fmt.Errorf("mark processed failed: %w", err)
	}
	return nil
}

func (s *PostgresStore) Release(messageID string) error {
	_, err := s.db.Exec(
		`DELETE FROM processed_ids WHERE message_id = $1 AND processed_at IS NULL`,
		messageID,
	)
	if err != nil {
		return fmt.Errorf("release claim failed: %w", err)
	}
	return nil
}

// ReleaseStale deletes unfinalized claims older than the given cutoff. Called
// once at startup so ids claimed by a crashed process can be retried.
func (s *PostgresStore) ReleaseStale(before time.Time) (int64, error) {
	result, err := s.db.Exec(
		`DELETE FROM processed_ids WHERE processed_at IS NULL AND claimed_at < $1`,
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

// Close closes the Postgres database connection.
func (s *PostgresStore) Close() error {
	return s.db.Close()
}
