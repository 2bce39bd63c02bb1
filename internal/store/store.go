// Package store provides deduplication storage backends for mediavault.
//
// It includes an in-memory store for tests, an append-only file log, and
// SQLite/PostgreSQL backends selected by DSN shape.
package store

import (
	"strings"
	"sync"
	"time"
)

// DedupRepo defines the interface for inbound message deduplication.
//
// Claim is the load-bearing operation: it atomically reserves an id so that
// exactly one concurrent caller proceeds to fetch and persist. A claim is
// finalized with MarkProcessed on success or undone with Release on failure,
// so a redelivery of a failed id can be retried.
type DedupRepo interface {
	// IsProcessed reports whether persistence has completed for the id.
	// A store with no prior entries is an empty set, not an error.
	IsProcessed(messageID string) (bool, error)

	// Claim atomically reserves an id. Returns false if the id is already
	// claimed or processed; the loser must treat the event as a duplicate.
	Claim(messageID string) (bool, error)

	// MarkProcessed finalizes a claim after successful persistence.
	// Idempotent: marking an already-marked id is not an error.
	MarkProcessed(messageID string) error

	// Release undoes an unfinalized claim so the id can be claimed again.
	Release(messageID string) error

	// Close releases any resources held by the store.
	Close() error
}

// Opts holds configuration options for store backends.
type Opts struct {
	DSN string
}

// Option defines a configuration option for store backends.
type Option func(*Opts)

// WithSQLiteDSN sets the SQLite database file path.
func WithSQLiteDSN(dsn string) Option {
	return func(o *Opts) { o.DSN = dsn }
}

// WithPostgresDSN sets the PostgreSQL connection string.
func WithPostgresDSN(dsn string) Option {
	return func(o *Opts) { o.DSN = dsn }
}

// DetectDSNType classifies a DSN as "postgres" or "sqlite3" based on its
// shape. File paths are assumed to be SQLite databases.
func DetectDSNType(dsn string) string {
	if strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") || strings.Contains(dsn, "host=") {
		return "postgres"
	}
	return "sqlite3"
}

// InMemoryStore is a mutex-guarded in-memory DedupRepo with no durability.
// Used in tests and as the reference for claim semantics.
type InMemoryStore struct {
	mu        sync.Mutex
	processed map[string]time.Time
	pending   map[string]time.Time
}

// Compile-time check that InMemoryStore implements DedupRepo.
var _ DedupRepo = (*InMemoryStore)(nil)

// NewInMemoryStore creates an empty in-memory deduplication store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		processed: make(map[string]time.Time),
		pending:   make(map[string]time.Time),
	}
}

func (s *InMemoryStore) IsProcessed(messageID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.processed[messageID]
	return ok, nil
}

func (s *InMemoryStore) Claim(messageID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.processed[messageID]; ok {
		return false, nil
	}
	if _, ok := s.pending[messageID]; ok {
		return false, nil
	}
	s.pending[messageID] = time.Now()
	return true, nil
}

func (s *InMemoryStore) MarkProcessed(messageID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.pending, messageID)
	s.processed[messageID] = time.Now()
	return nil
}

func (s *InMemoryStore) Release(messageID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.pending, messageID)
	return nil
}

func (s *InMemoryStore) Close() error { return nil }
