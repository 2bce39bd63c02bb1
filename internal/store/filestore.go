package store

import (
	"bufio"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// FileStore is a DedupRepo backed by an append-only log of processed ids,
// one per line. The full set is held in memory and reloaded from the log on
// startup, so membership survives process restarts. Claims are in-memory
// only; a crash before MarkProcessed simply loses the claim, and redelivery
// retries the id.
type FileStore struct {
	mu        sync.Mutex
	path      string
	file      *os.File
	processed map[string]struct{}
	pending   map[string]time.Time
}

// Compile-time check that FileStore implements DedupRepo.
var _ DedupRepo = (*FileStore)(nil)

// NewFileStore opens (or creates) the append-only log at path and loads the
// processed id set from it.
func NewFileStore(path string) (*FileStore, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("creating dedup log directory: %w", err)
	}

	file, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR|os.O_APPEND, 0644)
	if err != nil {
		return nil, fmt.Errorf("opening dedup log %s: %w", path, err)
	}

	s := &FileStore{
		path:      path,
		file:      file,
		processed: make(map[string]struct{}),
		pending:   make(map[string]time.Time),
	}

	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		id := strings.TrimSpace(scanner.Text())
		if id != "" {
			s.processed[id] = struct{}{}
		}
	}
	if err := scanner.Err(); err != nil {
		file.Close()
		return nil, fmt.Errorf("reading dedup log %s: %w", path, err)
	}

	slog.Debug("FileStore loaded", "path", path, "processed_count", len(s.processed))
	return s, nil
}

func (s *FileStore) IsProcessed(messageID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.processed[messageID]
	return ok, nil
}

func (s *FileStore) Claim(messageID string) (bool, error) {
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

func (s *FileStore) MarkProcessed(messageID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.processed[messageID]; ok {
		delete(s.pending, messageID)
		return nil
	}

	if _, err := fmt.Fprintln(s.file, messageID); err != nil {
		return fmt.Errorf("appending to dedup log %s: %w", s.path, err)
	}
	if err := s.file.Sync(); err != nil {
		slog.Warn("FileStore.MarkProcessed: sync failed", "path", s.path, "error", err)
	}

	delete(s.pending, messageID)
	s.processed[messageID] = struct{}{}
	return nil
}

func (s *FileStore) Release(messageID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.pending, messageID)
	return nil
}

// Close closes the underlying log file.
func (s *FileStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.file.Close()
}
