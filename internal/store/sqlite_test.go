package store

import (
	"path/filepath"
	"testing"
	"time"
)

func newTestSQLiteStore(t *testing.T) *SQLiteStore {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "dedup.db")
	s, err := NewSQLiteStore(WithSQLiteDSN(dbPath))
	if err != nil {
		t.Fatalf("NewSQLiteStore failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestSQLiteStore_RequiresDSN(t *testing.T) {
	if _, err := NewSQLiteStore(); err == nil {
		t.Error("expected error for missing DSN")
	}
}

func TestSQLiteStore_ClaimMarkLifecycle(t *testing.T) {
	s := newTestSQLiteStore(t)

	processed, err := s.IsProcessed("m1")
	if err != nil {
		t.Fatalf("IsProcessed failed: %v", err)
	}
	if processed {
		t.Error("fresh store reported id as processed")
	}

	claimed, err := s.Claim("m1")
	if err != nil {
		t.Fatalf("Claim failed: %v", err)
	}
	if !claimed {
		t.Fatal("first claim should succeed")
	}

	// Claimed but not yet marked: not processed, and no second winner.
	processed, _ = s.IsProcessed("m1")
	if processed {
		t.Error("claimed-but-unmarked id reported as processed")
	}
	if claimed, _ := s.Claim("m1"); claimed {
		t.Error("second claim should lose")
	}

	if err := s.MarkProcessed("m1"); err != nil {
		t.Fatalf("MarkProcessed failed: %v", err)
	}
	processed, _ = s.IsProcessed("m1")
	if !processed {
		t.Error("marked id not reported as processed")
	}
}

func TestSQLiteStore_ReleaseAllowsRetry(t *testing.T) {
	s := newTestSQLiteStore(t)

	if claimed, _ := s.Claim("m1"); !claimed {
		t.Fatal("first claim should succeed")
	}
	if err := s.Release("m1"); err != nil {
		t.Fatalf("Release failed: %v", err)
	}
	if claimed, _ := s.Claim("m1"); !claimed {
		t.Error("claim after release should succeed")
	}

	// Release must not delete finalized entries.
	if err := s.MarkProcessed("m1"); err != nil {
		t.Fatalf("MarkProcessed failed: %v", err)
	}
	if err := s.Release("m1"); err != nil {
		t.Fatalf("Release failed: %v", err)
	}
	processed, _ := s.IsProcessed("m1")
	if !processed {
		t.Error("Release removed a processed id")
	}
}

func TestSQLiteStore_ReleaseStale(t *testing.T) {
	s := newTestSQLiteStore(t)

	if claimed, _ := s.Claim("stale"); !claimed {
		t.Fatal("claim should succeed")
	}
	if claimed, _ := s.Claim("finished"); !claimed {
		t.Fatal("claim should succeed")
	}
	if err := s.MarkProcessed("finished"); err != nil {
		t.Fatalf("MarkProcessed failed: %v", err)
	}

	n, err := s.ReleaseStale(time.Now().Add(time.Minute))
	if err != nil {
		t.Fatalf("ReleaseStale failed: %v", err)
	}
	if n != 1 {
		t.Errorf("expected 1 stale claim released, got %d", n)
	}

	if claimed, _ := s.Claim("stale"); !claimed {
		t.Error("stale claim should be retryable after release")
	}
	processed, _ := s.IsProcessed("finished")
	if !processed {
		t.Error("ReleaseStale removed a processed id")
	}
}

func TestSQLiteStore_RestartConsistency(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "dedup.db")

	s1, err := NewSQLiteStore(WithSQLiteDSN(dbPath))
	if err != nil {
		t.Fatalf("NewSQLiteStore failed: %v", err)
	}
	if claimed, _ := s1.Claim("persisted-id"); !claimed {
		t.Fatal("claim should succeed")
	}
	if err := s1.MarkProcessed("persisted-id"); err != nil {
		t.Fatalf("MarkProcessed failed: %v", err)
	}
	s1.Close()

	s2, err := NewSQLiteStore(WithSQLiteDSN(dbPath))
	if err != nil {
		t.Fatalf("NewSQLiteStore reopen failed: %v", err)
	}
	defer s2.Close()

	processed, err := s2.IsProcessed("persisted-id")
	if err != nil {
		t.Fatalf("IsProcessed failed: %v", err)
	}
	if !processed {
		t.Error("id marked before restart not reported as processed after reopen")
	}
}

func TestSQLiteStore_AtomicClaim(t *testing.T) {
	s := newTestSQLiteStore(t)
	if wins := claimConcurrently(t, s, "race-1", 20); wins != 1 {
		t.Errorf("expected exactly 1 claim winner, got %d", wins)
	}
}
