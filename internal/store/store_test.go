package store

import (
	"context"
	"path/filepath"
	"testing"
)

func TestOpen_CreatesDatabase(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	defer s.Close()

	var mode string
	if err := s.db.QueryRow("PRAGMA journal_mode").Scan(&mode); err != nil {
		t.Fatalf("journal_mode query failed: %v", err)
	}
	if mode != "wal" {
		t.Errorf("journal_mode = %q, want %q", mode, "wal")
	}
}

func TestOpen_ResumesClock(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}

	ctx := context.Background()
	err = s.RunInTransaction(ctx, func(tx *Tx) error {
		rec := createTestRecord("a", map[string]any{"n": int64(1)})
		if err := tx.Put("things", &rec); err != nil {
			return err
		}
		rec2 := createTestRecord("b", map[string]any{"n": int64(2)})
		return tx.Put("things", &rec2)
	})
	if err != nil {
		t.Fatalf("RunInTransaction() failed: %v", err)
	}
	lastSeq := s.Clock().Current()
	if err := s.Close(); err != nil {
		t.Fatalf("Close() failed: %v", err)
	}

	reopened, err := Open(path)
	if err != nil {
		t.Fatalf("reopen failed: %v", err)
	}
	defer reopened.Close()

	if got := reopened.Clock().Current(); got != lastSeq {
		t.Errorf("resumed clock = %d, want %d", got, lastSeq)
	}
	if next := reopened.Clock().Next(); next != lastSeq+1 {
		t.Errorf("Next() after resume = %d, want %d", next, lastSeq+1)
	}
}

func TestNewID_Unique(t *testing.T) {
	s := createTestStore(t)

	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		id := s.NewID()
		if id == "" {
			t.Fatal("NewID() returned empty string")
		}
		if seen[id] {
			t.Fatalf("NewID() repeated %q", id)
		}
		seen[id] = true
	}
}

func TestFixedIDs(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(path, WithIDGenerator(NewFixedIDs("one", "two")))
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	defer s.Close()

	if got := s.NewID(); got != "one" {
		t.Errorf("NewID() = %q, want %q", got, "one")
	}
	if got := s.NewID(); got != "two" {
		t.Errorf("NewID() = %q, want %q", got, "two")
	}
}
