package store

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/crewbase/crewbase/internal/document"
)

// createTestStore creates a file-backed store in a temp directory.
func createTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// createTestRecord creates a record with minimal metadata.
func createTestRecord(id string, fields document.Fields) document.Record {
	now := time.Date(2026, 3, 15, 12, 0, 0, 0, time.UTC)
	return document.Record{
		ID:        id,
		Fields:    fields,
		CreatedAt: now,
		CreatedBy: "tester",
		UpdatedAt: now,
		UpdatedBy: "tester",
	}
}
