package feed

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/crewbase/crewbase/internal/document"
	"github.com/crewbase/crewbase/internal/store"
)

const (
	waitFor = 2 * time.Second
	tick    = 10 * time.Millisecond
)

func createTestStore(t *testing.T) *store.Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := store.Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func put(t *testing.T, s *store.Store, collection, id string, fields document.Fields) {
	t.Helper()
	now := time.Date(2026, 3, 15, 12, 0, 0, 0, time.UTC)
	rec := document.Record{
		ID: id, Fields: fields,
		CreatedAt: now, CreatedBy: "tester",
		UpdatedAt: now, UpdatedBy: "tester",
	}
	if err := s.RunInTransaction(context.Background(), func(tx *store.Tx) error {
		return tx.Put(collection, &rec)
	}); err != nil {
		t.Fatalf("put %s/%s: %v", collection, id, err)
	}
}

func remove(t *testing.T, s *store.Store, collection, id string) {
	t.Helper()
	if err := s.RunInTransaction(context.Background(), func(tx *store.Tx) error {
		return tx.Delete(collection, id)
	}); err != nil {
		t.Fatalf("delete %s/%s: %v", collection, id, err)
	}
}

func ids(recs []document.Record) []string {
	out := make([]string, len(recs))
	for i, r := range recs {
		out[i] = r.ID
	}
	return out
}

func TestProjector_SeedsExistingRecords(t *testing.T) {
	s := createTestStore(t)
	put(t, s, "employees", "a", document.Fields{"name": "A"})
	put(t, s, "employees", "b", document.Fields{"name": "B"})

	p, err := Start(context.Background(), s, "employees")
	require.NoError(t, err)
	defer p.Stop()

	assert.Equal(t, []string{"a", "b"}, ids(p.Snapshot()))
}

func TestProjector_FollowsChanges(t *testing.T) {
	s := createTestStore(t)
	p, err := Start(context.Background(), s, "employees")
	require.NoError(t, err)
	defer p.Stop()

	put(t, s, "employees", "a", document.Fields{"name": "A"})
	put(t, s, "employees", "b", document.Fields{"name": "B"})
	require.Eventually(t, func() bool { return p.Len() == 2 }, waitFor, tick)

	put(t, s, "employees", "a", document.Fields{"name": "A2"})
	require.Eventually(t, func() bool {
		snap := p.Snapshot()
		return len(snap) == 2 && snap[0].String("name") == "A2"
	}, waitFor, tick, "modify replaces in place, preserving order")

	remove(t, s, "employees", "a")
	require.Eventually(t, func() bool {
		snap := p.Snapshot()
		return len(snap) == 1 && snap[0].ID == "b"
	}, waitFor, tick)
}

// A record is never mirrored twice: an add delivered after the seed
// query already saw the record, and repeated modifies, all converge on
// one copy.
func TestProjector_IdempotentUpserts(t *testing.T) {
	s := createTestStore(t)
	p, err := Start(context.Background(), s, "employees")
	require.NoError(t, err)
	defer p.Stop()

	put(t, s, "employees", "x", document.Fields{"name": "X"})
	put(t, s, "employees", "x", document.Fields{"name": "X2"})
	put(t, s, "employees", "x", document.Fields{"name": "X3"})

	require.Eventually(t, func() bool {
		snap := p.Snapshot()
		return len(snap) == 1 && snap[0].String("name") == "X3"
	}, waitFor, tick)
	assert.Equal(t, 1, p.Len())
}

func TestProjector_FilterMembership(t *testing.T) {
	s := createTestStore(t)
	p, err := Start(context.Background(), s, "employees", store.Eq("status", "active"))
	require.NoError(t, err)
	defer p.Stop()

	put(t, s, "employees", "a", document.Fields{"name": "A", "status": "active"})
	put(t, s, "employees", "b", document.Fields{"name": "B", "status": "retired"})
	require.Eventually(t, func() bool { return p.Len() == 1 }, waitFor, tick)
	assert.Equal(t, []string{"a"}, ids(p.Snapshot()))

	// A modify that leaves the filtered set must splice the record out.
	put(t, s, "employees", "a", document.Fields{"name": "A", "status": "retired"})
	require.Eventually(t, func() bool { return p.Len() == 0 }, waitFor, tick)

	// And one that re-enters re-appends it.
	put(t, s, "employees", "a", document.Fields{"name": "A", "status": "active"})
	require.Eventually(t, func() bool { return p.Len() == 1 }, waitFor, tick)
}

func TestProjector_StopIsDeterministic(t *testing.T) {
	s := createTestStore(t)
	p, err := Start(context.Background(), s, "employees")
	require.NoError(t, err)

	put(t, s, "employees", "a", document.Fields{"name": "A"})
	require.Eventually(t, func() bool { return p.Len() == 1 }, waitFor, tick)

	p.Stop()
	assert.Zero(t, p.Len(), "stopped projector holds nothing")

	// Writes after Stop never reach the mirror.
	put(t, s, "employees", "b", document.Fields{"name": "B"})
	time.Sleep(50 * time.Millisecond)
	assert.Zero(t, p.Len())

	// Stop is idempotent.
	p.Stop()
}

func TestProjector_ScopedToCollection(t *testing.T) {
	s := createTestStore(t)
	p, err := Start(context.Background(), s, "employees")
	require.NoError(t, err)
	defer p.Stop()

	put(t, s, "sites", "s1", document.Fields{"name": "North"})
	time.Sleep(50 * time.Millisecond)
	assert.Zero(t, p.Len())
}
