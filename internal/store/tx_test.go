package store

import (
	"context"
	"errors"
	"testing"

	"github.com/crewbase/crewbase/internal/document"
)

func TestPut_RoundTrip(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	rec := createTestRecord("emp-1", document.Fields{
		"name":  "Sato",
		"hours": 7.5,
		"tags":  []any{"night", "forklift"},
	})
	err := s.RunInTransaction(ctx, func(tx *Tx) error {
		return tx.Put("employees", &rec)
	})
	if err != nil {
		t.Fatalf("RunInTransaction() failed: %v", err)
	}

	got, ok, err := s.Get(ctx, "employees", "emp-1")
	if err != nil {
		t.Fatalf("Get() failed: %v", err)
	}
	if !ok {
		t.Fatal("Get() found nothing")
	}
	if got.String("name") != "Sato" {
		t.Errorf("name = %q, want %q", got.String("name"), "Sato")
	}
	if got.Decimal("hours") != 7.5 {
		t.Errorf("hours = %v, want 7.5", got.Decimal("hours"))
	}
	if tags := got.Array("tags"); len(tags) != 2 {
		t.Errorf("tags = %v, want 2 entries", tags)
	}
	if got.Seq == 0 {
		t.Error("seq was not stamped")
	}
	if got.CreatedBy != "tester" || got.UpdatedBy != "tester" {
		t.Errorf("author metadata = %q/%q, want tester", got.CreatedBy, got.UpdatedBy)
	}
}

func TestPut_UpdatePreservesCreatedMetadata(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	rec := createTestRecord("emp-1", document.Fields{"name": "Sato"})
	if err := s.RunInTransaction(ctx, func(tx *Tx) error {
		return tx.Put("employees", &rec)
	}); err != nil {
		t.Fatalf("initial put failed: %v", err)
	}

	updated := createTestRecord("emp-1", document.Fields{"name": "Satou"})
	updated.UpdatedBy = "editor"
	if err := s.RunInTransaction(ctx, func(tx *Tx) error {
		return tx.Put("employees", &updated)
	}); err != nil {
		t.Fatalf("second put failed: %v", err)
	}

	got, _, err := s.Get(ctx, "employees", "emp-1")
	if err != nil {
		t.Fatalf("Get() failed: %v", err)
	}
	if got.String("name") != "Satou" {
		t.Errorf("name = %q, want %q", got.String("name"), "Satou")
	}
	if got.CreatedBy != "tester" {
		t.Errorf("CreatedBy = %q, want original %q", got.CreatedBy, "tester")
	}
	if got.UpdatedBy != "editor" {
		t.Errorf("UpdatedBy = %q, want %q", got.UpdatedBy, "editor")
	}
}

func TestRunInTransaction_RollsBackOnError(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	boom := errors.New("boom")
	err := s.RunInTransaction(ctx, func(tx *Tx) error {
		rec := createTestRecord("emp-1", document.Fields{"name": "Sato"})
		if err := tx.Put("employees", &rec); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("RunInTransaction() = %v, want wrapped boom", err)
	}

	_, ok, err := s.Get(ctx, "employees", "emp-1")
	if err != nil {
		t.Fatalf("Get() failed: %v", err)
	}
	if ok {
		t.Error("record survived a rolled-back transaction")
	}
}

func TestDelete(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	rec := createTestRecord("emp-1", document.Fields{"name": "Sato"})
	if err := s.RunInTransaction(ctx, func(tx *Tx) error {
		return tx.Put("employees", &rec)
	}); err != nil {
		t.Fatalf("put failed: %v", err)
	}

	if err := s.RunInTransaction(ctx, func(tx *Tx) error {
		return tx.Delete("employees", "emp-1")
	}); err != nil {
		t.Fatalf("delete failed: %v", err)
	}

	_, ok, err := s.Get(ctx, "employees", "emp-1")
	if err != nil {
		t.Fatalf("Get() failed: %v", err)
	}
	if ok {
		t.Error("record still present after delete")
	}

	// Deleting an absent record is a no-op, not an error.
	if err := s.RunInTransaction(ctx, func(tx *Tx) error {
		return tx.Delete("employees", "emp-1")
	}); err != nil {
		t.Errorf("delete of absent record failed: %v", err)
	}
}

func TestTx_ReadsSeeUncommittedWrites(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	err := s.RunInTransaction(ctx, func(tx *Tx) error {
		rec := createTestRecord("emp-1", document.Fields{"name": "Sato"})
		if err := tx.Put("employees", &rec); err != nil {
			return err
		}
		got, ok, err := tx.Get("employees", "emp-1")
		if err != nil {
			return err
		}
		if !ok {
			t.Error("Get() inside tx did not see the pending write")
		}
		if got.String("name") != "Sato" {
			t.Errorf("name inside tx = %q, want %q", got.String("name"), "Sato")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("RunInTransaction() failed: %v", err)
	}
}

func TestSeq_StrictlyIncreasing(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	for i, id := range []string{"a", "b", "c"} {
		rec := createTestRecord(id, document.Fields{"n": int64(i)})
		if err := s.RunInTransaction(ctx, func(tx *Tx) error {
			return tx.Put("things", &rec)
		}); err != nil {
			t.Fatalf("put %s failed: %v", id, err)
		}
	}

	recs, err := s.Query(ctx, "things")
	if err != nil {
		t.Fatalf("Query() failed: %v", err)
	}
	if len(recs) != 3 {
		t.Fatalf("got %d records, want 3", len(recs))
	}
	for i := 1; i < len(recs); i++ {
		if recs[i].Seq <= recs[i-1].Seq {
			t.Errorf("seq not increasing: %d then %d", recs[i-1].Seq, recs[i].Seq)
		}
	}
}
