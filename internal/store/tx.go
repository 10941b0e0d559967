package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/crewbase/crewbase/internal/document"
)

// maxTxAttempts bounds the contention retry loop. Five attempts with
// linear backoff rides out transient writer overlap; anything longer
// is a stuck writer the caller should hear about.
const maxTxAttempts = 5

// Tx is the handle passed to a RunInTransaction body. All reads see the
// snapshot taken at BEGIN; all writes commit together or not at all.
//
// A Tx must not escape its transaction body.
type Tx struct {
	ctx     context.Context
	tx      *sql.Tx
	store   *Store
	pending []Change
}

// RunInTransaction executes fn inside one atomic store transaction.
//
// On write contention (SQLITE_BUSY/LOCKED) the whole body is retried
// from scratch, up to maxTxAttempts, with linear backoff; fn must
// therefore be safe to re-execute. Any other error from fn aborts the
// transaction and is returned unchanged.
//
// After a successful commit, the changes written by the body are
// published to watchers.
func (s *Store) RunInTransaction(ctx context.Context, fn func(tx *Tx) error) error {
	var lastErr error
	for attempt := 1; attempt <= maxTxAttempts; attempt++ {
		changes, err := s.runOnce(ctx, fn)
		if err == nil {
			s.notifier.publish(changes)
			return nil
		}
		if !IsContention(err) {
			return err
		}
		lastErr = err
		slog.Debug("transaction contention, retrying",
			"attempt", attempt,
			"max_attempts", maxTxAttempts,
		)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Duration(attempt) * 10 * time.Millisecond):
		}
	}
	return fmt.Errorf("transaction contention after %d attempts: %w", maxTxAttempts, lastErr)
}

func (s *Store) runOnce(ctx context.Context, fn func(tx *Tx) error) ([]Change, error) {
	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}
	defer sqlTx.Rollback() // No-op if committed

	t := &Tx{ctx: ctx, tx: sqlTx, store: s}
	if err := fn(t); err != nil {
		return nil, err
	}

	if err := sqlTx.Commit(); err != nil {
		return nil, fmt.Errorf("commit transaction: %w", err)
	}
	return t.pending, nil
}

// Get returns a single document from the transaction snapshot.
func (t *Tx) Get(collection, id string) (document.Record, bool, error) {
	return getDocument(t.ctx, t.tx, collection, id)
}

// Query returns matching documents from the transaction snapshot.
func (t *Tx) Query(collection string, filters ...Filter) ([]document.Record, error) {
	return queryDocuments(t.ctx, t.tx, collection, 0, filters)
}

// Put upserts a document. The record's Seq is stamped from the change
// clock; on an existing document the created columns are left untouched
// regardless of what the record carries.
func (t *Tx) Put(collection string, rec *document.Record) error {
	if rec.ID == "" {
		return fmt.Errorf("put %s: empty id", collection)
	}
	body, err := json.Marshal(rec.Fields)
	if err != nil {
		return fmt.Errorf("put %s/%s: encode body: %w", collection, rec.ID, err)
	}

	var exists bool
	err = t.tx.QueryRowContext(t.ctx, `
		SELECT EXISTS (SELECT 1 FROM documents WHERE collection = ? AND id = ?)
	`, collection, rec.ID).Scan(&exists)
	if err != nil {
		return fmt.Errorf("put %s/%s: %w", collection, rec.ID, err)
	}

	rec.Seq = t.store.clock.Next()

	// created_* survives the conflict branch; only the mutable columns
	// follow the write.
	_, err = t.tx.ExecContext(t.ctx, `
		INSERT INTO documents
		(collection, id, body, created_at, created_by, updated_at, updated_by, seq)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(collection, id) DO UPDATE SET
			body = excluded.body,
			updated_at = excluded.updated_at,
			updated_by = excluded.updated_by,
			seq = excluded.seq
	`,
		collection,
		rec.ID,
		string(body),
		rec.CreatedAt.UTC().Format(time.RFC3339Nano),
		rec.CreatedBy,
		rec.UpdatedAt.UTC().Format(time.RFC3339Nano),
		rec.UpdatedBy,
		rec.Seq,
	)
	if err != nil {
		return fmt.Errorf("put %s/%s: %w", collection, rec.ID, err)
	}

	typ := Added
	if exists {
		typ = Modified
	}
	t.pending = append(t.pending, Change{Type: typ, Collection: collection, Record: *rec})
	return nil
}

// Delete removes a document. Deleting an absent document is a no-op;
// existence-guarded deletion is the record layer's concern.
func (t *Tx) Delete(collection, id string) error {
	rec, ok, err := t.Get(collection, id)
	if err != nil {
		return fmt.Errorf("delete %s/%s: %w", collection, id, err)
	}
	if !ok {
		return nil
	}

	if _, err := t.tx.ExecContext(t.ctx, `
		DELETE FROM documents WHERE collection = ? AND id = ?
	`, collection, id); err != nil {
		return fmt.Errorf("delete %s/%s: %w", collection, id, err)
	}

	rec.Seq = t.store.clock.Next()
	t.pending = append(t.pending, Change{Type: Removed, Collection: collection, Record: rec})
	return nil
}
