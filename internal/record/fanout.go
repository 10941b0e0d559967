package record

import (
	"fmt"

	"github.com/crewbase/crewbase/internal/document"
	"github.com/crewbase/crewbase/internal/schema"
	"github.com/crewbase/crewbase/internal/store"
)

// reconcileMode selects the fan-out behavior for the parent operation
// in flight.
type reconcileMode int

const (
	// reconcileCreate upserts shadows only; a fresh parent has nothing
	// to delete.
	reconcileCreate reconcileMode = iota + 1
	// reconcileUpdate upserts shadows for the array and deletes the
	// shadows the array no longer implies.
	reconcileUpdate
	// reconcileDelete removes every shadow of the parent.
	reconcileDelete
)

// reconcileChildren makes the persisted shadow documents of a parent
// exactly match its embedded-child array, inside the parent's own
// transaction. After commit the shadow key set equals the array's key
// set - no orphans, no omissions - or the whole parent write rolled
// back with a ReconciliationError.
//
// Existing shadow fields not present in the incoming array entry (a
// per-child status sub-object the parent edit never touches) survive
// the upsert: the merge is shallow, entry keys win, everything else is
// preserved.
func (b *Base) reconcileChildren(tx *store.Tx, spec *schema.CollectionSpec, parent *document.Record, mode reconcileMode) error {
	child := spec.Children

	if mode == reconcileDelete {
		shadows, err := tx.Query(child.Collection, store.Eq(child.ParentField, parent.ID))
		if err != nil {
			return newReconciliationError(spec.Name, parent.ID, err)
		}
		for _, s := range shadows {
			if err := tx.Delete(child.Collection, s.ID); err != nil {
				return newReconciliationError(spec.Name, parent.ID, err)
			}
		}
		return nil
	}

	existing := make(map[string]document.Record)
	if mode == reconcileUpdate {
		shadows, err := tx.Query(child.Collection, store.Eq(child.ParentField, parent.ID))
		if err != nil {
			return newReconciliationError(spec.Name, parent.ID, err)
		}
		for _, s := range shadows {
			existing[s.ID] = s
		}
	}

	childSpec := b.registry[child.Collection]

	want := make(map[string]bool)
	for i, e := range parent.Array(child.ArrayField) {
		entry, ok := e.(map[string]any)
		if !ok {
			return newReconciliationError(spec.Name, parent.ID,
				fmt.Errorf("%s[%d] is not an object", child.ArrayField, i))
		}
		key, _ := entry[child.KeyField].(string)
		if key == "" {
			return newReconciliationError(spec.Name, parent.ID,
				fmt.Errorf("%s[%d] is missing key field %q", child.ArrayField, i, child.KeyField))
		}

		shadowID := child.ShadowID(parent.ID, key)
		want[shadowID] = true

		fields := make(document.Fields, len(entry)+1)
		if prev, ok := existing[shadowID]; ok {
			fields = prev.Fields.Clone()
		}
		// Last-writer-wins per field: the incoming entry overwrites at
		// the top level, preserved fields stay as stored.
		for k, v := range entry {
			fields[k] = v
		}
		fields[child.ParentField] = parent.ID

		shadow := document.Record{
			ID:        shadowID,
			Fields:    fields,
			CreatedAt: parent.UpdatedAt,
			CreatedBy: parent.UpdatedBy,
			UpdatedAt: parent.UpdatedAt,
			UpdatedBy: parent.UpdatedBy,
		}
		if prev, ok := existing[shadowID]; ok {
			shadow.CreatedAt = prev.CreatedAt
			shadow.CreatedBy = prev.CreatedBy
		}

		if childSpec != nil {
			b.stampTokens(childSpec, shadow.Fields)
		}

		if err := tx.Put(child.Collection, &shadow); err != nil {
			return newReconciliationError(spec.Name, parent.ID, err)
		}
	}

	if mode == reconcileUpdate {
		for id := range existing {
			if !want[id] {
				if err := tx.Delete(child.Collection, id); err != nil {
					return newReconciliationError(spec.Name, parent.ID, err)
				}
			}
		}
	}
	return nil
}
