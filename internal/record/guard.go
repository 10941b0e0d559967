package record

import (
	"context"
	"log/slog"

	"github.com/crewbase/crewbase/internal/document"
	"github.com/crewbase/crewbase/internal/schema"
	"github.com/crewbase/crewbase/internal/store"
)

// hasDependents is the referential integrity guard: for each has-many
// declaration on the record's collection it issues a bounded existence
// probe (limit 1) against the declared target with the declared match
// mode. The first declaration with a hit blocks the delete.
//
// A probe that fails logs and continues rather than blocking the
// delete; read-side helpers never turn a broken dependent collection
// into an undeletable record.
func (b *Base) hasDependents(ctx context.Context, spec *schema.CollectionSpec, rec document.Record) (*schema.HasManyDecl, error) {
	for _, decl := range spec.HasMany {
		var filter store.Filter
		switch decl.Match {
		case schema.MatchArrayContains:
			filter = store.ArrayContains(decl.Field, rec.ID)
		default:
			filter = store.Eq(decl.Field, rec.ID)
		}

		hits, err := b.store.QueryLimit(ctx, decl.Collection, 1, filter)
		if err != nil {
			slog.Warn("dependent probe failed, continuing",
				"collection", spec.Name,
				"id", rec.ID,
				"target", decl.Collection,
				"error", err,
			)
			continue
		}
		if len(hits) > 0 {
			d := decl
			return &d, nil
		}
	}
	return nil, nil
}
