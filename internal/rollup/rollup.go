// Package rollup recomputes derived summary records whenever the
// finer-grained records they fold over change.
//
// A summary is never patched: every recompute re-queries the leaves
// sharing the partition key and overwrites the summary wholesale, so a
// summary is either absent (no leaves) or exactly the fold over the
// leaves that exist right now. Levels chain into a cascade - a day
// write recomputes the month, the month write recomputes the year.
//
// Recomputes run after the leaf's own transaction has committed and
// are eventually consistent with respect to concurrent leaf writes:
// whichever recompute runs last folds the final leaf set.
package rollup

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/crewbase/crewbase/internal/document"
	"github.com/crewbase/crewbase/internal/store"
)

// Level declares one aggregation step: leaves sharing a partition key
// fold into one summary document whose id is the partition key.
type Level struct {
	// Leaf is the collection being folded.
	Leaf string

	// Summary is the collection receiving the fold.
	Summary string

	// PartitionField is the leaf field holding the partition key.
	PartitionField string

	// SumFields are numeric leaf fields summed into the summary.
	SumFields []string

	// MapFields are per-category total maps; each category sums
	// independently across leaves.
	MapFields []string

	// CountField, when set, receives the number of folded leaves.
	CountField string

	// Roll derives the next cascade level's partition key from this
	// level's. Nil ends the cascade.
	Roll func(partition string) string

	// RollField is the summary field that carries the derived parent
	// partition key, making the summary queryable as the next level's
	// leaf. Required when Roll is set.
	RollField string

	// Annotate, when set, stamps additional fields on the summary
	// (identifiers recovered from the partition key, display keys).
	Annotate func(partition string, fields document.Fields)
}

// Roller owns the registered cascade and recomputes summaries.
type Roller struct {
	store  *store.Store
	author string
	levels []Level
	wg     sync.WaitGroup
	now    func() time.Time
}

// New creates a roller writing summaries as the given author.
func New(s *store.Store, author string) *Roller {
	return &Roller{store: s, author: author, now: time.Now}
}

// Register appends a level to the cascade. Levels are looked up by
// leaf collection; registering two levels over one leaf is a
// programming error and panics at wiring time.
func (r *Roller) Register(level Level) {
	if r.levelFor(level.Leaf) != nil {
		panic(fmt.Sprintf("rollup: duplicate level for leaf %q", level.Leaf))
	}
	if level.Roll != nil && level.RollField == "" {
		panic(fmt.Sprintf("rollup: level %q rolls up without a roll field", level.Leaf))
	}
	r.levels = append(r.levels, level)
}

func (r *Roller) levelFor(leaf string) *Level {
	for i := range r.levels {
		if r.levels[i].Leaf == leaf {
			return &r.levels[i]
		}
	}
	return nil
}

// Trigger schedules an asynchronous recompute. Failures are logged,
// not returned: the leaf write that caused the trigger has already
// committed, and the next leaf write re-derives the same summary.
func (r *Roller) Trigger(leaf, partition string) {
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		if err := r.Recompute(context.Background(), leaf, partition); err != nil {
			slog.Error("rollup recompute failed",
				"leaf", leaf,
				"partition", partition,
				"error", err,
			)
		}
	}()
}

// Wait blocks until every triggered recompute has finished.
// Tests and shutdown use it; steady-state callers never need to.
func (r *Roller) Wait() {
	r.wg.Wait()
}

// Recompute re-derives the summary for one partition and cascades
// upward. The fold and the summary overwrite share one transaction,
// so readers never observe a partially updated summary.
func (r *Roller) Recompute(ctx context.Context, leaf, partition string) error {
	level := r.levelFor(leaf)
	if level == nil {
		return fmt.Errorf("rollup: no level registered for leaf %q", leaf)
	}

	err := r.store.RunInTransaction(ctx, func(tx *store.Tx) error {
		leaves, err := tx.Query(level.Leaf, store.Eq(level.PartitionField, partition))
		if err != nil {
			return err
		}

		// An aggregate over zero siblings does not exist.
		if len(leaves) == 0 {
			return tx.Delete(level.Summary, partition)
		}

		fields := r.fold(level, leaves)
		fields[level.PartitionField] = partition
		if level.Roll != nil {
			fields[level.RollField] = level.Roll(partition)
		}
		if level.Annotate != nil {
			level.Annotate(partition, fields)
		}

		now := r.now()
		summary := document.Record{
			ID:        partition,
			Fields:    fields,
			CreatedAt: now,
			CreatedBy: r.author,
			UpdatedAt: now,
			UpdatedBy: r.author,
		}
		if prev, ok, err := tx.Get(level.Summary, partition); err != nil {
			return err
		} else if ok {
			summary.CreatedAt = prev.CreatedAt
			summary.CreatedBy = prev.CreatedBy
		}
		return tx.Put(level.Summary, &summary)
	})
	if err != nil {
		return fmt.Errorf("recompute %s/%s: %w", level.Summary, partition, err)
	}

	slog.Debug("rollup recomputed",
		"summary", level.Summary,
		"partition", partition,
	)

	// Cascade: the summary is the next level's leaf.
	if level.Roll != nil && r.levelFor(level.Summary) != nil {
		return r.Recompute(ctx, level.Summary, level.Roll(partition))
	}
	return nil
}

// fold computes the summary body: numeric fields sum, category maps
// sum per category. No rounding; presentation rounds, the core never
// does.
func (r *Roller) fold(level *Level, leaves []document.Record) document.Fields {
	fields := make(document.Fields)

	for _, f := range level.SumFields {
		total := float64(0)
		for _, leaf := range leaves {
			total += leaf.Decimal(f)
		}
		fields[f] = total
	}

	for _, f := range level.MapFields {
		totals := make(map[string]any)
		for _, leaf := range leaves {
			for category, v := range leaf.Map(f) {
				n, ok := asNumber(v)
				if !ok {
					continue
				}
				prev, _ := asNumber(totals[category])
				totals[category] = prev + n
			}
		}
		fields[f] = totals
	}

	if level.CountField != "" {
		fields[level.CountField] = int64(len(leaves))
	}
	return fields
}

func asNumber(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int64:
		return float64(n), true
	case int:
		return float64(n), true
	default:
		return 0, false
	}
}
