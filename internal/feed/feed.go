// Package feed maintains live in-memory mirrors of filtered
// collection queries by applying committed change deltas from the
// store's watch feed.
package feed

import (
	"context"
	"log/slog"
	"sync"

	"github.com/crewbase/crewbase/internal/document"
	"github.com/crewbase/crewbase/internal/store"
)

// Projector mirrors one filtered collection query as an
// insertion-ordered array.
//
// The array never contains two records with the same identifier:
// added appends only if absent, modified replaces in place, removed
// splices out. A modified record that no longer satisfies the filters
// is spliced rather than retained stale.
//
// The owner must call Stop. Nothing times a projector out; leaking one
// leaks its array and its store-side subscription.
type Projector struct {
	collection string
	filters    []store.Filter
	sub        *store.Subscription

	mu      sync.Mutex
	records []document.Record

	done chan struct{}
}

// Start seeds a projector with the current query result, then applies
// deltas as they commit. Deltas for records already reflected in the
// seed snapshot re-apply harmlessly.
func Start(ctx context.Context, s *store.Store, collection string, filters ...store.Filter) (*Projector, error) {
	// Subscribe before the seed query: a write between the two shows up
	// as a duplicate delta, which apply absorbs, instead of a gap,
	// which nothing would.
	sub := s.Watch(collection)

	seed, err := s.Query(ctx, collection, filters...)
	if err != nil {
		sub.Stop()
		return nil, err
	}

	p := &Projector{
		collection: collection,
		filters:    filters,
		sub:        sub,
		records:    seed,
		done:       make(chan struct{}),
	}
	go p.run()
	return p, nil
}

func (p *Projector) run() {
	defer close(p.done)
	for change := range p.sub.C {
		p.apply(change)
	}
}

// apply folds one delta into the mirror. Idempotent: re-applying a
// delta leaves the mirror unchanged.
func (p *Projector) apply(change store.Change) {
	p.mu.Lock()
	defer p.mu.Unlock()

	idx := -1
	for i := range p.records {
		if p.records[i].ID == change.Record.ID {
			idx = i
			break
		}
	}

	switch change.Type {
	case store.Removed:
		if idx >= 0 {
			p.records = append(p.records[:idx], p.records[idx+1:]...)
		}
	default:
		// Added and Modified converge on upsert-or-splice: membership
		// is decided by the filters, not by the delta kind, so
		// out-of-order and duplicate delivery cannot double a record.
		if !store.Matches(change.Record, p.filters...) {
			if idx >= 0 {
				p.records = append(p.records[:idx], p.records[idx+1:]...)
			}
			return
		}
		if idx >= 0 {
			p.records[idx] = change.Record
		} else {
			p.records = append(p.records, change.Record)
		}
	}
}

// Snapshot returns a copy of the current mirror in insertion order.
func (p *Projector) Snapshot() []document.Record {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]document.Record, len(p.records))
	copy(out, p.records)
	return out
}

// Len returns the current mirror size.
func (p *Projector) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.records)
}

// Stop detaches the feed and empties the mirror deterministically: once
// Stop returns, no further delta is applied and Snapshot is empty.
// Safe to call more than once.
func (p *Projector) Stop() {
	p.sub.Stop()
	<-p.done

	p.mu.Lock()
	had := len(p.records)
	p.records = nil
	p.mu.Unlock()

	slog.Debug("projector stopped",
		"collection", p.collection,
		"records", had,
	)
}
