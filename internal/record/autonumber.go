package record

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/crewbase/crewbase/internal/document"
	"github.com/crewbase/crewbase/internal/schema"
	"github.com/crewbase/crewbase/internal/store"
)

// CounterCollection holds one counter document per auto-numbered
// collection, keyed by the target collection's name.
const CounterCollection = "autonumber"

// Counter document fields.
const (
	counterCurrent = "current"
	counterLength  = "length"
	counterField   = "field"
	counterEnabled = "enabled"
)

// allocateNumber draws the next sequential code inside the creating
// transaction. An absent or disabled counter allocates nothing.
// Overflow of the declared digit length aborts the whole transaction:
// the counter advance rolls back with the record, so a failed create
// never burns a number.
func (b *Base) allocateNumber(tx *store.Tx, spec *schema.CollectionSpec, now time.Time) (string, error) {
	counter, ok, err := tx.Get(CounterCollection, spec.Name)
	if err != nil {
		return "", err
	}
	if !ok {
		return "", nil
	}
	if enabled, _ := counter.Fields[counterEnabled].(bool); !enabled {
		return "", nil
	}

	length := int(counter.Int(counterLength))
	if length <= 0 {
		length = spec.AutoNumber.Length
	}

	next := counter.Int(counterCurrent) + 1
	if len(strconv.FormatInt(next, 10)) > length {
		return "", newAllocatorExhaustedError(spec.Name, length)
	}

	counter.Fields[counterCurrent] = next
	counter.UpdatedAt = now
	counter.UpdatedBy = b.author
	if err := tx.Put(CounterCollection, &counter); err != nil {
		return "", err
	}

	return fmt.Sprintf("%0*d", length, next), nil
}

// AutonumberStart enables allocation for a collection, creating the
// counter document from the declaration if it does not exist yet.
func (b *Base) AutonumberStart(ctx context.Context, collection string) error {
	spec, err := b.autonumberSpec(collection)
	if err != nil {
		return err
	}
	return b.wrapTxErr(collection, b.store.RunInTransaction(ctx, func(tx *store.Tx) error {
		counter, ok, err := tx.Get(CounterCollection, collection)
		if err != nil {
			return err
		}
		if !ok {
			counter = b.newCounter(collection, spec)
		}
		counter.Fields[counterEnabled] = true
		counter.UpdatedAt = b.now()
		counter.UpdatedBy = b.author
		return tx.Put(CounterCollection, &counter)
	}))
}

// AutonumberStop disables allocation; creates continue without a code.
// The counter value is preserved for a later start.
func (b *Base) AutonumberStop(ctx context.Context, collection string) error {
	spec, err := b.autonumberSpec(collection)
	if err != nil {
		return err
	}
	return b.wrapTxErr(collection, b.store.RunInTransaction(ctx, func(tx *store.Tx) error {
		counter, ok, err := tx.Get(CounterCollection, collection)
		if err != nil {
			return err
		}
		if !ok {
			counter = b.newCounter(collection, spec)
		}
		counter.Fields[counterEnabled] = false
		counter.UpdatedAt = b.now()
		counter.UpdatedBy = b.author
		return tx.Put(CounterCollection, &counter)
	}))
}

// AutonumberRefresh re-synchronizes the counter and returns its new
// value. With an explicit value the counter is set to it; without one,
// current is recomputed as the maximum code already present in the
// target collection, which makes allocation safe again after a bulk
// import.
func (b *Base) AutonumberRefresh(ctx context.Context, collection string, explicit *int64) (int64, error) {
	spec, err := b.autonumberSpec(collection)
	if err != nil {
		return 0, err
	}

	current := int64(0)
	if explicit != nil {
		current = *explicit
	} else {
		recs, err := b.store.Query(ctx, collection)
		if err != nil {
			return 0, err
		}
		for _, rec := range recs {
			code := rec.String(spec.AutoNumber.Field)
			n, err := strconv.ParseInt(code, 10, 64)
			if err != nil {
				continue
			}
			if n > current {
				current = n
			}
		}
	}

	return current, b.wrapTxErr(collection, b.store.RunInTransaction(ctx, func(tx *store.Tx) error {
		counter, ok, err := tx.Get(CounterCollection, collection)
		if err != nil {
			return err
		}
		if !ok {
			counter = b.newCounter(collection, spec)
		}
		counter.Fields[counterCurrent] = current
		counter.UpdatedAt = b.now()
		counter.UpdatedBy = b.author
		return tx.Put(CounterCollection, &counter)
	}))
}

func (b *Base) autonumberSpec(collection string) (*schema.CollectionSpec, error) {
	spec, err := b.registry.Lookup(collection)
	if err != nil {
		return nil, err
	}
	if spec.AutoNumber == nil {
		return nil, fmt.Errorf("collection %q is not auto-numbered", collection)
	}
	return spec, nil
}

func (b *Base) newCounter(collection string, spec *schema.CollectionSpec) document.Record {
	now := b.now()
	return document.Record{
		ID: collection,
		Fields: document.Fields{
			counterCurrent: int64(0),
			counterLength:  int64(spec.AutoNumber.Length),
			counterField:   spec.AutoNumber.Field,
			counterEnabled: true,
		},
		CreatedAt: now,
		CreatedBy: b.author,
		UpdatedAt: now,
		UpdatedBy: b.author,
	}
}
