package record

import (
	"context"

	"github.com/crewbase/crewbase/internal/document"
)

// Hooks attaches entity-specific behavior to the generic lifecycle.
//
// Before-hooks run outside the write transaction, may mutate the
// record's fields (derived keys, denormalized names), and abort the
// operation by returning an error. After-hooks run once the write has
// committed; they cannot abort anything and must log their own
// failures. Rollup triggers belong in after-hooks.
//
// Hooks may re-enter the Base (fetching related records); they must not
// hold references to the record past the call.
type Hooks interface {
	BeforeCreate(ctx context.Context, view ReadOnlyView, rec *document.Record) error
	AfterCreate(ctx context.Context, rec document.Record)

	BeforeUpdate(ctx context.Context, view ReadOnlyView, rec *document.Record) error
	// AfterUpdate receives the stored record as it was before the merge,
	// so hooks can react to partition fields moving.
	AfterUpdate(ctx context.Context, prev, rec document.Record)

	BeforeDelete(ctx context.Context, view ReadOnlyView, rec document.Record) error
	AfterDelete(ctx context.Context, rec document.Record)
}

// NopHooks implements Hooks with no-ops. Embed it and override the
// lifecycle points the entity cares about.
type NopHooks struct{}

func (NopHooks) BeforeCreate(context.Context, ReadOnlyView, *document.Record) error { return nil }
func (NopHooks) AfterCreate(context.Context, document.Record) {}
func (NopHooks) BeforeUpdate(context.Context, ReadOnlyView, *document.Record) error { return nil }
func (NopHooks) AfterUpdate(context.Context, document.Record, document.Record) {}
func (NopHooks) BeforeDelete(context.Context, ReadOnlyView, document.Record) error { return nil }
func (NopHooks) AfterDelete(context.Context, document.Record) {}

