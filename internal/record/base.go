package record

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/crewbase/crewbase/internal/document"
	"github.com/crewbase/crewbase/internal/feed"
	"github.com/crewbase/crewbase/internal/ngram"
	"github.com/crewbase/crewbase/internal/schema"
	"github.com/crewbase/crewbase/internal/store"
)

// ReadOnlyView is the capability handed to consumers that must not
// mutate records: fetch, query, and live subscription only.
type ReadOnlyView interface {
	FetchOne(ctx context.Context, collection, id string) (document.Record, bool, error)
	FetchMany(ctx context.Context, collection string, filters []store.Filter, searchText string) ([]document.Record, error)
	Subscribe(ctx context.Context, collection string, filters ...store.Filter) (*feed.Projector, error)
}

// Mutable is the full record API. Both interfaces are implemented by
// *Base; the split replaces variants that remove methods at runtime.
type Mutable interface {
	ReadOnlyView
	Create(ctx context.Context, collection string, fields document.Fields, idOverride string) (string, error)
	Update(ctx context.Context, collection, id string, fields document.Fields) error
	Delete(ctx context.Context, collection, id string) error
}

// Base is the transactional record base over one store and one
// declaration registry. The author identity is explicit configuration,
// never ambient state, so the engine stays testable without a
// process-wide current user.
type Base struct {
	store    *store.Store
	registry schema.Registry
	hooks    map[string]Hooks
	author   string
	now      func() time.Time
}

var (
	_ ReadOnlyView = (*Base)(nil)
	_ Mutable      = (*Base)(nil)
)

// Option configures a Base at construction.
type Option func(*Base)

// WithHooks attaches entity hooks to one collection.
func WithHooks(collection string, h Hooks) Option {
	return func(b *Base) {
		b.hooks[collection] = h
	}
}

// WithNow overrides the time source. Tests use a fixed clock so
// stamped metadata is deterministic.
func WithNow(now func() time.Time) Option {
	return func(b *Base) {
		b.now = now
	}
}

// New creates a record base writing as the given author.
func New(s *store.Store, registry schema.Registry, author string, opts ...Option) *Base {
	b := &Base{
		store:    s,
		registry: registry,
		hooks:    make(map[string]Hooks),
		author:   author,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Store exposes the underlying store for collaborators (rollup, CLI)
// that operate below the record API.
func (b *Base) Store() *store.Store {
	return b.store
}

// Registry exposes the declaration registry.
func (b *Base) Registry() schema.Registry {
	return b.registry
}

func (b *Base) hooksFor(collection string) Hooks {
	if h, ok := b.hooks[collection]; ok {
		return h
	}
	return NopHooks{}
}

// Create validates, stamps, and persists a new record inside one store
// transaction, together with its autonumber allocation and the shadow
// documents of any embedded children.
//
// The identifier is, in order of precedence: the caller-supplied
// idOverride, the declared compound key assembled from field values, or
// a store-generated id. Fixed identifiers (either of the first two) are
// collision-checked inside the transaction; a collision is a
// DuplicateKeyError.
func (b *Base) Create(ctx context.Context, collection string, fields document.Fields, idOverride string) (string, error) {
	spec, err := b.registry.Lookup(collection)
	if err != nil {
		return "", err
	}

	applied, err := document.ApplyDefaults(spec.Fields, fields)
	if err != nil {
		return "", newValidationError(collection, err.Error(), err)
	}

	rec := document.Record{Fields: applied}
	if err := b.hooksFor(collection).BeforeCreate(ctx, b, &rec); err != nil {
		return "", err
	}

	if err := b.validate(spec, rec.Fields); err != nil {
		return "", err
	}

	now := b.now()
	rec.CreatedAt, rec.UpdatedAt = now, now
	rec.CreatedBy, rec.UpdatedBy = b.author, b.author

	err = b.store.RunInTransaction(ctx, func(tx *store.Tx) error {
		id := idOverride
		if id == "" && spec.Key != nil {
			derived, err := spec.Key.ID(rec.Fields)
			if err != nil {
				return newValidationError(collection, err.Error(), err)
			}
			id = derived
		}
		if id != "" {
			_, exists, err := tx.Get(collection, id)
			if err != nil {
				return err
			}
			if exists {
				return newDuplicateKeyError(collection, id)
			}
		} else {
			id = b.store.NewID()
		}
		rec.ID = id

		if spec.AutoNumber != nil {
			code, err := b.allocateNumber(tx, spec, now)
			if err != nil {
				return err
			}
			if code != "" {
				rec.Fields[spec.AutoNumber.Field] = code
			}
		}

		b.stampTokens(spec, rec.Fields)

		if err := tx.Put(collection, &rec); err != nil {
			return err
		}

		if spec.Children != nil {
			if err := b.reconcileChildren(tx, spec, &rec, reconcileCreate); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return "", b.wrapTxErr(collection, err)
	}

	slog.Info("record created",
		"collection", collection,
		"id", rec.ID,
		"author", b.author,
	)
	b.hooksFor(collection).AfterCreate(ctx, rec)
	return rec.ID, nil
}

// Update overwrites a record's declared fields inside one store
// transaction and reconciles its embedded children.
//
// Supplied fields are merged over the stored document (read-modify-write
// of the full field set, never a partial column patch). Creation
// metadata is never re-written. Changing a compound-key field is a
// ValidationError: the portion of the identifier it is embedded in
// cannot move.
func (b *Base) Update(ctx context.Context, collection, id string, fields document.Fields) error {
	spec, err := b.registry.Lookup(collection)
	if err != nil {
		return err
	}
	if id == "" {
		return newMissingKeyError(collection, "update")
	}

	rec := document.Record{ID: id, Fields: fields.Clone()}
	if err := b.hooksFor(collection).BeforeUpdate(ctx, b, &rec); err != nil {
		return err
	}

	var prev document.Record
	err = b.store.RunInTransaction(ctx, func(tx *store.Tx) error {
		existing, ok, err := tx.Get(collection, id)
		if err != nil {
			return err
		}
		if !ok {
			return &Error{
				Code:       CodeMissingKey,
				Message:    "document does not exist",
				Collection: collection,
				ID:         id,
			}
		}
		prev = existing

		if spec.Key != nil {
			for _, f := range spec.Key.Fields {
				supplied, present := rec.Fields[f]
				if present && !document.IsZero(document.FieldString, supplied) && supplied != existing.Fields[f] {
					return newValidationError(collection,
						fmt.Sprintf("field %q is part of the identifier and cannot change", f), nil)
				}
			}
		}

		merged := existing.Fields.Clone()
		for k, v := range rec.Fields {
			merged[k] = v
		}
		coerced, err := document.CoerceAll(spec.Fields, merged)
		if err != nil {
			return newValidationError(collection, err.Error(), err)
		}
		if err := b.validate(spec, coerced); err != nil {
			return err
		}

		rec = document.Record{
			ID:        id,
			Fields:    coerced,
			CreatedAt: existing.CreatedAt,
			CreatedBy: existing.CreatedBy,
			UpdatedAt: b.now(),
			UpdatedBy: b.author,
		}
		b.stampTokens(spec, rec.Fields)

		if err := tx.Put(collection, &rec); err != nil {
			return err
		}

		if spec.Children != nil {
			if err := b.reconcileChildren(tx, spec, &rec, reconcileUpdate); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return b.wrapTxErr(collection, err)
	}

	slog.Info("record updated",
		"collection", collection,
		"id", id,
		"author", b.author,
	)
	b.hooksFor(collection).AfterUpdate(ctx, prev, rec)
	return nil
}

// Delete removes a record, or flips its status field when the
// collection declares soft deletion. The integrity guard runs first:
// a record still referenced through a declared has-many relation fails
// with DependentsExistError. Hard deletes take the record's shadow
// documents down in the same transaction.
func (b *Base) Delete(ctx context.Context, collection, id string) error {
	spec, err := b.registry.Lookup(collection)
	if err != nil {
		return err
	}
	if id == "" {
		return newMissingKeyError(collection, "delete")
	}

	rec, ok, err := b.store.Get(ctx, collection, id)
	if err != nil {
		return err
	}
	if !ok {
		return &Error{
			Code:       CodeMissingKey,
			Message:    "document does not exist",
			Collection: collection,
			ID:         id,
		}
	}

	if err := b.hooksFor(collection).BeforeDelete(ctx, b, rec); err != nil {
		return err
	}

	// Best-effort pre-check outside the transaction; see package doc.
	decl, err := b.hasDependents(ctx, spec, rec)
	if err != nil {
		return err
	}
	if decl != nil {
		return newDependentsExistError(collection, id, *decl)
	}

	if spec.SoftDelete != nil {
		err = b.store.RunInTransaction(ctx, func(tx *store.Tx) error {
			existing, ok, err := tx.Get(collection, id)
			if err != nil {
				return err
			}
			if !ok {
				return nil
			}
			existing.Fields[spec.SoftDelete.Field] = spec.SoftDelete.DeletedValue
			existing.UpdatedAt = b.now()
			existing.UpdatedBy = b.author
			return tx.Put(collection, &existing)
		})
	} else {
		err = b.store.RunInTransaction(ctx, func(tx *store.Tx) error {
			if spec.Children != nil {
				if err := b.reconcileChildren(tx, spec, &rec, reconcileDelete); err != nil {
					return err
				}
			}
			return tx.Delete(collection, id)
		})
	}
	if err != nil {
		return b.wrapTxErr(collection, err)
	}

	slog.Info("record deleted",
		"collection", collection,
		"id", id,
		"soft", spec.SoftDelete != nil,
		"author", b.author,
	)
	b.hooksFor(collection).AfterDelete(ctx, rec)
	return nil
}

// FetchOne returns a single record with its declared fields coerced
// and defaulted. Absence is reported, not an error.
func (b *Base) FetchOne(ctx context.Context, collection, id string) (document.Record, bool, error) {
	spec, err := b.registry.Lookup(collection)
	if err != nil {
		return document.Record{}, false, err
	}
	rec, ok, err := b.store.Get(ctx, collection, id)
	if err != nil || !ok {
		return document.Record{}, false, err
	}
	rec.Fields, err = document.CoerceAll(spec.Fields, rec.Fields)
	if err != nil {
		return document.Record{}, false, fmt.Errorf("load %s/%s: %w", collection, id, err)
	}
	return rec, true, nil
}

// FetchMany returns the records matching all filters. A non-empty
// searchText is tokenized and ANDed with the filters: every query
// token must appear in a record's token map.
func (b *Base) FetchMany(ctx context.Context, collection string, filters []store.Filter, searchText string) ([]document.Record, error) {
	spec, err := b.registry.Lookup(collection)
	if err != nil {
		return nil, err
	}

	all := make([]store.Filter, 0, len(filters)+2)
	all = append(all, filters...)
	for _, tok := range ngram.QueryTokens(searchText) {
		all = append(all, store.Token(tok))
	}

	recs, err := b.store.Query(ctx, collection, all...)
	if err != nil {
		return nil, err
	}
	for i := range recs {
		recs[i].Fields, err = document.CoerceAll(spec.Fields, recs[i].Fields)
		if err != nil {
			return nil, fmt.Errorf("load %s/%s: %w", collection, recs[i].ID, err)
		}
	}
	return recs, nil
}

// Subscribe starts a live projector mirroring the filtered collection.
// The caller owns the projector and must Stop it; nothing times it out.
func (b *Base) Subscribe(ctx context.Context, collection string, filters ...store.Filter) (*feed.Projector, error) {
	if _, err := b.registry.Lookup(collection); err != nil {
		return nil, err
	}
	return feed.Start(ctx, b.store, collection, filters...)
}

// validate enforces the declared field table: required fields non-zero
// and embedded-child arrays well-formed.
func (b *Base) validate(spec *schema.CollectionSpec, fields document.Fields) error {
	for _, def := range spec.Fields {
		if def.Required && document.IsZero(def.Type, fields[def.Name]) {
			return newValidationError(spec.Name, fmt.Sprintf("required field %q is missing", def.Name), nil)
		}
	}
	if child := spec.Children; child != nil {
		seen := make(map[string]bool)
		for i, e := range fieldsArray(fields, child.ArrayField) {
			entry, ok := e.(map[string]any)
			if !ok {
				return newValidationError(spec.Name,
					fmt.Sprintf("%s[%d] is not an object", child.ArrayField, i), nil)
			}
			key, _ := entry[child.KeyField].(string)
			if key == "" {
				return newValidationError(spec.Name,
					fmt.Sprintf("%s[%d] is missing key field %q", child.ArrayField, i, child.KeyField), nil)
			}
			if seen[key] {
				return newValidationError(spec.Name,
					fmt.Sprintf("%s has duplicate key %q", child.ArrayField, key), nil)
			}
			seen[key] = true
		}
	}
	return nil
}

// stampTokens writes the derived search token map, or clears it when
// the collection has no indexed fields. Always derived here, never
// accepted from a caller.
func (b *Base) stampTokens(spec *schema.CollectionSpec, fields document.Fields) {
	if len(spec.SearchFields) == 0 {
		delete(fields, document.TokensField)
		return
	}
	tokens := ngram.Tokens(spec.SearchValues(fields)...)
	if tokens == nil {
		delete(fields, document.TokensField)
		return
	}
	fields[document.TokensField] = tokens
}

// wrapTxErr maps store contention, already retried and exhausted, to
// the transient taxonomy entry; coded errors pass through unchanged.
func (b *Base) wrapTxErr(collection string, err error) error {
	if err == nil {
		return nil
	}
	var re *Error
	if errors.As(err, &re) {
		return err
	}
	if store.IsContention(err) {
		return newTransientStoreError(collection, err)
	}
	return err
}

func fieldsArray(fields document.Fields, name string) []any {
	a, _ := fields[name].([]any)
	return a
}
