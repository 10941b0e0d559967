// Package document defines the field and record model shared by every
// layer of the engine.
//
// A Record is one keyed document in one collection: an opaque identifier,
// a field map constrained by a declared field table, and write metadata
// (timestamps, author, change sequence).
//
// Field tables are slices of FieldDef. They give the schemaless store its
// relational texture:
//   - every declared field has a type and a type-appropriate default
//   - values are coerced to their declared type on load and before write
//   - undeclared fields are dropped, never persisted
//
// The package holds no I/O and no store handle. Coercion and defaulting
// are pure functions so they behave identically on the read and write
// paths.
package document
