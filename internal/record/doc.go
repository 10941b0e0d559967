// Package record implements the transactional record base: generic
// entity lifecycle over the document store with the relational
// guarantees the store itself does not provide.
//
// One Base serves every declared collection. A write flows through it
// as:
//
//  1. Field table applied: defaults filled, values coerced, undeclared
//     keys dropped, required fields checked.
//  2. Entity hooks run (validation beyond the table, derived fields,
//     related-record fetches).
//  3. One store transaction: identifier resolution (fixed key, compound
//     key, or store-generated), autonumber allocation, author/time
//     stamping, search token derivation, the document write, and
//     fan-out reconciliation of embedded children. All of it commits
//     or none of it does.
//  4. Post-hooks run after commit (rollup triggers live here).
//
// Deletes are existence-guarded and consult the integrity guard: a
// record still referenced through a declared has-many relation cannot
// be removed. Soft-delete collections flip their status field instead
// of removing the document.
//
// The guard's dependent probe runs outside the delete transaction and
// is best-effort: a dependent inserted between probe and delete is not
// caught by this delete, only by the next one. The store's single
// writer keeps that window from ever producing a torn write.
//
// Read and mutation capabilities are split: ReadOnlyView exposes
// fetch/query/subscribe, Mutable adds create/update/delete. Both are
// implemented by *Base; consumers that should not write hold the view.
package record
