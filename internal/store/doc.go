// Package store provides the SQLite-backed document store underneath
// the record layer.
//
// Every document lives in one physical table keyed (collection, id) with
// a JSON body plus write metadata. The store supplies the three
// primitives the consistency engine is built on:
//
//   - RunInTransaction: the one multi-document write primitive. BEGIN
//     IMMEDIATE, snapshot-consistent reads, all-or-nothing commit, and a
//     bounded retry loop on write contention. Partial application across
//     documents within one call is impossible by construction.
//   - Query: point lookups and filtered scans. Filters compile to
//     json_extract/json_each SQL over the document body; token filters
//     probe the reserved search token map.
//   - Watch: an in-process change feed. Committed transactions publish
//     added/modified/removed deltas, stamped with a monotonic change
//     sequence, to per-collection subscriptions.
//
// # Database Configuration
//
//   - WAL mode: concurrent reads during writes
//   - synchronous=NORMAL: balance durability/performance
//   - busy_timeout=5000: wait for locks up to 5 seconds
//   - _txlock=immediate: transactions take the write lock up front, so
//     conflicts surface as SQLITE_BUSY at BEGIN, where the retry loop
//     can restart the whole transaction body
//
// The store knows nothing of field tables, guards, or reconciliation;
// those live in the layers above.
package store
