// Package cache implements the entity cache and its snapshot stack.
//
// ARCHITECTURE:
//
// The Cache is the single shared mutable resource of a syncache manager. Three
// actors write to it: fetch reconciliation, the mutation pipeline and realtime
// ingestion. None of them holds a lock across calls; each performs whole,
// synchronous cache operations, and every exported method is atomic under the
// cache mutex.
//
// Snapshot Stack:
// PushSnapshot copies the key->record mapping one level deep (new map, same
// record values) and pushes it. Rollback pops the newest snapshot and
// restores it wholesale. The mutation pipeline uses the handle-based variants
// (Revert, Release, Rebase) so that a failed mutation undoes only its own
// writes and committed server results survive later rollbacks. RollbackTo
// restores a baseline wholesale and discards every later snapshot.
//
// INVARIANTS:
//   - At most one record per id; a cached record's id equals its key
//   - Cached records are never mutated in place
//   - Listeners run after the mutex is released, in registration order
package cache
