// Package engine implements the syncache store manager: reconciliation of
// fetched server state, the optimistic mutation pipeline and the lifecycle
// that ties them to a cache and a realtime ingestor.
//
// ARCHITECTURE:
//
// Client:
// Explicit context object. Holds the logger, metrics recorder, origin id and
// temp-id generator, and a registry of managers by collection name. There is
// no package-level state.
//
// Manager:
// Owns one cache.Cache. Three writers share it:
//   - fetch + Reconcile: FetchAll, transform, diff-apply
//   - mutations: snapshot, speculate, dispatch, commit or roll back
//   - realtime.Ingestor: push events, applied independently
//
// Mutation Flow:
//  1. prepare: cancel the in-flight fetch, bump the pending counter, push a
//     snapshot, apply the speculative change
//  2. dispatch: call the data source (the only blocking step)
//  3. commit: transform the server record, swap or upsert it, fold it into
//     older snapshots (Rebase), release the snapshot
//  4. rollback on any failure: Revert the mutation's own snapshot, undoing
//     its speculative change while later pending mutations keep theirs
//  5. settle: clear the pending flag; when nothing is pending any more, run
//     the deferred background refetch
//
// CONCURRENCY:
//
// Two races are closed here. A fetch result must not overwrite a speculative
// write: reconciliation is skipped while any mutation is pending, and every
// mutation advances the fetch generation (Clock) so a fetch already in
// flight is discarded when it returns. Decisions and writes happen together
// under the apply mutex, which is never held across a remote call.
//
// Snapshot stack growth is bounded by WithMaxSnapshots; the oldest snapshot
// is evicted and a mutation that loses its snapshot reports RolledBack=false
// if it later fails.
package engine
