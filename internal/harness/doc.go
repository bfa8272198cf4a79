// Package harness runs scripted scenarios against a cache manager.
//
// A scenario seeds a fake server, drives one Manager through a sequence of
// steps and checks the resulting cache. Remote calls can be held open and
// released later, or made to fail, which makes interleavings of fetches,
// mutations and realtime events reproducible.
//
// # Scenario Format
//
//	name: create_swaps_temp_id
//	description: "A create shows a temporary record until the server answers"
//	cache:
//	  name: todos
//	  fields: { done: bool_string }
//	server:
//	  - { id: "41", title: old }
//	steps:
//	  - action: create
//	    data: { title: a }
//	    hold: c1
//	    assert:
//	      - { type: cache_ids, ids: [temp-1] }
//	  - action: release
//	    handle: c1
//	assertions:
//	  - { type: cache_ids, ids: ["42"] }
//
// # Steps
//
//   - fetch: refetch from the fake server
//   - create, update, remove: run a mutation (update and remove need id)
//   - release: let a held call finish and wait for its outcome
//   - event: apply a realtime message (origin "self" is the harness client)
//   - reconcile: reconcile the given records directly
//   - server: replace the fake server's records
//
// fetch, create, update and remove accept hold (a handle name) and fail
// (an error message for the remote call).
//
// # Assertion Types
//
//   - cache_ids: exact ids in cache order
//   - cache_record: subset match on one record, or absent: true
//   - status: subset match on the status fields
//   - snapshot_depth: number of outstanding snapshots
//   - server_ids: exact ids held by the fake server
//
// # Deterministic Testing
//
// Temporary ids come from testutil.TempIDs (temp-1, temp-2, ...), the clock is
// a testutil.FakeClock at testutil.Epoch, server ids are sequential, and
// deferred refetches are disabled. Every step appends a trace event holding
// the cache contents, and the trace is serialised with canonical JSON for
// golden comparison.
package harness
