// Package testutil provides deterministic collaborators for tests and
// scenario runs: an in-memory data source with gating and failure
// injection, a resettable temp-id sequence and a settable wall clock.
package testutil
