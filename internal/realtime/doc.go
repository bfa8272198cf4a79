// Package realtime applies server push events to a cache.
//
// ARCHITECTURE:
//
// A Transport delivers Messages to listeners registered per event name. Hub
// is the in-memory transport used by tests and by the demo server's fan-out;
// WebSocketTransport reads frames from a gorilla/websocket connection into a
// FIFO queue and dispatches them from one goroutine, so listeners never run
// concurrently with each other.
//
// The Ingestor is the listener. For every message it runs, in order:
//  1. echo suppression (the message's origin is this client's origin)
//  2. the ShouldProcess filter
//  3. the per-kind custom handler, when one is configured
//  4. default handling: INSERT and UPDATE transform and upsert,
//     DELETE removes by id
//
// Nothing an Ingestor does can fail the transport loop. Malformed payloads,
// transform errors, handler errors and handler panics are logged and the
// message is dropped.
package realtime
