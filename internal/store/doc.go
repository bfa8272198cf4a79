// Package store provides SQLite-backed storage for the demo server's records.
//
// Each record is a JSON document in a named collection. The row id, rendered
// as a decimal string, is the record's identifier; it is never stored inside
// the document.
//
// # Ordering
//
// All reads return records in ascending id order, which is insertion order.
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - One open connection: SQLite has a single writer
//
// Documents are encoded with record.MarshalCanonical so identical records are
// byte-identical on disk.
package store
