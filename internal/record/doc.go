// Package record provides the entity representation shared by every syncache
// package.
//
// A Record is a map-shaped domain entity carrying a stable string identifier
// under IDField. This package imports nothing internal; cache, transform,
// engine and realtime all build on it.
//
// Key design constraints:
//   - Records are values. Writers replace a map, they never mutate one that
//     may already be cached or captured by a snapshot.
//   - Equality is shallow (ShallowEqual): one level of fields, with time
//     instants, slices and one nested map level handled specially.
//   - Canonical JSON (MarshalCanonical) sorts keys by UTF-16 code units so
//     traces and golden files are byte-stable.
package record
