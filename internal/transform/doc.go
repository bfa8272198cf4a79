// Package transform maps records between their wire shape and their UI shape.
//
// A Transformer is a pure pair of functions. Two optional capabilities are
// detected by interface assertion: UpdateTransformer encodes partial updates,
// and OptimisticDefaults synthesizes a complete UI record from raw input
// before the server has answered.
//
// FieldTransformer is the declarative implementation. Each field name maps to
// a named Codec resolved once at construction; there is no runtime guessing
// based on field names or value shapes.
//
// INVARIANT: no transformer alters the record identifier.
package transform
