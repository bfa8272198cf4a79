package engine

import (
	"sync"

	"github.com/google/uuid"

	"github.com/roach88/syncache/internal/record"
)

// TempIDGenerator produces identifiers for speculative creates. Every value
// must carry record.TempIDPrefix so the pipeline can recognise it.
type TempIDGenerator interface {
	Generate() string
}

// UUIDv7Generator generates time-sortable temporary ids of the form
// "temp-<uuidv7>". It is stateless and safe for concurrent use.
type UUIDv7Generator struct{}

// Generate returns a new temporary id. Panics if the system entropy source
// fails.
func (UUIDv7Generator) Generate() string {
	return record.TempIDPrefix + uuid.Must(uuid.NewV7()).String()
}

// NewOriginID returns a random client origin id for echo suppression.
func NewOriginID() string {
	return uuid.NewString()
}

// FixedGenerator returns predetermined ids in order.
//
// Panics once all ids are consumed, which surfaces a test that creates more
// records than it declared.
type FixedGenerator struct {
	mu  sync.Mutex
	ids []string
	idx int
}

// NewFixedGenerator creates a generator over ids. Ids without the temp prefix
// get it added.
func NewFixedGenerator(ids ...string) *FixedGenerator {
	out := make([]string, len(ids))
	for i, id := range ids {
		if !record.IsTempID(id) {
			id = record.TempIDPrefix + id
		}
		out[i] = id
	}
	return &FixedGenerator{ids: out}
}

// Generate returns the next predetermined id.
func (g *FixedGenerator) Generate() string {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.idx >= len(g.ids) {
		panic("FixedGenerator: all ids exhausted")
	}
	id := g.ids[g.idx]
	g.idx++
	return id
}
