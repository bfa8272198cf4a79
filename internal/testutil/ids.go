package testutil

import (
	"fmt"
	"sync"

	"github.com/roach88/syncache/internal/record"
)

// TempIDs generates temp-1, temp-2, ... and can be reset, so the same
// scenario always produces the same ids.
//
// Thread-safety: safe for concurrent use.
type TempIDs struct {
	mu sync.Mutex
	n  int
}

// Generate returns the next temporary id.
func (g *TempIDs) Generate() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.n++
	return fmt.Sprintf("%s%d", record.TempIDPrefix, g.n)
}

// Reset restarts the sequence at temp-1.
func (g *TempIDs) Reset() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.n = 0
}
