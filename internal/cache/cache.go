package cache

import (
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/roach88/syncache/internal/record"
)

// ErrMissingID is returned by Upsert for records without an identifier.
var ErrMissingID = errors.New("record has no id")

// DefaultMaxSnapshots bounds the snapshot stack when no option overrides it.
const DefaultMaxSnapshots = 64

// Op names the kind of change a listener is told about.
type Op string

const (
	OpUpsert   Op = "upsert"
	OpUpdate   Op = "update"
	OpRemove   Op = "remove"
	OpBatch    Op = "batch"
	OpRollback Op = "rollback"
)

// Change describes one completed cache mutation.
type Change struct {
	Version uint64
	Op      Op
	IDs     []string
}

// Listener observes cache changes.
type Listener func(Change)

// Cache is an insertion-ordered, id-keyed collection of records.
type Cache struct {
	mu      sync.Mutex
	entries map[string]record.Record
	order   []string
	version uint64

	snapshots    []snapshot
	nextSnapshot SnapshotID
	maxSnapshots int

	listeners    map[int]Listener
	nextListener int

	logger *slog.Logger
}

// Option configures a Cache.
type Option func(*Cache)

// WithMaxSnapshots caps the snapshot stack depth. Values below 1 are ignored.
func WithMaxSnapshots(n int) Option {
	return func(c *Cache) {
		if n > 0 {
			c.maxSnapshots = n
		}
	}
}

// WithLogger sets the logger used for snapshot eviction warnings.
func WithLogger(l *slog.Logger) Option {
	return func(c *Cache) {
		if l != nil {
			c.logger = l
		}
	}
}

// New creates an empty cache.
func New(opts ...Option) *Cache {
	c := &Cache{
		entries:      make(map[string]record.Record),
		maxSnapshots: DefaultMaxSnapshots,
		listeners:    make(map[int]Listener),
		logger:       slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Get returns the record stored under id.
func (c *Cache) Get(id string) (record.Record, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	r, ok := c.entries[id]
	return r, ok
}

// Upsert inserts rec or fully replaces the entry at rec's id.
func (c *Cache) Upsert(rec record.Record) error {
	if !rec.HasID() {
		return ErrMissingID
	}
	c.mu.Lock()
	c.upsertLocked(rec)
	ch := c.bumpLocked(OpUpsert, rec.ID())
	c.mu.Unlock()

	c.notify(ch)
	return nil
}

// Update merges partial onto the entry at id. Returns false (and changes
// nothing) when id is absent.
func (c *Cache) Update(id string, partial record.Record) bool {
	c.mu.Lock()
	existing, ok := c.entries[id]
	if !ok {
		c.mu.Unlock()
		return false
	}
	c.entries[id] = existing.Merge(partial)
	ch := c.bumpLocked(OpUpdate, id)
	c.mu.Unlock()

	c.notify(ch)
	return true
}

// Remove deletes the entry at id. Returns false when id was absent.
func (c *Cache) Remove(id string) bool {
	c.mu.Lock()
	if !c.removeLocked(id) {
		c.mu.Unlock()
		return false
	}
	ch := c.bumpLocked(OpRemove, id)
	c.mu.Unlock()

	c.notify(ch)
	return true
}

// List returns a fresh slice of all records in insertion order.
func (c *Cache) List() []record.Record {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]record.Record, 0, len(c.order))
	for _, id := range c.order {
		out = append(out, c.entries[id])
	}
	return out
}

// IDs returns the cached identifiers in insertion order.
func (c *Cache) IDs() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, len(c.order))
	copy(out, c.order)
	return out
}

// Filter returns the records matching pred, in insertion order.
func (c *Cache) Filter(pred func(record.Record) bool) []record.Record {
	var out []record.Record
	for _, r := range c.List() {
		if pred(r) {
			out = append(out, r)
		}
	}
	return out
}

// Find returns the first record matching pred.
func (c *Cache) Find(pred func(record.Record) bool) (record.Record, bool) {
	for _, r := range c.List() {
		if pred(r) {
			return r, true
		}
	}
	return nil, false
}

// Count returns the number of cached records.
func (c *Cache) Count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Version returns the change counter. It increases on every mutation.
func (c *Cache) Version() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.version
}

// Writer is the mutation surface available inside Batch.
type Writer interface {
	Get(id string) (record.Record, bool)
	Upsert(rec record.Record) error
	Remove(id string) bool
	IDs() []string
}

// Batch runs fn with exclusive access to the cache and notifies listeners
// once afterwards, if anything changed.
// A panic in fn unlocks the cache before it propagates; writes made before
// the panic stay and listeners are not called.
func (c *Cache) Batch(fn func(w Writer) error) error {
	w := &batchWriter{c: c}
	ch, err := c.runBatch(w, fn)
	if len(w.touched) > 0 {
		c.notify(ch)
	}
	return err
}

func (c *Cache) runBatch(w *batchWriter, fn func(w Writer) error) (ch Change, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	defer func() {
		if len(w.touched) > 0 {
			ch = c.bumpLocked(OpBatch, w.touched...)
		}
	}()
	return Change{}, fn(w)
}

type batchWriter struct {
	c       *Cache
	touched []string
}

func (w *batchWriter) Get(id string) (record.Record, bool) {
	r, ok := w.c.entries[id]
	return r, ok
}

func (w *batchWriter) Upsert(rec record.Record) error {
	if !rec.HasID() {
		return ErrMissingID
	}
	w.c.upsertLocked(rec)
	w.touched = append(w.touched, rec.ID())
	return nil
}

func (w *batchWriter) Remove(id string) bool {
	if !w.c.removeLocked(id) {
		return false
	}
	w.touched = append(w.touched, id)
	return true
}

func (w *batchWriter) IDs() []string {
	out := make([]string, len(w.c.order))
	copy(out, w.c.order)
	return out
}

// Subscribe registers fn for change notifications and returns a function
// that removes it.
func (c *Cache) Subscribe(fn Listener) func() {
	c.mu.Lock()
	defer c.mu.Unlock()
	id := c.nextListener
	c.nextListener++
	c.listeners[id] = fn
	return func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		delete(c.listeners, id)
	}
}

// String summarises the cache for debugging.
func (c *Cache) String() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return fmt.Sprintf("cache(records=%d snapshots=%d version=%d)", len(c.entries), len(c.snapshots), c.version)
}

func (c *Cache) upsertLocked(rec record.Record) {
	id := rec.ID()
	if _, exists := c.entries[id]; !exists {
		c.order = append(c.order, id)
	}
	c.entries[id] = rec
}

func (c *Cache) removeLocked(id string) bool {
	if _, ok := c.entries[id]; !ok {
		return false
	}
	delete(c.entries, id)
	for i, oid := range c.order {
		if oid == id {
			c.order = append(c.order[:i], c.order[i+1:]...)
			break
		}
	}
	return true
}

func (c *Cache) bumpLocked(op Op, ids ...string) Change {
	c.version++
	return Change{Version: c.version, Op: op, IDs: ids}
}

func (c *Cache) notify(ch Change) {
	c.mu.Lock()
	keys := make([]int, 0, len(c.listeners))
	for k := range c.listeners {
		keys = append(keys, k)
	}
	sort.Ints(keys)
	fns := make([]Listener, 0, len(keys))
	for _, k := range keys {
		fns = append(fns, c.listeners[k])
	}
	c.mu.Unlock()

	for _, fn := range fns {
		fn(ch)
	}
}
