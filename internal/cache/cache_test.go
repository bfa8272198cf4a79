package cache

import (
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/syncache/internal/record"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestCache(opts ...Option) *Cache {
	return New(append([]Option{WithLogger(quietLogger())}, opts...)...)
}

func TestUpsertRejectsMissingID(t *testing.T) {
	c := newTestCache()
	err := c.Upsert(record.Record{"title": "x"})
	require.ErrorIs(t, err, ErrMissingID)
	assert.Equal(t, 0, c.Count())
	assert.Equal(t, uint64(0), c.Version())
}

func TestUpsertIdempotent(t *testing.T) {
	c := newTestCache()
	rec := record.Record{"id": "1", "title": "a"}

	require.NoError(t, c.Upsert(rec))
	once := c.List()
	require.NoError(t, c.Upsert(rec))
	twice := c.List()

	assert.Equal(t, once, twice)
	assert.Equal(t, 1, c.Count())
}

func TestUpsertPreservesInsertionOrder(t *testing.T) {
	c := newTestCache()
	for _, id := range []string{"3", "1", "2"} {
		require.NoError(t, c.Upsert(record.Record{"id": id}))
	}
	require.NoError(t, c.Upsert(record.Record{"id": "1", "title": "replaced"}))

	assert.Equal(t, []string{"3", "1", "2"}, c.IDs())
	got, ok := c.Get("1")
	require.True(t, ok)
	assert.Equal(t, "replaced", got["title"])
}

func TestUpdateMergesAndIgnoresMissing(t *testing.T) {
	c := newTestCache()
	orig := record.Record{"id": "1", "title": "a", "done": false}
	require.NoError(t, c.Upsert(orig))

	assert.True(t, c.Update("1", record.Record{"done": true}))
	got, _ := c.Get("1")
	assert.Equal(t, true, got["done"])
	assert.Equal(t, "a", got["title"])
	assert.Equal(t, false, orig["done"], "cached records are never mutated in place")

	v := c.Version()
	assert.False(t, c.Update("missing", record.Record{"done": true}))
	assert.Equal(t, v, c.Version())
}

func TestRemove(t *testing.T) {
	c := newTestCache()
	require.NoError(t, c.Upsert(record.Record{"id": "1"}))
	require.NoError(t, c.Upsert(record.Record{"id": "2"}))

	assert.True(t, c.Remove("1"))
	assert.False(t, c.Remove("1"))
	assert.Equal(t, []string{"2"}, c.IDs())
}

func TestFilterAndFind(t *testing.T) {
	c := newTestCache()
	require.NoError(t, c.Upsert(record.Record{"id": "1", "done": true}))
	require.NoError(t, c.Upsert(record.Record{"id": "2", "done": false}))
	require.NoError(t, c.Upsert(record.Record{"id": "3", "done": true}))

	done := func(r record.Record) bool { return r["done"] == true }
	assert.Equal(t, []string{"1", "3"}, record.IDs(c.Filter(done)))

	found, ok := c.Find(done)
	require.True(t, ok)
	assert.Equal(t, "1", found.ID())

	_, ok = c.Find(func(record.Record) bool { return false })
	assert.False(t, ok)
}

func TestListReturnsFreshSlice(t *testing.T) {
	c := newTestCache()
	require.NoError(t, c.Upsert(record.Record{"id": "1"}))

	list := c.List()
	list[0] = record.Record{"id": "hijacked"}

	got, _ := c.Get("1")
	assert.Equal(t, "1", got.ID())
}

func TestBatchNotifiesOnce(t *testing.T) {
	c := newTestCache()
	require.NoError(t, c.Upsert(record.Record{"id": "1"}))

	var changes []Change
	unsub := c.Subscribe(func(ch Change) { changes = append(changes, ch) })
	defer unsub()

	err := c.Batch(func(w Writer) error {
		w.Remove("1")
		if err := w.Upsert(record.Record{"id": "2"}); err != nil {
			return err
		}
		return w.Upsert(record.Record{"id": "3"})
	})
	require.NoError(t, err)

	require.Len(t, changes, 1)
	assert.Equal(t, OpBatch, changes[0].Op)
	assert.Equal(t, []string{"1", "2", "3"}, changes[0].IDs)
	assert.Equal(t, []string{"2", "3"}, c.IDs())
}

func TestBatchPanicReleasesLock(t *testing.T) {
	c := newTestCache()
	calls := 0
	c.Subscribe(func(Change) { calls++ })

	assert.Panics(t, func() {
		_ = c.Batch(func(w Writer) error {
			_ = w.Upsert(record.Record{"id": "1"})
			panic("boom")
		})
	})

	done := make(chan []string, 1)
	go func() { done <- c.IDs() }()
	select {
	case got := <-done:
		assert.Equal(t, []string{"1"}, got)
	case <-time.After(time.Second):
		t.Fatal("cache still locked after a panicking batch")
	}
	assert.Equal(t, 0, calls)
	require.NoError(t, c.Upsert(record.Record{"id": "2"}))
	assert.Equal(t, 1, calls)
}

func TestBatchWithoutChangesDoesNotNotify(t *testing.T) {
	c := newTestCache()
	calls := 0
	c.Subscribe(func(Change) { calls++ })

	require.NoError(t, c.Batch(func(w Writer) error { return nil }))
	assert.Equal(t, 0, calls)
	assert.Equal(t, uint64(0), c.Version())
}

func TestSubscribeUnsubscribe(t *testing.T) {
	c := newTestCache()
	var seen []Op
	unsub := c.Subscribe(func(ch Change) { seen = append(seen, ch.Op) })

	require.NoError(t, c.Upsert(record.Record{"id": "1"}))
	c.Update("1", record.Record{"x": 1})
	c.Remove("1")
	unsub()
	require.NoError(t, c.Upsert(record.Record{"id": "2"}))

	assert.Equal(t, []Op{OpUpsert, OpUpdate, OpRemove}, seen)
}

func TestListenerMayReadCache(t *testing.T) {
	c := newTestCache()
	var count int
	c.Subscribe(func(Change) { count = c.Count() })

	require.NoError(t, c.Upsert(record.Record{"id": "1"}))
	assert.Equal(t, 1, count)
}

func TestConcurrentWriters(t *testing.T) {
	c := newTestCache()
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				id := string(rune('a' + n))
				_ = c.Upsert(record.Record{"id": id, "n": j})
				c.Update(id, record.Record{"touched": true})
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 8, c.Count())
	assert.Equal(t, uint64(8*50*2), c.Version())
}
