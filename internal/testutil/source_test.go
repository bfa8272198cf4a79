package testutil

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/syncache/internal/record"
	"github.com/roach88/syncache/internal/remote"
)

func TestFakeSourceCRUD(t *testing.T) {
	ctx := context.Background()
	s := NewFakeSource(record.Record{"id": "5", "title": "a"}, record.Record{"title": "b"})

	recs, err := s.FetchAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"5", "6"}, record.IDs(recs))

	created, err := s.Create(ctx, record.Record{"title": "c"})
	require.NoError(t, err)
	assert.Equal(t, "7", created.ID())

	updated, err := s.Update(ctx, "5", record.Record{"title": "z"})
	require.NoError(t, err)
	assert.Equal(t, "z", updated["title"])

	require.NoError(t, s.Delete(ctx, "6"))
	assert.Equal(t, []string{"5", "7"}, record.IDs(s.Records()))

	require.ErrorIs(t, s.Delete(ctx, "6"), remote.ErrNotFound)
	_, err = s.Update(ctx, "6", record.Record{})
	require.ErrorIs(t, err, remote.ErrNotFound)

	assert.Equal(t, 2, s.CallCount(OpDelete))
	assert.Len(t, s.Calls(), 6)
}

func TestFakeSourceFailNext(t *testing.T) {
	boom := errors.New("boom")
	s := NewFakeSource()
	s.FailNext(OpCreate, boom)

	_, err := s.Create(context.Background(), record.Record{"x": 1})
	require.ErrorIs(t, err, boom)
	assert.Empty(t, s.Records(), "failed writes do not change server state")

	_, err = s.Create(context.Background(), record.Record{"x": 1})
	require.NoError(t, err)
}

func TestFakeSourceHold(t *testing.T) {
	s := NewFakeSource(record.Record{"id": "1"})
	gate := s.Hold(OpFetch)

	done := make(chan []record.Record)
	go func() {
		recs, _ := s.FetchAll(context.Background())
		done <- recs
	}()

	<-gate.Entered()
	select {
	case <-done:
		t.Fatal("fetch should be held")
	case <-time.After(20 * time.Millisecond):
	}
	gate.Release()
	gate.Release()
	assert.Len(t, <-done, 1)
}

func TestFakeSourceHoldHonoursContext(t *testing.T) {
	s := NewFakeSource()
	gate := s.Hold(OpDelete)
	ctx, cancel := context.WithCancel(context.Background())

	errc := make(chan error)
	go func() { errc <- s.Delete(ctx, "1") }()
	<-gate.Entered()
	cancel()
	require.ErrorIs(t, <-errc, context.Canceled)
}

func TestFakeSourceWriteHook(t *testing.T) {
	s := NewFakeSource()
	var ops []Op
	s.OnWrite(func(op Op, _ string, _ record.Record) { ops = append(ops, op) })

	rec, err := s.Create(context.Background(), record.Record{})
	require.NoError(t, err)
	_, err = s.Update(context.Background(), rec.ID(), record.Record{"x": 1})
	require.NoError(t, err)
	require.NoError(t, s.Delete(context.Background(), rec.ID()))

	assert.Equal(t, []Op{OpCreate, OpUpdate, OpDelete}, ops)
}

func TestTempIDsReset(t *testing.T) {
	var g TempIDs
	assert.Equal(t, "temp-1", g.Generate())
	assert.Equal(t, "temp-2", g.Generate())
	g.Reset()
	assert.Equal(t, "temp-1", g.Generate())
}

func TestFakeClock(t *testing.T) {
	c := NewFakeClock(time.Time{})
	assert.Equal(t, Epoch, c.Now())
	c.Advance(time.Minute)
	assert.Equal(t, Epoch.Add(time.Minute), c.Now())
}
