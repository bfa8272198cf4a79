package testutil

import (
	"context"
	"fmt"
	"strconv"
	"sync"

	"github.com/roach88/syncache/internal/record"
	"github.com/roach88/syncache/internal/remote"
)

// Op names a data source operation.
type Op string

const (
	OpFetch  Op = "fetch"
	OpCreate Op = "create"
	OpUpdate Op = "update"
	OpDelete Op = "delete"
)

// Call is one recorded data source call.
type Call struct {
	Op   Op
	ID   string
	Body record.Record
}

// Gate holds one data source call until released.
type Gate struct {
	entered chan struct{}
	release chan struct{}
	once    sync.Once
}

func newGate() *Gate {
	return &Gate{entered: make(chan struct{}), release: make(chan struct{})}
}

// Entered is closed once the held call has reached the gate.
func (g *Gate) Entered() <-chan struct{} { return g.entered }

// Release lets the held call continue. Safe to call more than once.
func (g *Gate) Release() { g.once.Do(func() { close(g.release) }) }

// WriteHook observes successful writes, after the server state changed.
// rec is nil for deletes.
type WriteHook func(op Op, id string, rec record.Record)

// FakeSource is an in-memory remote.DataSource. Server ids are sequential
// integers rendered as strings.
type FakeSource struct {
	mu       sync.Mutex
	records  []record.Record
	nextID   int
	calls    []Call
	failures map[Op][]error
	gates    map[Op][]*Gate
	onWrite  WriteHook
}

var _ remote.DataSource = (*FakeSource)(nil)

// NewFakeSource creates a source holding seed. Seed records without an id are
// assigned one.
func NewFakeSource(seed ...record.Record) *FakeSource {
	s := &FakeSource{
		failures: make(map[Op][]error),
		gates:    make(map[Op][]*Gate),
	}
	s.Set(seed...)
	return s
}

// Set replaces the server state.
func (s *FakeSource) Set(recs ...record.Record) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = s.records[:0]
	for _, r := range recs {
		if n, err := strconv.Atoi(r.ID()); err == nil && n > s.nextID {
			s.nextID = n
		}
	}
	for _, r := range recs {
		if !r.HasID() {
			s.nextID++
			r = r.WithID(strconv.Itoa(s.nextID))
		}
		s.records = append(s.records, r)
	}
}

// OnWrite installs a hook called after each successful write.
func (s *FakeSource) OnWrite(h WriteHook) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onWrite = h
}

// FailNext makes the next call of op return err. Failures queue up.
func (s *FakeSource) FailNext(op Op, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures[op] = append(s.failures[op], err)
}

// Hold makes the next call of op block until the returned gate is released
// or the call's context ends.
func (s *FakeSource) Hold(op Op) *Gate {
	s.mu.Lock()
	defer s.mu.Unlock()
	g := newGate()
	s.gates[op] = append(s.gates[op], g)
	return g
}

// Records returns a copy of the server state.
func (s *FakeSource) Records() []record.Record {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]record.Record, len(s.records))
	copy(out, s.records)
	return out
}

// Calls returns every call made so far.
func (s *FakeSource) Calls() []Call {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Call, len(s.calls))
	copy(out, s.calls)
	return out
}

// CallCount returns how many calls of op were made.
func (s *FakeSource) CallCount(op Op) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, c := range s.calls {
		if c.Op == op {
			n++
		}
	}
	return n
}

// begin records the call and waits at its gate, if any. It returns the
// injected failure for this call.
func (s *FakeSource) begin(ctx context.Context, op Op, id string, body record.Record) error {
	s.mu.Lock()
	s.calls = append(s.calls, Call{Op: op, ID: id, Body: body})
	var gate *Gate
	if gs := s.gates[op]; len(gs) > 0 {
		gate, s.gates[op] = gs[0], gs[1:]
	}
	var fail error
	if fs := s.failures[op]; len(fs) > 0 {
		fail, s.failures[op] = fs[0], fs[1:]
	}
	s.mu.Unlock()

	if gate != nil {
		close(gate.entered)
		select {
		case <-gate.release:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	return fail
}

func (s *FakeSource) FetchAll(ctx context.Context) ([]record.Record, error) {
	if err := s.begin(ctx, OpFetch, "", nil); err != nil {
		return nil, err
	}
	return s.Records(), nil
}

func (s *FakeSource) Create(ctx context.Context, input record.Record) (record.Record, error) {
	if err := s.begin(ctx, OpCreate, "", input); err != nil {
		return nil, err
	}
	s.mu.Lock()
	s.nextID++
	rec := input.WithID(strconv.Itoa(s.nextID))
	s.records = append(s.records, rec)
	hook := s.onWrite
	s.mu.Unlock()

	if hook != nil {
		hook(OpCreate, rec.ID(), rec)
	}
	return rec, nil
}

func (s *FakeSource) Update(ctx context.Context, id string, partial record.Record) (record.Record, error) {
	if err := s.begin(ctx, OpUpdate, id, partial); err != nil {
		return nil, err
	}
	s.mu.Lock()
	idx := s.indexLocked(id)
	if idx < 0 {
		s.mu.Unlock()
		return nil, fmt.Errorf("update %s: %w", id, remote.ErrNotFound)
	}
	rec := s.records[idx].Merge(partial)
	s.records[idx] = rec
	hook := s.onWrite
	s.mu.Unlock()

	if hook != nil {
		hook(OpUpdate, id, rec)
	}
	return rec, nil
}

func (s *FakeSource) Delete(ctx context.Context, id string) error {
	if err := s.begin(ctx, OpDelete, id, nil); err != nil {
		return err
	}
	s.mu.Lock()
	idx := s.indexLocked(id)
	if idx < 0 {
		s.mu.Unlock()
		return fmt.Errorf("delete %s: %w", id, remote.ErrNotFound)
	}
	s.records = append(s.records[:idx], s.records[idx+1:]...)
	hook := s.onWrite
	s.mu.Unlock()

	if hook != nil {
		hook(OpDelete, id, nil)
	}
	return nil
}

func (s *FakeSource) indexLocked(id string) int {
	for i, r := range s.records {
		if r.ID() == id {
			return i
		}
	}
	return -1
}
