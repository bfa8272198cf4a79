package harness

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"time"

	"github.com/roach88/syncache/internal/engine"
	"github.com/roach88/syncache/internal/realtime"
	"github.com/roach88/syncache/internal/record"
	"github.com/roach88/syncache/internal/testutil"
)

// DefaultCacheName is used when a scenario does not name its cache.
const DefaultCacheName = "todos"

// holdTimeout bounds the wait for a held call to reach the fake server.
const holdTimeout = 5 * time.Second

// outcome is what a held step produced once released.
type outcome struct {
	id  string
	err error
}

// held is a remote call parked at its gate.
type held struct {
	step   int
	action string
	id     string
	gate   *testutil.Gate
	done   chan outcome
}

// runner carries the state of one scenario execution.
type runner struct {
	ctx     context.Context
	src     *testutil.FakeSource
	manager *engine.Manager
	result  *Result
	holds   map[string]*held
}

// Run executes a scenario and returns the result.
//
// Execution errors (the manager could not be built, a hold never reached the
// server) are returned as errors. Assertion failures are collected in
// Result.Errors.
func Run(s *Scenario) (*Result, error) {
	return RunContext(context.Background(), s)
}

// RunContext is Run with a caller-supplied context for remote calls.
func RunContext(ctx context.Context, s *Scenario) (*Result, error) {
	cc := s.Cache
	if cc.Name == "" {
		cc.Name = DefaultCacheName
	}
	cc.Realtime = true
	cfg, opts, err := cc.EngineConfig()
	if err != nil {
		return nil, fmt.Errorf("cache config: %w", err)
	}
	opts = append(opts, engine.WithoutDeferredRefetch())

	src := testutil.NewFakeSource(toRecords(s.Server)...)
	clock := testutil.NewFakeClock(time.Time{})
	client := engine.NewClient(
		engine.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
		engine.WithOrigin(SelfOrigin),
		engine.WithTempIDs(&testutil.TempIDs{}),
		engine.WithNow(clock.Now),
	)
	defer client.Close()

	m, err := client.NewManager(cfg, src, opts...)
	if err != nil {
		return nil, fmt.Errorf("create manager: %w", err)
	}

	r := &runner{
		ctx:     ctx,
		src:     src,
		manager: m,
		result:  NewResult(),
		holds:   make(map[string]*held),
	}
	defer r.abandon()

	for i, step := range s.Steps {
		if err := r.step(i+1, step); err != nil {
			return nil, fmt.Errorf("step %d (%s): %w", i+1, step.Action, err)
		}
		for _, msg := range r.evaluate(step.Assert) {
			r.result.AddError(fmt.Sprintf("step %d: %s", i+1, msg))
		}
	}

	if len(r.holds) > 0 {
		return nil, fmt.Errorf("unreleased holds: %v", r.pendingHandles())
	}

	for _, msg := range r.evaluate(s.Assertions) {
		r.result.AddError(msg)
	}
	return r.result, nil
}

func (r *runner) step(n int, step Step) error {
	switch step.Action {
	case ActionRelease:
		return r.release(n, step.Handle)
	case ActionEvent:
		return r.event(n, step)
	case ActionReconcile:
		res, err := r.manager.Reconcile(toRecords(step.Records))
		r.trace(TraceEvent{Step: n, Action: step.Action, Outcome: string(res), Error: errText(err)})
		return nil
	case ActionServer:
		r.src.Set(toRecords(step.Records)...)
		r.trace(TraceEvent{Step: n, Action: step.Action, Outcome: OutcomeOK})
		return nil
	}

	op := sourceOp(step.Action)
	if step.Fail != "" {
		r.src.FailNext(op, errors.New(step.Fail))
	}
	if step.Hold == "" {
		out := r.call(step)
		r.trace(r.outcomeEvent(n, step.Action, "", step.ID, out))
		return nil
	}

	h := &held{
		step:   n,
		action: step.Action,
		id:     step.ID,
		gate:   r.src.Hold(op),
		done:   make(chan outcome, 1),
	}
	go func() { h.done <- r.call(step) }()

	select {
	case <-h.gate.Entered():
	case out := <-h.done:
		return fmt.Errorf("hold %q finished before reaching the server: %v", step.Hold, out.err)
	case <-time.After(holdTimeout):
		return fmt.Errorf("hold %q never reached the server", step.Hold)
	}
	r.holds[step.Hold] = h
	r.trace(TraceEvent{Step: n, Action: step.Action, Handle: step.Hold, ID: step.ID, Outcome: OutcomeHeld})
	return nil
}

// call runs one remote-backed step synchronously.
func (r *runner) call(step Step) outcome {
	switch step.Action {
	case ActionFetch:
		return outcome{err: r.manager.Refetch(r.ctx)}
	case ActionCreate:
		rec, err := r.manager.Create(r.ctx, record.Record(step.Data))
		return outcome{id: rec.ID(), err: err}
	case ActionUpdate:
		rec, err := r.manager.Update(r.ctx, step.ID, record.Record(step.Data))
		id := step.ID
		if rec != nil {
			id = rec.ID()
		}
		return outcome{id: id, err: err}
	case ActionRemove:
		return outcome{id: step.ID, err: r.manager.Remove(r.ctx, step.ID)}
	}
	return outcome{err: fmt.Errorf("unknown action %q", step.Action)}
}

func (r *runner) release(n int, handle string) error {
	h, ok := r.holds[handle]
	if !ok {
		return fmt.Errorf("unknown hold %q", handle)
	}
	delete(r.holds, handle)
	h.gate.Release()

	var out outcome
	select {
	case out = <-h.done:
	case <-time.After(holdTimeout):
		return fmt.Errorf("hold %q did not finish after release", handle)
	}
	id := h.id
	if out.id != "" {
		id = out.id
	}
	r.trace(r.outcomeEvent(n, h.action, handle, id, outcome{id: id, err: out.err}))
	return nil
}

func (r *runner) event(n int, step Step) error {
	origin := step.Origin
	if origin == "self" {
		origin = SelfOrigin
	}
	msg := realtime.Message{
		Type:   r.manager.Name(),
		Event:  realtime.Kind(step.Event),
		Data:   record.FromMap(step.Data),
		Origin: origin,
	}
	res, err := r.manager.HandleRealtime(msg)
	if err != nil {
		return err
	}
	r.trace(TraceEvent{Step: n, Action: step.Action, ID: msg.Data.ID(), Outcome: string(res)})
	return nil
}

func (r *runner) outcomeEvent(n int, action, handle, id string, out outcome) TraceEvent {
	ev := TraceEvent{Step: n, Action: action, Handle: handle, ID: id, Outcome: OutcomeOK}
	if out.id != "" {
		ev.ID = out.id
	}
	if out.err == nil {
		return ev
	}

	ev.Error = out.err.Error()
	var merr *engine.MutationError
	switch {
	case errors.Is(out.err, engine.ErrSuperseded):
		ev.Outcome = OutcomeSuperseded
	case errors.As(out.err, &merr):
		if ev.ID == "" {
			ev.ID = merr.ID
		}
		ev.Outcome = OutcomeFailed
		if merr.RolledBack {
			ev.Outcome = OutcomeRolledBack
		}
	default:
		ev.Outcome = OutcomeFailed
	}
	return ev
}

func (r *runner) trace(ev TraceEvent) {
	ev.Cache = r.manager.List()
	r.result.Trace = append(r.result.Trace, ev)
}

// abandon releases any holds left behind by a failed run so their goroutines
// exit.
func (r *runner) abandon() {
	for _, h := range r.holds {
		h.gate.Release()
		<-h.done
	}
}

func (r *runner) pendingHandles() []string {
	out := make([]string, 0, len(r.holds))
	for name := range r.holds {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

func sourceOp(action string) testutil.Op {
	switch action {
	case ActionCreate:
		return testutil.OpCreate
	case ActionUpdate:
		return testutil.OpUpdate
	case ActionRemove:
		return testutil.OpDelete
	default:
		return testutil.OpFetch
	}
}

func toRecords(maps []map[string]any) []record.Record {
	out := make([]record.Record, len(maps))
	for i, m := range maps {
		out[i] = record.FromMap(m)
	}
	return out
}

func errText(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
