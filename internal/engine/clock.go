package engine

import "sync/atomic"

// Clock is a monotonic logical counter.
//
// Managers use one as the fetch generation: every fetch takes a value from
// Next, and anything that invalidates in-flight fetches (a mutation starting,
// a newer fetch, Destroy) calls Next again. A fetch whose value is no longer
// Current when its result arrives is discarded.
//
// Clock is safe for concurrent use.
type Clock struct {
	seq atomic.Int64
}

// NewClock creates a clock starting at 0.
func NewClock() *Clock {
	return &Clock{}
}

// NewClockAt creates a clock starting at start.
func NewClockAt(start int64) *Clock {
	c := &Clock{}
	c.seq.Store(start)
	return c
}

// Next advances the clock and returns the new value.
func (c *Clock) Next() int64 {
	return c.seq.Add(1)
}

// Current returns the latest value without advancing.
func (c *Clock) Current() int64 {
	return c.seq.Load()
}

// IsCurrent reports whether gen is still the latest value.
func (c *Clock) IsCurrent(gen int64) bool {
	return c.seq.Load() == gen
}
