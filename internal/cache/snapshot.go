package cache

import (
	"slices"

	"github.com/roach88/syncache/internal/record"
)

// SnapshotID identifies a pushed snapshot.
type SnapshotID uint64

type snapshot struct {
	id      SnapshotID
	entries map[string]record.Record
	order   []string
}

// PushSnapshot copies the current mapping one level deep and pushes it onto
// the stack. When the stack is at capacity the oldest snapshot is evicted.
func (c *Cache) PushSnapshot() SnapshotID {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.nextSnapshot++
	s := snapshot{
		id:      c.nextSnapshot,
		entries: make(map[string]record.Record, len(c.entries)),
		order:   make([]string, len(c.order)),
	}
	for k, v := range c.entries {
		s.entries[k] = v
	}
	copy(s.order, c.order)

	if len(c.snapshots) >= c.maxSnapshots {
		evicted := c.snapshots[0]
		c.snapshots = c.snapshots[1:]
		c.logger.Warn("snapshot stack full, evicting oldest",
			"evicted", uint64(evicted.id),
			"max", c.maxSnapshots)
	}
	c.snapshots = append(c.snapshots, s)
	return s.id
}

// Rollback pops the newest snapshot and restores it. Returns false when the
// stack is empty.
func (c *Cache) Rollback() bool {
	c.mu.Lock()
	n := len(c.snapshots)
	if n == 0 {
		c.mu.Unlock()
		return false
	}
	s := c.snapshots[n-1]
	c.snapshots = c.snapshots[:n-1]
	ch := c.restoreLocked(s)
	c.mu.Unlock()

	c.notify(ch)
	return true
}

// RollbackTo restores the snapshot with the given id and discards it along
// with every snapshot pushed after it. Returns false if id is not on the
// stack (already released, evicted or cleared).
func (c *Cache) RollbackTo(id SnapshotID) bool {
	c.mu.Lock()
	idx := c.indexLocked(id)
	if idx < 0 {
		c.mu.Unlock()
		return false
	}
	s := c.snapshots[idx]
	c.snapshots = c.snapshots[:idx]
	ch := c.restoreLocked(s)
	c.mu.Unlock()

	c.notify(ch)
	return true
}

// Revert undoes only the writes made between the snapshot with the given id
// and the next one (the live cache when it is the newest), then drops that
// snapshot. Later snapshots stay on the stack with the reverted ids reset in
// their baselines. A reverted id whose live record was replaced after the next
// snapshot keeps the live record. Returns false if id is not on the stack.
func (c *Cache) Revert(id SnapshotID) bool {
	c.mu.Lock()
	idx := c.indexLocked(id)
	if idx < 0 {
		c.mu.Unlock()
		return false
	}
	base := c.snapshots[idx]
	next := snapshot{entries: c.entries, order: c.order}
	if idx+1 < len(c.snapshots) {
		next = c.snapshots[idx+1]
	}
	span := changedIDs(base, next)

	var reverted []string
	for _, rid := range span {
		cur, inLive := c.entries[rid]
		nv, inNext := next.entries[rid]
		if inLive != inNext || (inLive && !record.SameRef(cur, nv)) {
			continue
		}
		c.order = resetEntry(c.entries, c.order, base, rid)
		reverted = append(reverted, rid)
	}
	for k := idx + 1; k < len(c.snapshots); k++ {
		s := &c.snapshots[k]
		for _, rid := range span {
			s.order = resetEntry(s.entries, s.order, base, rid)
		}
	}
	c.snapshots = slices.Delete(c.snapshots, idx, idx+1)

	if len(reverted) == 0 {
		c.mu.Unlock()
		return true
	}
	ch := c.bumpLocked(OpRollback, reverted...)
	c.mu.Unlock()

	c.notify(ch)
	return true
}

// Release drops the snapshot with the given id without restoring it.
func (c *Cache) Release(id SnapshotID) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	idx := c.indexLocked(id)
	if idx < 0 {
		return false
	}
	c.snapshots = append(c.snapshots[:idx], c.snapshots[idx+1:]...)
	return true
}

// Rebase applies fn to every outstanding snapshot. The mutation pipeline uses
// it to fold a committed server result into older baselines so a later
// rollback does not erase it. Errors from fn stop the walk.
func (c *Cache) Rebase(fn func(w Writer) error) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i := range c.snapshots {
		if err := fn(&snapshotWriter{s: &c.snapshots[i]}); err != nil {
			return err
		}
	}
	return nil
}

// ClearSnapshots empties the stack.
func (c *Cache) ClearSnapshots() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.snapshots = nil
}

// Depth returns the number of snapshots on the stack.
func (c *Cache) Depth() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.snapshots)
}

func (c *Cache) indexLocked(id SnapshotID) int {
	for i := len(c.snapshots) - 1; i >= 0; i-- {
		if c.snapshots[i].id == id {
			return i
		}
	}
	return -1
}

func (c *Cache) restoreLocked(s snapshot) Change {
	c.entries = s.entries
	c.order = s.order
	return c.bumpLocked(OpRollback, s.order...)
}

// changedIDs lists ids added, removed or replaced between two states, in
// base order followed by ids new in next.
func changedIDs(base, next snapshot) []string {
	var out []string
	for _, id := range base.order {
		nv, ok := next.entries[id]
		if !ok || !record.SameRef(base.entries[id], nv) {
			out = append(out, id)
		}
	}
	for _, id := range next.order {
		if _, ok := base.entries[id]; !ok {
			out = append(out, id)
		}
	}
	return out
}

// resetEntry sets id in entries to its value in base, or removes it when base
// does not hold it. A restored id goes back after its nearest base
// predecessor that is still present.
func resetEntry(entries map[string]record.Record, order []string, base snapshot, id string) []string {
	rec, inBase := base.entries[id]
	_, present := entries[id]
	switch {
	case inBase:
		entries[id] = rec
		if present {
			return order
		}
		pos := 0
		for i := slices.Index(base.order, id) - 1; i >= 0; i-- {
			if j := slices.Index(order, base.order[i]); j >= 0 {
				pos = j + 1
				break
			}
		}
		return slices.Insert(order, pos, id)
	case present:
		delete(entries, id)
		if i := slices.Index(order, id); i >= 0 {
			return slices.Delete(order, i, i+1)
		}
	}
	return order
}

type snapshotWriter struct {
	s *snapshot
}

func (w *snapshotWriter) Get(id string) (record.Record, bool) {
	r, ok := w.s.entries[id]
	return r, ok
}

func (w *snapshotWriter) Upsert(rec record.Record) error {
	if !rec.HasID() {
		return ErrMissingID
	}
	id := rec.ID()
	if _, ok := w.s.entries[id]; !ok {
		w.s.order = append(w.s.order, id)
	}
	w.s.entries[id] = rec
	return nil
}

func (w *snapshotWriter) Remove(id string) bool {
	if _, ok := w.s.entries[id]; !ok {
		return false
	}
	delete(w.s.entries, id)
	for i, oid := range w.s.order {
		if oid == id {
			w.s.order = append(w.s.order[:i], w.s.order[i+1:]...)
			break
		}
	}
	return true
}

func (w *snapshotWriter) IDs() []string {
	out := make([]string, len(w.s.order))
	copy(out, w.s.order)
	return out
}
