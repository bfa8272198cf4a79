package engine

import (
	"fmt"

	"github.com/roach88/syncache/internal/cache"
	"github.com/roach88/syncache/internal/record"
	"github.com/roach88/syncache/internal/transform"
)

// ReconcileResult reports what a reconciliation pass did.
type ReconcileResult string

const (
	// ReconcileSkipped means mutations were pending and the cache was left
	// alone.
	ReconcileSkipped ReconcileResult = "skipped"
	// ReconcileUnchanged means the server state matched the cache.
	ReconcileUnchanged ReconcileResult = "unchanged"
	// ReconcileApplied means the cache was diffed into the server state.
	ReconcileApplied ReconcileResult = "applied"
)

// Reconcile merges an authoritative list of wire records into the cache.
//
// While any mutation is pending the pass is skipped. Otherwise every record
// goes through the transformer and, if the result differs from the cache by
// id set or by shallow field equality, the cache is diff-applied: absent ids
// are removed and changed or new records are upserted. Unchanged records
// keep their identity. A real change clears the snapshot stack. Any pass
// that is not skipped clears delete tombstones.
func (m *Manager) Reconcile(server []record.Record) (ReconcileResult, error) {
	m.mu.Lock()
	destroyed := m.destroyed
	m.mu.Unlock()
	if destroyed {
		return ReconcileSkipped, ErrDestroyed
	}
	return m.reconcile(server, 0)
}

// reconcile runs one pass. A non-zero gen ties the pass to a fetch; it is
// rejected with ErrSuperseded once that fetch has been invalidated.
func (m *Manager) reconcile(server []record.Record, gen int64) (ReconcileResult, error) {
	m.apply.Lock()
	defer m.apply.Unlock()

	if gen != 0 && !m.gen.IsCurrent(gen) {
		return ReconcileSkipped, ErrSuperseded
	}

	m.mu.Lock()
	pending := m.pendingLocked()
	m.mu.Unlock()
	if pending > 0 {
		m.logger.Debug("reconcile skipped, mutations pending", "pending", pending)
		m.metrics.ObserveReconcile(m.name, ReconcileSkipped)
		return ReconcileSkipped, nil
	}

	candidates, index, err := m.candidates(server)
	if err != nil {
		return ReconcileSkipped, err
	}

	changed := false
	err = m.cache.Batch(func(w cache.Writer) error {
		current := w.IDs()
		if !needsReconcile(w, current, candidates) {
			return nil
		}
		changed = true
		for _, id := range current {
			if _, keep := index[id]; !keep {
				w.Remove(id)
			}
		}
		for _, c := range candidates {
			if existing, ok := w.Get(c.ID()); ok && record.ShallowEqual(existing, c) {
				continue
			}
			if err := w.Upsert(c); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return ReconcileSkipped, fmt.Errorf("reconcile: %w", err)
	}

	m.mu.Lock()
	clear(m.tombstones)
	m.mu.Unlock()

	if !changed {
		m.metrics.ObserveReconcile(m.name, ReconcileUnchanged)
		return ReconcileUnchanged, nil
	}
	m.cache.ClearSnapshots()
	m.logger.Debug("reconciled", "records", len(candidates))
	m.metrics.ObserveReconcile(m.name, ReconcileApplied)
	return ReconcileApplied, nil
}

// candidates transforms server records into UI records keyed by id. A
// repeated id keeps the first position and the last value.
func (m *Manager) candidates(server []record.Record) ([]record.Record, map[string]int, error) {
	out := make([]record.Record, 0, len(server))
	index := make(map[string]int, len(server))
	for i, raw := range server {
		ui, err := transform.ToUI(m.cfg.Transformer, raw)
		if err != nil {
			return nil, nil, fmt.Errorf("reconcile record %d: %w", i, err)
		}
		if !ui.HasID() {
			return nil, nil, fmt.Errorf("reconcile record %d: %w", i, cache.ErrMissingID)
		}
		if j, dup := index[ui.ID()]; dup {
			out[j] = ui
			continue
		}
		index[ui.ID()] = len(out)
		out = append(out, ui)
	}
	return out, index, nil
}

func needsReconcile(w cache.Writer, current []string, candidates []record.Record) bool {
	if len(current) != len(candidates) {
		return true
	}
	for _, c := range candidates {
		existing, ok := w.Get(c.ID())
		if !ok || !record.ShallowEqual(existing, c) {
			return true
		}
	}
	return false
}
