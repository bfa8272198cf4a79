package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/roach88/syncache/internal/cache"
	"github.com/roach88/syncache/internal/record"
	"github.com/roach88/syncache/internal/transform"
)

// Create speculatively inserts input under a temporary id, posts it to the
// data source and swaps the temporary record for the server's record. On
// failure the cache is rolled back and a *MutationError is returned.
func (m *Manager) Create(ctx context.Context, input record.Record) (record.Record, error) {
	return m.execute(ctx, KindCreate, "", input)
}

// Update speculatively merges partial into the record with the given id and
// sends it to the data source. The server's record replaces the speculative
// one on success.
func (m *Manager) Update(ctx context.Context, id string, partial record.Record) (record.Record, error) {
	return m.execute(ctx, KindUpdate, id, partial)
}

// Remove speculatively deletes the record with the given id. The id stays
// blocked for realtime inserts and updates until the next reconciliation.
func (m *Manager) Remove(ctx context.Context, id string) error {
	_, err := m.execute(ctx, KindDelete, id, nil)
	return err
}

// execute runs prepare, speculate, dispatch, then commit or rollback.
// The pending flag for kind is set for the whole call.
func (m *Manager) execute(ctx context.Context, kind MutationKind, id string, input record.Record) (record.Record, error) {
	if kind != KindCreate && id == "" {
		return nil, fmt.Errorf("%s: empty id", kind)
	}
	start := time.Now()

	snap, target, err := m.prepare(kind, id, input)
	if errors.Is(err, ErrDisabled) || errors.Is(err, ErrDestroyed) {
		return nil, err
	}

	var result record.Record
	if err == nil {
		var resp record.Record
		resp, err = m.dispatch(ctx, kind, id, input)
		if err == nil {
			result, err = m.commit(kind, target, snap, resp)
		}
	}
	if err != nil {
		err = m.rollback(kind, target, snap, err)
	}

	m.settle(kind, err, time.Since(start))
	return result, err
}

// prepare registers the mutation, pushes its snapshot and applies the
// speculative change. A speculation error still leaves the mutation
// registered so execute can roll back and settle it.
func (m *Manager) prepare(kind MutationKind, id string, input record.Record) (cache.SnapshotID, string, error) {
	m.apply.Lock()
	defer m.apply.Unlock()

	m.mu.Lock()
	if err := m.usableLocked(); err != nil {
		m.mu.Unlock()
		return 0, "", err
	}
	m.cancelFetchLocked()
	if m.deferredRefetch {
		m.refetchWanted = true
	}
	m.pending[kind]++
	m.syncPendingLocked()
	if kind == KindDelete {
		m.tombstones[id]++
	}
	m.mu.Unlock()

	snap := m.cache.PushSnapshot()
	target, err := m.speculate(kind, id, input)
	if err != nil {
		return snap, target, fmt.Errorf("speculate: %w", err)
	}
	return snap, target, nil
}

func (m *Manager) speculate(kind MutationKind, id string, input record.Record) (string, error) {
	t := m.cfg.Transformer
	switch kind {
	case KindCreate:
		tempID := m.client.tempIDs.Generate()
		ui, err := transform.Optimistic(t, input, transform.OptimisticContext{
			TempID: tempID,
			Now:    m.client.now(),
		})
		if err != nil {
			return tempID, err
		}
		return tempID, m.cache.Upsert(ui)

	case KindUpdate:
		existing, ok := m.cache.Get(id)
		if !ok {
			m.logger.Debug("update of uncached record, skipping speculation", "id", id)
			return id, nil
		}
		ui, err := transform.Optimistic(t, input, transform.OptimisticContext{
			Now:      m.client.now(),
			Existing: existing,
		})
		if err != nil {
			return id, err
		}
		return id, m.cache.Upsert(ui)

	case KindDelete:
		if !m.cache.Remove(id) {
			m.logger.Debug("delete of uncached record, skipping speculation", "id", id)
		}
		return id, nil
	}
	return id, fmt.Errorf("unknown mutation kind %q", kind)
}

func (m *Manager) dispatch(ctx context.Context, kind MutationKind, id string, input record.Record) (record.Record, error) {
	t := m.cfg.Transformer
	switch kind {
	case KindCreate:
		wire, err := transform.ToAPI(t, input)
		if err != nil {
			return nil, err
		}
		return m.src.Create(ctx, wire)

	case KindUpdate:
		wire, err := transform.ToAPIUpdate(t, input)
		if err != nil {
			return nil, err
		}
		return m.src.Update(ctx, id, wire)

	case KindDelete:
		return nil, m.src.Delete(ctx, id)
	}
	return nil, fmt.Errorf("unknown mutation kind %q", kind)
}

// commit applies the authoritative result to the live cache and folds it into
// every outstanding snapshot, then releases this mutation's snapshot.
func (m *Manager) commit(kind MutationKind, target string, snap cache.SnapshotID, resp record.Record) (record.Record, error) {
	m.apply.Lock()
	defer m.apply.Unlock()

	switch kind {
	case KindCreate:
		ui, err := m.serverRecord(resp)
		if err != nil {
			return nil, err
		}
		swap := func(w cache.Writer) error {
			w.Remove(target)
			return w.Upsert(ui)
		}
		if err := m.cache.Batch(swap); err != nil {
			return nil, fmt.Errorf("commit: %w", err)
		}
		if err := m.cache.Rebase(swap); err != nil {
			return nil, fmt.Errorf("commit: %w", err)
		}
		m.cache.Release(snap)
		return ui, nil

	case KindUpdate:
		if resp == nil {
			m.cache.Release(snap)
			cur, _ := m.cache.Get(target)
			return cur, nil
		}
		ui, err := m.serverRecord(resp)
		if err != nil {
			return nil, err
		}
		// A delete of the same record may have been issued after this update.
		if !m.isTombstoned(target) {
			if err := m.cache.Upsert(ui); err != nil {
				return nil, fmt.Errorf("commit: %w", err)
			}
		}
		err = m.cache.Rebase(func(w cache.Writer) error {
			if _, ok := w.Get(target); ok {
				return w.Upsert(ui)
			}
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("commit: %w", err)
		}
		m.cache.Release(snap)
		return ui, nil

	case KindDelete:
		_ = m.cache.Rebase(func(w cache.Writer) error {
			w.Remove(target)
			return nil
		})
		m.cache.Release(snap)
		return nil, nil
	}
	return nil, fmt.Errorf("unknown mutation kind %q", kind)
}

func (m *Manager) serverRecord(resp record.Record) (record.Record, error) {
	ui, err := transform.ToUI(m.cfg.Transformer, resp)
	if err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}
	if !ui.HasID() {
		return nil, fmt.Errorf("commit: server record: %w", cache.ErrMissingID)
	}
	return ui, nil
}

func (m *Manager) rollback(kind MutationKind, target string, snap cache.SnapshotID, cause error) error {
	m.apply.Lock()
	rolled := m.cache.Revert(snap)
	if kind == KindDelete && m.dropTombstone(target) {
		// Another delete of the same id is still in flight.
		m.cache.Remove(target)
	}
	m.apply.Unlock()

	if !rolled {
		m.logger.Warn("snapshot no longer on stack, rollback skipped", "kind", kind, "id", target)
	}
	m.logger.Info("mutation rolled back", "kind", kind, "id", target, "error", cause)
	return &MutationError{Kind: kind, ID: target, RolledBack: rolled, Err: cause}
}

// dropTombstone releases one delete's hold on id and reports whether the id
// is still tombstoned.
func (m *Manager) dropTombstone(id string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tombstones[id]--
	if m.tombstones[id] > 0 {
		return true
	}
	delete(m.tombstones, id)
	return false
}

// settle clears the pending flag, records the outcome and starts the deferred
// refetch once the last pending mutation is done.
func (m *Manager) settle(kind MutationKind, err error, d time.Duration) {
	m.mu.Lock()
	m.pending[kind]--
	m.syncPendingLocked()

	var me *MutationError
	switch {
	case err != nil:
		m.status.Error = err
		m.status.IsError = true
	case errors.As(m.status.Error, &me):
		m.status.Error = nil
		m.status.IsError = false
	}

	if m.pendingLocked() == 0 && m.refetchWanted && m.usableLocked() == nil {
		m.refetchWanted = false
		m.startBackgroundLocked()
	}
	m.mu.Unlock()

	outcome := OutcomeSuccess
	if err != nil {
		outcome = OutcomeError
	}
	m.metrics.ObserveMutation(m.name, kind, outcome, d)
}
