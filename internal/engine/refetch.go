package engine

import (
	"context"
	"errors"
	"time"
)

// Refetch loads the full collection and reconciles it into the cache.
// Loading is true while it runs. A failure sets Status.Error and leaves the
// cache untouched. If a mutation or newer fetch starts first, the result is
// discarded and ErrSuperseded is returned.
func (m *Manager) Refetch(ctx context.Context) error {
	return m.fetch(ctx, false)
}

// EnsureFresh refetches only when the cache has never been fetched or its
// data is older than StaleTime.
func (m *Manager) EnsureFresh(ctx context.Context) error {
	m.mu.Lock()
	if err := m.usableLocked(); err != nil {
		m.mu.Unlock()
		return err
	}
	fetchedAt := m.status.FetchedAt
	m.mu.Unlock()

	if !fetchedAt.IsZero() && m.cfg.StaleTime > 0 && m.client.now().Sub(fetchedAt) < m.cfg.StaleTime {
		return nil
	}
	return m.Refetch(ctx)
}

func (m *Manager) fetch(ctx context.Context, background bool) error {
	m.mu.Lock()
	if err := m.usableLocked(); err != nil {
		m.mu.Unlock()
		return err
	}
	if m.fetchCancel != nil {
		m.fetchCancel()
	}
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	gen := m.gen.Next()
	m.fetchCancel = cancel
	if background {
		m.status.Syncing = true
	} else {
		m.status.Loading = true
	}
	m.stopStaleTimerLocked()
	m.mu.Unlock()

	start := time.Now()
	m.logger.Debug("fetch started", "background", background)
	recs, err := m.src.FetchAll(ctx)
	if err == nil {
		var result ReconcileResult
		result, err = m.reconcile(recs, gen)
		if err == nil {
			m.finishFetch(gen, result, start)
			return nil
		}
	}

	if errors.Is(err, ErrSuperseded) || !m.gen.IsCurrent(gen) {
		m.metrics.ObserveFetch(m.name, OutcomeSuperseded, time.Since(start))
		m.logger.Debug("discarding superseded fetch", "background", background)
		return ErrSuperseded
	}

	m.mu.Lock()
	if m.gen.IsCurrent(gen) {
		m.fetchCancel = nil
		m.status.Loading = false
		m.status.Syncing = false
		m.status.Error = err
		m.status.IsError = true
	}
	m.mu.Unlock()

	m.metrics.ObserveFetch(m.name, OutcomeError, time.Since(start))
	m.logger.Warn("fetch failed", "background", background, "error", err)
	return &FetchError{Name: m.name, Err: err}
}

func (m *Manager) finishFetch(gen int64, result ReconcileResult, start time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.gen.IsCurrent(gen) {
		m.fetchCancel = nil
		m.status.Loading = false
		m.status.Syncing = false
	}
	if result == ReconcileSkipped {
		// Mutations were in flight; fetch again once they settle.
		m.refetchWanted = m.deferredRefetch
	} else {
		m.status.Error = nil
		m.status.IsError = false
		m.status.FetchedAt = m.client.now()
		if m.cfg.StaleTime > 0 && m.usableLocked() == nil {
			m.armStaleTimerLocked(m.cfg.StaleTime)
		}
	}
	m.metrics.ObserveFetch(m.name, OutcomeSuccess, time.Since(start))
}
