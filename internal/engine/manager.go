package engine

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/roach88/syncache/internal/cache"
	"github.com/roach88/syncache/internal/realtime"
	"github.com/roach88/syncache/internal/record"
	"github.com/roach88/syncache/internal/remote"
	"github.com/roach88/syncache/internal/transform"
)

// Config describes one managed collection.
type Config struct {
	// Name identifies the collection. It scopes the data source, the realtime
	// event name (unless overridden) and the client registry entry.
	Name string

	// StaleTime is how long fetched data counts as fresh. After each
	// successful fetch a background refetch is scheduled StaleTime later.
	// Zero means always stale and disables the timer.
	StaleTime time.Duration

	// Enabled gates every fetch and mutation in addition to Enable/Disable.
	Enabled func() bool

	// Transformer maps wire records to UI records. Nil passes records through.
	Transformer transform.Transformer

	// Realtime enables ConnectRealtime. Event defaults to Name.
	Realtime *realtime.Config
}

// ManagerOption configures a Manager.
type ManagerOption func(*managerOptions)

type managerOptions struct {
	maxSnapshots    int
	deferredRefetch bool
}

// WithMaxSnapshots caps the snapshot stack depth.
func WithMaxSnapshots(n int) ManagerOption {
	return func(o *managerOptions) { o.maxSnapshots = n }
}

// WithoutDeferredRefetch stops the manager from refetching when the last
// pending mutation settles. Scenario runs use it to keep traces
// deterministic.
func WithoutDeferredRefetch() ManagerOption {
	return func(o *managerOptions) { o.deferredRefetch = false }
}

// Manager owns one cache and keeps it in step with a remote data source.
type Manager struct {
	name    string
	client  *Client
	cfg     Config
	src     remote.DataSource
	cache   *cache.Cache
	ingest  *realtime.Ingestor
	logger  *slog.Logger
	metrics Recorder
	gen     *Clock

	deferredRefetch bool

	ctx    context.Context
	cancel context.CancelFunc
	bg     sync.WaitGroup

	// apply serializes every section that decides on cache state and then
	// writes it: reconciliation, speculation, commit and rollback.
	apply sync.Mutex

	mu            sync.Mutex
	status        Status
	pending       map[MutationKind]int
	enabled       bool
	destroyed     bool
	fetchCancel   context.CancelFunc
	refetchWanted bool
	staleTimer    *time.Timer
	tombstones    map[string]int
}

func newManager(c *Client, cfg Config, src remote.DataSource, opts ...ManagerOption) *Manager {
	o := managerOptions{deferredRefetch: true}
	for _, opt := range opts {
		opt(&o)
	}

	logger := c.logger.With("cache", cfg.Name)
	cacheOpts := []cache.Option{cache.WithLogger(logger)}
	if o.maxSnapshots > 0 {
		cacheOpts = append(cacheOpts, cache.WithMaxSnapshots(o.maxSnapshots))
	}

	ctx, cancel := context.WithCancel(context.Background())
	m := &Manager{
		name:            cfg.Name,
		client:          c,
		cfg:             cfg,
		src:             src,
		cache:           cache.New(cacheOpts...),
		logger:          logger,
		metrics:         c.metrics,
		gen:             NewClock(),
		deferredRefetch: o.deferredRefetch,
		ctx:             ctx,
		cancel:          cancel,
		pending:         make(map[MutationKind]int),
		enabled:         true,
		tombstones:      make(map[string]int),
	}

	if cfg.Realtime != nil {
		rc := *cfg.Realtime
		if rc.Event == "" {
			rc.Event = cfg.Name
		}
		m.ingest = realtime.NewIngestor(m.cache, cfg.Transformer, rc,
			realtime.WithOrigin(c.origin),
			realtime.WithBlocked(m.isTombstoned),
			realtime.WithObserver(func(k realtime.Kind, out realtime.Outcome) {
				m.metrics.ObserveRealtime(m.name, string(k), string(out))
			}),
			realtime.WithIngestLogger(logger),
		)
	}

	m.cache.Subscribe(func(cache.Change) {
		m.metrics.SetCacheSize(m.name, m.cache.Count())
	})
	return m
}

// Name returns the collection name.
func (m *Manager) Name() string { return m.name }

// List returns every cached record in insertion order.
func (m *Manager) List() []record.Record { return m.cache.List() }

// Count returns the number of cached records.
func (m *Manager) Count() int { return m.cache.Count() }

// Get returns one cached record.
func (m *Manager) Get(id string) (record.Record, bool) { return m.cache.Get(id) }

// Filter returns the cached records matching pred.
func (m *Manager) Filter(pred func(record.Record) bool) []record.Record {
	return m.cache.Filter(pred)
}

// Find returns the first cached record matching pred.
func (m *Manager) Find(pred func(record.Record) bool) (record.Record, bool) {
	return m.cache.Find(pred)
}

// Subscribe registers a cache change listener. Listeners must not call
// mutating Manager methods.
func (m *Manager) Subscribe(fn cache.Listener) func() { return m.cache.Subscribe(fn) }

// SnapshotDepth returns the number of outstanding snapshots.
func (m *Manager) SnapshotDepth() int { return m.cache.Depth() }

// Status returns a copy of the current status.
func (m *Manager) Status() Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.status
}

// Enable allows fetches and mutations again and re-arms the staleness timer.
func (m *Manager) Enable() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.destroyed {
		return ErrDestroyed
	}
	m.enabled = true
	if m.status.FetchedAt.IsZero() || m.cfg.StaleTime <= 0 {
		return nil
	}
	remaining := m.cfg.StaleTime - m.client.now().Sub(m.status.FetchedAt)
	if remaining <= 0 {
		if m.usableLocked() == nil {
			m.startBackgroundLocked()
		}
		return nil
	}
	m.armStaleTimerLocked(remaining)
	return nil
}

// Disable rejects new fetches and mutations with ErrDisabled and stops the
// staleness timer. In-flight operations finish normally.
func (m *Manager) Disable() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.destroyed {
		return ErrDestroyed
	}
	m.enabled = false
	m.stopStaleTimerLocked()
	return nil
}

// Destroy disconnects realtime, stops timers, cancels the in-flight fetch and
// unregisters from the client. It waits for background work to finish and is
// safe to call more than once.
func (m *Manager) Destroy() {
	m.mu.Lock()
	if m.destroyed {
		m.mu.Unlock()
		return
	}
	m.destroyed = true
	m.enabled = false
	m.stopStaleTimerLocked()
	m.cancelFetchLocked()
	m.mu.Unlock()

	if m.ingest != nil {
		m.ingest.Disconnect()
	}
	m.cancel()
	m.client.unregister(m.name, m)
	m.bg.Wait()
	m.logger.Debug("manager destroyed")
}

// WaitIdle blocks until background fetches started so far have finished.
func (m *Manager) WaitIdle() {
	m.bg.Wait()
}

// ConnectRealtime attaches the manager's ingestor to t.
func (m *Manager) ConnectRealtime(t realtime.Transport) error {
	m.mu.Lock()
	destroyed := m.destroyed
	m.mu.Unlock()
	if destroyed {
		return ErrDestroyed
	}
	if m.ingest == nil {
		return ErrNoRealtime
	}
	return m.ingest.Connect(t)
}

// DisconnectRealtime detaches the ingestor. Safe when not connected.
func (m *Manager) DisconnectRealtime() {
	if m.ingest != nil {
		m.ingest.Disconnect()
	}
}

// HandleRealtime applies one message as if it arrived on the transport.
func (m *Manager) HandleRealtime(msg realtime.Message) (realtime.Outcome, error) {
	m.mu.Lock()
	destroyed := m.destroyed
	m.mu.Unlock()
	if destroyed {
		return "", ErrDestroyed
	}
	if m.ingest == nil {
		return "", ErrNoRealtime
	}
	return m.ingest.Handle(msg), nil
}

func (m *Manager) usableLocked() error {
	if m.destroyed {
		return ErrDestroyed
	}
	if !m.enabled {
		return ErrDisabled
	}
	if m.cfg.Enabled != nil && !m.cfg.Enabled() {
		return ErrDisabled
	}
	return nil
}

func (m *Manager) isTombstoned(id string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.tombstones[id] > 0
}

func (m *Manager) pendingLocked() int {
	n := 0
	for _, v := range m.pending {
		n += v
	}
	return n
}

func (m *Manager) syncPendingLocked() {
	m.status.CreatePending = m.pending[KindCreate] > 0
	m.status.UpdatePending = m.pending[KindUpdate] > 0
	m.status.DeletePending = m.pending[KindDelete] > 0
}

// cancelFetchLocked aborts the in-flight fetch, if any, and advances the
// generation so a result that still arrives is discarded.
func (m *Manager) cancelFetchLocked() {
	if m.fetchCancel != nil {
		m.fetchCancel()
		m.fetchCancel = nil
	}
	m.gen.Next()
	m.status.Loading = false
	m.status.Syncing = false
}

func (m *Manager) armStaleTimerLocked(d time.Duration) {
	m.stopStaleTimerLocked()
	m.staleTimer = time.AfterFunc(d, m.onStale)
}

func (m *Manager) stopStaleTimerLocked() {
	if m.staleTimer != nil {
		m.staleTimer.Stop()
		m.staleTimer = nil
	}
}

func (m *Manager) onStale() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.staleTimer = nil
	if m.usableLocked() != nil {
		return
	}
	if m.pendingLocked() > 0 {
		m.refetchWanted = m.deferredRefetch
		return
	}
	m.startBackgroundLocked()
}

// startBackgroundLocked launches a background refetch. Callers hold m.mu and
// have checked that the manager is not destroyed.
func (m *Manager) startBackgroundLocked() {
	m.bg.Add(1)
	go func() {
		defer m.bg.Done()
		err := m.fetch(m.ctx, true)
		if err != nil && !errors.Is(err, ErrSuperseded) && !errors.Is(err, ErrDestroyed) && !errors.Is(err, ErrDisabled) {
			m.logger.Debug("background refetch failed", "error", err)
		}
	}()
}
