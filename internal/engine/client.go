package engine

import (
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/roach88/syncache/internal/remote"
)

// Client is the shared context managers are created from. It carries the
// collaborators every manager needs and a registry of live managers keyed by
// name. Closing the client destroys all of them.
type Client struct {
	logger  *slog.Logger
	metrics Recorder
	origin  string
	tempIDs TempIDGenerator
	now     func() time.Time

	mu       sync.Mutex
	managers map[string]*Manager
	closed   bool
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithLogger sets the base logger. Managers add a "cache" attribute.
func WithLogger(l *slog.Logger) ClientOption {
	return func(c *Client) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithRecorder sets the metrics recorder.
func WithRecorder(r Recorder) ClientOption {
	return func(c *Client) {
		if r != nil {
			c.metrics = r
		}
	}
}

// WithOrigin overrides the random origin id sent with writes and used for
// echo suppression.
func WithOrigin(origin string) ClientOption {
	return func(c *Client) {
		if origin != "" {
			c.origin = origin
		}
	}
}

// WithTempIDs sets the temporary id generator.
func WithTempIDs(g TempIDGenerator) ClientOption {
	return func(c *Client) {
		if g != nil {
			c.tempIDs = g
		}
	}
}

// WithNow sets the wall clock used for optimistic timestamps and FetchedAt.
func WithNow(now func() time.Time) ClientOption {
	return func(c *Client) {
		if now != nil {
			c.now = now
		}
	}
}

// NewClient creates a client.
func NewClient(opts ...ClientOption) *Client {
	c := &Client{
		logger:   slog.Default(),
		metrics:  NopRecorder{},
		origin:   NewOriginID(),
		tempIDs:  UUIDv7Generator{},
		now:      time.Now,
		managers: make(map[string]*Manager),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Origin returns the client's origin id.
func (c *Client) Origin() string {
	return c.origin
}

// NewManager creates and registers a manager for one collection.
func (c *Client) NewManager(cfg Config, src remote.DataSource, opts ...ManagerOption) (*Manager, error) {
	if cfg.Name == "" {
		return nil, errors.New("new manager: name is required")
	}
	if src == nil {
		return nil, fmt.Errorf("new manager %s: data source is required", cfg.Name)
	}
	if cfg.StaleTime < 0 {
		return nil, fmt.Errorf("new manager %s: negative stale time", cfg.Name)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil, ErrClientClosed
	}
	if _, exists := c.managers[cfg.Name]; exists {
		return nil, fmt.Errorf("new manager %s: %w", cfg.Name, ErrDuplicateName)
	}

	m := newManager(c, cfg, src, opts...)
	c.managers[cfg.Name] = m
	return m, nil
}

// Manager looks up a registered manager.
func (c *Client) Manager(name string) (*Manager, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	m, ok := c.managers[name]
	return m, ok
}

// Names lists registered manager names in sorted order.
func (c *Client) Names() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, 0, len(c.managers))
	for name := range c.managers {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// Close destroys every registered manager. Later NewManager calls fail.
func (c *Client) Close() {
	c.mu.Lock()
	c.closed = true
	ms := make([]*Manager, 0, len(c.managers))
	for _, m := range c.managers {
		ms = append(ms, m)
	}
	c.mu.Unlock()

	for _, m := range ms {
		m.Destroy()
	}
}

func (c *Client) unregister(name string, m *Manager) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.managers[name] == m {
		delete(c.managers, name)
	}
}
