package realtime

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/roach88/syncache/internal/cache"
	"github.com/roach88/syncache/internal/record"
	"github.com/roach88/syncache/internal/transform"
)

// Outcome names what the Ingestor did with one message.
type Outcome string

const (
	OutcomeApplied    Outcome = "applied"
	OutcomeRemoved    Outcome = "removed"
	OutcomeNoop       Outcome = "noop"
	OutcomeEcho       Outcome = "echo"
	OutcomeFiltered   Outcome = "filtered"
	OutcomeHandled    Outcome = "handled"
	OutcomeTombstoned Outcome = "tombstoned"
	OutcomeDropped    Outcome = "dropped"
)

// Handler replaces default handling for one event kind.
type Handler func(c *cache.Cache, msg Message) error

// Config controls how messages are applied.
type Config struct {
	// Event is the name subscribed to on the transport.
	Event string
	// Extract pulls the wire record out of a message. Defaults to msg.Data.
	Extract func(Message) (record.Record, error)
	// ShouldProcess filters messages after echo suppression.
	ShouldProcess func(Message) bool
	// AllowEcho applies messages even when they carry this client's origin.
	AllowEcho bool
	// Handlers override default handling per kind.
	Handlers map[Kind]Handler
}

var errNoPayload = errors.New("message has no payload")

// Ingestor applies push events from one Transport to a cache.
type Ingestor struct {
	cache       *cache.Cache
	transformer transform.Transformer
	cfg         Config
	origin      string
	blocked     func(id string) bool
	observe     func(Kind, Outcome)
	logger      *slog.Logger

	mu         sync.Mutex
	transport  Transport
	listenerID ListenerID
}

// IngestOption configures an Ingestor.
type IngestOption func(*Ingestor)

// WithOrigin sets this client's origin id for echo suppression.
func WithOrigin(origin string) IngestOption {
	return func(in *Ingestor) { in.origin = origin }
}

// WithBlocked rejects INSERT and UPDATE events for ids where fn returns true.
// Managers use it for ids deleted locally but not yet reconciled.
func WithBlocked(fn func(id string) bool) IngestOption {
	return func(in *Ingestor) { in.blocked = fn }
}

// WithObserver is called once per message with its outcome.
func WithObserver(fn func(Kind, Outcome)) IngestOption {
	return func(in *Ingestor) { in.observe = fn }
}

// WithIngestLogger sets the logger.
func WithIngestLogger(l *slog.Logger) IngestOption {
	return func(in *Ingestor) {
		if l != nil {
			in.logger = l
		}
	}
}

// NewIngestor creates an ingestor writing to c. t may be nil.
func NewIngestor(c *cache.Cache, t transform.Transformer, cfg Config, opts ...IngestOption) *Ingestor {
	in := &Ingestor{
		cache:       c,
		transformer: t,
		cfg:         cfg,
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(in)
	}
	return in
}

// Connect subscribes to t. Connecting to the transport already in use is a
// no-op; connecting to another one drops the old subscription first.
func (in *Ingestor) Connect(t Transport) error {
	if t == nil {
		return fmt.Errorf("connect: nil transport")
	}
	if in.cfg.Event == "" {
		return fmt.Errorf("connect: no event name configured")
	}

	in.mu.Lock()
	defer in.mu.Unlock()
	if in.transport == t {
		return nil
	}
	in.disconnectLocked()
	in.transport = t
	in.listenerID = t.On(in.cfg.Event, func(msg Message) { in.Handle(msg) })
	in.logger.Debug("realtime connected", "event", in.cfg.Event)
	return nil
}

// Disconnect removes the subscription. Safe to call when not connected.
func (in *Ingestor) Disconnect() {
	in.mu.Lock()
	defer in.mu.Unlock()
	in.disconnectLocked()
}

// Connected reports whether a transport is attached.
func (in *Ingestor) Connected() bool {
	in.mu.Lock()
	defer in.mu.Unlock()
	return in.transport != nil
}

func (in *Ingestor) disconnectLocked() {
	if in.transport == nil {
		return
	}
	in.transport.Off(in.cfg.Event, in.listenerID)
	in.transport = nil
	in.listenerID = 0
	in.logger.Debug("realtime disconnected", "event", in.cfg.Event)
}

// Handle applies one message. It never panics and never returns an error;
// the outcome is reported for observers and tests.
func (in *Ingestor) Handle(msg Message) (out Outcome) {
	defer func() {
		if r := recover(); r != nil {
			in.logger.Error("realtime handler panicked", "event", msg.Event, "panic", r)
			out = OutcomeDropped
		}
		if in.observe != nil {
			in.observe(msg.Event, out)
		}
	}()

	if !in.cfg.AllowEcho && in.origin != "" && msg.Origin == in.origin {
		return OutcomeEcho
	}
	if in.cfg.ShouldProcess != nil && !in.cfg.ShouldProcess(msg) {
		return OutcomeFiltered
	}
	if !msg.Event.Valid() {
		in.logger.Warn("dropping message with unknown event", "event", msg.Event)
		return OutcomeDropped
	}
	if h, ok := in.cfg.Handlers[msg.Event]; ok && h != nil {
		if err := h(in.cache, msg); err != nil {
			in.logger.Warn("realtime handler failed", "event", msg.Event, "error", err)
			return OutcomeDropped
		}
		return OutcomeHandled
	}

	wire, err := in.extract(msg)
	if err != nil {
		in.logger.Warn("dropping message", "event", msg.Event, "error", err)
		return OutcomeDropped
	}

	if msg.Event == KindDelete {
		id := wire.ID()
		if id == "" {
			in.logger.Warn("dropping delete without id")
			return OutcomeDropped
		}
		if !in.cache.Remove(id) {
			in.logger.Debug("delete for absent record", "id", id)
			return OutcomeNoop
		}
		return OutcomeRemoved
	}

	if in.blocked != nil && in.blocked(wire.ID()) {
		in.logger.Debug("ignoring event for locally deleted record", "event", msg.Event, "id", wire.ID())
		return OutcomeTombstoned
	}
	ui, err := transform.ToUI(in.transformer, wire)
	if err != nil {
		in.logger.Warn("dropping message", "event", msg.Event, "id", wire.ID(), "error", err)
		return OutcomeDropped
	}
	if err := in.cache.Upsert(ui); err != nil {
		in.logger.Warn("dropping message", "event", msg.Event, "error", err)
		return OutcomeDropped
	}
	return OutcomeApplied
}

func (in *Ingestor) extract(msg Message) (record.Record, error) {
	if in.cfg.Extract != nil {
		rec, err := in.cfg.Extract(msg)
		if err != nil {
			return nil, fmt.Errorf("extract: %w", err)
		}
		if rec == nil {
			return nil, errNoPayload
		}
		return rec, nil
	}
	if msg.Data == nil {
		return nil, errNoPayload
	}
	return msg.Data, nil
}
