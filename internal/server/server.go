package server

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/roach88/syncache/internal/store"
)

// DefaultAddr is the listen address used when none is configured.
const DefaultAddr = "127.0.0.1:8080"

// Config configures a Server.
type Config struct {
	Addr         string
	Logger       *slog.Logger
	Registry     *prometheus.Registry
	MaxBodyBytes int64
}

// Server serves the record store over HTTP and websocket.
type Server struct {
	config  Config
	store   *store.Store
	logger  *slog.Logger
	metrics *Metrics
	hub     *Broadcaster
	http    *http.Server
	handler http.Handler
}

// New creates a Server over st.
func New(cfg Config, st *store.Store) (*Server, error) {
	if st == nil {
		return nil, fmt.Errorf("server: nil store")
	}
	if cfg.Addr == "" {
		cfg.Addr = DefaultAddr
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Registry == nil {
		cfg.Registry = prometheus.NewRegistry()
	}
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = 1 << 20
	}

	m, err := newMetrics(cfg.Registry)
	if err != nil {
		return nil, fmt.Errorf("register metrics: %w", err)
	}

	s := &Server{
		config:  cfg,
		store:   st,
		logger:  cfg.Logger,
		metrics: m,
		hub:     newBroadcaster(cfg.Logger, m),
	}
	s.handler = s.routes()
	s.http = &http.Server{
		Addr:              cfg.Addr,
		Handler:           s.handler,
		ReadHeaderTimeout: 15 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
	return s, nil
}

// Handler returns the server's root handler.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Broadcaster returns the realtime fan-out.
func (s *Server) Broadcaster() *Broadcaster {
	return s.hub
}

// Start begins listening (non-blocking) and returns the bound address.
func (s *Server) Start() (string, error) {
	ln, err := net.Listen("tcp", s.config.Addr)
	if err != nil {
		return "", fmt.Errorf("listen: %w", err)
	}
	go func() {
		if err := s.http.Serve(ln); err != nil && err != http.ErrServerClosed {
			s.logger.Error("http server", "err", err)
		}
	}()
	s.logger.Info("server listening", "addr", ln.Addr().String())
	return ln.Addr().String(), nil
}

// Shutdown stops accepting requests and disconnects realtime subscribers.
func (s *Server) Shutdown(ctx context.Context) error {
	err := s.http.Shutdown(ctx)
	s.hub.Close()
	return err
}

// routes builds the HTTP handler with all routes and middleware.
func (s *Server) routes() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.Handle("GET /metrics", promhttp.HandlerFor(s.config.Registry, promhttp.HandlerOpts{}))

	mux.HandleFunc("GET /v1/collections/{name}/records", s.handleList)
	mux.HandleFunc("POST /v1/collections/{name}/records", s.handleCreate)
	mux.HandleFunc("GET /v1/collections/{name}/records/{id}", s.handleGet)
	mux.HandleFunc("PATCH /v1/collections/{name}/records/{id}", s.handleUpdate)
	mux.HandleFunc("DELETE /v1/collections/{name}/records/{id}", s.handleDelete)

	mux.HandleFunc("GET /v1/realtime", s.hub.handleRealtime)

	return chain(mux,
		recoveryMiddleware(s.logger),
		loggingMiddleware(s.logger, s.metrics),
		maxBytesMiddleware(s.config.MaxBodyBytes),
	)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if _, err := s.store.Collections(r.Context()); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "error", "detail": "db unreachable"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
