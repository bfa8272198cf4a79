package server

import (
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/roach88/syncache/internal/realtime"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	clientSendSize = 64
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// subscriber is one websocket connection. A non-empty collections set limits
// which messages it receives.
type subscriber struct {
	conn        *websocket.Conn
	send        chan []byte
	collections map[string]bool
}

func (s *subscriber) wants(collection string) bool {
	return len(s.collections) == 0 || s.collections[collection]
}

// Broadcaster fans realtime messages out to websocket subscribers.
// Slow subscribers whose buffer fills are disconnected.
type Broadcaster struct {
	logger  *slog.Logger
	metrics *Metrics

	mu   sync.Mutex
	subs map[*subscriber]struct{}
	wg   sync.WaitGroup
}

func newBroadcaster(logger *slog.Logger, m *Metrics) *Broadcaster {
	return &Broadcaster{
		logger:  logger,
		metrics: m,
		subs:    make(map[*subscriber]struct{}),
	}
}

// Broadcast encodes msg once and queues it for every interested subscriber.
// It returns the number of subscribers it was queued for.
func (b *Broadcaster) Broadcast(msg realtime.Message) int {
	frame, err := realtime.Encode(msg)
	if err != nil {
		b.logger.Error("encode broadcast", "err", err)
		return 0
	}
	b.metrics.broadcasts.WithLabelValues(msg.Type, string(msg.Event)).Inc()

	b.mu.Lock()
	defer b.mu.Unlock()
	n := 0
	for s := range b.subs {
		if !s.wants(msg.Type) {
			continue
		}
		select {
		case s.send <- frame:
			n++
		default:
			b.logger.Warn("dropping slow realtime subscriber")
			b.removeLocked(s)
		}
	}
	return n
}

// Subscribers returns the number of connected subscribers.
func (b *Broadcaster) Subscribers() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}

// Close disconnects every subscriber and waits for their pumps to exit.
func (b *Broadcaster) Close() {
	b.mu.Lock()
	for s := range b.subs {
		b.removeLocked(s)
	}
	b.mu.Unlock()
	b.wg.Wait()
}

func (b *Broadcaster) removeLocked(s *subscriber) {
	if _, ok := b.subs[s]; !ok {
		return
	}
	delete(b.subs, s)
	close(s.send)
	b.metrics.clients.Dec()
}

func (b *Broadcaster) remove(s *subscriber) {
	b.mu.Lock()
	b.removeLocked(s)
	b.mu.Unlock()
}

// handleRealtime upgrades the request and streams broadcasts to it.
// Repeated ?collection= parameters restrict the stream.
func (b *Broadcaster) handleRealtime(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		b.logger.Warn("websocket upgrade failed", "err", err)
		return
	}

	s := &subscriber{
		conn:        conn,
		send:        make(chan []byte, clientSendSize),
		collections: make(map[string]bool),
	}
	for _, c := range r.URL.Query()["collection"] {
		s.collections[c] = true
	}

	b.mu.Lock()
	b.subs[s] = struct{}{}
	b.wg.Add(2)
	b.mu.Unlock()
	b.metrics.clients.Inc()
	b.logger.Debug("realtime subscriber connected", "collections", r.URL.Query()["collection"])

	go b.writePump(s)
	go b.readPump(s)
}

// readPump discards client frames and detects disconnects.
func (b *Broadcaster) readPump(s *subscriber) {
	defer func() {
		b.remove(s)
		s.conn.Close()
		b.wg.Done()
	}()

	s.conn.SetReadLimit(4096)
	s.conn.SetReadDeadline(time.Now().Add(pongWait))
	s.conn.SetPongHandler(func(string) error {
		return s.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := s.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				b.logger.Debug("realtime subscriber error", "err", err)
			}
			return
		}
	}
}

// writePump delivers queued frames and keeps the connection alive.
func (b *Broadcaster) writePump(s *subscriber) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		s.conn.Close()
		b.wg.Done()
	}()

	for {
		select {
		case frame, ok := <-s.send:
			s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				s.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			if err := s.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				return
			}
		case <-ticker.C:
			s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
