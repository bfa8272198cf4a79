package realtime

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// WebSocketTransport receives push events over a websocket connection.
//
// One goroutine reads frames and queues them; a second dispatches queued
// messages to listeners one at a time.
type WebSocketTransport struct {
	hub    *Hub
	conn   *websocket.Conn
	queue  *messageQueue
	logger *slog.Logger

	done      chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup
}

// WSOption configures a WebSocketTransport.
type WSOption func(*WebSocketTransport)

// WithTransportLogger sets the transport's logger.
func WithTransportLogger(l *slog.Logger) WSOption {
	return func(t *WebSocketTransport) {
		if l != nil {
			t.logger = l
		}
	}
}

// WithSubscription registers l before the pumps start, so no frame that
// arrives right after the handshake is missed.
func WithSubscription(event string, l Listener) WSOption {
	return func(t *WebSocketTransport) { t.hub.On(event, l) }
}

// DialWebSocket connects to url (ws:// or wss://) and starts the pumps.
func DialWebSocket(ctx context.Context, url string, header http.Header, opts ...WSOption) (*WebSocketTransport, error) {
	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, url, header)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("dial %s: HTTP %d: %w", url, resp.StatusCode, err)
		}
		return nil, fmt.Errorf("dial %s: %w", url, err)
	}
	return NewWebSocketTransport(conn, opts...), nil
}

// NewWebSocketTransport wraps an established connection and starts the pumps.
func NewWebSocketTransport(conn *websocket.Conn, opts ...WSOption) *WebSocketTransport {
	t := &WebSocketTransport{
		hub:    NewHub(),
		conn:   conn,
		queue:  newMessageQueue(),
		logger: slog.Default(),
		done:   make(chan struct{}),
	}
	for _, opt := range opts {
		opt(t)
	}

	t.wg.Add(2)
	go t.readPump()
	go t.dispatch()
	return t
}

// On registers a listener for an event name.
func (t *WebSocketTransport) On(event string, l Listener) ListenerID {
	return t.hub.On(event, l)
}

// Off removes a listener.
func (t *WebSocketTransport) Off(event string, id ListenerID) {
	t.hub.Off(event, id)
}

// Done is closed once the connection is gone and every queued message has
// been dispatched.
func (t *WebSocketTransport) Done() <-chan struct{} {
	return t.done
}

// Close sends a close frame, closes the connection and waits for both pumps.
func (t *WebSocketTransport) Close() error {
	var err error
	t.closeOnce.Do(func() {
		msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
		_ = t.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
		err = t.conn.Close()
	})
	t.wg.Wait()
	if errors.Is(err, net.ErrClosed) {
		return nil
	}
	return err
}

func (t *WebSocketTransport) readPump() {
	defer t.wg.Done()
	defer t.queue.Close()

	for {
		_, frame, err := t.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) &&
				!errors.Is(err, net.ErrClosed) {
				t.logger.Warn("websocket read failed", "error", err)
			}
			return
		}

		msg, err := Decode(frame)
		if err != nil {
			t.logger.Warn("dropping malformed frame", "error", err)
			continue
		}
		t.queue.Enqueue(msg)
	}
}

func (t *WebSocketTransport) dispatch() {
	defer t.wg.Done()
	defer close(t.done)

	for {
		if msg, ok := t.queue.TryDequeue(); ok {
			t.hub.Publish(msg)
			continue
		}
		if t.queue.Closed() && t.queue.Len() == 0 {
			return
		}
		<-t.queue.Wait()
	}
}
