package realtime

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/syncache/internal/record"
)

func TestDecodeNormalizesID(t *testing.T) {
	msg, err := Decode([]byte(`{"type":"todos","event":"INSERT","data":{"id":12,"title":"x"},"origin":"o"}`))
	require.NoError(t, err)
	assert.Equal(t, "todos", msg.Type)
	assert.Equal(t, KindInsert, msg.Event)
	assert.Equal(t, "12", msg.Data.ID())
	assert.Equal(t, "o", msg.Origin)
}

func TestDecodeErrors(t *testing.T) {
	_, err := Decode([]byte(`not json`))
	require.Error(t, err)
	_, err = Decode([]byte(`{"event":"INSERT"}`))
	require.Error(t, err)
}

func TestEncodeDecode(t *testing.T) {
	frame, err := Encode(Message{Type: "todos", Event: KindDelete, Data: record.Record{"id": "1"}})
	require.NoError(t, err)
	msg, err := Decode(frame)
	require.NoError(t, err)
	assert.Equal(t, "1", msg.Data.ID())
	assert.Empty(t, msg.Origin)
}

func TestHubRoutesByType(t *testing.T) {
	h := NewHub()
	var got []string
	h.On("todos", func(m Message) { got = append(got, "todos:"+m.Data.ID()) })
	id := h.On("posts", func(m Message) { got = append(got, "posts:"+m.Data.ID()) })

	assert.Equal(t, 1, h.Publish(Message{Type: "todos", Data: record.Record{"id": "1"}}))
	h.Publish(Message{Type: "posts", Data: record.Record{"id": "2"}})
	h.Off("posts", id)
	assert.Equal(t, 0, h.Publish(Message{Type: "posts", Data: record.Record{"id": "3"}}))

	assert.Equal(t, []string{"todos:1", "posts:2"}, got)
}

func TestHubListenerMayUnsubscribe(t *testing.T) {
	h := NewHub()
	var id ListenerID
	calls := 0
	id = h.On("todos", func(Message) {
		calls++
		h.Off("todos", id)
	})
	h.Publish(Message{Type: "todos"})
	h.Publish(Message{Type: "todos"})
	assert.Equal(t, 1, calls)
}

func TestMessageQueueFIFO(t *testing.T) {
	q := newMessageQueue()
	for _, ty := range []string{"a", "b", "c"} {
		require.True(t, q.Enqueue(Message{Type: ty}))
	}
	assert.Equal(t, 3, q.Len())

	for _, want := range []string{"a", "b", "c"} {
		got, ok := q.TryDequeue()
		require.True(t, ok)
		assert.Equal(t, want, got.Type)
	}
	_, ok := q.TryDequeue()
	assert.False(t, ok)
}

func TestMessageQueueClose(t *testing.T) {
	q := newMessageQueue()
	q.Enqueue(Message{Type: "a"})
	q.Close()
	q.Close()

	assert.False(t, q.Enqueue(Message{Type: "b"}))
	assert.True(t, q.Closed())

	select {
	case <-q.Wait():
	case <-time.After(time.Second):
		t.Fatal("Wait should not block after Close")
	}
	got, ok := q.TryDequeue()
	require.True(t, ok, "queued messages survive Close")
	assert.Equal(t, "a", got.Type)
}

func TestMessageQueueWaitSignals(t *testing.T) {
	q := newMessageQueue()
	go func() {
		time.Sleep(10 * time.Millisecond)
		q.Enqueue(Message{Type: "late"})
	}()
	select {
	case <-q.Wait():
	case <-time.After(time.Second):
		t.Fatal("expected signal")
	}
	got, ok := q.TryDequeue()
	require.True(t, ok)
	assert.Equal(t, "late", got.Type)
}

func newFrameServer(t *testing.T, frames ...string) string {
	t.Helper()
	upgrader := websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		for _, f := range frames {
			if err := conn.WriteMessage(websocket.TextMessage, []byte(f)); err != nil {
				return
			}
		}
		// Hold the connection until the client closes it.
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	t.Cleanup(srv.Close)
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func TestWebSocketTransportDelivers(t *testing.T) {
	url := newFrameServer(t,
		`{"type":"todos","event":"INSERT","data":{"id":"1"}}`,
		`garbage`,
		`{"type":"other","event":"INSERT","data":{"id":"x"}}`,
		`{"type":"todos","event":"DELETE","data":{"id":"1"}}`,
	)

	var mu sync.Mutex
	var got []Kind
	received := make(chan struct{}, 2)
	listener := func(m Message) {
		mu.Lock()
		got = append(got, m.Event)
		mu.Unlock()
		received <- struct{}{}
	}

	tr, err := DialWebSocket(context.Background(), url, nil,
		WithTransportLogger(quietLogger()),
		WithSubscription("todos", listener))
	require.NoError(t, err)

	for i := 0; i < 2; i++ {
		select {
		case <-received:
		case <-time.After(2 * time.Second):
			t.Fatal("timed out waiting for frames")
		}
	}
	require.NoError(t, tr.Close())

	select {
	case <-tr.Done():
	case <-time.After(time.Second):
		t.Fatal("transport did not finish")
	}
	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []Kind{KindInsert, KindDelete}, got)
}

func TestDialWebSocketFailure(t *testing.T) {
	_, err := DialWebSocket(context.Background(), "ws://127.0.0.1:1/none", nil)
	require.Error(t, err)
}
