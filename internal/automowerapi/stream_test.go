package automowerapi

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

func mockStreamServer(t *testing.T, handler func(*websocket.Conn)) *httptest.Server {
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer token", r.Header.Get("Authorization"))
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("Failed to upgrade connection: %v", err)
			return
		}
		defer conn.Close()
		handler(conn)
	}))
}

func wsURL(server *httptest.Server) string {
	return "ws" + strings.TrimPrefix(server.URL, "http")
}

type eventRecorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *eventRecorder) handle(ev Event) {
	r.mu.Lock()
	r.events = append(r.events, ev)
	r.mu.Unlock()
}

func (r *eventRecorder) get() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event(nil), r.events...)
}

func TestStream_DeliversEvents(t *testing.T) {
	server := mockStreamServer(t, func(conn *websocket.Conn) {
		conn.WriteMessage(websocket.TextMessage, []byte(`{"ready":true}`))
		conn.WriteMessage(websocket.TextMessage, []byte("not json"))
		conn.WriteJSON(Event{Type: EventSettings, ID: "m1", Attributes: []byte(`{"settings":{"cuttingHeight":5}}`)})
		// hold until the client closes
		conn.ReadMessage()
	})
	defer server.Close()

	rec := &eventRecorder{}
	stream := NewStream(wsURL(server), "token", zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- stream.Run(ctx, rec.handle) }()

	require.Eventually(t, func() bool { return len(rec.get()) == 1 }, 2*time.Second, 10*time.Millisecond)
	assert.True(t, stream.IsConnected())

	ev := rec.get()[0]
	assert.Equal(t, EventSettings, ev.Type)
	assert.Equal(t, "m1", ev.ID)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("stream did not stop")
	}
	assert.False(t, stream.IsConnected())
}

func TestStream_Reconnects(t *testing.T) {
	var connections atomic.Int32
	server := mockStreamServer(t, func(conn *websocket.Conn) {
		n := connections.Add(1)
		conn.WriteJSON(Event{Type: EventStatus, ID: "m1", Attributes: []byte(`{}`)})
		if n == 1 {
			// drop the first connection
			return
		}
		conn.ReadMessage()
	})
	defer server.Close()

	rec := &eventRecorder{}
	stream := NewStream(wsURL(server), "token", zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go stream.Run(ctx, rec.handle)

	require.Eventually(t, func() bool { return connections.Load() >= 2 }, 5*time.Second, 20*time.Millisecond)
	require.Eventually(t, func() bool { return len(rec.get()) >= 2 }, 2*time.Second, 10*time.Millisecond)
}

func TestStream_StopsWhileWaitingToReconnect(t *testing.T) {
	stream := NewStream("ws://127.0.0.1:1/unreachable", "token", zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- stream.Run(ctx, func(Event) {}) }()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("stream did not stop")
	}
}
