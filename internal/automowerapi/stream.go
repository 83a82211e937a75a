package automowerapi

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	initialBackoff = time.Second
	maxBackoff     = 30 * time.Second
	pingInterval   = 60 * time.Second
)

// Stream is a websocket listener for pushed mower events
type Stream struct {
	url    string
	token  string
	logger *zap.Logger
	dialer *websocket.Dialer

	connMu    sync.RWMutex
	connected bool
	writeMu   sync.Mutex // protects websocket writes
}

// NewStream creates a stream for the given websocket URL
func NewStream(url, token string, logger *zap.Logger) *Stream {
	return &Stream{
		url:    url,
		token:  token,
		logger: logger.Named("stream"),
		dialer: websocket.DefaultDialer,
	}
}

// IsConnected returns true while a connection is open
func (s *Stream) IsConnected() bool {
	s.connMu.RLock()
	defer s.connMu.RUnlock()
	return s.connected
}

// Run connects and dispatches events to handler until ctx is cancelled.
// Lost connections are retried with exponential backoff.
func (s *Stream) Run(ctx context.Context, handler EventHandler) error {
	backoff := initialBackoff

	for {
		err := s.listenOnce(ctx, handler, func() { backoff = initialBackoff })
		if ctx.Err() != nil {
			return nil
		}
		s.logger.Warn("Connection lost", zap.Error(err), zap.Duration("retry_in", backoff))

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(backoff):
		}

		s.logger.Info("Attempting to reconnect...")
		backoff *= 2
		if backoff > maxBackoff {
			backoff = maxBackoff
		}
	}
}

// listenOnce runs a single connection. onConnect fires after the dial succeeds.
func (s *Stream) listenOnce(ctx context.Context, handler EventHandler, onConnect func()) error {
	header := http.Header{}
	header.Set("Authorization", "Bearer "+s.token)

	conn, _, err := s.dialer.DialContext(ctx, s.url, header)
	if err != nil {
		return fmt.Errorf("failed to connect to WebSocket: %w", err)
	}
	defer conn.Close()

	s.setConnected(true)
	defer s.setConnected(false)
	onConnect()
	s.logger.Info("Connected to mower event stream")

	connCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	// unblock ReadMessage on shutdown
	go func() {
		<-connCtx.Done()
		s.writeMu.Lock()
		conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		s.writeMu.Unlock()
		conn.Close()
	}()

	go s.keepAlive(connCtx, conn)

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return fmt.Errorf("failed to read message: %w", err)
		}

		var ev Event
		if err := json.Unmarshal(data, &ev); err != nil {
			s.logger.Debug("Ignoring non-event message", zap.ByteString("data", data))
			continue
		}
		if ev.Type == "" || ev.ID == "" {
			continue
		}
		handler(ev)
	}
}

func (s *Stream) keepAlive(ctx context.Context, conn *websocket.Conn) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.writeMu.Lock()
			err := conn.WriteControl(websocket.PingMessage, []byte("ping"), time.Now().Add(10*time.Second))
			s.writeMu.Unlock()
			if err != nil {
				s.logger.Debug("Ping failed", zap.Error(err))
				return
			}
		}
	}
}

func (s *Stream) setConnected(v bool) {
	s.connMu.Lock()
	s.connected = v
	s.connMu.Unlock()
}
