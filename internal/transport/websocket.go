// Package transport provides the sink implementations and HTTP endpoints
// that connect live consumers to the ConnectionRegistry: a WebSocket stream
// endpoint and an outbound webhook sink guarded by a circuit breaker.
package transport

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"fraudwatch/internal/alerts"
	"fraudwatch/internal/types"
)

// Compile-time assertion that WSSink implements types.Sink.
var _ types.Sink = (*WSSink)(nil)

// WSSink adapts a WebSocket connection to the registry's Sink interface.
// gorilla/websocket permits at most one concurrent writer, and both
// Broadcast and RetrySweep may write to the same session, so every write is
// serialized under a mutex. Each write carries its own deadline; the
// registry never bounds delivery time itself.
type WSSink struct {
	mu           sync.Mutex
	conn         *websocket.Conn
	writeTimeout time.Duration
}

// NewWSSink wraps an upgraded connection.
func NewWSSink(conn *websocket.Conn, writeTimeout time.Duration) *WSSink {
	return &WSSink{conn: conn, writeTimeout: writeTimeout}
}

// Deliver writes one payload as a text message. The context deadline, when
// earlier than the configured write timeout, wins.
func (s *WSSink) Deliver(ctx context.Context, payload []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	deadline := time.Now().Add(s.writeTimeout)
	if ctxDeadline, ok := ctx.Deadline(); ok && ctxDeadline.Before(deadline) {
		deadline = ctxDeadline
	}
	if err := s.conn.SetWriteDeadline(deadline); err != nil {
		return err
	}
	return s.conn.WriteMessage(websocket.TextMessage, payload)
}

// Close closes the underlying connection.
func (s *WSSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conn.Close()
}

// StreamHandler upgrades HTTP requests to WebSocket sessions and registers
// them with the ConnectionRegistry. The registry owns delivery; this handler
// only manages the session lifecycle (register on upgrade, remove on close).
type StreamHandler struct {
	registry     *alerts.ConnectionRegistry
	upgrader     websocket.Upgrader
	writeTimeout time.Duration
	logger       types.Logger
}

// NewStreamHandler creates the handler. writeTimeout bounds each delivery
// write on the resulting sinks.
func NewStreamHandler(registry *alerts.ConnectionRegistry, writeTimeout time.Duration, logger types.Logger) *StreamHandler {
	return &StreamHandler{
		registry: registry,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// Streaming consumers are server-to-server agents, not
			// browsers; origin enforcement belongs to the gateway in
			// front of this service.
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		writeTimeout: writeTimeout,
		logger:       logger,
	}
}

// ServeHTTP handles GET /v1/stream?card_token=... It blocks for the lifetime
// of the session, reading (and discarding) client frames only to detect
// disconnection.
func (h *StreamHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	cardToken := r.URL.Query().Get("card_token")
	if cardToken == "" {
		http.Error(w, "card_token query parameter is required", http.StatusBadRequest)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade writes its own error response.
		h.logger.Warn("websocket upgrade failed", "error", err.Error())
		return
	}

	sessionID := "sess_" + uuid.NewString()
	sink := NewWSSink(conn, h.writeTimeout)

	if !h.registry.Register(sessionID, cardToken, sink) {
		h.logger.Error("connection registration refused",
			"session_id", sessionID,
			"card_token", cardToken,
		)
		_ = sink.Close()
		return
	}

	defer func() {
		h.registry.Remove(sessionID)
		_ = sink.Close()
	}()

	// Drain client frames until the peer disconnects. Inbound content is
	// ignored: the stream is one-way.
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			h.logger.Info("stream session closed",
				"session_id", sessionID,
				"card_token", cardToken,
			)
			return
		}
	}
}
