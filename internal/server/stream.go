package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"handoff/internal/events"
	"handoff/internal/logging"
)

const (
	streamClientBuffer = 256
	streamWriteTimeout = 10 * time.Second
)

// StreamHub forwards lifecycle events to connected websocket clients, one
// JSON message per event. It is an events.Handler: dispatch stays
// non-blocking because each client has a buffered send queue and slow clients
// drop events rather than stall the emitter.
type StreamHub struct {
	mu       sync.RWMutex
	clients  map[*streamClient]struct{}
	upgrader websocket.Upgrader
	logger   logging.Logger
}

type streamClient struct {
	conn *websocket.Conn
	send chan []byte
	once sync.Once
}

// NewStreamHub creates a hub with no connected clients.
func NewStreamHub(logger logging.Logger) *StreamHub {
	return &StreamHub{
		clients: make(map[*streamClient]struct{}),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// Origin enforcement happens in the CORS middleware.
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		logger: logging.OrNop(logger),
	}
}

// Handle implements events.Handler.
func (h *StreamHub) Handle(event events.Event) error {
	if events.IsDisplay(event) {
		return nil
	}

	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal event %s: %w", event.EventType(), err)
	}

	// Sends happen under the read lock; drop closes channels under the write
	// lock, so a send can never hit a closed channel.
	h.mu.RLock()
	defer h.mu.RUnlock()
	for client := range h.clients {
		select {
		case client.send <- payload:
		default:
			// Client buffer full, skip this event to avoid blocking dispatch.
			h.logger.Warn("Stream client buffer full, dropping event %s", event.EventType())
		}
	}
	return nil
}

// ClientCount returns the number of connected websocket clients.
func (h *StreamHub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// HandleWS upgrades GET /api/events/ws to a websocket and streams lifecycle
// events to it until the client disconnects.
func (h *StreamHub) HandleWS(c *gin.Context) {
	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Warn("WebSocket upgrade failed: %v", err)
		return
	}

	client := &streamClient{
		conn: conn,
		send: make(chan []byte, streamClientBuffer),
	}

	h.mu.Lock()
	h.clients[client] = struct{}{}
	total := len(h.clients)
	h.mu.Unlock()
	h.logger.Info("Stream client connected (total: %d)", total)

	go h.writePump(client)
	h.readPump(client)
}

func (h *StreamHub) writePump(client *streamClient) {
	for payload := range client.send {
		_ = client.conn.SetWriteDeadline(time.Now().Add(streamWriteTimeout))
		if err := client.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
			h.drop(client)
			return
		}
	}
}

// readPump discards inbound frames; its job is detecting disconnects.
func (h *StreamHub) readPump(client *streamClient) {
	for {
		if _, _, err := client.conn.ReadMessage(); err != nil {
			h.drop(client)
			return
		}
	}
}

func (h *StreamHub) drop(client *streamClient) {
	client.once.Do(func() {
		h.mu.Lock()
		delete(h.clients, client)
		close(client.send)
		remaining := len(h.clients)
		h.mu.Unlock()

		_ = client.conn.Close()
		h.logger.Info("Stream client disconnected (remaining: %d)", remaining)
	})
}

// Close disconnects every client, typically during shutdown.
func (h *StreamHub) Close() {
	h.mu.RLock()
	clients := make([]*streamClient, 0, len(h.clients))
	for client := range h.clients {
		clients = append(clients, client)
	}
	h.mu.RUnlock()

	for _, client := range clients {
		h.drop(client)
	}
}
