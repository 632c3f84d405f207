package http

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"scanner-caption-service/internal/models"
	"scanner-caption-service/internal/observability/logging"
	"scanner-caption-service/internal/observability/metrics"
)

const (
	hubBufferSize     = 100
	hubWriteTimeout   = 5 * time.Second
	overlayReadLimit  = 512
	overlayPingPeriod = 30 * time.Second
)

// Hub fans caption events out to connected overlay websocket clients.
// Only the Run goroutine writes to client connections.
type Hub struct {
	clients    map[*websocket.Conn]bool
	broadcast  chan models.CaptionEvent
	register   chan *websocket.Conn
	unregister chan *websocket.Conn
	done       chan struct{}
	mu         sync.RWMutex

	upgrader websocket.Upgrader
	logger   zerolog.Logger
	metrics  *metrics.Metrics
}

// NewHub creates a hub. Call Run before serving /ws.
func NewHub() *Hub {
	return &Hub{
		clients:    make(map[*websocket.Conn]bool),
		broadcast:  make(chan models.CaptionEvent, hubBufferSize),
		register:   make(chan *websocket.Conn),
		unregister: make(chan *websocket.Conn),
		done:       make(chan struct{}),
		upgrader: websocket.Upgrader{
			// Overlays are loaded from local files by the streaming software.
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		logger:  logging.WithComponent("overlay-hub"),
		metrics: metrics.DefaultMetrics,
	}
}

// Run serves registrations and broadcasts until ctx is cancelled, then
// closes every client.
func (h *Hub) Run(ctx context.Context) {
	ping := time.NewTicker(overlayPingPeriod)
	defer ping.Stop()
	defer h.closeAll()

	for {
		select {
		case <-ctx.Done():
			return

		case conn := <-h.register:
			h.mu.Lock()
			h.clients[conn] = true
			n := len(h.clients)
			h.mu.Unlock()
			h.metrics.SetOverlayClients(n)
			h.logger.Info().Str("remote", conn.RemoteAddr().String()).Int("clients", n).Msg("Overlay client connected")

		case conn := <-h.unregister:
			h.drop(conn)

		case ev := <-h.broadcast:
			for _, conn := range h.snapshot() {
				conn.SetWriteDeadline(time.Now().Add(hubWriteTimeout))
				if err := conn.WriteJSON(ev); err != nil {
					h.logger.Debug().Err(err).Msg("Overlay write failed")
					h.drop(conn)
				}
			}

		case <-ping.C:
			deadline := time.Now().Add(hubWriteTimeout)
			for _, conn := range h.snapshot() {
				if err := conn.WriteControl(websocket.PingMessage, nil, deadline); err != nil {
					h.drop(conn)
				}
			}
		}
	}
}

// Broadcast queues ev for every client. It never blocks; events are dropped
// while the buffer is full.
func (h *Hub) Broadcast(ev models.CaptionEvent) {
	select {
	case h.broadcast <- ev:
	default:
		h.logger.Warn().Str("utteranceId", ev.UtteranceID).Msg("Overlay buffer full, dropping event")
	}
}

// Clients returns the number of connected clients.
func (h *Hub) Clients() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// ServeWS upgrades the request and registers the connection. Client messages
// are read and discarded until the connection closes.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn().Err(err).Msg("WebSocket upgrade failed")
		return
	}
	select {
	case h.register <- conn:
	case <-h.done:
		conn.Close()
		return
	}

	go func() {
		defer func() {
			select {
			case h.unregister <- conn:
			case <-h.done:
			}
		}()
		conn.SetReadLimit(overlayReadLimit)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
}

func (h *Hub) snapshot() []*websocket.Conn {
	h.mu.RLock()
	defer h.mu.RUnlock()
	conns := make([]*websocket.Conn, 0, len(h.clients))
	for conn := range h.clients {
		conns = append(conns, conn)
	}
	return conns
}

func (h *Hub) drop(conn *websocket.Conn) {
	h.mu.Lock()
	_, ok := h.clients[conn]
	if ok {
		delete(h.clients, conn)
	}
	n := len(h.clients)
	h.mu.Unlock()
	if !ok {
		return
	}
	conn.Close()
	h.metrics.SetOverlayClients(n)
	h.logger.Info().Int("clients", n).Msg("Overlay client disconnected")
}

func (h *Hub) closeAll() {
	close(h.done)
	for _, conn := range h.snapshot() {
		h.drop(conn)
	}
}
