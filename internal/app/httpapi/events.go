package httpapi

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/drawpool-labs/jackpot-engine/internal/app/domain/drawing"
	"github.com/drawpool-labs/jackpot-engine/internal/app/system"
	"github.com/drawpool-labs/jackpot-engine/pkg/logger"
)

const (
	eventBuffer   = 16
	writeDeadline = 10 * time.Second
	pingInterval  = 30 * time.Second
)

// EventHub fans drawing lifecycle events out to websocket subscribers.
// Publish never blocks; a subscriber that cannot keep up loses events
// rather than stalling the engine.
type EventHub struct {
	upgrader websocket.Upgrader
	log      *logger.Logger

	mu      sync.Mutex
	clients map[*websocket.Conn]chan drawing.Event
	closed  bool
}

var _ system.Service = (*EventHub)(nil)

// NewEventHub returns a hub ready to accept subscribers.
func NewEventHub(log *logger.Logger) *EventHub {
	if log == nil {
		log = logger.NewDefault("events")
	}
	return &EventHub{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// Origin policy is enforced by the CORS layer; the socket
			// itself accepts any origin.
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		log:     log,
		clients: make(map[*websocket.Conn]chan drawing.Event),
	}
}

func (h *EventHub) Name() string { return "event-hub" }

func (h *EventHub) Start(ctx context.Context) error { return nil }

// Stop disconnects every subscriber and refuses new ones.
func (h *EventHub) Stop(ctx context.Context) error {
	h.mu.Lock()
	h.closed = true
	conns := make([]*websocket.Conn, 0, len(h.clients))
	for conn := range h.clients {
		conns = append(conns, conn)
	}
	h.mu.Unlock()
	for _, conn := range conns {
		h.drop(conn)
	}
	return nil
}

// Publish sends evt to every connected subscriber without blocking.
// It is called while the drawing engine holds its own lock, so it must
// never wait on a slow socket. Holding mu here also guarantees no send
// races a channel close in drop.
func (h *EventHub) Publish(evt drawing.Event) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, ch := range h.clients {
		select {
		case ch <- evt:
		default:
			// Subscriber buffer full; drop the event for this client.
		}
	}
}

// Subscribers reports the number of connected clients.
func (h *EventHub) Subscribers() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// ServeHTTP upgrades the request to a websocket and streams events
// until the client disconnects.
func (h *EventHub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.WithError(err).Warn("websocket upgrade failed")
		return
	}

	ch := make(chan drawing.Event, eventBuffer)
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		conn.Close()
		return
	}
	h.clients[conn] = ch
	h.mu.Unlock()

	go h.writeLoop(conn, ch)
	go h.readLoop(conn)
}

func (h *EventHub) writeLoop(conn *websocket.Conn, ch chan drawing.Event) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()
	for {
		select {
		case evt, ok := <-ch:
			if !ok {
				conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
					time.Now().Add(writeDeadline))
				return
			}
			conn.SetWriteDeadline(time.Now().Add(writeDeadline))
			if err := conn.WriteJSON(evt); err != nil {
				h.drop(conn)
				return
			}
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeDeadline)); err != nil {
				h.drop(conn)
				return
			}
		}
	}
}

// readLoop discards inbound frames; the stream is one way. Its real
// job is noticing the disconnect.
func (h *EventHub) readLoop(conn *websocket.Conn) {
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			h.drop(conn)
			return
		}
	}
}

func (h *EventHub) drop(conn *websocket.Conn) {
	h.mu.Lock()
	if ch, ok := h.clients[conn]; ok {
		delete(h.clients, conn)
		close(ch)
	}
	h.mu.Unlock()
	conn.Close()
}
