package api

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/sightline/sightline/internal/logging"
)

// Event is one message pushed to WebSocket subscribers.
type Event struct {
	Type      string    `json:"type"`
	Data      any       `json:"data,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// client is one WebSocket subscriber. Slow clients get dropped rather
// than blocking the publisher.
type client struct {
	conn *websocket.Conn
	send chan Event
}

// EventHub fans strategy and engine events out to WebSocket clients.
// It satisfies strategy.EventPublisher.
type EventHub struct {
	upgrader websocket.Upgrader

	mu      sync.RWMutex
	clients map[*client]struct{}

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewEventHub creates a hub with no subscribers.
func NewEventHub() *EventHub {
	ctx, cancel := context.WithCancel(context.Background())
	return &EventHub{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return true // Allow all origins for now
			},
		},
		clients: make(map[*client]struct{}),
		ctx:     ctx,
		cancel:  cancel,
	}
}

// Publish sends an event to every connected client without blocking.
func (h *EventHub) Publish(event string, data any) {
	msg := Event{Type: event, Data: data, Timestamp: time.Now()}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.clients {
		select {
		case c.send <- msg:
		default:
			// Buffer full, the client is too slow. Its writer will
			// catch up or its reader will notice the close.
		}
	}
}

// ClientCount returns the number of connected subscribers.
func (h *EventHub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Stop disconnects all clients and waits for their pumps to finish.
func (h *EventHub) Stop() {
	h.cancel()

	h.mu.Lock()
	for c := range h.clients {
		c.conn.Close()
	}
	h.mu.Unlock()

	h.wg.Wait()
}

// ServeHTTP upgrades the request and subscribes the connection.
func (h *EventHub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logging.Warn("websocket upgrade failed: %v", err)
		return
	}

	c := &client{conn: conn, send: make(chan Event, 64)}

	h.mu.Lock()
	h.clients[c] = struct{}{}
	h.mu.Unlock()

	h.wg.Add(2)
	go h.writePump(c)
	go h.readPump(c)
}

func (h *EventHub) writePump(c *client) {
	defer h.wg.Done()

	for {
		select {
		case <-h.ctx.Done():
			return
		case msg, ok := <-c.send:
			if !ok {
				return
			}
			c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := c.conn.WriteJSON(msg); err != nil {
				h.drop(c)
				return
			}
		}
	}
}

// readPump discards inbound frames. Its job is to notice the peer
// going away.
func (h *EventHub) readPump(c *client) {
	defer h.wg.Done()

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			h.drop(c)
			return
		}
	}
}

func (h *EventHub) drop(c *client) {
	h.mu.Lock()
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		close(c.send)
	}
	h.mu.Unlock()
	c.conn.Close()
}
