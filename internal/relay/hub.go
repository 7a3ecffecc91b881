package relay

import (
	"errors"
	"sync"
)

var ErrHubClosed = errors.New("relay: hub closed")

// Hub tracks live connections so the server can count and shut them down.
// Echo handling never consults it.
type Hub struct {
	clients map[string]*Connection
	closed  bool
	mu      sync.RWMutex
}

// NewHub creates a new Hub.
func NewHub() *Hub {
	return &Hub{
		clients: make(map[string]*Connection),
	}
}

// Register adds a connection to the hub. It fails once CloseAll has run, so
// no session outlives shutdown unclosed.
func (h *Hub) Register(c *Connection) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return ErrHubClosed
	}
	h.clients[c.ID()] = c
	return nil
}

// Unregister removes a connection from the hub.
func (h *Hub) Unregister(c *Connection) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.clients, c.ID())
}

// ClientCount returns number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Connections returns a snapshot of the registered connections.
func (h *Hub) Connections() []*Connection {
	h.mu.RLock()
	defer h.mu.RUnlock()
	conns := make([]*Connection, 0, len(h.clients))
	for _, c := range h.clients {
		conns = append(conns, c)
	}
	return conns
}

// CloseAll closes every registered connection's transport and refuses
// further registrations.
func (h *Hub) CloseAll() {
	h.mu.Lock()
	h.closed = true
	conns := make([]*Connection, 0, len(h.clients))
	for _, c := range h.clients {
		conns = append(conns, c)
	}
	h.mu.Unlock()

	for _, c := range conns {
		c.Close()
	}
}
