package chat

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// Scope decides which clients receive a broadcast.
type Scope string

const (
	// ScopeAll delivers every message to every connected client.
	ScopeAll Scope = "all"
	// ScopeRoom delivers a message only to clients viewing its room.
	ScopeRoom Scope = "room"
)

// ParseScope validates a configured scope value.
func ParseScope(s string) (Scope, error) {
	switch Scope(s) {
	case ScopeAll, ScopeRoom:
		return Scope(s), nil
	default:
		return "", fmt.Errorf("chat: unknown broadcast scope %q (want %q or %q)", s, ScopeAll, ScopeRoom)
	}
}

// ErrHubClosed is returned once the hub's event loop has stopped.
var ErrHubClosed = errors.New("chat: hub closed")

// shutdownGrace is how long Run waits for pumps to finish after asking every
// client to close before it force-closes the remaining connections.
const shutdownGrace = 5 * time.Second

type broadcast struct {
	room    string
	payload []byte
}

// Hub is the registry of live connections. All changes to the client set
// and every close of a send channel happen on the Run goroutine; the mutex
// only lets Count and the fan-out snapshot read the set safely.
type Hub struct {
	clients    map[*Client]struct{}
	register   chan *Client
	unregister chan *Client
	broadcast  chan broadcast
	scope      Scope
	logger     *slog.Logger

	mu   sync.RWMutex
	wg   sync.WaitGroup
	done chan struct{}
}

// NewHub creates a Hub. Run must be started before clients register.
func NewHub(scope Scope, logger *slog.Logger) *Hub {
	return &Hub{
		clients:    make(map[*Client]struct{}),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		broadcast:  make(chan broadcast, 256),
		scope:      scope,
		logger:     logger,
		done:       make(chan struct{}),
	}
}

// Scope returns the hub's delivery scope.
func (h *Hub) Scope() Scope { return h.scope }

// Register adds c to the hub and starts its read and write pumps.
func (h *Hub) Register(c *Client) error {
	select {
	case h.register <- c:
		return nil
	case <-h.done:
		return ErrHubClosed
	}
}

// Unregister removes c and closes its send channel. Unknown clients are
// ignored, so it is safe to call more than once.
func (h *Hub) Unregister(c *Client) {
	select {
	case h.unregister <- c:
	case <-h.done:
	}
}

// Broadcast queues payload for delivery to the clients selected by the
// hub's scope. room is only consulted in ScopeRoom.
func (h *Hub) Broadcast(room string, payload []byte) error {
	select {
	case <-h.done:
		return ErrHubClosed
	default:
	}

	select {
	case h.broadcast <- broadcast{room: room, payload: payload}:
		return nil
	case <-h.done:
		return ErrHubClosed
	}
}

// Count returns the number of registered clients.
func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Run is the hub's event loop. It returns after ctx is cancelled and every
// client has been closed.
func (h *Hub) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			h.shutdown()
			return nil

		case c := <-h.register:
			h.mu.Lock()
			h.clients[c] = struct{}{}
			count := len(h.clients)
			h.mu.Unlock()

			h.logger.Info("client registered",
				slog.String("conn", c.id),
				slog.String("addr", c.addr),
				slog.String("chat", c.room),
				slog.Int("clients", count),
			)

			h.wg.Add(2)
			go func() {
				defer h.wg.Done()
				c.writePump()
			}()
			go func() {
				defer h.wg.Done()
				c.readPump()
			}()

		case c := <-h.unregister:
			if h.remove(c) {
				h.logger.Info("client unregistered",
					slog.String("conn", c.id),
					slog.Int("clients", h.Count()),
				)
			}

		case b := <-h.broadcast:
			h.fanOut(b)
		}
	}
}

// fanOut takes a snapshot of the recipients, then does a non-blocking send
// to each. A client whose buffer is full is dropped.
func (h *Hub) fanOut(b broadcast) {
	h.mu.RLock()
	targets := make([]*Client, 0, len(h.clients))
	for c := range h.clients {
		if h.scope == ScopeRoom && c.room != b.room {
			continue
		}
		targets = append(targets, c)
	}
	h.mu.RUnlock()

	var slow []*Client
	for _, c := range targets {
		select {
		case c.send <- b.payload:
		default:
			slow = append(slow, c)
		}
	}

	for _, c := range slow {
		if h.remove(c) {
			h.logger.Warn("client dropped, send buffer full", slog.String("conn", c.id))
		}
	}

	h.logger.Debug("broadcast delivered",
		slog.String("chat", b.room),
		slog.Int("recipients", len(targets)-len(slow)),
	)
}

// remove deletes c from the set and closes its send channel, which makes
// its write pump send a close frame and exit.
func (h *Hub) remove(c *Client) bool {
	h.mu.Lock()
	_, ok := h.clients[c]
	if ok {
		delete(h.clients, c)
	}
	h.mu.Unlock()

	if ok {
		close(c.send)
	}
	return ok
}

func (h *Hub) shutdown() {
	close(h.done)

	h.mu.Lock()
	clients := make([]*Client, 0, len(h.clients))
	for c := range h.clients {
		clients = append(clients, c)
		delete(h.clients, c)
	}
	h.mu.Unlock()

	for _, c := range clients {
		close(c.send)
	}
	h.logger.Info("hub closing client connections", slog.Int("clients", len(clients)))

	finished := make(chan struct{})
	go func() {
		h.wg.Wait()
		close(finished)
	}()

	select {
	case <-finished:
	case <-time.After(shutdownGrace):
		h.logger.Warn("hub shutdown grace expired, forcing connections closed")
		for _, c := range clients {
			c.closeConn()
		}
		<-finished
	}
}
