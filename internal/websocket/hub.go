package websocket

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
)

const (
	TypeStateChanged = "state_changed"
	TypeNotice       = "notice"
)

// Message is one frame of the viewer feed.
type Message struct {
	Type    string `json:"type"`
	Version uint64 `json:"version,omitempty"`
	Payload any    `json:"payload,omitempty"`
}

func NewMessage(typ string, version uint64, payload any) Message {
	return Message{
		Type:    typ,
		Version: version,
		Payload: payload,
	}
}

// Hub maintains the set of active WebSocket clients and broadcasts messages.
type Hub struct {
	mu       sync.RWMutex
	clients  map[*Client]struct{}
	greeting func() Message
	logger   *slog.Logger
}

// NewHub creates a new Hub.
func NewHub(logger *slog.Logger) *Hub {
	return &Hub{
		clients: make(map[*Client]struct{}),
		logger:  logger,
	}
}

// SetGreeting sets the message queued for every newly registered client,
// so a viewer sees the current state before the next change.
func (h *Hub) SetGreeting(fn func() Message) {
	h.mu.Lock()
	h.greeting = fn
	h.mu.Unlock()
}

// Register adds a client to the hub.
func (h *Hub) Register(c *Client) {
	h.mu.Lock()
	h.clients[c] = struct{}{}
	greeting := h.greeting
	h.mu.Unlock()

	if greeting == nil {
		return
	}
	data, err := json.Marshal(greeting())
	if err != nil {
		h.logger.Error("marshal greeting", "error", err)
		return
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	if _, ok := h.clients[c]; ok {
		select {
		case c.send <- data:
		default:
		}
	}
}

// Unregister removes a client from the hub and closes its send channel.
func (h *Hub) Unregister(c *Client) {
	h.mu.Lock()
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		close(c.send)
	}
	h.mu.Unlock()
}

// Broadcast sends a message to all connected clients. A client whose
// buffer is full is disconnected instead of silently missing the frame; the
// viewer reconnects and is greeted with the current state.
func (h *Hub) Broadcast(msg Message) {
	data, err := json.Marshal(msg)
	if err != nil {
		h.logger.Error("marshal broadcast", "error", err)
		return
	}

	var slow []*Client
	h.mu.RLock()
	for c := range h.clients {
		select {
		case c.send <- data:
		default:
			slow = append(slow, c)
		}
	}
	h.mu.RUnlock()

	for _, c := range slow {
		h.logger.Warn("dropping slow websocket client", "type", msg.Type)
		h.Unregister(c)
	}
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Relay broadcasts render's message each time changes fires. It returns when
// ctx ends or changes is closed.
func (h *Hub) Relay(ctx context.Context, changes <-chan struct{}, render func() Message) {
	for {
		select {
		case _, ok := <-changes:
			if !ok {
				return
			}
			h.Broadcast(render())
		case <-ctx.Done():
			return
		}
	}
}
