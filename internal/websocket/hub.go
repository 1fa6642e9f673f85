package websocket

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/dukerupert/chorekeeper/internal/signal"
)

// Message is the JSON frame pushed to live listeners for each signal.
type Message struct {
	Type    string         `json:"type"`
	ChoreID string         `json:"chore_id"`
	UserID  string         `json:"user_id,omitempty"`
	Cycle   string         `json:"cycle,omitempty"`
	At      time.Time      `json:"at"`
	Payload map[string]any `json:"payload,omitempty"`
}

// NewMessage converts a signal into its wire frame.
func NewMessage(sig signal.Signal) Message {
	return Message{
		Type:    string(sig.Kind),
		ChoreID: sig.ChoreID,
		UserID:  sig.UserID,
		Cycle:   sig.Cycle,
		At:      sig.At,
		Payload: sig.Payload,
	}
}

// Hub maintains the set of active WebSocket clients and broadcasts messages.
type Hub struct {
	mu      sync.RWMutex
	clients map[*Client]struct{}
	origins []string
	logger  *slog.Logger
}

// NewHub creates a new Hub. origins lists the host patterns allowed to open
// a connection in addition to the serving host.
func NewHub(logger *slog.Logger, origins ...string) *Hub {
	return &Hub{
		clients: make(map[*Client]struct{}),
		origins: origins,
		logger:  logger,
	}
}

// Register adds a client to the hub.
func (h *Hub) Register(c *Client) {
	h.mu.Lock()
	h.clients[c] = struct{}{}
	h.mu.Unlock()
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

// Emit broadcasts sig to every connected client. Slow clients drop frames
// rather than block the workflow.
func (h *Hub) Emit(_ context.Context, sig signal.Signal) error {
	return h.Broadcast(NewMessage(sig))
}

// Broadcast sends msg to every client subscribed to its chore.
func (h *Hub) Broadcast(msg Message) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal broadcast: %w", err)
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	for c := range h.clients {
		if !c.wants(msg.ChoreID) {
			continue
		}
		select {
		case c.send <- data:
		default:
			h.logger.Warn("client buffer full, dropping message", "type", msg.Type, "user_id", c.userID)
		}
	}
	return nil
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}
