package websocket

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	ws "github.com/coder/websocket"
)

const (
	sendBufferSize = 16
	pingInterval   = 30 * time.Second
	maxFrameBytes  = 4096
)

// Client is one live listener. A client receives every chore's signals until
// it sends a subscribe frame; after that only the named chores reach it.
type Client struct {
	hub    *Hub
	conn   *ws.Conn
	userID string
	send   chan []byte

	mu     sync.RWMutex
	chores map[string]bool
}

// subscription is the frame a client sends to narrow or widen its feed.
// An empty subscribe list restores the full feed.
type subscription struct {
	Subscribe   []string `json:"subscribe"`
	Unsubscribe []string `json:"unsubscribe"`
}

func NewClient(hub *Hub, conn *ws.Conn, userID string) *Client {
	return &Client{
		hub:    hub,
		conn:   conn,
		userID: userID,
		send:   make(chan []byte, sendBufferSize),
	}
}

// Run registers the client and blocks until the connection closes.
func (c *Client) Run(ctx context.Context) {
	c.hub.Register(c)
	defer c.hub.Unregister(c)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	c.conn.SetReadLimit(maxFrameBytes)
	go c.writePump(ctx)
	c.readPump(ctx)
}

// wants reports whether a signal for choreID should be delivered.
func (c *Client) wants(choreID string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.chores == nil || c.chores[choreID]
}

func (c *Client) apply(sub subscription) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if sub.Subscribe != nil {
		if len(sub.Subscribe) == 0 {
			c.chores = nil
		} else {
			if c.chores == nil {
				c.chores = make(map[string]bool, len(sub.Subscribe))
			}
			for _, id := range sub.Subscribe {
				c.chores[id] = true
			}
		}
	}
	for _, id := range sub.Unsubscribe {
		if c.chores != nil {
			delete(c.chores, id)
		}
	}
}

// readPump applies subscription frames. Anything else is ignored.
func (c *Client) readPump(ctx context.Context) {
	for {
		typ, data, err := c.conn.Read(ctx)
		if err != nil {
			return
		}
		if typ != ws.MessageText {
			continue
		}
		var sub subscription
		if err := json.Unmarshal(data, &sub); err != nil {
			c.hub.logger.Debug("ignoring websocket frame", "user_id", c.userID, "error", err)
			continue
		}
		c.apply(sub)
	}
}

func (c *Client) writePump(ctx context.Context) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case msg, ok := <-c.send:
			if !ok {
				return
			}
			if err := c.conn.Write(ctx, ws.MessageText, msg); err != nil {
				return
			}
		case <-ticker.C:
			if err := c.conn.Ping(ctx); err != nil {
				return
			}
		case <-ctx.Done():
			return
		}
	}
}
