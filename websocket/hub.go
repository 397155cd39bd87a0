package websocket

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = 54 * time.Second
	maxMessageSize = 64 * 1024
)

// ErrClientClosed is returned when sending to a client whose connection has
// gone away.
var ErrClientClosed = errors.New("websocket client closed")

type Hub struct {
	clients    map[*Client]bool
	register   chan *Client
	unregister chan *Client
	done       chan struct{}
	mu         sync.RWMutex
}

// Client is one respondent connection bound to a bill's interview
type Client struct {
	Hub            *Hub
	Conn           *websocket.Conn
	Send           chan []byte
	ID             string
	UserID         string
	BillID         string
	MessageHandler func(*Client, Message) // Handles inbound frames, one at a time

	ctx    context.Context
	cancel context.CancelFunc
	busy   atomic.Bool
	closed atomic.Bool
}

// Message is an inbound frame
type Message struct {
	Type    string `json:"type"` // "chat"
	Text    string `json:"text"`
	IsRetry bool   `json:"is_retry"`
}

// Frame is an outbound frame
type Frame struct {
	Type string `json:"type"` // "delta", "done", "error"
	Data any    `json:"data,omitempty"`
}

func NewHub() *Hub {
	return &Hub{
		clients:    make(map[*Client]bool),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		done:       make(chan struct{}),
	}
}

// Run services registrations until ctx is done
func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			close(h.done)
			h.mu.Lock()
			for client := range h.clients {
				client.close()
				delete(h.clients, client)
			}
			h.mu.Unlock()
			return

		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			h.mu.Unlock()
			slog.Info("Client registered", "client_id", client.ID, "user_id", client.UserID, "bill_id", client.BillID)

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				client.close()
			}
			h.mu.Unlock()
			slog.Info("Client unregistered", "client_id", client.ID, "user_id", client.UserID)
		}
	}
}

// ClientCount returns the number of connected clients
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func (h *Hub) RegisterClient(conn *websocket.Conn, userID, billID string) *Client {
	ctx, cancel := context.WithCancel(context.Background())
	client := &Client{
		Hub:    h,
		Conn:   conn,
		Send:   make(chan []byte, 256),
		ID:     uuid.New().String(),
		UserID: userID,
		BillID: billID,
		ctx:    ctx,
		cancel: cancel,
	}

	select {
	case h.register <- client:
	case <-h.done:
		client.close()
	}
	return client
}

// Context is cancelled when the connection closes
func (c *Client) Context() context.Context {
	return c.ctx
}

func (c *Client) close() {
	if c.closed.CompareAndSwap(false, true) {
		c.cancel()
		close(c.Send)
	}
}

// SendFrame queues a frame for the write pump
func (c *Client) SendFrame(frame Frame) error {
	data, err := json.Marshal(frame)
	if err != nil {
		return err
	}
	return c.send(data)
}

func (c *Client) send(data []byte) (err error) {
	if c.closed.Load() {
		return ErrClientClosed
	}
	// The hub may close Send between the check and the send
	defer func() {
		if r := recover(); r != nil {
			err = ErrClientClosed
		}
	}()
	select {
	case c.Send <- data:
		return nil
	case <-c.ctx.Done():
		return ErrClientClosed
	}
}

// ReadPump reads frames until the connection fails. A frame that arrives
// while the previous one is still being handled is rejected, so each client
// runs at most one turn at a time.
func (c *Client) ReadPump() {
	defer func() {
		select {
		case c.Hub.unregister <- c:
		case <-c.Hub.done:
		}
		c.Conn.Close()
	}()

	c.Conn.SetReadLimit(maxMessageSize)
	c.Conn.SetReadDeadline(time.Now().Add(pongWait))
	c.Conn.SetPongHandler(func(string) error {
		c.Conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, messageBytes, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				slog.Error("WebSocket error", "error", err)
			}
			break
		}

		var msg Message
		if err := json.Unmarshal(messageBytes, &msg); err != nil {
			slog.Error("Failed to unmarshal message", "error", err)
			continue
		}

		slog.Info("Message received", "type", msg.Type, "client_id", c.ID, "content_length", len(msg.Text))

		if c.MessageHandler == nil {
			slog.Warn("No message handler", "client_id", c.ID)
			continue
		}
		if !c.busy.CompareAndSwap(false, true) {
			c.SendFrame(Frame{Type: "error", Data: map[string]interface{}{
				"error":     "a turn is already in progress",
				"retryable": false,
			}})
			continue
		}
		// Handle asynchronously so pongs keep being read during long turns
		go func(msg Message) {
			defer c.busy.Store(false)
			c.MessageHandler(c, msg)
		}(msg)
	}
}

func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.Conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.Send:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.Conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
