package notifications

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/gofiber/contrib/websocket"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 4096
)

// Actions clients may send over the socket.
const (
	actionPing        = "ping"
	actionMarkAllRead = "mark-all-read"
)

type clientAction struct {
	Action string `json:"action"`
}

type serverFrame struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

// Client is one websocket connection of an authenticated user.
type Client struct {
	userID uint
	hub    *Hub
	svc    *NotificationService
	conn   *websocket.Conn
	send   chan []byte
}

func NewClient(hub *Hub, svc *NotificationService, conn *websocket.Conn, userID uint) *Client {
	return &Client{
		userID: userID,
		hub:    hub,
		svc:    svc,
		conn:   conn,
		send:   make(chan []byte, 32),
	}
}

// Serve registers the client and pumps frames until the connection drops.
// It blocks, which matches how the fiber websocket handler hands over the
// connection.
func (c *Client) Serve() {
	c.hub.register <- c
	go c.writePump()
	c.readPump()
}

func (c *Client) readPump() {
	defer func() {
		c.hub.unregister <- c
		c.conn.Close()
	}()
	c.conn.SetReadLimit(maxMessageSize)
	if err := c.conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
		return
	}
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			return
		}
		var action clientAction
		if err := json.Unmarshal(data, &action); err != nil {
			continue
		}
		c.handleAction(action.Action)
	}
}

func (c *Client) handleAction(action string) {
	switch action {
	case actionPing:
		frame, _ := json.Marshal(serverFrame{Type: "pong"})
		select {
		case c.send <- frame:
		default:
		}
	case actionMarkAllRead:
		if err := c.svc.MarkAllRead(context.Background(), c.userID); err != nil {
			slog.Error("Could not mark notifications read", "error", err, "userId", c.userID)
		}
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()
	for {
		select {
		case payload, ok := <-c.send:
			if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				return
			}
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				return
			}
		case <-ticker.C:
			if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				return
			}
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
