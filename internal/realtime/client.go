package realtime

import (
	"encoding/json"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingInterval   = (pongWait * 9) / 10
	maxMessageSize = 8192
	sendBufferSize = 256
)

// Client is one websocket connection of an authenticated user.
type Client struct {
	UserID   string
	UserType string

	conn   *websocket.Conn
	send   chan []byte
	hub    *Hub
	logger *zap.Logger
}

func newClient(hub *Hub, conn *websocket.Conn, userID, userType string, logger *zap.Logger) *Client {
	return &Client{
		UserID:   userID,
		UserType: userType,
		conn:     conn,
		send:     make(chan []byte, sendBufferSize),
		hub:      hub,
		logger:   logger.With(zap.String("userId", userID)),
	}
}

// reply sends ev to this connection only.
func (c *Client) reply(ev Event) {
	data, err := json.Marshal(ev)
	if err != nil {
		c.logger.Error("failed to marshal reply", zap.Error(err))
		return
	}
	c.hub.sendToClient(c, data)
}

// readPump reads inbound events until the connection drops, then leaves
// the hub. Ride state is never touched on disconnect.
func (c *Client) readPump(handle func(*Client, inboundEvent)) {
	defer func() {
		c.hub.Unregister(c)
		_ = c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.logger.Warn("websocket read error", zap.Error(err))
			}
			return
		}

		var ev inboundEvent
		if err := json.Unmarshal(raw, &ev); err != nil {
			c.reply(Event{Type: EventError, Data: ErrorPayload{Message: "malformed message"}})
			continue
		}
		handle(c, ev)
	}
}

// writePump drains the send queue and keeps the connection alive with
// pings. It exits when the hub closes the queue or a write fails.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				c.logger.Debug("websocket write failed", zap.Error(err))
				return
			}

		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
