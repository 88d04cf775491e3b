package websocket

import (
	"encoding/json"
	"time"

	"github.com/gorilla/websocket"

	"codeberg.org/tinyurl/server/internal/logger"
)

// creates a new feed client for conn
func NewClient(id string, urlID, userID int64, ipAddress string, conn *websocket.Conn, hub *Hub) *Client {
	return &Client{
		ID:        id,
		URLID:     urlID,
		UserID:    userID,
		IPAddress: ipAddress,
		conn:      conn,
		hub:       hub,
		send:      make(chan []byte, sendBufferSize),
	}
}

// reads from the connection until it closes. feed clients send nothing but
// control frames; anything else is ignored.
func (c *Client) ReadPump() {
	defer func() {
		c.hub.unregister(c)
		c.conn.Close() //nolint:errcheck,gosec // G104: defer cleanup
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait)) //nolint:errcheck,gosec // G104: websocket setup
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait)) //nolint:errcheck,gosec // G104: pong handler
		return nil
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				logger.Warn("websocket error",
					"client_id", c.ID,
					"url_id", c.URLID,
					"error", err,
				)
			}

			return
		}
	}
}

// writes queued messages to the connection and keeps it alive with pings
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)

	defer func() {
		ticker.Stop()
		c.conn.Close() //nolint:errcheck,gosec // G104: defer cleanup
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait)) //nolint:errcheck,gosec // G104: websocket timing

			if !ok {
				// hub closed the channel
				c.conn.WriteMessage(websocket.CloseMessage, []byte{}) //nolint:errcheck,gosec // G104: close message
				return
			}

			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait)) //nolint:errcheck,gosec // G104: websocket ping timing

			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// sends a message to the client
func (c *Client) Send(msg *Message) error {
	raw, err := json.Marshal(msg)
	if err != nil {
		return err
	}

	return c.sendRaw(raw)
}

// queues an encoded message. a client that can't keep up is disconnected.
func (c *Client) sendRaw(raw []byte) error {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.closed {
		return ErrConnectionClosed
	}

	select {
	case c.send <- raw:
		return nil
	default:
		go c.hub.dropSlow(c)
		return ErrConnectionClosed
	}
}

// sends an error message to the client
func (c *Client) SendError(code, message string) {
	msg, err := NewMessage(TypeError, c.URLID, ErrorPayload{Error: code, Message: message})
	if err != nil {
		return
	}

	c.Send(msg) //nolint:errcheck,gosec // G104: best effort error notification
}

// closes the client connection
func (c *Client) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.closed {
		c.closed = true
		close(c.send)
	}
}

// checks if the client is closed
func (c *Client) IsClosed() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return c.closed
}
