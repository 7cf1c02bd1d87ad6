package signaling

import (
	"context"
	"net"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	// writeWait bounds a single frame or control write.
	writeWait = 10 * time.Second
	// pingPeriod is the keep-alive interval.
	pingPeriod = 25 * time.Second
	// pongWait is two missed pings plus grace before the read times out.
	pongWait = 2*pingPeriod + 5*time.Second
	// maxMessageSize caps inbound frames.
	maxMessageSize = 512 * 1024
	// sendBuffer is the per-client outbound queue; overflowing it evicts
	// the client rather than blocking the hub.
	sendBuffer = 256
	// authTimeout is how long an unauthenticated socket may linger.
	authTimeout = 10 * time.Second
)

// client is one WebSocket connection. sessionID and participantID are set
// under the hub lock when AUTH succeeds and stay empty until then.
type client struct {
	id   string
	hub  *Hub
	conn *websocket.Conn
	send chan []byte

	sessionID     string
	participantID string

	mu        sync.Mutex
	closeCode int
	closeText string
}

// setCloseStatus records the close code writePump should send once the send
// channel drains. First writer wins.
func (c *client) setCloseStatus(code int, text string) {
	c.mu.Lock()
	if c.closeCode == 0 {
		c.closeCode = code
		c.closeText = text
	}
	c.mu.Unlock()
}

func (c *client) closeStatus() (int, string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closeCode == 0 {
		return websocket.CloseNormalClosure, ""
	}
	return c.closeCode, c.closeText
}

// readPump reads frames off the socket and hands them to the hub until the
// connection dies, then reports the disconnect.
func (c *client) readPump() {
	defer func() {
		c.hub.handleDisconnect(c)
		_ = c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if ne, ok := err.(net.Error); ok && ne.Timeout() {
				c.hub.drop(c, CloseKeepAliveTimeout, "keep-alive timeout")
			} else if !websocket.IsCloseError(err, normalCloseCodes...) {
				c.hub.logger.Debug("websocket read error", "conn_id", c.id, "error", err)
			}
			return
		}
		c.hub.handleFrame(context.Background(), c, data)
	}
}

// writePump drains the send queue onto the socket and keeps the connection
// alive with pings. When the queue is closed it flushes what is buffered,
// sends the recorded close code, and exits.
func (c *client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				code, text := c.closeStatus()
				_ = c.conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(code, text))
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				c.hub.logger.Debug("websocket write error", "conn_id", c.id, "error", err)
				return
			}
			c.hub.messagesSent.Add(1)

		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
