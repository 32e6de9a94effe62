package websocket

import (
	"encoding/json"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/loominal/weft/internal/common/logger"
)

const (
	writeWait      = 10 * time.Second
	heartbeatEvery = 30 * time.Second
	maxMessageSize = 64 * 1024
)

// checkAndClearAlive implements one half of the heartbeat protocol: it
// reports whether the connection answered the previous ping (pong or
// app-level traffic marked it alive) and, if so, clears the flag ahead
// of the next ping. A connection found already dead is left untouched
// for the Hub to terminate.
func (c *Client) checkAndClearAlive() bool {
	return c.alive.CompareAndSwap(true, false)
}

// ping sends a transport-level ping frame.
func (c *Client) ping() error {
	_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return c.conn.WriteMessage(websocket.PingMessage, nil)
}

// Client is a single upgraded connection, registered in the Hub under
// a server-assigned connectionId.
type Client struct {
	ID    string
	conn  *websocket.Conn
	hub   *Hub
	send  chan []byte
	alive atomic.Bool

	mu     sync.Mutex
	closed bool
	log    *logger.Logger
}

func newClient(id string, conn *websocket.Conn, hub *Hub, log *logger.Logger) *Client {
	c := &Client{
		ID:   id,
		conn: conn,
		hub:  hub,
		send: make(chan []byte, 256),
		log:  log.WithFields(zap.String("connection_id", id)),
	}
	c.alive.Store(true)
	return c
}

// ReadPump consumes inbound frames until the connection closes.
func (c *Client) ReadPump() {
	defer func() {
		c.hub.unregister <- c
		_ = c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetPongHandler(func(string) error {
		c.alive.Store(true)
		return nil
	})

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNoStatusReceived, websocket.CloseAbnormalClosure) {
				c.log.Warn("websocket read error", zap.Error(err))
			}
			return
		}
		c.handleInbound(raw)
	}
}

func (c *Client) handleInbound(raw []byte) {
	var msg inboundMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		c.writeJSON(newError("invalid message format"))
		return
	}

	switch msg.Type {
	case "ping":
		c.writeJSON(newPong())

	case "subscribe":
		c.hub.subs.Subscribe(c.ID, msg.Topic, msg.Filter)
		c.writeJSON(newAck(msg.Topic, ""))

	case "unsubscribe":
		if err := c.hub.subs.Unsubscribe(c.ID, msg.Topic); err != nil {
			c.writeJSON(newError("Not subscribed to topic: " + msg.Topic))
			return
		}
		c.writeJSON(newAck("", msg.Topic))

	default:
		c.writeJSON(newError("Unknown message type: " + msg.Type))
	}
}

func (c *Client) writeJSON(v any) {
	data, err := json.Marshal(v)
	if err != nil {
		c.log.Error("failed to marshal outbound frame", zap.Error(err))
		return
	}
	c.enqueue(data)
}

// enqueue is the fan-out entry point: the caller has already encoded
// the frame once and reuses the same bytes across every recipient.
func (c *Client) enqueue(data []byte) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false
	}
	select {
	case c.send <- data:
		return true
	default:
		c.log.Warn("client send buffer full, dropping frame")
		return false
	}
}

func (c *Client) closeSend() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	close(c.send)
}

// WritePump drains the send channel to the socket. The heartbeat
// ping/terminate decision is centralized in the Hub's single timer
// (spec.md §4.5), not per-connection, so this pump only writes.
func (c *Client) WritePump() {
	defer func() {
		_ = c.conn.Close()
	}()

	for data := range c.send {
		_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
			return
		}
	}
	_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
}

// shutdown sends the server-initiated close frame and gives the
// connection a grace window before the hub forcibly drops it.
func (c *Client) shutdown(grace time.Duration) {
	_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	_ = c.conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseGoingAway, "Server shutting down"))
	time.AfterFunc(grace, func() {
		_ = c.conn.Close()
	})
}
