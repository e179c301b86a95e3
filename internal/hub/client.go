package hub

import (
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

// Client is one websocket connection. The read pump turns inbound text
// frames into hub events; the write pump drains the bounded send queue.
// username is written only from the hub loop, after authentication.
type Client struct {
	hub      *Hub
	conn     *websocket.Conn
	id       string
	username string
	send     chan []byte
	closed   bool
}

func NewClient(hub *Hub, conn *websocket.Conn) *Client {
	return &Client{
		hub:  hub,
		conn: conn,
		id:   uuid.NewString(),
		send: make(chan []byte, sendQueueSize),
	}
}

// Run starts the read and write pumps.
func (c *Client) Run() {
	go c.writePump()
	go c.readPump()
}

func (c *Client) ID() string              { return c.id }
func (c *Client) Username() string        { return c.username }
func (c *Client) SetUsername(name string) { c.username = name }

// Send queues a payload without blocking. Returns false when the payload was
// dropped: queue full or connection already being torn down.
func (c *Client) Send(payload []byte) bool {
	if c.closed {
		return false
	}
	select {
	case c.send <- payload:
		return true
	default:
		return false
	}
}

// closeSend is called from the hub loop during unregister. The flag stops any
// later Send from hitting a closed channel; both run on the loop goroutine.
func (c *Client) closeSend() {
	if c.closed {
		return
	}
	c.closed = true
	close(c.send)
}

func (c *Client) closeConn() { c.conn.Close() }

// readPump pumps inbound frames into the hub until the connection dies, then
// requests its own unregistration. Transport failure and graceful close both
// land here, which is what makes the disconnect path uniform.
func (c *Client) readPump() {
	logCtx := logrus.WithField("conn_id", c.id)
	defer func() {
		c.hub.queueUnregister(c)
		c.conn.Close()
		logCtx.Debug("Read pump exited")
	}()

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		messageType, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				logCtx.WithError(err).Warn("Websocket read error")
			}
			return
		}
		if messageType != websocket.TextMessage {
			continue
		}
		if !c.hub.queue(event{kind: eventFrame, client: c, data: message}) {
			logCtx.Warn("Dropping inbound directive, hub queue full")
		}
	}
}

// writePump drains the send queue to the socket and keeps the connection
// alive with pings.
func (c *Client) writePump() {
	logCtx := logrus.WithField("conn_id", c.id)
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
		logCtx.Debug("Write pump exited")
	}()

	for {
		select {
		case payload, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// Hub closed the queue during unregister.
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				logCtx.WithError(err).Warn("Failed to write to websocket")
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
