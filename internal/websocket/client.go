package websocket

import (
	"bytes"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"hpicli/internal/infrastructure"
)

const (
	// Time allowed to write a message to the peer
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer
	maxMessageSize = 512

	// Outbound frame buffer per client
	sendBufferSize = 256
)

// heartbeatFrame is the only application-level message the browser sends
var heartbeatFrame = []byte(`{"type":"heartbeat"}`)

// Client owns one WebSocket connection: ReadPump consumes inbound frames and
// WritePump delivers hub broadcasts plus protocol pings
type Client struct {
	hub  *Hub
	conn Connection
	send chan []byte

	id          string
	traceID     string
	remoteAddr  string
	connectedAt time.Time

	logger *slog.Logger

	messagesSent     int64
	messagesReceived int64
	bytesSent        int64
	bytesReceived    int64
}

// NewClient wraps a gorilla connection in a client
func NewClient(hub *Hub, conn *websocket.Conn, logger *slog.Logger) *Client {
	return NewClientWithConnection(hub, wrapConn(conn), logger)
}

// NewClientWithConnection builds a client over any Connection implementation,
// which lets tests substitute an in-memory connection
func NewClientWithConnection(hub *Hub, conn Connection, logger *slog.Logger) *Client {
	if logger == nil {
		logger = infrastructure.GetLogger()
	}
	id := uuid.New().String()

	return &Client{
		hub:         hub,
		conn:        conn,
		send:        make(chan []byte, sendBufferSize),
		id:          id,
		remoteAddr:  conn.RemoteAddr(),
		connectedAt: time.Now(),
		logger: logger.With(
			slog.String("component", "websocket.client"),
			slog.String("client_id", id),
		),
	}
}

// NewClientWithTrace tags the client with the trace id of the upgrading HTTP
// request so its lifecycle logs stay correlated
func NewClientWithTrace(hub *Hub, conn *websocket.Conn, traceID string, logger *slog.Logger) *Client {
	client := NewClient(hub, conn, logger)
	client.traceID = traceID
	client.logger = client.logger.With(slog.String("trace_id", traceID))
	return client
}

// ReadPump consumes frames from the peer until the connection drops, keeping
// the read deadline alive via the pong handler. It must run in its own
// goroutine; it unregisters the client on exit.
func (c *Client) ReadPump() {
	defer func() {
		c.logger.InfoContext(c.traceContext(), "WebSocket client disconnected (readPump)",
			slog.Duration("connection_duration", time.Since(c.connectedAt)),
			slog.Int64("messages_received", c.messagesReceived),
			slog.Int64("bytes_received", c.bytesReceived))
		c.hub.unregister <- c
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, frame, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.logger.ErrorContext(c.traceContext(), "Unexpected WebSocket close error",
					slog.String("error", err.Error()))
			}
			return
		}

		frame = bytes.TrimSpace(frame)
		c.messagesReceived++
		c.bytesReceived += int64(len(frame))

		// The browser's heartbeat needs no reply; the pong handler already
		// refreshed the read deadline. Any other inbound frame is ignored.
		if bytes.Equal(frame, heartbeatFrame) {
			c.logger.Debug("Heartbeat received")
		}
	}
}

// WritePump delivers outbound frames and keeps the connection alive with
// periodic pings. It must run in its own goroutine; it exits when the hub
// closes the send channel or a write fails.
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
		c.logger.InfoContext(c.traceContext(), "WebSocket write pump stopped",
			slog.Int64("messages_sent", c.messagesSent),
			slog.Int64("bytes_sent", c.bytesSent))
	}()

	for {
		select {
		case frame, open := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !open {
				// Hub closed the channel; say goodbye
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if !c.writeFrame(frame) {
				return
			}

			// Drain whatever queued up behind this frame, each as its own
			// text frame so the browser parses them independently
			for i := len(c.send); i > 0; i-- {
				queued, open := <-c.send
				if !open {
					c.conn.WriteMessage(websocket.CloseMessage, []byte{})
					return
				}
				c.conn.SetWriteDeadline(time.Now().Add(writeWait))
				if !c.writeFrame(queued) {
					return
				}
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.logger.DebugContext(c.traceContext(), "Failed to send ping message",
					slog.String("error", err.Error()))
				return
			}
		}
	}
}

// writeFrame writes one text frame and updates the counters; false means the
// connection is unusable and the pump should exit
func (c *Client) writeFrame(frame []byte) bool {
	if err := c.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
		c.logger.ErrorContext(c.traceContext(), "Error writing message to WebSocket",
			slog.String("error", err.Error()))
		return false
	}
	c.messagesSent++
	c.bytesSent += int64(len(frame))
	return true
}

// ServeWS registers an upgraded connection with the hub and starts its pumps
func ServeWS(hub *Hub, conn *websocket.Conn) {
	client := NewClient(hub, conn, nil)
	hub.Register(client)

	go client.WritePump()
	go client.ReadPump()
}
