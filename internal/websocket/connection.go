package websocket

import (
	"time"

	"github.com/gorilla/websocket"
)

// Connection is the subset of a WebSocket connection the client pumps use.
// It exists so tests can substitute a mock for a real network connection.
// The method set mirrors *websocket.Conn, plus RemoteAddr flattened to a
// plain string.
type Connection interface {
	WriteMessage(messageType int, data []byte) error
	ReadMessage() (messageType int, p []byte, err error)
	Close() error
	SetReadDeadline(t time.Time) error
	SetWriteDeadline(t time.Time) error
	SetReadLimit(limit int64)
	SetPongHandler(h func(string) error)
	SetPingHandler(h func(string) error)
	SetCloseHandler(h func(code int, text string) error)
	RemoteAddr() string
}

// gorillaConn wraps a *websocket.Conn behind the Connection interface
type gorillaConn struct {
	*websocket.Conn
}

func wrapConn(conn *websocket.Conn) Connection {
	return gorillaConn{Conn: conn}
}

// RemoteAddr returns the remote network address, or "" when unknown
func (c gorillaConn) RemoteAddr() string {
	if addr := c.Conn.RemoteAddr(); addr != nil {
		return addr.String()
	}
	return ""
}
