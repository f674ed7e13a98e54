package websocket

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewClientWithConnection(t *testing.T) {
	hub := NewHub(newTestLogger())
	mock := NewMockConnection()

	client := NewClientWithConnection(hub, mock, newTestLogger())

	assert.NotEmpty(t, client.id)
	assert.Equal(t, "127.0.0.1:8080", client.remoteAddr)
	assert.Equal(t, 256, cap(client.send))
	assert.False(t, client.connectedAt.IsZero())
}

func TestClient_ReadPump_ConfiguresConnection(t *testing.T) {
	hub := NewHub(newTestLogger())
	hub.Start()
	defer hub.Stop()

	mock := NewMockConnection()
	client := NewClientWithConnection(hub, mock, newTestLogger())

	done := make(chan struct{})
	go func() {
		defer close(done)
		client.ReadPump()
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("ReadPump did not exit")
	}

	assert.Equal(t, int64(maxMessageSize), mock.ReadLimit)
	assert.False(t, mock.ReadDeadline.IsZero())
	assert.NotNil(t, mock.PongHandler)
	assert.True(t, mock.Closed)
}

func TestClient_ReadPump_CountsHeartbeats(t *testing.T) {
	hub := NewHub(newTestLogger())
	hub.Start()
	defer hub.Stop()

	mock := NewMockConnection()
	mock.AddReadMessage(websocket.TextMessage, []byte(`{"type":"heartbeat"}`), nil)

	client := NewClientWithConnection(hub, mock, newTestLogger())

	done := make(chan struct{})
	go func() {
		defer close(done)
		client.ReadPump()
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("ReadPump did not exit")
	}

	assert.Equal(t, int64(1), client.messagesReceived)
}

func TestClient_ReadPump_UnregistersOnExit(t *testing.T) {
	hub := NewHub(newTestLogger())
	hub.Start()
	defer hub.Stop()

	mock := NewMockConnection()
	client := NewClientWithConnection(hub, mock, newTestLogger())
	hub.Register(client)
	receiveMessage(t, client)

	go client.ReadPump()

	assert.Eventually(t, func() bool {
		return hub.ClientCount() == 0
	}, time.Second, 10*time.Millisecond)
}

func TestClient_WritePump_WritesQueuedFrames(t *testing.T) {
	hub := NewHub(newTestLogger())
	mock := NewMockConnection()
	client := NewClientWithConnection(hub, mock, newTestLogger())

	client.send <- []byte("one")
	client.send <- []byte("two")
	close(client.send)

	client.WritePump()

	frames := mock.GetWrittenMessages()
	require.Len(t, frames, 3)
	assert.Equal(t, websocket.TextMessage, frames[0].Type)
	assert.Equal(t, "one", string(frames[0].Data))
	assert.Equal(t, websocket.TextMessage, frames[1].Type)
	assert.Equal(t, "two", string(frames[1].Data))
	assert.Equal(t, websocket.CloseMessage, frames[2].Type)

	assert.Equal(t, int64(2), client.messagesSent)
	assert.False(t, mock.WriteDeadline.IsZero())
}

func TestClient_WritePump_StopsOnWriteError(t *testing.T) {
	hub := NewHub(newTestLogger())
	mock := NewMockConnection()
	mock.WriteMessageFunc = func(messageType int, data []byte) error {
		return errors.New("broken pipe")
	}
	client := NewClientWithConnection(hub, mock, newTestLogger())

	client.send <- []byte("lost")

	done := make(chan struct{})
	go func() {
		defer close(done)
		client.WritePump()
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("WritePump did not exit after a write error")
	}

	assert.Empty(t, mock.GetWrittenMessages())
	assert.True(t, mock.Closed)
}

func TestServeWS_EndToEnd(t *testing.T) {
	hub := NewHub(newTestLogger())
	hub.Start()
	defer hub.Stop()

	upgrader := websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool { return true },
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		ServeWS(hub, conn)
	}))
	defer srv.Close()

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	defer conn.Close()

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, raw, err := conn.ReadMessage()
	require.NoError(t, err)

	var msg map[string]interface{}
	require.NoError(t, json.Unmarshal(raw, &msg))
	assert.Equal(t, TypeConnection, msg["type"])

	hub.BroadcastProgress("run-1", 1, 4, "Songpa")

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, raw, err = conn.ReadMessage()
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(raw, &msg))
	assert.Equal(t, TypeProgress, msg["type"])

	data, ok := msg["data"].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "Songpa", data["district"])
	assert.Equal(t, float64(25), data["percentage"])
}
