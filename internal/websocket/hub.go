package websocket

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"hpicli/internal/infrastructure"
)

// Message type constants shared with the browser client
const (
	TypeConnection = "connection"
	TypeProgress   = "progress"
	TypeStatus     = "status"
	TypeError      = "error"
)

// metricsLogInterval is how often the hub logs its connection counters
const metricsLogInterval = 30 * time.Second

// Hub fans analysis-run events out to every connected dashboard client. All
// client-set mutation happens on the Run goroutine, fed through the register,
// unregister and broadcast channels.
type Hub struct {
	clients    map[*Client]bool
	register   chan *Client
	unregister chan *Client
	broadcast  chan []byte

	mu     sync.RWMutex
	logger *slog.Logger

	totalConnections int64
	messagesSent     int64
	messagesReceived int64

	running     bool
	quit        chan struct{}
	metricsQuit chan struct{}
}

// NewHub creates a hub. Call Start before registering clients.
func NewHub(logger *slog.Logger) *Hub {
	if logger == nil {
		logger = infrastructure.GetLogger()
	}
	return &Hub{
		clients:     make(map[*Client]bool),
		register:    make(chan *Client),
		unregister:  make(chan *Client),
		broadcast:   make(chan []byte),
		logger:      logger.With(slog.String("component", "websocket.hub")),
		quit:        make(chan struct{}),
		metricsQuit: make(chan struct{}),
	}
}

// Start launches the event loop and the metrics logger. Calling Start on a
// running hub is a no-op.
func (h *Hub) Start() {
	h.mu.Lock()
	alreadyRunning := h.running
	h.running = true
	h.mu.Unlock()
	if alreadyRunning {
		return
	}

	go h.Run()
	go h.logMetricsLoop()
}

// Run is the hub event loop. It exits when Stop closes the quit channel.
func (h *Hub) Run() {
	for {
		select {
		case <-h.quit:
			h.logger.Info("Hub shutting down")
			return
		case client := <-h.register:
			h.addClient(client)
		case client := <-h.unregister:
			h.removeClient(client)
		case frame := <-h.broadcast:
			h.fanOut(frame)
		}
	}
}

// addClient adds the client to the set and greets it with a connection
// message so the browser knows its assigned id
func (h *Hub) addClient(client *Client) {
	h.mu.Lock()
	h.clients[client] = true
	h.totalConnections++
	active := len(h.clients)
	h.mu.Unlock()

	ctx := client.traceContext()
	h.logger.InfoContext(ctx, "Client registered",
		slog.String("client_id", client.id),
		slog.String("remote_addr", client.remoteAddr),
		slog.Int("total_clients", active))

	welcome, err := json.Marshal(map[string]interface{}{
		"type": TypeConnection,
		"data": map[string]interface{}{
			"status":    "connected",
			"message":   "Connected to HPI analysis WebSocket",
			"client_id": client.id,
		},
		"timestamp": time.Now().Format(time.RFC3339),
		"trace_id":  client.traceID,
	})
	if err != nil {
		return
	}
	select {
	case client.send <- welcome:
	default:
		h.logger.WarnContext(ctx, "Could not greet client, send buffer full",
			slog.String("client_id", client.id))
	}
}

// removeClient drops the client and closes its send channel, which stops its
// write pump
func (h *Hub) removeClient(client *Client) {
	h.mu.Lock()
	_, known := h.clients[client]
	if known {
		delete(h.clients, client)
		close(client.send)
	}
	active := len(h.clients)
	h.mu.Unlock()
	if !known {
		return
	}

	h.logger.InfoContext(client.traceContext(), "Client unregistered",
		slog.String("client_id", client.id),
		slog.Int("total_clients", active),
		slog.Duration("connection_duration", time.Since(client.connectedAt)))
}

// fanOut delivers one frame to every client. A client whose send buffer is
// full cannot keep up and is disconnected rather than allowed to stall the
// loop.
func (h *Hub) fanOut(frame []byte) {
	h.mu.RLock()
	targets := make([]*Client, 0, len(h.clients))
	for client := range h.clients {
		targets = append(targets, client)
	}
	h.mu.RUnlock()

	dropped := 0
	for _, client := range targets {
		select {
		case client.send <- frame:
			h.messagesSent++
		default:
			dropped++
			h.mu.Lock()
			if _, known := h.clients[client]; known {
				delete(h.clients, client)
				close(client.send)
			}
			h.mu.Unlock()
			h.logger.WarnContext(client.traceContext(), "Client send buffer full, disconnecting",
				slog.String("client_id", client.id))
		}
	}

	if dropped > 0 {
		h.logger.Warn("Broadcast dropped slow clients",
			slog.Int("delivered", len(targets)-dropped),
			slog.Int("dropped", dropped))
	}
}

// BroadcastProgress sends a per-district progress update during an analysis run
func (h *Hub) BroadcastProgress(runID string, done, total int, district string) {
	percentage := 0.0
	if total > 0 {
		percentage = float64(done) / float64(total) * 100
	}
	h.broadcastJSON(map[string]interface{}{
		"type": TypeProgress,
		"data": map[string]interface{}{
			"run_id":     runID,
			"done":       done,
			"total":      total,
			"percentage": percentage,
			"district":   district,
		},
		"timestamp": time.Now().Format(time.RFC3339),
	})
}

// BroadcastStatus sends a run lifecycle update
func (h *Hub) BroadcastStatus(status, message string) {
	h.broadcastJSON(map[string]interface{}{
		"type": TypeStatus,
		"data": map[string]interface{}{
			"status":  status,
			"message": message,
		},
		"timestamp": time.Now().Format(time.RFC3339),
	})
}

// BroadcastError sends a structured error event
func (h *Hub) BroadcastError(code, message string) {
	h.broadcastJSON(map[string]interface{}{
		"type": TypeError,
		"data": map[string]interface{}{
			"code":    code,
			"message": message,
		},
		"timestamp": time.Now().Format(time.RFC3339),
	})
}

// BroadcastJSON sends an arbitrary message object as-is
func (h *Hub) BroadcastJSON(message map[string]interface{}) {
	h.broadcastJSON(message)
}

func (h *Hub) broadcastJSON(message map[string]interface{}) {
	frame, err := json.Marshal(message)
	if err != nil {
		msgType, _ := message["type"].(string)
		h.logger.Error("Could not marshal broadcast message",
			slog.String("message_type", msgType),
			slog.String("error", err.Error()))
		return
	}
	h.broadcast <- frame
}

// Register hands a client to the event loop
func (h *Hub) Register(client *Client) {
	h.register <- client
}

// ClientCount returns the number of connected clients
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Stop shuts the hub down and closes every client's send channel. A second
// Stop is a no-op.
func (h *Hub) Stop() {
	h.mu.Lock()
	if !h.running {
		h.mu.Unlock()
		return
	}
	h.running = false
	h.mu.Unlock()

	close(h.quit)
	close(h.metricsQuit)

	h.mu.Lock()
	defer h.mu.Unlock()
	for client := range h.clients {
		close(client.send)
		delete(h.clients, client)
	}
}

// logMetricsLoop logs the connection counters until the hub stops
func (h *Hub) logMetricsLoop() {
	ticker := time.NewTicker(metricsLogInterval)
	defer ticker.Stop()

	for {
		select {
		case <-h.metricsQuit:
			return
		case <-ticker.C:
			h.mu.RLock()
			active := len(h.clients)
			h.mu.RUnlock()
			h.logger.Info("WebSocket hub metrics",
				slog.Int("active_clients", active),
				slog.Int64("total_connections", h.totalConnections),
				slog.Int64("messages_sent", h.messagesSent),
				slog.Int64("messages_received", h.messagesReceived))
		}
	}
}

// GetHubMetrics returns a snapshot of the connection counters
func (h *Hub) GetHubMetrics() map[string]interface{} {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return map[string]interface{}{
		"active_clients":    len(h.clients),
		"total_connections": h.totalConnections,
		"messages_sent":     h.messagesSent,
		"messages_received": h.messagesReceived,
	}
}

// traceContext returns a context carrying the client's trace id, when it has
// one, so hub logs correlate with the originating HTTP upgrade
func (c *Client) traceContext() context.Context {
	ctx := context.Background()
	if c.traceID != "" {
		ctx = infrastructure.WithTraceID(ctx, c.traceID)
	}
	return ctx
}
