package websocket

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/gherrador/tightening-project/internal/infrastructure"
)

// Message types
const (
	TypeConnection     = "connection"
	TypeBuildStarted   = "build:started"
	TypeBuildCompleted = "build:completed"
	TypeBuildFailed    = "build:failed"
)

const (
	broadcastBuffer = 64
	clientBuffer    = 256
)

// Message is the envelope of every server-sent event.
type Message struct {
	Type      string      `json:"type"`
	Data      interface{} `json:"data,omitempty"`
	Timestamp string      `json:"timestamp"`
	TraceID   string      `json:"trace_id,omitempty"`
}

// Hub maintains the set of active clients and broadcasts build events to them
type Hub struct {
	clients    map[*Client]bool
	broadcast  chan []byte
	register   chan *Client
	unregister chan *Client

	mu     sync.RWMutex
	logger *slog.Logger

	pingPeriod time.Duration
	pongWait   time.Duration

	totalConnections int64
	messagesSent     int64
	messagesDropped  int64

	quit    chan struct{}
	done    chan struct{}
	running bool
	stopped bool
}

// HubOption customizes a Hub.
type HubOption func(*Hub)

// WithKeepAlive sets the ping period and pong wait of client connections.
// The ping period must be shorter than the pong wait.
func WithKeepAlive(pingPeriod, pongWait time.Duration) HubOption {
	return func(h *Hub) {
		if pingPeriod > 0 && pongWait > pingPeriod {
			h.pingPeriod, h.pongWait = pingPeriod, pongWait
		}
	}
}

// NewHub creates a new Hub instance
func NewHub(logger *slog.Logger, opts ...HubOption) *Hub {
	if logger == nil {
		logger = infrastructure.GetLogger()
	}
	h := &Hub{
		clients:    make(map[*Client]bool),
		broadcast:  make(chan []byte, broadcastBuffer),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		logger:     logger.With(slog.String("component", "websocket.hub")),
		pingPeriod: 54 * time.Second,
		pongWait:   60 * time.Second,
		quit:       make(chan struct{}),
		done:       make(chan struct{}),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Start runs the hub loop in a goroutine. Calling it twice is a no-op.
func (h *Hub) Start() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.running || h.stopped {
		return
	}
	h.running = true
	go h.run()
}

// Stop ends the hub loop and closes every client.
func (h *Hub) Stop() {
	h.mu.Lock()
	if h.stopped {
		h.mu.Unlock()
		return
	}
	h.stopped = true
	wasRunning := h.running
	h.running = false
	h.mu.Unlock()

	close(h.quit)
	if wasRunning {
		<-h.done
	}
}

func (h *Hub) run() {
	defer close(h.done)
	for {
		select {
		case <-h.quit:
			h.mu.Lock()
			for client := range h.clients {
				close(client.send)
				delete(h.clients, client)
			}
			h.mu.Unlock()
			h.logger.Info("Hub shutting down")
			return

		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			h.totalConnections++
			count := len(h.clients)
			h.mu.Unlock()

			ctx := client.context()
			h.logger.InfoContext(ctx, "Client registered",
				slog.Int("total_clients", count),
				slog.String("client_id", client.id),
				slog.String("remote_addr", client.remoteAddr))

			hello, err := h.encode(ctx, TypeConnection, map[string]interface{}{
				"status":    "connected",
				"client_id": client.id,
			})
			if err == nil {
				select {
				case client.send <- hello:
				default:
				}
			}

		case client := <-h.unregister:
			h.mu.Lock()
			_, ok := h.clients[client]
			if ok {
				delete(h.clients, client)
				close(client.send)
			}
			count := len(h.clients)
			h.mu.Unlock()

			if ok {
				h.logger.InfoContext(client.context(), "Client unregistered",
					slog.Int("total_clients", count),
					slog.String("client_id", client.id),
					slog.Duration("connection_duration", time.Since(client.connectedAt)))
			}

		case message := <-h.broadcast:
			h.deliver(message)
		}
	}
}

func (h *Hub) deliver(message []byte) {
	h.mu.Lock()
	defer h.mu.Unlock()

	failed := 0
	for client := range h.clients {
		select {
		case client.send <- message:
			h.messagesSent++
		default:
			// slow consumer
			failed++
			close(client.send)
			delete(h.clients, client)
		}
	}
	if failed > 0 {
		h.logger.Warn("Client send buffer full, disconnected",
			slog.Int("disconnected", failed),
			slog.Int("remaining", len(h.clients)))
	}
}

func (h *Hub) encode(ctx context.Context, messageType string, data interface{}) ([]byte, error) {
	msg := Message{
		Type:      messageType,
		Data:      data,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		TraceID:   infrastructure.GetTraceID(ctx),
	}
	payload, err := json.Marshal(msg)
	if err != nil {
		h.logger.ErrorContext(ctx, "Error marshaling message",
			slog.String("error", err.Error()),
			slog.String("message_type", messageType))
		return nil, err
	}
	return payload, nil
}

// Broadcast queues an event for every connected client. The trace id of ctx
// travels with the message. Events are dropped when the queue is full or the
// hub has stopped.
func (h *Hub) Broadcast(ctx context.Context, messageType string, data interface{}) {
	payload, err := h.encode(ctx, messageType, data)
	if err != nil {
		return
	}
	select {
	case <-h.quit:
		return
	default:
	}
	select {
	case h.broadcast <- payload:
	default:
		h.mu.Lock()
		h.messagesDropped++
		h.mu.Unlock()
		h.logger.WarnContext(ctx, "Broadcast queue full, dropping message",
			slog.String("message_type", messageType))
	}
}

// Register adds a client to the hub
func (h *Hub) Register(client *Client) {
	select {
	case h.register <- client:
	case <-h.quit:
	}
}

// Unregister removes a client from the hub
func (h *Hub) Unregister(client *Client) {
	select {
	case h.unregister <- client:
	case <-h.quit:
	}
}

// ClientCount returns the number of connected clients
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Stats reports connection and delivery counters.
func (h *Hub) Stats() map[string]interface{} {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return map[string]interface{}{
		"active_clients":    len(h.clients),
		"total_connections": h.totalConnections,
		"messages_sent":     h.messagesSent,
		"messages_dropped":  h.messagesDropped,
	}
}
