package server

import (
	"encoding/json"
	"net/http"
	"sync"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/lumapay/routingd/internal/pipeline"
)

// Hub fans execution events out to WebSocket subscribers. A client
// subscribes to one execution id or, with an empty filter, to all of
// them. Implements pipeline.EventPublisher.
type Hub struct {
	upgrader websocket.Upgrader
	log      *zap.Logger

	mu      sync.RWMutex
	clients map[string]*wsClient
	closed  bool
}

type wsClient struct {
	id string
	// executionID filters events; empty means all executions.
	executionID string
	send        chan []byte
}

// subscribeRequest is the first (and only) message a client sends.
type subscribeRequest struct {
	ExecutionID string `json:"executionId,omitempty"`
}

const wsSendBuffer = 64

func NewHub(log *zap.Logger) *Hub {
	return &Hub{
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		log:     log.Named("ws"),
		clients: make(map[string]*wsClient),
	}
}

// PublishExecution delivers an event to every matching subscriber.
// Slow consumers are dropped rather than blocking the pipeline.
func (h *Hub) PublishExecution(event pipeline.ExecutionEvent) {
	data, err := json.Marshal(event)
	if err != nil {
		h.log.Warn("event marshal failed", zap.Error(err))
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, c := range h.clients {
		if c.executionID != "" && c.executionID != event.ExecutionID {
			continue
		}
		select {
		case c.send <- data:
		default:
			h.log.Debug("dropping event for slow subscriber", zap.String("client", c.id))
		}
	}
}

// ServeWS upgrades the connection and streams events until the client
// disconnects.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn("websocket upgrade failed", zap.Error(err))
		return
	}

	var sub subscribeRequest
	if err := conn.ReadJSON(&sub); err != nil {
		conn.Close()
		return
	}

	client := &wsClient{
		id:          uuid.NewString(),
		executionID: sub.ExecutionID,
		send:        make(chan []byte, wsSendBuffer),
	}

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		conn.Close()
		return
	}
	h.clients[client.id] = client
	h.mu.Unlock()

	go h.writeLoop(conn, client)
	go h.readLoop(conn, client)
}

func (h *Hub) writeLoop(conn *websocket.Conn, client *wsClient) {
	defer conn.Close()
	for data := range client.send {
		if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
			h.drop(client)
			return
		}
	}
}

// readLoop only watches for the client going away.
func (h *Hub) readLoop(conn *websocket.Conn, client *wsClient) {
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			h.drop(client)
			conn.Close()
			return
		}
	}
}

func (h *Hub) drop(client *wsClient) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[client.id]; ok {
		delete(h.clients, client.id)
		close(client.send)
	}
}

// Close disconnects every subscriber.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed = true
	for id, c := range h.clients {
		delete(h.clients, id)
		close(c.send)
	}
}
