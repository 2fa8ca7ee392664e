package gateway

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"

	"github.com/gorilla/websocket"

	"chartengine/internal/coordinator"
	"chartengine/internal/metrics"
	"chartengine/internal/model"
)

// Hub manages WebSocket clients and pushes every committed snapshot to
// them. New clients receive the latest snapshot on connect.
type Hub struct {
	mu      sync.RWMutex
	clients map[*Client]bool
	latest  []byte // last snapshot envelope

	prom *metrics.Metrics // nil disables metrics
	log  *slog.Logger

	// OnParams receives parameter edits sent over the socket. Optional.
	OnParams func(model.ParamUpdate)
}

// NewHub creates a Hub.
func NewHub(prom *metrics.Metrics, logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		clients: make(map[*Client]bool),
		prom:    prom,
		log:     logger.With(slog.String("component", "ws_hub")),
	}
}

// Run forwards snapshots to clients until ctx is cancelled.
func (h *Hub) Run(ctx context.Context, snaps <-chan *coordinator.Snapshot) {
	for {
		select {
		case <-ctx.Done():
			return
		case snap := <-snaps:
			h.Broadcast(snap)
		}
	}
}

// Broadcast sends one snapshot to every client. Slow clients whose send
// buffer is full miss the message; the next snapshot supersedes it.
func (h *Hub) Broadcast(snap *coordinator.Snapshot) {
	resp := NewChartResponse(snap)
	envelope, err := json.Marshal(WSEnvelope{Type: "snapshot", Seq: snap.Seq, Data: &resp})
	if err != nil {
		h.log.Error("encode snapshot", "seq", snap.Seq, "error", err)
		return
	}

	// Held across the fan-out so a client joining now gets this envelope
	// exactly once.
	h.mu.Lock()
	defer h.mu.Unlock()
	h.latest = envelope
	sent, dropped := 0, 0
	for client := range h.clients {
		select {
		case client.send <- envelope:
			sent++
		default:
			dropped++
		}
	}
	if h.prom != nil {
		h.prom.WSMessagesSent.Add(float64(sent))
		h.prom.WSDrops.Add(float64(dropped))
	}
	h.log.Debug("snapshot pushed", "seq", snap.Seq, "clients", sent, "dropped", dropped)
}

// HandleWSRequest registers an upgraded connection and starts its pumps.
func (h *Hub) HandleWSRequest(conn *websocket.Conn) {
	client := &Client{
		conn: conn,
		send: make(chan []byte, 16),
		hub:  h,
	}

	h.mu.Lock()
	h.clients[client] = true
	count := len(h.clients)
	if h.latest != nil {
		client.send <- h.latest
	}
	h.mu.Unlock()

	if h.prom != nil {
		h.prom.WSClients.Inc()
	}
	h.log.Info("ws client connected", "clients", count)

	go client.writePump()
	go client.readPump()
}

// RemoveClient removes a client from the hub.
func (h *Hub) RemoveClient(c *Client) {
	h.mu.Lock()
	if !h.clients[c] {
		h.mu.Unlock()
		return
	}
	delete(h.clients, c)
	close(c.send)
	h.mu.Unlock()

	if h.prom != nil {
		h.prom.WSClients.Dec()
	}
}

// ClientCount returns the number of connected WS clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}
