package hub

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/goccy/go-json"

	"parkwatch/internal/domain"
	"parkwatch/internal/ingestor"
	"parkwatch/internal/metrics"
)

type Client struct {
	ID    string
	Send  chan []byte
	zones map[string]struct{}
	mu    sync.RWMutex

	sendMu sync.Mutex
	closed bool
}

func NewClient(id string, bufferSize int) *Client {
	return &Client{
		ID:    id,
		Send:  make(chan []byte, bufferSize),
		zones: make(map[string]struct{}),
	}
}

// Wants reports whether the client follows zone. A client with no zone
// subscriptions follows all of them.
func (c *Client) Wants(zone string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if len(c.zones) == 0 {
		return true
	}
	_, ok := c.zones[zone]
	return ok
}

func (c *Client) AddZones(names []string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, n := range names {
		c.zones[n] = struct{}{}
	}
}

func (c *Client) RemoveZones(names []string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, n := range names {
		delete(c.zones, n)
	}
}

// Enqueue queues data without blocking. It reports false when the buffer is
// full or the client has been closed.
func (c *Client) Enqueue(data []byte) bool {
	c.sendMu.Lock()
	defer c.sendMu.Unlock()
	if c.closed {
		return false
	}
	select {
	case c.Send <- data:
		return true
	default:
		return false
	}
}

// close closes Send once; later Enqueue calls are dropped.
func (c *Client) close() {
	c.sendMu.Lock()
	defer c.sendMu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.Send)
	}
}

// Hub pushes the result of every poll cycle to connected clients
type Hub struct {
	mu      sync.RWMutex
	clients map[*Client]struct{}

	register   chan *Client
	unregister chan *Client
	broadcast  chan *ingestor.Result

	logger *slog.Logger
}

func NewHub(logger *slog.Logger) *Hub {
	return &Hub{
		clients:    make(map[*Client]struct{}),
		register:   make(chan *Client, 16),
		unregister: make(chan *Client, 16),
		broadcast:  make(chan *ingestor.Result, 16),
		logger:     logger.With("component", "hub"),
	}
}

func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			h.closeAllClients()
			return

		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = struct{}{}
			total := len(h.clients)
			h.mu.Unlock()
			metrics.WSConnections.Set(float64(total))
			h.logger.Debug("client registered", "client_id", client.ID, "total", total)

		case client := <-h.unregister:
			h.removeClient(client)

		case result := <-h.broadcast:
			h.fanout(result)
		}
	}
}

func (h *Hub) Subscribe(client *Client, zones []string) {
	client.AddZones(zones)
}

func (h *Hub) Unsubscribe(client *Client, zones []string) {
	client.RemoveZones(zones)
}

// Broadcast queues a cycle result. When the queue is full the result is
// dropped; the next cycle supersedes it anyway.
func (h *Hub) Broadcast(result *ingestor.Result) {
	if result == nil {
		return
	}
	select {
	case h.broadcast <- result:
	default:
		h.logger.Warn("broadcast channel full, dropping cycle result")
	}
}

func (h *Hub) Register(client *Client) {
	h.register <- client
}

func (h *Hub) Unregister(client *Client) {
	h.unregister <- client
}

func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

type UpdateMessage struct {
	Type    string        `json:"type"`
	Payload UpdatePayload `json:"payload"`
}

type UpdatePayload struct {
	Snapshot      domain.Snapshot    `json:"snapshot"`
	SnapshotCount int                `json:"snapshotCount"`
	Occupancy     []domain.Occupancy `json:"occupancy"`
	ComputedAt    time.Time          `json:"computedAt"`
}

// BuildUpdate renders the newest snapshot of result for a client.
func BuildUpdate(result *ingestor.Result, client *Client) UpdateMessage {
	occ := make([]domain.Occupancy, 0, len(result.Occupancy))
	for _, o := range result.Occupancy {
		if client == nil || client.Wants(o.Zone) {
			occ = append(occ, o)
		}
	}

	snap := domain.Snapshot{Positions: []domain.Position{}}
	if n := len(result.Snapshots); n > 0 {
		snap = result.Snapshots[n-1]
	}

	return UpdateMessage{
		Type: "update",
		Payload: UpdatePayload{
			Snapshot:      snap,
			SnapshotCount: len(result.Snapshots),
			Occupancy:     occ,
			ComputedAt:    result.ComputedAt,
		},
	}
}

func (h *Hub) fanout(result *ingestor.Result) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for client := range h.clients {
		data, err := json.Marshal(BuildUpdate(result, client))
		if err != nil {
			h.logger.Error("failed to encode update", "error", err)
			return
		}

		if !client.Enqueue(data) {
			metrics.WSMessagesDropped.Inc()
			h.logger.Debug("client send buffer full", "client_id", client.ID)
		}
	}
}

func (h *Hub) removeClient(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.clients[client]; !ok {
		return
	}

	delete(h.clients, client)
	client.close()
	metrics.WSConnections.Set(float64(len(h.clients)))
	h.logger.Debug("client unregistered", "client_id", client.ID, "total", len(h.clients))
}

func (h *Hub) closeAllClients() {
	h.mu.Lock()
	defer h.mu.Unlock()

	for client := range h.clients {
		client.close()
	}
	h.clients = make(map[*Client]struct{})
	metrics.WSConnections.Set(0)
}
