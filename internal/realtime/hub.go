package realtime

import (
	"encoding/json"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"stall-lottery/internal/service"
	"stall-lottery/pkg/logger"
)

// Client is one connected observer. Send is never closed; Done is closed once
// the client leaves the hub.
type Client struct {
	ID       string
	Send     chan []byte
	Operator bool // may issue bigscreen:* requests

	done      chan struct{}
	closeOnce sync.Once
}

// NewClient creates a client with a send buffer of the given size.
func NewClient(id string, buffer int, operator bool) *Client {
	return &Client{
		ID:       id,
		Send:     make(chan []byte, buffer),
		Operator: operator,
		done:     make(chan struct{}),
	}
}

// Done is closed when the client is unregistered.
func (c *Client) Done() <-chan struct{} {
	return c.done
}

func (c *Client) close() {
	c.closeOnce.Do(func() { close(c.done) })
}

// Push is a server-initiated event.
type Push struct {
	Event string      `json:"event"`
	Data  interface{} `json:"data"`
}

// Hub fans events out to every connected client. A client whose buffer is full
// misses a pushed event rather than blocking the sender. Replies are never dropped.
type Hub struct {
	mu       sync.RWMutex
	clients  map[string]*Client
	dropped  atomic.Uint64
	timedOut atomic.Uint64
	log      *logger.Logger
}

var _ service.Broadcaster = (*Hub)(nil)

// NewHub creates an empty hub.
func NewHub() *Hub {
	return &Hub{
		clients: make(map[string]*Client),
		log:     logger.Named("hub"),
	}
}

// Register adds a client.
func (h *Hub) Register(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.clients[client.ID] = client
}

// Unregister removes a client and closes its Done channel.
func (h *Hub) Unregister(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[client.ID]; !ok {
		return
	}
	delete(h.clients, client.ID)
	client.close()
}

// CloseAll disconnects every client.
func (h *Hub) CloseAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for id, client := range h.clients {
		delete(h.clients, id)
		client.close()
	}
}

// Broadcast pushes an event to every client.
func (h *Hub) Broadcast(event string, data interface{}) {
	payload, err := json.Marshal(Push{Event: event, Data: data})
	if err != nil {
		h.log.Error("failed to encode event", zap.String("event", event), zap.Error(err))
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, client := range h.clients {
		h.deliver(client, payload)
	}
}

// Send pushes an event to one client.
func (h *Hub) Send(client *Client, event string, data interface{}) {
	payload, err := json.Marshal(Push{Event: event, Data: data})
	if err != nil {
		h.log.Error("failed to encode event", zap.String("event", event), zap.Error(err))
		return
	}
	h.SendRaw(client, payload)
}

// SendRaw pushes an already encoded message to one client.
func (h *Hub) SendRaw(client *Client, payload []byte) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if _, ok := h.clients[client.ID]; !ok {
		return
	}
	h.deliver(client, payload)
}

// Reply queues a response for one client, waiting up to timeout for buffer
// space. It returns false when the client is gone or stayed full; the caller
// is expected to disconnect it.
func (h *Hub) Reply(client *Client, payload []byte, timeout time.Duration) bool {
	h.mu.RLock()
	_, ok := h.clients[client.ID]
	h.mu.RUnlock()
	if !ok {
		return false
	}

	select {
	case client.Send <- payload:
		return true
	default:
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case client.Send <- payload:
		return true
	case <-client.done:
		return false
	case <-timer.C:
		h.timedOut.Add(1)
		h.log.Warn("reply timed out, disconnecting client", zap.String("client_id", client.ID))
		return false
	}
}

// deliver must be called with h.mu held.
func (h *Hub) deliver(client *Client, payload []byte) {
	select {
	case client.Send <- payload:
	default:
		h.dropped.Add(1)
		h.log.Warn("drop message for client", zap.String("client_id", client.ID))
	}
}

// Count returns the number of connected clients.
func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Stats reports connection counters.
func (h *Hub) Stats() map[string]interface{} {
	h.mu.RLock()
	defer h.mu.RUnlock()
	operators := 0
	for _, c := range h.clients {
		if c.Operator {
			operators++
		}
	}
	return map[string]interface{}{
		"clients":          len(h.clients),
		"operators":        operators,
		"dropped_messages": h.dropped.Load(),
		"reply_timeouts":   h.timedOut.Load(),
	}
}
