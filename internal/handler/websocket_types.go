// internal/handler/websocket_types.go
package handler

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"siggen-service/internal/model"
)

// Client represents a WebSocket client
type Client struct {
	ID          string          `json:"id"`
	Connection  *websocket.Conn `json:"-"`
	Send        chan []byte     `json:"-"`
	UserAgent   string          `json:"user_agent"`
	RemoteAddr  string          `json:"remote_addr"`
	ConnectedAt time.Time       `json:"connected_at"`

	mutex         sync.RWMutex
	subscriptions map[model.EventType]bool
}

// Subscribe limits the client to the given event type (plus any others already subscribed)
func (c *Client) Subscribe(eventType model.EventType) {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	if c.subscriptions == nil {
		c.subscriptions = make(map[model.EventType]bool)
	}
	c.subscriptions[eventType] = true
}

// Unsubscribe removes an event type filter
func (c *Client) Unsubscribe(eventType model.EventType) {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	delete(c.subscriptions, eventType)
}

// Wants reports whether the client receives events of this type.
// Clients without subscriptions receive everything.
func (c *Client) Wants(eventType model.EventType) bool {
	c.mutex.RLock()
	defer c.mutex.RUnlock()
	return len(c.subscriptions) == 0 || c.subscriptions[eventType]
}

// WebSocketMessage represents a WebSocket message
type WebSocketMessage struct {
	Type      string      `json:"type"`
	Data      interface{} `json:"data,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
	RequestID string      `json:"request_id,omitempty"`
}

// ConnectionManager manages WebSocket connections
type ConnectionManager struct {
	clients map[string]*Client
	mutex   sync.RWMutex
}

// NewConnectionManager creates a new connection manager
func NewConnectionManager() *ConnectionManager {
	return &ConnectionManager{
		clients: make(map[string]*Client),
	}
}

// Register registers a new client
func (cm *ConnectionManager) Register(client *Client) {
	cm.mutex.Lock()
	defer cm.mutex.Unlock()
	cm.clients[client.ID] = client
}

// Unregister unregisters a client and closes its send channel
func (cm *ConnectionManager) Unregister(client *Client) {
	cm.mutex.Lock()
	defer cm.mutex.Unlock()
	if _, ok := cm.clients[client.ID]; ok {
		delete(cm.clients, client.ID)
		close(client.Send)
	}
}

// Broadcast queues message for every client interested in eventType and
// returns the IDs of clients whose queue was full
func (cm *ConnectionManager) Broadcast(eventType model.EventType, message []byte) []string {
	cm.mutex.RLock()
	defer cm.mutex.RUnlock()

	var dropped []string
	for _, client := range cm.clients {
		if !client.Wants(eventType) {
			continue
		}
		select {
		case client.Send <- message:
		default:
			dropped = append(dropped, client.ID)
		}
	}
	return dropped
}

// GetStats returns connection statistics
func (cm *ConnectionManager) GetStats() *ConnectionStats {
	cm.mutex.RLock()
	defer cm.mutex.RUnlock()

	stats := &ConnectionStats{
		TotalConnections: len(cm.clients),
		Clients:          make([]*Client, 0, len(cm.clients)),
		Filters:          make(map[model.EventType]int),
	}
	for _, client := range cm.clients {
		stats.Clients = append(stats.Clients, client)
		for _, eventType := range client.filters() {
			stats.Filters[eventType]++
		}
	}
	return stats
}

func (c *Client) filters() []model.EventType {
	c.mutex.RLock()
	defer c.mutex.RUnlock()
	types := make([]model.EventType, 0, len(c.subscriptions))
	for eventType := range c.subscriptions {
		types = append(types, eventType)
	}
	return types
}

// ConnectionStats represents connection statistics. Filters counts clients
// per subscribed event type; unfiltered clients are not counted there.
type ConnectionStats struct {
	TotalConnections int                     `json:"total_connections"`
	Clients          []*Client               `json:"clients"`
	Filters          map[model.EventType]int `json:"filters"`
}
