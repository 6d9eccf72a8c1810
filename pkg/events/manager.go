package events

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"
)

// StreamSource resolves an investigation ID to a live bus subscription.
// Implemented by the supervisor registry.
type StreamSource interface {
	Stream(investigationID string) (*Subscription, error)
}

// ConnectionManager manages WebSocket connections and their per-investigation
// subscriptions. Each process has one ConnectionManager instance.
type ConnectionManager struct {
	source       StreamSource
	writeTimeout time.Duration

	mu          sync.RWMutex
	connections map[string]*Connection
}

// Connection represents a single WebSocket client.
//
// subscriptions is accessed without a lock: all reads and writes happen on
// the goroutine that owns the connection (HandleConnection's read loop and
// its deferred cleanup).
type Connection struct {
	ID            string
	Conn          *websocket.Conn
	subscriptions map[string]*Subscription // investigation_id → subscription
	forwarders    sync.WaitGroup
	ctx           context.Context
	cancel        context.CancelFunc
}

// NewConnectionManager creates a new ConnectionManager.
func NewConnectionManager(source StreamSource, writeTimeout time.Duration) *ConnectionManager {
	return &ConnectionManager{
		source:       source,
		writeTimeout: writeTimeout,
		connections:  make(map[string]*Connection),
	}
}

// HandleConnection manages the lifecycle of a single WebSocket connection.
// Called by the WebSocket HTTP handler after upgrade. Blocks until the
// connection closes.
func (m *ConnectionManager) HandleConnection(parentCtx context.Context, conn *websocket.Conn) {
	ctx, cancel := context.WithCancel(parentCtx)
	c := &Connection{
		ID:            uuid.New().String(),
		Conn:          conn,
		subscriptions: make(map[string]*Subscription),
		ctx:           ctx,
		cancel:        cancel,
	}

	m.register(c)
	defer m.unregister(c)

	m.sendJSON(c, map[string]string{
		"type":          "connection.established",
		"connection_id": c.ID,
	})

	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			return
		}

		var msg ClientMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			slog.Warn("Invalid WebSocket message", "connection_id", c.ID, "error", err)
			continue
		}

		m.handleClientMessage(c, &msg)
	}
}

// ActiveConnections returns the count of active WebSocket connections.
func (m *ConnectionManager) ActiveConnections() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.connections)
}

func (m *ConnectionManager) handleClientMessage(c *Connection, msg *ClientMessage) {
	switch msg.Action {
	case "subscribe":
		if msg.InvestigationID == "" {
			m.sendJSON(c, map[string]string{"type": "error", "message": "investigation_id is required for subscribe"})
			return
		}
		if _, ok := c.subscriptions[msg.InvestigationID]; ok {
			return
		}
		sub, err := m.source.Stream(msg.InvestigationID)
		if err != nil {
			m.sendJSON(c, map[string]string{
				"type":             "subscription.error",
				"investigation_id": msg.InvestigationID,
				"message":          err.Error(),
			})
			return
		}
		c.subscriptions[msg.InvestigationID] = sub
		m.sendJSON(c, map[string]string{
			"type":             "subscription.confirmed",
			"investigation_id": msg.InvestigationID,
		})

		c.forwarders.Add(1)
		go m.forward(c, msg.InvestigationID, sub)

	case "unsubscribe":
		if sub, ok := c.subscriptions[msg.InvestigationID]; ok {
			delete(c.subscriptions, msg.InvestigationID)
			sub.Cancel()
		}

	case "ping":
		m.sendJSON(c, map[string]string{"type": "pong"})
	}
}

// forward pumps bus envelopes to the WebSocket until the subscription or the
// connection ends. Envelopes are framed exactly as on the HTTP stream; the
// dashboard parses the same wire format either way.
func (m *ConnectionManager) forward(c *Connection, investigationID string, sub *Subscription) {
	defer c.forwarders.Done()
	for {
		select {
		case env, ok := <-sub.C:
			if !ok {
				m.sendJSON(c, map[string]string{
					"type":             "stream.closed",
					"investigation_id": investigationID,
				})
				return
			}
			if err := m.sendRaw(c, env.Wire); err != nil {
				sub.Cancel()
				return
			}
		case <-c.ctx.Done():
			sub.Cancel()
			return
		}
	}
}

func (m *ConnectionManager) register(c *Connection) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.connections[c.ID] = c
}

func (m *ConnectionManager) unregister(c *Connection) {
	for id, sub := range c.subscriptions {
		delete(c.subscriptions, id)
		sub.Cancel()
	}

	m.mu.Lock()
	delete(m.connections, c.ID)
	m.mu.Unlock()

	c.cancel()
	c.forwarders.Wait()
	_ = c.Conn.Close(websocket.StatusNormalClosure, "")
}

func (m *ConnectionManager) sendJSON(c *Connection, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		slog.Warn("Failed to marshal WebSocket message", "connection_id", c.ID, "error", err)
		return
	}
	if err := m.sendRaw(c, data); err != nil {
		slog.Warn("Failed to send WebSocket message", "connection_id", c.ID, "error", err)
	}
}

func (m *ConnectionManager) sendRaw(c *Connection, data []byte) error {
	writeCtx, cancel := context.WithTimeout(c.ctx, m.writeTimeout)
	defer cancel()
	return c.Conn.Write(writeCtx, websocket.MessageText, data)
}
