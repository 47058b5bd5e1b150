package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/coder/websocket"
)

// ConnRegistry tracks open voice sockets per user so session events raised
// over HTTP reach the user's live clients.
type ConnRegistry struct {
	mu     sync.RWMutex
	active map[string]map[*websocket.Conn]struct{}
}

// NewConnRegistry creates an empty registry.
func NewConnRegistry() *ConnRegistry {
	return &ConnRegistry{
		active: make(map[string]map[*websocket.Conn]struct{}),
	}
}

// Register adds a connection for userID.
func (m *ConnRegistry) Register(userID string, conn *websocket.Conn) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.active[userID]; !exists {
		m.active[userID] = make(map[*websocket.Conn]struct{})
	}
	m.active[userID][conn] = struct{}{}
	slog.Info("Voice socket registered", "user_id", userID)
}

// Unregister removes a connection for userID.
func (m *ConnRegistry) Unregister(userID string, conn *websocket.Conn) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if conns, ok := m.active[userID]; ok {
		if _, exists := conns[conn]; exists {
			delete(conns, conn)
			if len(conns) == 0 {
				delete(m.active, userID)
			}
			slog.Info("Voice socket unregistered", "user_id", userID)
		}
	}
}

// Count returns the number of open sockets of userID.
func (m *ConnRegistry) Count(userID string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.active[userID])
}

// Broadcast sends v to every socket of userID and returns how many received it.
func (m *ConnRegistry) Broadcast(userID string, v interface{}) int {
	data, err := json.Marshal(v)
	if err != nil {
		slog.Warn("Failed to encode socket event", "error", err)
		return 0
	}

	m.mu.RLock()
	conns := make([]*websocket.Conn, 0, len(m.active[userID]))
	for c := range m.active[userID] {
		conns = append(conns, c)
	}
	m.mu.RUnlock()

	sent := 0
	for _, c := range conns {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := c.Write(ctx, websocket.MessageText, data); err != nil {
			slog.Debug("Voice socket write failed", "error", err, "user_id", userID)
		} else {
			sent++
		}
		cancel()
	}
	return sent
}

// CloseAll closes every registered socket, used at shutdown.
func (m *ConnRegistry) CloseAll() {
	m.mu.Lock()
	defer m.mu.Unlock()

	for userID, conns := range m.active {
		for c := range conns {
			_ = c.Close(websocket.StatusGoingAway, "server shutting down")
		}
		delete(m.active, userID)
	}
}
