package ws

import (
	"sync"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

const maxConnsPerUser = 10

// Hub tracks live WebSocket connections per user so the in-app channel can
// push notifications as they are created.
type Hub struct {
	connections map[int]map[*websocket.Conn]bool
	mutex       sync.Mutex
	logger      *logrus.Logger
}

func NewHub(logger *logrus.Logger) *Hub {
	return &Hub{
		connections: make(map[int]map[*websocket.Conn]bool),
		logger:      logger,
	}
}

// AddConnection registers a connection for a user.
func (h *Hub) AddConnection(userID int, conn *websocket.Conn) {
	h.mutex.Lock()
	defer h.mutex.Unlock()
	if _, exists := h.connections[userID]; !exists {
		h.connections[userID] = make(map[*websocket.Conn]bool)
	}
	if len(h.connections[userID]) >= maxConnsPerUser {
		h.logger.WithField("user_id", userID).Warn("Max WebSocket connections reached")
		return
	}
	h.connections[userID][conn] = true
	h.logger.WithFields(logrus.Fields{"user_id": userID, "total": len(h.connections[userID])}).Debug("WebSocket connection added")
}

// RemoveConnection drops a connection for a user.
func (h *Hub) RemoveConnection(userID int, conn *websocket.Conn) {
	h.mutex.Lock()
	defer h.mutex.Unlock()
	if conns, exists := h.connections[userID]; exists {
		delete(conns, conn)
		if len(conns) == 0 {
			delete(h.connections, userID)
		}
	}
}

// SendToUser writes a message to all of the user's open connections.
// Broken connections are dropped; delivery here is best-effort.
func (h *Hub) SendToUser(userID int, message []byte) {
	h.mutex.Lock()
	defer h.mutex.Unlock()
	conns, exists := h.connections[userID]
	if !exists {
		return
	}
	for conn := range conns {
		if err := conn.WriteMessage(websocket.TextMessage, message); err != nil {
			h.logger.WithFields(logrus.Fields{"user_id": userID, "error": err}).Debug("WebSocket write failed, dropping connection")
			delete(conns, conn)
		}
	}
	if len(conns) == 0 {
		delete(h.connections, userID)
	}
}
