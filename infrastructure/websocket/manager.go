package websocket

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/gofiber/websocket/v2"

	"facemanager/pkg/logger"
)

// Manager is the process-wide connection hub.
var Manager = NewConnectionManager()

type client struct {
	conn   *websocket.Conn
	userID string
	mu     sync.Mutex // serializes writes per connection
}

// ConnectionManager tracks websocket clients per user and fans group change
// events out to them.
type ConnectionManager struct {
	mu      sync.RWMutex
	clients map[*websocket.Conn]*client
	byUser  map[string]map[*websocket.Conn]*client
}

type wsMessage struct {
	Event     string                 `json:"event"`
	Data      map[string]interface{} `json:"data,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
}

func NewConnectionManager() *ConnectionManager {
	return &ConnectionManager{
		clients: make(map[*websocket.Conn]*client),
		byUser:  make(map[string]map[*websocket.Conn]*client),
	}
}

func (m *ConnectionManager) RegisterClient(conn *websocket.Conn, userID string) {
	c := &client{conn: conn, userID: userID}

	m.mu.Lock()
	m.clients[conn] = c
	if m.byUser[userID] == nil {
		m.byUser[userID] = make(map[*websocket.Conn]*client)
	}
	m.byUser[userID][conn] = c
	total := len(m.clients)
	m.mu.Unlock()

	logger.WebSocket("client_registered", "WebSocket client connected", map[string]interface{}{
		"user_id":       userID,
		"total_clients": total,
	})
}

func (m *ConnectionManager) UnregisterClient(conn *websocket.Conn) {
	m.mu.Lock()
	c, ok := m.clients[conn]
	if ok {
		delete(m.clients, conn)
		if room := m.byUser[c.userID]; room != nil {
			delete(room, conn)
			if len(room) == 0 {
				delete(m.byUser, c.userID)
			}
		}
	}
	total := len(m.clients)
	m.mu.Unlock()

	if ok {
		logger.WebSocket("client_unregistered", "WebSocket client disconnected", map[string]interface{}{
			"user_id":       c.userID,
			"total_clients": total,
		})
	}
}

// BroadcastToUser pushes an event to every connection of the user. Failed
// writes only log; the connection's own read loop notices the close.
func (m *ConnectionManager) BroadcastToUser(userID string, event string, payload map[string]interface{}) {
	message, err := json.Marshal(wsMessage{
		Event:     event,
		Data:      payload,
		Timestamp: time.Now(),
	})
	if err != nil {
		logger.WebSocketError("marshal_event", "Could not marshal event", err, map[string]interface{}{
			"event": event,
		})
		return
	}

	m.mu.RLock()
	targets := make([]*client, 0, len(m.byUser[userID]))
	for _, c := range m.byUser[userID] {
		targets = append(targets, c)
	}
	m.mu.RUnlock()

	for _, c := range targets {
		c.mu.Lock()
		err := c.conn.WriteMessage(websocket.TextMessage, message)
		c.mu.Unlock()
		if err != nil {
			logger.WebSocketError("broadcast_write", "Could not write event", err, map[string]interface{}{
				"user_id": userID,
				"event":   event,
			})
		}
	}
}

// HandleWebSocketMessage answers client pings; everything else is ignored,
// the stream is server-push only.
func HandleWebSocketMessage(conn *websocket.Conn, messageType int, message []byte) {
	if messageType != websocket.TextMessage {
		return
	}

	var incoming struct {
		Event string `json:"event"`
	}
	if err := json.Unmarshal(message, &incoming); err != nil {
		return
	}

	if incoming.Event == "ping" {
		reply, _ := json.Marshal(wsMessage{Event: "pong", Timestamp: time.Now()})
		Manager.mu.RLock()
		c := Manager.clients[conn]
		Manager.mu.RUnlock()
		if c != nil {
			c.mu.Lock()
			_ = c.conn.WriteMessage(websocket.TextMessage, reply)
			c.mu.Unlock()
		}
	}
}
