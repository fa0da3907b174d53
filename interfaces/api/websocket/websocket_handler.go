package websocket

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"

	websocketManager "facemanager/infrastructure/websocket"
	"facemanager/pkg/logger"
)

type WebSocketHandler struct{}

func NewWebSocketHandler() *WebSocketHandler {
	return &WebSocketHandler{}
}

func (h *WebSocketHandler) WebSocketUpgrade(c *fiber.Ctx) error {
	if websocket.IsWebSocketUpgrade(c) {
		return c.Next()
	}
	return fiber.ErrUpgradeRequired
}

// HandleWebSocket subscribes the connection to the user's group change
// events. Clients identify themselves with ?user_id=...
func (h *WebSocketHandler) HandleWebSocket(c *websocket.Conn) {
	userID := c.Query("user_id")
	if userID == "" {
		logger.WebSocket("missing_user", "Connection without user_id rejected", nil)
		_ = c.Close()
		return
	}

	websocketManager.Manager.RegisterClient(c, userID)
	defer websocketManager.Manager.UnregisterClient(c)

	for {
		messageType, message, err := c.ReadMessage()
		if err != nil {
			logger.WebSocket("connection_closed", "WebSocket read ended", map[string]interface{}{
				"user_id": userID,
				"reason":  err.Error(),
			})
			break
		}
		websocketManager.HandleWebSocketMessage(c, messageType, message)
	}
}
