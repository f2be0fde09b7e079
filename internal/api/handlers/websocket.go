package handlers

import (
	"github.com/gin-gonic/gin"

	"github.com/bubble-duels/duels-backend/internal/websocket"
)

// WebSocketHandler WebSocket 연결 처리
type WebSocketHandler struct {
	hub *websocket.Hub
}

// NewWebSocketHandler WebSocketHandler 생성
func NewWebSocketHandler(hub *websocket.Hub) *WebSocketHandler {
	return &WebSocketHandler{
		hub: hub,
	}
}

// HandleWebSocket WebSocket 연결 엔드포인트 (익명 관전 허용)
func (h *WebSocketHandler) HandleWebSocket(c *gin.Context) {
	userID := "anonymous"
	if id, exists := c.Get("userId"); exists {
		userID = id.(string)
	}

	websocket.ServeWs(h.hub, c.Writer, c.Request, userID)
}
