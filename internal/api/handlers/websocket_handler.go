package handlers

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
	"go.uber.org/zap"

	"github.com/termsheet-validation/backend/internal/ingestion"
	"github.com/termsheet-validation/backend/pkg/logger"
)

const eventBuffer = 32

// WebSocketHandler streams ingestion events to connected clients.
type WebSocketHandler struct {
	hub *ingestion.Hub
}

func NewWebSocketHandler(hub *ingestion.Hub) *WebSocketHandler {
	return &WebSocketHandler{hub: hub}
}

// Upgrade rejects plain HTTP requests to the websocket route.
func (h *WebSocketHandler) Upgrade(c *fiber.Ctx) error {
	if websocket.IsWebSocketUpgrade(c) {
		return c.Next()
	}
	return fiber.ErrUpgradeRequired
}

func (h *WebSocketHandler) HandleConnection(c *websocket.Conn) {
	events, unsubscribe := h.hub.Subscribe(eventBuffer)
	logger.Info("WebSocket connection established", zap.Int("subscribers", h.hub.Subscribers()))

	defer func() {
		unsubscribe()
		c.Close()
		logger.Info("WebSocket connection closed")
	}()

	// Clients only listen; a read error means they went away.
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := c.ReadMessage(); err != nil {
				return
			}
		}
	}()

	if err := c.WriteJSON(fiber.Map{"type": "subscribed"}); err != nil {
		logger.Warn("Failed to write WebSocket message", zap.Error(err))
		return
	}

	for {
		select {
		case <-closed:
			return
		case evt, ok := <-events:
			if !ok {
				return
			}
			if err := c.WriteJSON(evt); err != nil {
				logger.Warn("Failed to write WebSocket message", zap.Error(err))
				return
			}
		}
	}
}
