package handlers

import (
	"context"
	"errors"

	"github.com/chatflow/chatflow/internal/middleware"
	"github.com/chatflow/chatflow/internal/services"
	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
)

// WebSocketUpgrade is middleware that checks if the request is a
// websocket upgrade.
func (h *ChatHandler) WebSocketUpgrade() fiber.Handler {
	return func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	}
}

// HandleWebSocket runs a chat session over a websocket: each inbound
// frame is one orchestrated turn, answered with the full turn result.
func (h *ChatHandler) HandleWebSocket() fiber.Handler {
	return websocket.New(func(conn *websocket.Conn) {
		principal, ok := conn.Locals(middleware.PrincipalKey).(services.Principal)
		if !ok {
			conn.WriteJSON(fiber.Map{
				"error":   true,
				"kind":    "internal",
				"message": "No principal resolved for session",
			})
			return
		}

		for {
			var req services.ChatRequest
			if err := conn.ReadJSON(&req); err != nil {
				return
			}

			result, err := h.orchestrator.Chat(context.Background(), principal, req)
			if err != nil {
				envelope := fiber.Map{
					"error":   true,
					"kind":    services.ErrorKind(err),
					"message": "Chat turn failed",
				}
				if errors.Is(err, services.ErrProviderUnavailable) && result != nil {
					envelope["conversation_id"] = result.ConversationID
				}
				if writeErr := conn.WriteJSON(envelope); writeErr != nil {
					return
				}
				continue
			}

			if err := conn.WriteJSON(result); err != nil {
				return
			}
		}
	})
}
