package handlers

import (
	"github.com/chatflow/chatflow/internal/middleware"
	"github.com/chatflow/chatflow/internal/services"
	"github.com/gofiber/fiber/v2"
)

type UsageHandler struct {
	store *services.ConversationStore
}

func NewUsageHandler(store *services.ConversationStore) *UsageHandler {
	return &UsageHandler{store: store}
}

func (h *UsageHandler) Stats(c *fiber.Ctx) error {
	principal := middleware.PrincipalFrom(c)

	stats, err := h.store.GetUsageStats(c.UserContext(), principal)
	if err != nil {
		return domainError(c, err)
	}

	return c.JSON(fiber.Map{
		"total_requests":           stats.TotalRequests,
		"total_tokens_used":        stats.TotalTokensUsed,
		"average_response_time_ms": stats.AverageResponseTime,
		"is_guest":                 principal.Guest,
	})
}
