package handlers

import (
	"time"

	"github.com/chatflow/chatflow/internal/services"
	"github.com/gofiber/fiber/v2"
)

var startTime = time.Now()
var Version = "1.0.0"

type SystemHandler struct {
	store    *services.ConversationStore
	provider services.CompletionProvider
}

func NewSystemHandler(store *services.ConversationStore, provider services.CompletionProvider) *SystemHandler {
	return &SystemHandler{store: store, provider: provider}
}

// Health reports "down" when storage is unreachable and "degraded"
// (still serving) when the AI gateway runs in fallback mode.
func (h *SystemHandler) Health(c *fiber.Ctx) error {
	overall := "ok"
	statusCode := fiber.StatusOK

	dbStatus := "ok"
	if err := h.store.Ping(); err != nil {
		dbStatus = "unreachable"
		overall = "down"
		statusCode = fiber.StatusServiceUnavailable
	}

	aiStatus := "ok"
	if h.provider.FallbackMode() {
		aiStatus = "fallback"
		if overall == "ok" {
			overall = "degraded"
		}
	}

	return c.Status(statusCode).JSON(fiber.Map{
		"status":  overall,
		"service": "chatflow",
		"version": Version,
		"time":    time.Now().UTC().Format(time.RFC3339),
		"uptime":  time.Since(startTime).String(),
		"db":      dbStatus,
		"ai":      aiStatus,
	})
}
