package handlers

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/chatflow/chatflow/internal/middleware"
	"github.com/chatflow/chatflow/internal/services"
	"github.com/gofiber/fiber/v2"
	"github.com/valyala/fasthttp"
)

type ChatHandler struct {
	orchestrator *services.Orchestrator
}

func NewChatHandler(orchestrator *services.Orchestrator) *ChatHandler {
	return &ChatHandler{orchestrator: orchestrator}
}

// ─── Chat (non-streaming) ───────────────────────────────────────────────────

func (h *ChatHandler) Chat(c *fiber.Ctx) error {
	var req services.ChatRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error":   true,
			"kind":    "validation_error",
			"message": "Invalid request body",
		})
	}

	principal := middleware.PrincipalFrom(c)

	result, err := h.orchestrator.Chat(c.UserContext(), principal, req)
	if err != nil {
		if errors.Is(err, services.ErrProviderUnavailable) && result != nil {
			// Partial success: the user message is committed, retrying
			// the same conversation is safe.
			return c.Status(fiber.StatusBadGateway).JSON(fiber.Map{
				"error":           true,
				"kind":            services.ErrorKind(err),
				"message":         "AI service unavailable",
				"conversation_id": result.ConversationID,
			})
		}
		return domainError(c, err)
	}

	return c.JSON(result)
}

// ─── ChatStream (SSE Streaming) ─────────────────────────────────────────────

func (h *ChatHandler) ChatStream(c *fiber.Ctx) error {
	var req services.ChatRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error":   true,
			"kind":    "validation_error",
			"message": "Invalid request body",
		})
	}

	principal := middleware.PrincipalFrom(c)

	// The user message must be durable before the stream starts, so
	// errors here still map to proper statuses.
	ctx, cancel := h.orchestrator.TurnContextFor(c.UserContext())
	turn, err := h.orchestrator.Prepare(ctx, principal, req)
	if err != nil {
		cancel()
		return domainError(c, err)
	}

	c.Set("Content-Type", "text/event-stream")
	c.Set("Cache-Control", "no-cache")
	c.Set("Connection", "keep-alive")
	c.Set("X-Accel-Buffering", "no")

	orch := h.orchestrator
	var writer fasthttp.StreamWriter = func(w *bufio.Writer) {
		defer cancel()

		result, err := orch.ChatStream(ctx, turn, func(token string) {
			event, _ := json.Marshal(fiber.Map{"token": token, "done": false})
			fmt.Fprintf(w, "data: %s\n\n", event)
			w.Flush()
		})

		final := fiber.Map{
			"token":           "",
			"done":            true,
			"conversation_id": turn.Conversation.ID.String(),
			"title":           turn.Conversation.Title,
		}
		if err != nil {
			final["error"] = true
			final["kind"] = services.ErrorKind(err)
		} else {
			final["tokens_used"] = result.TokensUsed
		}
		finalJSON, _ := json.Marshal(final)
		fmt.Fprintf(w, "data: %s\n\n", finalJSON)
		w.Flush()
	}
	c.Context().SetBodyStreamWriter(writer)

	return nil
}
