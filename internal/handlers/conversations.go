package handlers

import (
	"strings"

	"github.com/chatflow/chatflow/internal/middleware"
	"github.com/chatflow/chatflow/internal/services"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

type ConversationHandler struct {
	store *services.ConversationStore
}

func NewConversationHandler(store *services.ConversationStore) *ConversationHandler {
	return &ConversationHandler{store: store}
}

// ─── ListConversations ──────────────────────────────────────────────────────

func (h *ConversationHandler) ListConversations(c *fiber.Ctx) error {
	principal := middleware.PrincipalFrom(c)

	convs, err := h.store.ListConversations(c.UserContext(), principal)
	if err != nil {
		return domainError(c, err)
	}

	return c.JSON(fiber.Map{
		"conversations": convs,
		"is_guest":      principal.Guest,
	})
}

// ─── CreateConversation ─────────────────────────────────────────────────────

func (h *ConversationHandler) CreateConversation(c *fiber.Ctx) error {
	var req struct {
		Title string `json:"title"`
	}
	// Body is optional; an empty one creates a conversation with the
	// placeholder title.
	_ = c.BodyParser(&req)

	principal := middleware.PrincipalFrom(c)

	conv, err := h.store.CreateConversation(c.UserContext(), principal, strings.TrimSpace(req.Title))
	if err != nil {
		return domainError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(conv)
}

// ─── GetConversation ────────────────────────────────────────────────────────

func (h *ConversationHandler) GetConversation(c *fiber.Ctx) error {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return invalidConversationID(c)
	}

	principal := middleware.PrincipalFrom(c)

	conv, err := h.store.GetConversation(c.UserContext(), principal, id)
	if err != nil {
		return domainError(c, err)
	}

	messages, err := h.store.ListMessages(c.UserContext(), principal, id)
	if err != nil {
		return domainError(c, err)
	}

	return c.JSON(fiber.Map{
		"id":            conv.ID,
		"title":         conv.Title,
		"message_count": conv.MessageCount,
		"messages":      messages,
		"created_at":    conv.CreatedAt,
		"updated_at":    conv.UpdatedAt,
	})
}

// ─── ListMessages ───────────────────────────────────────────────────────────

func (h *ConversationHandler) ListMessages(c *fiber.Ctx) error {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return invalidConversationID(c)
	}

	principal := middleware.PrincipalFrom(c)

	messages, err := h.store.ListMessages(c.UserContext(), principal, id)
	if err != nil {
		return domainError(c, err)
	}

	return c.JSON(fiber.Map{"messages": messages})
}

// ─── RenameConversation ─────────────────────────────────────────────────────

func (h *ConversationHandler) RenameConversation(c *fiber.Ctx) error {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return invalidConversationID(c)
	}

	var req struct {
		Title string `json:"title"`
	}
	if err := c.BodyParser(&req); err != nil || strings.TrimSpace(req.Title) == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error":   true,
			"kind":    "validation_error",
			"message": "Title is required",
		})
	}

	principal := middleware.PrincipalFrom(c)

	conv, err := h.store.RenameConversation(c.UserContext(), principal, id, strings.TrimSpace(req.Title))
	if err != nil {
		return domainError(c, err)
	}

	return c.JSON(conv)
}

// ─── DeleteConversation ─────────────────────────────────────────────────────

func (h *ConversationHandler) DeleteConversation(c *fiber.Ctx) error {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return invalidConversationID(c)
	}

	principal := middleware.PrincipalFrom(c)

	if err := h.store.DeleteConversation(c.UserContext(), principal, id); err != nil {
		return domainError(c, err)
	}

	return c.JSON(fiber.Map{"message": "Conversation deleted"})
}

func invalidConversationID(c *fiber.Ctx) error {
	return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
		"error":   true,
		"kind":    "validation_error",
		"message": "Invalid conversation ID",
	})
}
