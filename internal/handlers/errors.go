package handlers

import (
	"errors"

	"github.com/chatflow/chatflow/internal/services"
	"github.com/gofiber/fiber/v2"
)

// domainError maps a service error kind to a transport status and a
// structured envelope. Raw storage/provider error text stays internal.
func domainError(c *fiber.Ctx, err error) error {
	status := fiber.StatusInternalServerError
	message := "Internal server error"

	switch {
	case errors.Is(err, services.ErrNotFound):
		status = fiber.StatusNotFound
		message = "Conversation not found"
	case errors.Is(err, services.ErrValidation):
		status = fiber.StatusBadRequest
		message = err.Error()
	case errors.Is(err, services.ErrProviderUnavailable):
		status = fiber.StatusBadGateway
		message = "AI service unavailable"
	case errors.Is(err, services.ErrStorageUnavailable):
		status = fiber.StatusServiceUnavailable
		message = "Storage unavailable"
	}

	return c.Status(status).JSON(fiber.Map{
		"error":   true,
		"kind":    services.ErrorKind(err),
		"message": message,
	})
}
