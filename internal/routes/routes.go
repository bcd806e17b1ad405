package routes

import (
	"github.com/chatflow/chatflow/internal/config"
	"github.com/chatflow/chatflow/internal/handlers"
	"github.com/chatflow/chatflow/internal/middleware"
	"github.com/gofiber/fiber/v2"
)

func Setup(
	app *fiber.App,
	cfg *config.Config,
	chatHandler *handlers.ChatHandler,
	conversationHandler *handlers.ConversationHandler,
	usageHandler *handlers.UsageHandler,
	systemHandler *handlers.SystemHandler,
) {
	// ─── Public ──────────────────────────────────────────────────────────
	app.Get("/api/health", systemHandler.Health)

	// ─── API (guest or authenticated, principal always resolved) ────────
	api := app.Group("/api", middleware.ResolvePrincipal(cfg.JWTSecret))

	// Chat
	api.Post("/chat", chatHandler.Chat)
	api.Post("/chat/stream", chatHandler.ChatStream)
	api.Use("/chat/ws", chatHandler.WebSocketUpgrade())
	api.Get("/chat/ws", chatHandler.HandleWebSocket())

	// Conversations
	api.Get("/conversations", conversationHandler.ListConversations)
	api.Post("/conversations", conversationHandler.CreateConversation)
	api.Get("/conversations/:id", conversationHandler.GetConversation)
	api.Put("/conversations/:id", conversationHandler.RenameConversation)
	api.Delete("/conversations/:id", conversationHandler.DeleteConversation)
	api.Get("/conversations/:id/messages", conversationHandler.ListMessages)

	// Usage
	api.Get("/usage/stats", usageHandler.Stats)
}
