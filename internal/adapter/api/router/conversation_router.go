package router

import (
	"github.com/labstack/echo/v4"

	"medchat/internal/adapter/api/handler"
	"medchat/internal/adapter/api/middleware"
	"medchat/internal/infrastructure/ratelimit"
)

// SetupConversationRouter mounts conversation and message routes.
func SetupConversationRouter(e *echo.Echo, authMiddleware *middleware.AuthMiddleware, rateLimit *middleware.RateLimitMiddleware) {
	conversationHandler := handler.GetConversationHandler()
	messageHandler := handler.GetMessageHandler()

	conversations := e.Group("/v1/conversations")
	conversations.Use(authMiddleware.Authenticate)

	sendLimit := rateLimit.PerUser(ratelimit.ActionSendMessage)

	// Conversation lifecycle
	conversations.POST("", conversationHandler.CreateConversation, rateLimit.PerUser(ratelimit.ActionCreateConversation))
	conversations.GET("", conversationHandler.ListConversations)
	conversations.GET("/unread", conversationHandler.CountUnread)
	conversations.PUT("/:id/read", conversationHandler.MarkRead)
	conversations.PUT("/:id/unread", conversationHandler.MarkUnread)
	conversations.PUT("/:id/mute", conversationHandler.ToggleMute)
	conversations.PUT("/:id/typing", conversationHandler.SetTyping, rateLimit.PerUser(ratelimit.ActionTyping))
	conversations.DELETE("/:id", conversationHandler.DeleteConversation)

	// Messages
	conversations.POST("/:id/messages", messageHandler.SendMessage, sendLimit)
	conversations.POST("/:id/files", messageHandler.UploadFile, sendLimit)
	conversations.POST("/:id/calls", messageHandler.SendCallEvent, sendLimit)
	conversations.GET("/:id/messages", messageHandler.GetMessages)
	conversations.GET("/:id/messages/older", messageHandler.GetOlderMessages)
	conversations.POST("/:id/messages/:messageId/unsend", messageHandler.UnsendMessage)
	conversations.DELETE("/:id/messages/:messageId", messageHandler.DeleteMessage)
}
