package router

import (
	"github.com/labstack/echo/v4"

	"medchat/internal/adapter/api/handler"
	"medchat/internal/adapter/api/middleware"
)

// Setup mounts every route. Handlers must be registered with handler.Setup
// and handler.SetupHealthHandler first.
func Setup(
	e *echo.Echo,
	authMiddleware *middleware.AuthMiddleware,
	roleMiddleware *middleware.RoleMiddleware,
	rateLimit *middleware.RateLimitMiddleware,
	wsHandler *handler.WebSocketHandler,
) {
	SetupHealthRouter(e)
	SetupConversationRouter(e, authMiddleware, rateLimit)
	SetupUserRouter(e, authMiddleware, roleMiddleware)
	if wsHandler != nil {
		SetupWebSocketRouter(e, wsHandler, authMiddleware)
	}
}
