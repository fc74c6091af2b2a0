package router

import (
	"github.com/labstack/echo/v4"

	"medchat/internal/adapter/api/handler"
	"medchat/internal/adapter/api/middleware"
)

// SetupWebSocketRouter mounts /ws. Browsers cannot set headers on upgrades,
// so the token travels as ?token=.
func SetupWebSocketRouter(e *echo.Echo, wsHandler *handler.WebSocketHandler, authMiddleware *middleware.AuthMiddleware) {
	e.GET("/ws", wsHandler.HandleWebSocket, authMiddleware.AuthenticateQuery)
}
