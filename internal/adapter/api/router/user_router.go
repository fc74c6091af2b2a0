package router

import (
	"github.com/labstack/echo/v4"

	"medchat/internal/adapter/api/handler"
	"medchat/internal/adapter/api/middleware"
	"medchat/internal/domain/entity"
)

// SetupUserRouter mounts presence and directory routes. Patient listings are
// limited to clinical staff.
func SetupUserRouter(e *echo.Echo, authMiddleware *middleware.AuthMiddleware, roleMiddleware *middleware.RoleMiddleware) {
	presenceHandler := handler.GetPresenceHandler()
	directoryHandler := handler.GetDirectoryHandler()

	v1 := e.Group("/v1")
	v1.Use(authMiddleware.Authenticate)

	v1.PUT("/presence", presenceHandler.SetPresence)
	v1.GET("/users/:id/presence", presenceHandler.GetPresence)
	v1.GET("/users/:id", directoryHandler.GetUser)
	v1.GET("/doctors", directoryHandler.ListDoctors)
	v1.GET("/patients", directoryHandler.ListPatients, roleMiddleware.RequireRole(entity.RoleDoctor, entity.RoleAdmin))
}
