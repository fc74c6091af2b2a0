package router

import (
	"github.com/labstack/echo/v4"

	"medchat/internal/adapter/api/handler"
)

// SetupDevRouter mounts the seeding endpoints when dev tokens are accepted.
func SetupDevRouter(e *echo.Echo, enabled bool) {
	if !enabled {
		return
	}
	devTokenHandler := handler.GetDevTokenHandler()
	if devTokenHandler == nil {
		return
	}

	e.POST("/_dev/users", devTokenHandler.CreateUser)
	e.GET("/_dev/token/:id", devTokenHandler.GetToken)
}
