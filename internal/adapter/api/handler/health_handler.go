package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
)

// ConnectionTester is anything that can prove its backend is reachable.
type ConnectionTester interface {
	TestConnection(ctx context.Context) error
}

type HealthHandler struct {
	auth    ConnectionTester
	backend string
}

var healthHandler *HealthHandler

func NewHealthHandler(auth ConnectionTester, backend string) *HealthHandler {
	return &HealthHandler{
		auth:    auth,
		backend: backend,
	}
}

func SetupHealthHandler(auth ConnectionTester, backend string) {
	healthHandler = NewHealthHandler(auth, backend)
}

func GetHealthHandler() *HealthHandler {
	return healthHandler
}

func (h *HealthHandler) CheckHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{
		"status":  "ok",
		"backend": h.backend,
		"time":    time.Now().UTC().Format(time.RFC3339),
	})
}

func (h *HealthHandler) CheckAuthHealth(c echo.Context) error {
	if h.auth == nil {
		return c.JSON(http.StatusOK, map[string]string{
			"status": "Auth verification is not configured",
		})
	}

	if err := h.auth.TestConnection(c.Request().Context()); err != nil {
		return c.JSON(http.StatusServiceUnavailable, map[string]string{
			"status": "Auth connection failed",
			"error":  err.Error(),
		})
	}

	return c.JSON(http.StatusOK, map[string]string{
		"status": "Auth connected successfully",
	})
}
