package handler

import (
	"github.com/labstack/echo/v4"

	"medchat/internal/usecase"
	"medchat/pkg/response"
)

type PresenceHandler struct {
	presenceUseCase *usecase.PresenceUseCase
}

func NewPresenceHandler(presenceUseCase *usecase.PresenceUseCase) *PresenceHandler {
	return &PresenceHandler{
		presenceUseCase: presenceUseCase,
	}
}

type setPresenceRequest struct {
	IsOnline bool `json:"isOnline"`
}

func (h *PresenceHandler) SetPresence(c echo.Context) error {
	var req setPresenceRequest
	if err := c.Bind(&req); err != nil {
		return response.Error(c, err)
	}

	userID, err := currentUser(c)
	if err != nil {
		return response.Error(c, err)
	}

	h.presenceUseCase.SetOnline(c.Request().Context(), userID, req.IsOnline)
	return response.Success(c, map[string]bool{"isOnline": req.IsOnline})
}

func (h *PresenceHandler) GetPresence(c echo.Context) error {
	presence, err := h.presenceUseCase.GetPresence(c.Request().Context(), c.Param("id"))
	if err != nil {
		return response.Error(c, err)
	}
	return response.Success(c, presence)
}
