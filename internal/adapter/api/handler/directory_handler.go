package handler

import (
	"github.com/labstack/echo/v4"

	"medchat/internal/usecase"
	"medchat/pkg/response"
)

type DirectoryHandler struct {
	directoryUseCase *usecase.DirectoryUseCase
}

func NewDirectoryHandler(directoryUseCase *usecase.DirectoryUseCase) *DirectoryHandler {
	return &DirectoryHandler{
		directoryUseCase: directoryUseCase,
	}
}

func (h *DirectoryHandler) ListDoctors(c echo.Context) error {
	limit, err := queryLimit(c, maxPageSize)
	if err != nil {
		return response.Error(c, err)
	}

	doctors, err := h.directoryUseCase.ListDoctors(c.Request().Context(), limit)
	if err != nil {
		return response.Error(c, err)
	}
	return response.List(c, doctors, len(doctors), limit)
}

func (h *DirectoryHandler) ListPatients(c echo.Context) error {
	limit, err := queryLimit(c, maxPageSize)
	if err != nil {
		return response.Error(c, err)
	}

	patients, err := h.directoryUseCase.ListPatients(c.Request().Context(), limit)
	if err != nil {
		return response.Error(c, err)
	}
	return response.List(c, patients, len(patients), limit)
}

func (h *DirectoryHandler) GetUser(c echo.Context) error {
	user, err := h.directoryUseCase.GetUser(c.Request().Context(), c.Param("id"))
	if err != nil {
		return response.Error(c, err)
	}
	return response.Success(c, user)
}
