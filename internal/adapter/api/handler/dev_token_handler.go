package handler

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"medchat/internal/domain/entity"
	"medchat/internal/domain/repository"
	"medchat/internal/infrastructure/firebase"
	"medchat/pkg/response"
)

// DevTokenHandler seeds profiles and hands out dev tokens for local runs.
type DevTokenHandler struct {
	userRepo repository.UserRepository
}

var devTokenHandler *DevTokenHandler

func NewDevTokenHandler(userRepo repository.UserRepository) *DevTokenHandler {
	return &DevTokenHandler{
		userRepo: userRepo,
	}
}

func SetupDevTokenHandler(userRepo repository.UserRepository) {
	devTokenHandler = NewDevTokenHandler(userRepo)
}

func GetDevTokenHandler() *DevTokenHandler {
	return devTokenHandler
}

type createDevUserRequest struct {
	ID          string `json:"id"`
	DisplayName string `json:"displayName" validate:"required"`
	Email       string `json:"email" validate:"omitempty,email"`
	Role        string `json:"role" validate:"required,oneof=doctor patient admin"`
	Specialty   string `json:"specialty"`
	DOB         string `json:"dob"`
	PhotoURL    string `json:"photoURL" validate:"omitempty,url"`
}

// CreateUser stores a profile and returns a dev token for it.
func (h *DevTokenHandler) CreateUser(c echo.Context) error {
	var req createDevUserRequest
	if err := c.Bind(&req); err != nil {
		return response.Error(c, err)
	}
	if err := c.Validate(&req); err != nil {
		return response.Error(c, err)
	}

	id := strings.TrimSpace(req.ID)
	if id == "" {
		id = uuid.New().String()
	}
	now := time.Now().UTC()
	user := &entity.User{
		ID:          id,
		DisplayName: req.DisplayName,
		Email:       req.Email,
		PhotoURL:    req.PhotoURL,
		Role:        req.Role,
		Specialty:   req.Specialty,
		DOB:         req.DOB,
		LastActive:  now,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := h.userRepo.Create(c.Request().Context(), user); err != nil {
		return response.Error(c, err)
	}

	return response.Created(c, map[string]interface{}{
		"token": firebase.DevTokenPrefix + id,
		"user":  user,
	})
}

// GetToken returns the dev token of an existing profile.
func (h *DevTokenHandler) GetToken(c echo.Context) error {
	user, err := h.userRepo.GetByID(c.Request().Context(), c.Param("id"))
	if err != nil {
		return response.Error(c, err)
	}
	return response.Success(c, map[string]interface{}{
		"token": firebase.DevTokenPrefix + user.ID,
		"user":  user,
	})
}
