package middleware

import (
	"github.com/labstack/echo/v4"

	"medchat/internal/domain/repository"
	"medchat/pkg/errors"
	"medchat/pkg/logger"
	"medchat/pkg/response"
)

type RoleMiddleware struct {
	userRepo repository.UserRepository
}

func NewRoleMiddleware(userRepo repository.UserRepository) *RoleMiddleware {
	return &RoleMiddleware{
		userRepo: userRepo,
	}
}

// RequireRole lets the request through only when the authenticated user has
// one of roles. It must run after Authenticate.
func (m *RoleMiddleware) RequireRole(roles ...string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			uid := UserID(c)
			if uid == "" {
				return response.Error(c, errors.Unauthorized("Authentication required", nil))
			}

			user, err := m.userRepo.GetByID(c.Request().Context(), uid)
			if err != nil {
				if errors.Is(err, errors.CodeNotFound) {
					return response.Error(c, errors.NotAuthorized("No profile for this account"))
				}
				logger.Error("RequireRole Error: Failed to load user %s: %v", uid, err)
				return response.Error(c, errors.Internal("Failed to verify role", err))
			}

			for _, role := range roles {
				if user.Role == role {
					return next(c)
				}
			}
			return response.Error(c, errors.NotAuthorized("This resource is not available for your role"))
		}
	}
}
