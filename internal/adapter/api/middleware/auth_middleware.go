package middleware

import (
	"context"
	"strings"

	"github.com/labstack/echo/v4"

	"medchat/pkg/errors"
	"medchat/pkg/response"
)

// UserIDKey is the echo context key holding the authenticated user.
const UserIDKey = "uid"

// TokenVerifier resolves a bearer token to a user ID.
type TokenVerifier interface {
	VerifyToken(ctx context.Context, token string) (string, error)
}

type AuthMiddleware struct {
	verifier TokenVerifier
}

func NewAuthMiddleware(verifier TokenVerifier) *AuthMiddleware {
	return &AuthMiddleware{
		verifier: verifier,
	}
}

// Authenticate requires "Authorization: Bearer <token>".
func (m *AuthMiddleware) Authenticate(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		authHeader := c.Request().Header.Get("Authorization")
		if authHeader == "" {
			return response.Error(c, errors.Unauthorized("Authorization header is required", nil))
		}

		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || parts[0] != "Bearer" || parts[1] == "" {
			return response.Error(c, errors.Unauthorized("Invalid authorization format", nil))
		}

		return m.authenticateToken(c, parts[1], next)
	}
}

// AuthenticateQuery reads the token from ?token=, for WebSocket upgrades
// where browsers cannot set headers.
func (m *AuthMiddleware) AuthenticateQuery(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		token := c.QueryParam("token")
		if token == "" {
			return response.Error(c, errors.Unauthorized("token query parameter is required", nil))
		}
		return m.authenticateToken(c, token, next)
	}
}

func (m *AuthMiddleware) authenticateToken(c echo.Context, token string, next echo.HandlerFunc) error {
	uid, err := m.verifier.VerifyToken(c.Request().Context(), token)
	if err != nil || uid == "" {
		return response.Error(c, errors.Unauthorized("Invalid or expired token", err))
	}

	c.Set(UserIDKey, uid)
	return next(c)
}

// UserID returns the authenticated user set by Authenticate.
func UserID(c echo.Context) string {
	uid, _ := c.Get(UserIDKey).(string)
	return uid
}
