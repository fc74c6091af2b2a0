package middleware

import (
	"fmt"
	"math"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"

	"medchat/internal/infrastructure/ratelimit"
	"medchat/pkg/errors"
	"medchat/pkg/logger"
	"medchat/pkg/response"
)

type RateLimitMiddleware struct {
	limiter *ratelimit.RateLimiter
}

func NewRateLimitMiddleware(limiter *ratelimit.RateLimiter) *RateLimitMiddleware {
	return &RateLimitMiddleware{limiter: limiter}
}

// PerUser limits action per authenticated user. It must run after
// Authenticate.
func (m *RateLimitMiddleware) PerUser(action string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			key := UserID(c)
			if key == "" {
				key = "ip:" + c.RealIP()
			}
			return m.check(c, key, action, next)
		}
	}
}

// PerIP limits every request by client address.
func (m *RateLimitMiddleware) PerIP() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			return m.check(c, "ip:"+c.RealIP(), ratelimit.ActionGeneral, next)
		}
	}
}

func (m *RateLimitMiddleware) check(c echo.Context, key, action string, next echo.HandlerFunc) error {
	ok, wait := m.limiter.Allow(key, action)
	if ok {
		return next(c)
	}

	retryAfter := int(math.Ceil(wait.Seconds()))
	if retryAfter < 1 {
		retryAfter = 1
	}
	logger.Warn("RATE LIMIT: %s on %s refused, retry in %v", key, action, wait.Round(time.Millisecond))
	c.Response().Header().Set("Retry-After", strconv.Itoa(retryAfter))
	return response.Error(c, errors.TooManyRequests(fmt.Sprintf("Rate limit exceeded, retry in %ds", retryAfter)))
}
