package transport

import (
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/dpin8449/KOMBUCHAS/internal/ratelimit"
)

// RateLimitMiddleware throttles requests per client IP. Limiter failures do
// not reject traffic; the request proceeds and the failure is logged.
func RateLimitMiddleware(limiter ratelimit.RateLimiter, logger *zap.Logger) fiber.Handler {
	if logger == nil {
		logger = zap.NewNop()
	}

	return func(c *fiber.Ctx) error {
		allowed, err := limiter.Allow(c.Context(), c.IP())
		if err != nil {
			logger.Warn("rate limit check failed", zap.Error(err))
			return c.Next()
		}
		if !allowed {
			return fiber.NewError(fiber.StatusTooManyRequests, "rate limit exceeded")
		}
		return c.Next()
	}
}
