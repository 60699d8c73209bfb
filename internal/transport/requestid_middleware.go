package transport

import (
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"github.com/dpin8449/KOMBUCHAS/internal/observability"
)

// HeaderRequestID is the header carrying the request correlation ID.
const HeaderRequestID = "X-Request-Id"

// RequestIDMiddleware assigns a correlation ID to every request. An ID
// supplied by the caller is kept; otherwise a new one is generated. The ID
// is stored on the request context for downstream loggers and echoed back
// in the response header.
func RequestIDMiddleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		id := c.Get(HeaderRequestID)
		if id == "" {
			id = uuid.NewString()
		}
		c.Locals(observability.RequestIDKey, id)
		c.Set(HeaderRequestID, id)
		return c.Next()
	}
}

// RequestID returns the correlation ID assigned to the request, if any.
func RequestID(c *fiber.Ctx) string {
	id, _ := c.Locals(observability.RequestIDKey).(string)
	return id
}
