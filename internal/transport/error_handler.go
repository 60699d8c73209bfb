package transport

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/dpin8449/KOMBUCHAS/internal/domain"
	"github.com/dpin8449/KOMBUCHAS/internal/service"
)

// ErrorHandler translates domain errors to HTTP statuses and renders a JSON
// body. Validation failures keep their field-level detail so form clients can
// highlight the offending inputs.
func ErrorHandler(logger *zap.Logger) fiber.ErrorHandler {
	return func(c *fiber.Ctx, err error) error {
		code := statusFromError(err)

		logger.Error("request error",
			zap.String("method", c.Method()),
			zap.String("path", c.Path()),
			zap.String("request_id", RequestID(c)),
			zap.Int("status", code),
			zap.Error(err),
		)

		body := fiber.Map{
			"error": err.Error(),
		}

		var fieldErrs domain.FieldErrors
		if errors.As(err, &fieldErrs) {
			body["fields"] = fieldErrs
		}

		var partial *service.PartialSequenceError
		if errors.As(err, &partial) {
			body["failedStep"] = partial.Step
			body["committedSteps"] = partial.Committed
		}

		return c.Status(code).JSON(body)
	}
}

func statusFromError(err error) int {
	var fiberErr *fiber.Error
	switch {
	case errors.As(err, &fiberErr):
		return fiberErr.Code
	case errors.Is(err, domain.ErrValidation):
		return fiber.StatusBadRequest
	case errors.Is(err, domain.ErrNotFound):
		return fiber.StatusNotFound
	case errors.Is(err, domain.ErrConflict):
		return fiber.StatusConflict
	default:
		return fiber.StatusInternalServerError
	}
}
