package handler

import (
	"context"
	"database/sql"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
)

const probeTimeout = 2 * time.Second

// RegisterHealthRoutes exposes liveness and readiness probes. Readiness
// requires both Postgres and Redis to answer a ping within the probe
// timeout.
func RegisterHealthRoutes(app fiber.Router, sqlDB *sql.DB, rdb *redis.Client) {
	app.Get("/livez", LivezHandler())
	app.Get("/readyz", ReadyzHandler(sqlDB, rdb))
}

func LivezHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		return c.Status(fiber.StatusOK).JSON(fiber.Map{
			"status": "ok",
		})
	}
}

func ReadyzHandler(sqlDB *sql.DB, rdb *redis.Client) fiber.Handler {
	return func(c *fiber.Ctx) error {
		ctx, cancel := context.WithTimeout(c.Context(), probeTimeout)
		defer cancel()

		checks := fiber.Map{
			"postgres": probeResult(sqlDB.PingContext(ctx)),
			"redis":    probeResult(rdb.Ping(ctx).Err()),
		}

		status, code := "ready", fiber.StatusOK
		for _, v := range checks {
			if v != "ok" {
				status, code = "not_ready", fiber.StatusServiceUnavailable
				break
			}
		}

		return c.Status(code).JSON(fiber.Map{
			"status": status,
			"checks": checks,
		})
	}
}

func probeResult(err error) string {
	if err != nil {
		return "down"
	}
	return "ok"
}
