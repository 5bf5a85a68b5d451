package http

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2"
)

// HealthHandler returns a basic liveness check.
func HealthHandler(deps *Dependencies) fiber.Handler {
	startedAt := time.Now()

	return func(c *fiber.Ctx) error {
		body := fiber.Map{
			"status":  "healthy",
			"uptime":  time.Since(startedAt).String(),
			"version": "dev",
		}
		if deps.Markers != nil {
			body["markers"] = len(deps.Markers.Markers())
		}
		return c.JSON(body)
	}
}

// ReadyHandler runs every configured Checker. The document store is required;
// other services only fail readiness when configured and unreachable.
func ReadyHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		ctx, cancel := context.WithTimeout(c.UserContext(), 3*time.Second)
		defer cancel()

		checks := make(map[string]string)
		allOK := true

		if deps.Checks["store"] == nil {
			checks["store"] = "not configured"
			allOK = false
		}
		for name, check := range deps.Checks {
			if check == nil {
				checks[name] = "not configured"
				continue
			}
			if err := check(ctx); err != nil {
				checks[name] = "error: " + err.Error()
				allOK = false
			} else {
				checks[name] = "ok"
			}
		}

		status := "ready"
		code := fiber.StatusOK
		if !allOK {
			status = "not ready"
			code = fiber.StatusServiceUnavailable
		}

		return c.Status(code).JSON(fiber.Map{
			"status": status,
			"checks": checks,
		})
	}
}
