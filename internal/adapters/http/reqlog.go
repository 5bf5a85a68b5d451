package http

import (
	"context"
	"log/slog"

	"github.com/gofiber/fiber/v2"
)

type ctxKey string

const loggerKey ctxKey = "logger"

// RequestIDLogMiddleware stores a request-scoped logger carrying the
// request id in the user context handed to the core.
func RequestIDLogMiddleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		rid, ok := c.Locals("requestid").(string)
		if !ok || rid == "" {
			return c.Next()
		}

		reqLogger := slog.Default().With("request_id", rid)
		c.SetUserContext(context.WithValue(c.UserContext(), loggerKey, reqLogger))
		return c.Next()
	}
}

// LoggerFromCtx extracts the per-request logger, or the default one.
func LoggerFromCtx(ctx context.Context) *slog.Logger {
	if l, ok := ctx.Value(loggerKey).(*slog.Logger); ok {
		return l
	}
	return slog.Default()
}
