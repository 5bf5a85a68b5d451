package http

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/gofiber/fiber/v2"
)

// AccessLogMiddleware logs one structured line per request.
// WebSocket upgrades are logged by the relay itself.
func AccessLogMiddleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()
		path := c.Path()
		method := c.Method()

		err := c.Next()

		status := c.Response().StatusCode()
		attrs := []slog.Attr{
			slog.String("method", method),
			slog.String("path", path),
			slog.Int("status", status),
			slog.Duration("latency", time.Since(start)),
			slog.Int("bytes_out", len(c.Response().Body())),
		}
		if rid, ok := c.Locals("requestid").(string); ok && rid != "" {
			attrs = append(attrs, slog.String("request_id", rid))
		}

		level := slog.LevelInfo
		switch {
		case status >= 500:
			level = slog.LevelError
		case status >= 400:
			level = slog.LevelWarn
		}
		if err != nil {
			attrs = append(attrs, slog.String("error", err.Error()))
			level = slog.LevelError
		}

		slog.LogAttrs(c.UserContext(), level, fmt.Sprintf("%s %s", method, path), attrs...)
		return err
	}
}
