package http

import (
	"strings"

	"github.com/gofiber/fiber/v2"
)

// CachingMiddleware sets Cache-Control on GET responses that did not set one.
// Marker and upload state changes as photos land, so clients always
// revalidate against the ETag.
func CachingMiddleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		err := c.Next()

		if c.Method() != fiber.MethodGet {
			return err
		}
		if existing := c.Get(fiber.HeaderCacheControl); existing != "" {
			return err
		}

		path := c.Path()
		var ttl string
		switch {
		case path == "/v1/health" || path == "/v1/ready":
			ttl = "public, max-age=10"
		case path == "/metrics", path == "/v1/observer":
			ttl = "no-store"
		case strings.HasSuffix(path, "/uploads"):
			ttl = "no-store"
		case strings.HasPrefix(path, "/v1/markers"):
			ttl = "private, no-cache"
		case strings.HasPrefix(path, "/docs"):
			ttl = "public, max-age=3600"
		}

		if ttl != "" {
			c.Set(fiber.HeaderCacheControl, ttl)
		}
		return err
	}
}
