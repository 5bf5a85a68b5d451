package http

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"

	"github.com/gofiber/fiber/v2"
)

// ETagMiddleware computes a weak ETag from the response body
// and returns 304 Not Modified if the client already has it.
func ETagMiddleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		if err := c.Next(); err != nil {
			return err
		}

		if c.Method() != fiber.MethodGet || c.Response().StatusCode() != fiber.StatusOK {
			return nil
		}
		body := c.Response().Body()
		if len(body) == 0 {
			return nil
		}

		h := sha256.Sum256(body)
		etag := `W/"` + hex.EncodeToString(h[:8]) + `"`
		c.Set(fiber.HeaderETag, etag)

		if etagMatches(c.Get(fiber.HeaderIfNoneMatch), etag) {
			c.Status(fiber.StatusNotModified)
			c.Response().ResetBody()
		}
		return nil
	}
}

// etagMatches handles comma-separated If-None-Match lists and "*".
func etagMatches(header, etag string) bool {
	if header == "" {
		return false
	}
	for _, candidate := range strings.Split(header, ",") {
		candidate = strings.TrimSpace(candidate)
		if candidate == "*" || candidate == etag {
			return true
		}
	}
	return false
}
