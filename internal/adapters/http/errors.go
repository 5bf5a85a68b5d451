package http

import (
	"errors"

	"github.com/gofiber/fiber/v2"

	"github.com/samirrijal/fieldpins/internal/core/domain"
)

// APIError is a structured error response.
type APIError struct {
	Status    int    `json:"status"`
	Code      string `json:"code"`    // bad_request, not_found, remote_write_error, ...
	Message   string `json:"message"` // Human-readable message
	RequestID string `json:"request_id,omitempty"`
}

// newError builds a JSON error response with a request ID.
func newError(c *fiber.Ctx, status int, code string, message string) error {
	reqID, _ := c.Locals("requestid").(string)
	return c.Status(status).JSON(APIError{
		Status:    status,
		Code:      code,
		Message:   message,
		RequestID: reqID,
	})
}

func errBadRequest(c *fiber.Ctx, msg string) error {
	return newError(c, fiber.StatusBadRequest, "bad_request", msg)
}

func errNotFound(c *fiber.Ctx, msg string) error {
	return newError(c, fiber.StatusNotFound, "not_found", msg)
}

func errInternal(c *fiber.Ctx, msg string) error {
	return newError(c, fiber.StatusInternalServerError, "internal_error", msg)
}

// errDomain maps core errors to HTTP statuses.
func errDomain(c *fiber.Ctx, err error) error {
	switch {
	case errors.Is(err, domain.ErrInvalidCoordinate):
		return errBadRequest(c, err.Error())
	case errors.Is(err, domain.ErrMarkerNotFound):
		return errNotFound(c, err.Error())
	case errors.Is(err, domain.ErrTrackerRunning):
		return newError(c, fiber.StatusConflict, "conflict", err.Error())
	case errors.Is(err, domain.ErrPermissionDenied):
		return newError(c, fiber.StatusForbidden, "permission_denied", err.Error())
	case errors.Is(err, domain.ErrLocationUnavailable):
		return newError(c, fiber.StatusServiceUnavailable, "location_unavailable", err.Error())
	case errors.Is(err, domain.ErrRemoteWrite):
		return newError(c, fiber.StatusBadGateway, "remote_write_error", err.Error())
	default:
		return errInternal(c, err.Error())
	}
}
