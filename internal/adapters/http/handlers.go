package http

import (
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/utils"

	"github.com/samirrijal/fieldpins/internal/core/domain"
)

// placeMarkerRequest uses pointers so a missing field is distinguishable from 0.
type placeMarkerRequest struct {
	Latitude  *float64 `json:"latitude"`
	Longitude *float64 `json:"longitude"`
}

type attachPhotoRequest struct {
	PhotoRef string `json:"photo_ref"`
}

// uploadResponse is an UploadTask plus whether the call joined a live task.
type uploadResponse struct {
	domain.UploadTask
	Coalesced bool `json:"coalesced,omitempty"`
}

// ObserverHandler returns the observer's position, address and loading state.
func ObserverHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		return c.JSON(deps.Tracker.Snapshot())
	}
}

// StartObserverHandler starts location tracking. It returns once the first
// fix has been processed or tracking failed.
func StartObserverHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if err := deps.Tracker.Start(c.UserContext(), nil); err != nil {
			LoggerFromCtx(c.UserContext()).Warn("observer start failed", "error", err)
			return errDomain(c, err)
		}
		return c.JSON(deps.Tracker.Snapshot())
	}
}

// StopObserverHandler stops location tracking. Stopping twice is a no-op.
func StopObserverHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		deps.Tracker.Stop()
		return c.JSON(deps.Tracker.Snapshot())
	}
}

// ListMarkersHandler returns the session's markers in display order.
func ListMarkersHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		markers, pg := paginate(c, deps.Markers.Markers())
		SetLinkHeaders(c, pg)
		return c.JSON(PaginatedResponse{Data: markers, Pagination: pg})
	}
}

// GetMarkerHandler returns a single marker.
func GetMarkerHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		m, err := deps.Markers.Marker(c.Params("id"))
		if err != nil {
			return errDomain(c, err)
		}
		return c.JSON(m)
	}
}

// PlaceMarkerHandler creates a marker at the given coordinate.
func PlaceMarkerHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var req placeMarkerRequest
		if err := c.BodyParser(&req); err != nil {
			return errBadRequest(c, "invalid request body")
		}
		if req.Latitude == nil || req.Longitude == nil {
			return errBadRequest(c, "latitude and longitude are required")
		}

		m, err := deps.Markers.PlaceMarker(c.UserContext(), domain.Coordinate{
			Latitude:  *req.Latitude,
			Longitude: *req.Longitude,
		})
		if err != nil {
			LoggerFromCtx(c.UserContext()).Error("place marker failed", "error", err)
			return errDomain(c, err)
		}
		return c.Status(fiber.StatusCreated).JSON(m)
	}
}

// ReloadMarkersHandler replaces the session view with the remote collection.
func ReloadMarkersHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if err := deps.Markers.LoadAll(c.UserContext()); err != nil {
			LoggerFromCtx(c.UserContext()).Error("reload markers failed", "error", err)
			return newError(c, fiber.StatusBadGateway, "remote_read_error", err.Error())
		}
		return c.JSON(fiber.Map{"loaded": len(deps.Markers.Markers())})
	}
}

// AttachPhotoHandler queues a photo upload for a marker. A request for a
// photo that is already uploading returns the live task with 200.
func AttachPhotoHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		// The upload outlives the request; Params aliases fasthttp's buffer.
		id := utils.CopyString(c.Params("id"))
		if _, err := deps.Markers.Marker(id); err != nil {
			return errDomain(c, err)
		}

		var req attachPhotoRequest
		if err := c.BodyParser(&req); err != nil {
			return errBadRequest(c, "invalid request body")
		}
		req.PhotoRef = strings.TrimSpace(req.PhotoRef)
		if req.PhotoRef == "" {
			return errBadRequest(c, "photo_ref is required")
		}

		task, started := deps.Uploads.Enqueue(c.UserContext(), id, req.PhotoRef)
		if !started {
			return c.JSON(uploadResponse{UploadTask: task, Coalesced: true})
		}
		return c.Status(fiber.StatusAccepted).JSON(uploadResponse{UploadTask: task})
	}
}

// ListUploadsHandler returns every upload task recorded for a marker.
func ListUploadsHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id := c.Params("id")
		if _, err := deps.Markers.Marker(id); err != nil {
			return errDomain(c, err)
		}
		return c.JSON(fiber.Map{"data": deps.Uploads.Tasks(id)})
	}
}
