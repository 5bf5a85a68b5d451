package http

import (
	"context"

	"github.com/nats-io/nats.go"

	"github.com/samirrijal/fieldpins/internal/core/usecases"
)

// Checker reports whether one backing service is reachable.
type Checker func(ctx context.Context) error

// Dependencies holds all services needed by HTTP handlers.
type Dependencies struct {
	Markers *usecases.MarkerSyncEngine
	Uploads *usecases.PhotoUploadPipeline
	Tracker *usecases.LocationTracker
	NATS    *nats.Conn

	// Checks feed /v1/ready, keyed by service name ("store", "nats", "cache").
	// A nil Checker means the service is not configured.
	Checks map[string]Checker
}
