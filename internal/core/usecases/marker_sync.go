package usecases

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/samirrijal/fieldpins/internal/core/domain"
	"github.com/samirrijal/fieldpins/internal/core/ports"
	"github.com/samirrijal/fieldpins/internal/pkg/metrics"
	"github.com/samirrijal/fieldpins/internal/pkg/telemetry"
)

// DefaultCollection is the remote collection holding marker documents.
const DefaultCollection = "markers"

// MarkerSyncEngine creates markers remotely and keeps MarkerStore in step
// with the remote collection.
type MarkerSyncEngine struct {
	docs       ports.DocumentStore
	geocoder   *GeocodeCache
	store      *MarkerStore
	publisher  ports.EventPublisher
	collection string
	now        func() time.Time
	log        *slog.Logger
}

// NewMarkerSyncEngine creates a MarkerSyncEngine. publisher may be nil.
func NewMarkerSyncEngine(
	docs ports.DocumentStore,
	geocoder *GeocodeCache,
	store *MarkerStore,
	publisher ports.EventPublisher,
	collection string,
) *MarkerSyncEngine {
	if collection == "" {
		collection = DefaultCollection
	}
	return &MarkerSyncEngine{
		docs:       docs,
		geocoder:   geocoder,
		store:      store,
		publisher:  publisher,
		collection: collection,
		now:        time.Now,
		log:        slog.Default().With("component", "marker_sync"),
	}
}

// Collection returns the remote collection name.
func (e *MarkerSyncEngine) Collection() string { return e.collection }

// PlaceMarker geocodes c, writes a new marker document under a reserved id
// and, only once the write succeeded, appends the marker to the store.
func (e *MarkerSyncEngine) PlaceMarker(ctx context.Context, c domain.Coordinate) (domain.Marker, error) {
	ctx, span := telemetry.Tracer().Start(ctx, telemetry.SpanPlaceMarker)
	defer span.End()

	if err := c.Validate(); err != nil {
		metrics.MarkersPlaced.WithLabelValues("invalid").Inc()
		return domain.Marker{}, fmt.Errorf("%w: %v", domain.ErrInvalidCoordinate, err)
	}

	addr := e.geocoder.Resolve(ctx, c.Latitude, c.Longitude)

	ref, err := e.docs.ReserveID(ctx, e.collection)
	if err != nil {
		metrics.MarkersPlaced.WithLabelValues("remote_error").Inc()
		span.RecordError(err)
		return domain.Marker{}, &domain.RemoteWriteError{Op: "reserve id", Cause: err}
	}
	span.SetAttributes(attribute.String(telemetry.AttrMarkerID, ref.ID))

	m := domain.Marker{
		ID:         ref.ID,
		Coordinate: c,
		Address:    addr.String(),
		PhotoRefs:  []string{},
		ImageURLs:  []string{},
		CreatedAt:  e.now().UTC(),
	}

	if err := e.docs.Write(ctx, ref, m.Document()); err != nil {
		metrics.MarkersPlaced.WithLabelValues("remote_error").Inc()
		span.RecordError(err)
		e.log.Error("marker write failed", "marker_id", ref.ID, "error", err)
		return domain.Marker{}, &domain.RemoteWriteError{Op: "write marker", Cause: err}
	}

	e.store.Upsert(m)
	metrics.MarkersPlaced.WithLabelValues("ok").Inc()
	e.log.Info("marker placed", "marker_id", m.ID, "address", m.Address)

	if e.publisher != nil {
		if err := e.publisher.PublishMarkerPlaced(ctx, m); err != nil {
			e.log.Warn("publish marker placed", "marker_id", m.ID, "error", err)
		}
	}
	return m.Clone(), nil
}

// LoadAll replaces the store with the full remote collection, ordered by
// creation time and then id.
func (e *MarkerSyncEngine) LoadAll(ctx context.Context) error {
	ctx, span := telemetry.Tracer().Start(ctx, telemetry.SpanLoadMarkers)
	defer span.End()

	snaps, err := e.docs.ListAll(ctx, e.collection)
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("list %s: %w", e.collection, err)
	}

	markers := make([]domain.Marker, 0, len(snaps))
	for _, s := range snaps {
		markers = append(markers, s.Data.Marker(s.ID))
	}
	sort.SliceStable(markers, func(i, j int) bool {
		if !markers[i].CreatedAt.Equal(markers[j].CreatedAt) {
			return markers[i].CreatedAt.Before(markers[j].CreatedAt)
		}
		return markers[i].ID < markers[j].ID
	})

	e.store.Replace(markers)
	metrics.MarkersLoaded.Set(float64(len(markers)))
	span.SetAttributes(attribute.Int(telemetry.AttrCount, len(markers)))
	e.log.Info("markers loaded", "count", len(markers))
	return nil
}

// Markers returns the current session view.
func (e *MarkerSyncEngine) Markers() []domain.Marker { return e.store.List() }

// Marker returns one marker or domain.ErrMarkerNotFound.
func (e *MarkerSyncEngine) Marker(id string) (domain.Marker, error) {
	m, ok := e.store.Get(id)
	if !ok {
		return domain.Marker{}, fmt.Errorf("%w: %s", domain.ErrMarkerNotFound, id)
	}
	return m, nil
}
