package usecases_test

import (
	"context"
	"errors"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/samirrijal/fieldpins/internal/core/domain"
	"github.com/samirrijal/fieldpins/internal/core/ports"
	"github.com/samirrijal/fieldpins/internal/core/usecases"
)

func newSyncEngine(docs ports.DocumentStore, geo *mockGeocoder, pub ports.EventPublisher) (*usecases.MarkerSyncEngine, *usecases.MarkerStore) {
	store := usecases.NewMarkerStore()
	cache := usecases.NewGeocodeCache(geo, nil, usecases.GeocodeCacheConfig{})
	return usecases.NewMarkerSyncEngine(docs, cache, store, pub, "markers"), store
}

func TestMarkerSync_PlaceMarker_Scenario(t *testing.T) {
	docs := newMemDocs()
	pub := &mockPublisher{}
	engine, store := newSyncEngine(docs, &mockGeocoder{}, pub)

	m, err := engine.PlaceMarker(context.Background(), domain.Coordinate{Latitude: 10.0, Longitude: 20.0})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if m.Address != "Main, X, Y, Z" {
		t.Errorf("expected address 'Main, X, Y, Z', got %q", m.Address)
	}
	if m.PhotoRefs == nil || len(m.PhotoRefs) != 0 || m.ImageURLs == nil || len(m.ImageURLs) != 0 {
		t.Errorf("expected empty non-nil arrays, got %v / %v", m.PhotoRefs, m.ImageURLs)
	}

	doc, ok := docs.Doc(m.ID)
	if !ok {
		t.Fatal("expected remote document")
	}
	if doc.Address != m.Address || doc.Coordinate != m.Coordinate {
		t.Errorf("remote %+v does not match local %+v", doc, m)
	}
	if got, _ := store.Get(m.ID); got.ID != m.ID {
		t.Error("expected marker in store under the reserved id")
	}
	if len(pub.placed) != 1 {
		t.Errorf("expected 1 placed event, got %d", len(pub.placed))
	}
}

func TestMarkerSync_PlaceMarker_ExactRoundTrip(t *testing.T) {
	docs := newMemDocs()
	engine, _ := newSyncEngine(docs, &mockGeocoder{}, nil)

	c := domain.Coordinate{Latitude: 37.7749, Longitude: -122.4194}
	m, err := engine.PlaceMarker(context.Background(), c)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	doc, _ := docs.Doc(m.ID)
	if doc.Coordinate.Latitude != 37.7749 || doc.Coordinate.Longitude != -122.4194 {
		t.Errorf("coordinate changed: %+v", doc.Coordinate)
	}
}

func TestMarkerSync_PlaceMarker_WriteFailureRollsBack(t *testing.T) {
	docs := newMemDocs()
	docs.writeFn = func(ctx context.Context, ref ports.DocumentRef, doc domain.MarkerDocument) error {
		return errors.New("permission denied by rules")
	}
	engine, store := newSyncEngine(docs, &mockGeocoder{}, nil)

	_, err := engine.PlaceMarker(context.Background(), domain.Coordinate{Latitude: 1, Longitude: 2})
	if !errors.Is(err, domain.ErrRemoteWrite) {
		t.Fatalf("expected ErrRemoteWrite, got %v", err)
	}
	var rw *domain.RemoteWriteError
	if !errors.As(err, &rw) {
		t.Errorf("expected *RemoteWriteError, got %T", err)
	}
	if store.Len() != 0 {
		t.Errorf("expected no dangling marker, got %d", store.Len())
	}
}

func TestMarkerSync_PlaceMarker_ReserveFailure(t *testing.T) {
	docs := newMemDocs()
	docs.reserveFn = func(ctx context.Context, collection string) (ports.DocumentRef, error) {
		return ports.DocumentRef{}, errors.New("offline")
	}
	engine, store := newSyncEngine(docs, &mockGeocoder{}, nil)

	if _, err := engine.PlaceMarker(context.Background(), domain.Coordinate{}); !errors.Is(err, domain.ErrRemoteWrite) {
		t.Fatalf("expected ErrRemoteWrite, got %v", err)
	}
	if store.Len() != 0 {
		t.Error("expected empty store")
	}
}

func TestMarkerSync_PlaceMarker_InvalidCoordinate(t *testing.T) {
	engine, _ := newSyncEngine(newMemDocs(), &mockGeocoder{}, nil)
	_, err := engine.PlaceMarker(context.Background(), domain.Coordinate{Latitude: 91, Longitude: 0})
	if !errors.Is(err, domain.ErrInvalidCoordinate) {
		t.Errorf("expected ErrInvalidCoordinate, got %v", err)
	}
}

func TestMarkerSync_PlaceMarker_NonFiniteCoordinate(t *testing.T) {
	docs := newMemDocs()
	engine, store := newSyncEngine(docs, &mockGeocoder{}, nil)
	_, err := engine.PlaceMarker(context.Background(), domain.Coordinate{Latitude: math.NaN(), Longitude: 20})
	if !errors.Is(err, domain.ErrInvalidCoordinate) {
		t.Errorf("expected ErrInvalidCoordinate, got %v", err)
	}
	if errors.Is(err, domain.ErrRemoteWrite) {
		t.Error("a non-finite coordinate must be rejected before any remote write")
	}
	if store.Len() != 0 {
		t.Errorf("expected empty store, got %d markers", store.Len())
	}
}

func TestMarkerSync_PlaceMarker_GeocodeOutage(t *testing.T) {
	geo := &mockGeocoder{fn: func(ctx context.Context, lat, lon float64) (domain.Address, error) {
		return domain.Address{}, errors.New("rate limited")
	}}
	engine, _ := newSyncEngine(newMemDocs(), geo, nil)

	m, err := engine.PlaceMarker(context.Background(), domain.Coordinate{Latitude: 5, Longitude: 5})
	if err != nil {
		t.Fatalf("geocode outage must not fail placement: %v", err)
	}
	if m.Address != domain.UnknownAddress.String() {
		t.Errorf("expected unknown address, got %q", m.Address)
	}
}

func TestMarkerSync_PlaceMarker_CompletionOrder(t *testing.T) {
	docs := newMemDocs()
	slow := make(chan struct{})
	docs.writeFn = func(ctx context.Context, ref ports.DocumentRef, doc domain.MarkerDocument) error {
		if doc.Coordinate.Latitude == 1 {
			<-slow
		}
		return nil
	}
	engine, store := newSyncEngine(docs, &mockGeocoder{}, nil)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		_, _ = engine.PlaceMarker(context.Background(), domain.Coordinate{Latitude: 1, Longitude: 1})
	}()

	eventually(t, func() bool { return docs.Reserved() == 1 }, "first reservation")
	if _, err := engine.PlaceMarker(context.Background(), domain.Coordinate{Latitude: 2, Longitude: 2}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	close(slow)
	wg.Wait()

	list := store.List()
	if len(list) != 2 {
		t.Fatalf("expected 2 markers, got %d", len(list))
	}
	if list[0].Coordinate.Latitude != 2 || list[1].Coordinate.Latitude != 1 {
		t.Errorf("expected remote completion order [2 1], got [%v %v]",
			list[0].Coordinate.Latitude, list[1].Coordinate.Latitude)
	}
}

func TestMarkerSync_LoadAll_Empty(t *testing.T) {
	engine, store := newSyncEngine(newMemDocs(), &mockGeocoder{}, nil)
	store.Upsert(domain.Marker{ID: "stale"})

	if err := engine.LoadAll(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(store.List()) != 0 {
		t.Errorf("expected empty store, got %d markers", store.Len())
	}
}

func TestMarkerSync_LoadAll_OrdersByCreation(t *testing.T) {
	base := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	docs := newMemDocs()
	docs.listFn = func(ctx context.Context, collection string) ([]ports.DocumentSnapshot, error) {
		return []ports.DocumentSnapshot{
			{ID: "c", Data: domain.MarkerDocument{CreatedAt: base.Add(2 * time.Minute)}},
			{ID: "b", Data: domain.MarkerDocument{CreatedAt: base}},
			{ID: "a", Data: domain.MarkerDocument{CreatedAt: base}},
		}, nil
	}
	engine, store := newSyncEngine(docs, &mockGeocoder{}, nil)

	if err := engine.LoadAll(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	list := store.List()
	got := []string{list[0].ID, list[1].ID, list[2].ID}
	want := []string{"a", "b", "c"}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("expected order %v, got %v", want, got)
		}
	}
}

func TestMarkerSync_LoadAll_Error(t *testing.T) {
	docs := newMemDocs()
	docs.listFn = func(ctx context.Context, collection string) ([]ports.DocumentSnapshot, error) {
		return nil, errors.New("unavailable")
	}
	engine, store := newSyncEngine(docs, &mockGeocoder{}, nil)
	store.Upsert(domain.Marker{ID: "kept"})

	if err := engine.LoadAll(context.Background()); err == nil {
		t.Fatal("expected error")
	}
	if store.Len() != 1 {
		t.Error("failed load must leave the store untouched")
	}
}

func TestMarkerSync_Marker_NotFound(t *testing.T) {
	engine, _ := newSyncEngine(newMemDocs(), &mockGeocoder{}, nil)
	if _, err := engine.Marker("nope"); !errors.Is(err, domain.ErrMarkerNotFound) {
		t.Errorf("expected ErrMarkerNotFound, got %v", err)
	}
}
