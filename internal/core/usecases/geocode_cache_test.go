package usecases_test

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/samirrijal/fieldpins/internal/core/domain"
	"github.com/samirrijal/fieldpins/internal/core/usecases"
)

func TestGeocodeCache_JitterReusesEntry(t *testing.T) {
	geo := &mockGeocoder{}
	cache := usecases.NewGeocodeCache(geo, nil, usecases.GeocodeCacheConfig{})

	a := cache.Resolve(context.Background(), 37.77491, -122.41941)
	b := cache.Resolve(context.Background(), 37.77489, -122.41939)

	if geo.Calls() != 1 {
		t.Fatalf("expected 1 provider call, got %d", geo.Calls())
	}
	if a != b {
		t.Errorf("expected same address, got %+v and %+v", a, b)
	}
}

func TestGeocodeCache_Key(t *testing.T) {
	cache := usecases.NewGeocodeCache(&mockGeocoder{}, nil, usecases.GeocodeCacheConfig{Precision: 3})
	if got := cache.Key(43.26301, -2.93529); got != "geocode:43.263:-2.935" {
		t.Errorf("unexpected key %q", got)
	}
}

func TestGeocodeCache_FailureNotCached(t *testing.T) {
	fail := true
	geo := &mockGeocoder{fn: func(ctx context.Context, lat, lon float64) (domain.Address, error) {
		if fail {
			return domain.Address{}, errors.New("provider down")
		}
		return domain.Address{Street: "Main", City: "X", Region: "Y", Country: "Z"}, nil
	}}
	cache := usecases.NewGeocodeCache(geo, nil, usecases.GeocodeCacheConfig{})

	addr := cache.Resolve(context.Background(), 10, 20)
	if !addr.Unknown {
		t.Fatalf("expected unknown address, got %+v", addr)
	}
	if cache.Len() != 0 {
		t.Errorf("expected failure not to be cached, got %d entries", cache.Len())
	}

	fail = false
	addr = cache.Resolve(context.Background(), 10, 20)
	if addr.String() != "Main, X, Y, Z" {
		t.Errorf("expected resolved address after recovery, got %q", addr.String())
	}
	if geo.Calls() != 2 {
		t.Errorf("expected 2 provider calls, got %d", geo.Calls())
	}
}

func TestGeocodeCache_PersistentTier(t *testing.T) {
	store := newMockAddressCache()
	geo := &mockGeocoder{}

	first := usecases.NewGeocodeCache(geo, store, usecases.GeocodeCacheConfig{TTLSeconds: 3600})
	first.Resolve(context.Background(), 10, 20)

	key := first.Key(10, 20)
	if store.ttl[key] != 3600 {
		t.Errorf("expected ttl 3600, got %d", store.ttl[key])
	}
	var saved domain.Address
	if err := json.Unmarshal(store.data[key], &saved); err != nil {
		t.Fatalf("persisted value is not JSON: %v", err)
	}

	// A fresh cache (new session) answers from the persistent tier.
	second := usecases.NewGeocodeCache(geo, store, usecases.GeocodeCacheConfig{})
	addr := second.Resolve(context.Background(), 10, 20)
	if addr != saved {
		t.Errorf("expected %+v, got %+v", saved, addr)
	}
	if geo.Calls() != 1 {
		t.Errorf("expected provider called once overall, got %d", geo.Calls())
	}
}

func TestGeocodeCache_SharesInFlightLookup(t *testing.T) {
	release := make(chan struct{})
	geo := &mockGeocoder{fn: func(ctx context.Context, lat, lon float64) (domain.Address, error) {
		<-release
		return domain.Address{City: "Bilbao"}, nil
	}}
	cache := usecases.NewGeocodeCache(geo, nil, usecases.GeocodeCacheConfig{})

	var wg sync.WaitGroup
	results := make([]domain.Address, 5)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i] = cache.Resolve(context.Background(), 43.263, -2.935)
		}(i)
	}

	eventually(t, func() bool { return geo.Calls() == 1 }, "provider called")
	time.Sleep(20 * time.Millisecond)
	close(release)
	wg.Wait()

	if geo.Calls() != 1 {
		t.Errorf("expected 1 provider call, got %d", geo.Calls())
	}
	for i, r := range results {
		if r.City != "Bilbao" {
			t.Errorf("result %d: expected Bilbao, got %+v", i, r)
		}
	}
}

func TestGeocodeCache_CancelledCallerDoesNotPoisonSharedLookup(t *testing.T) {
	entered := make(chan struct{})
	release := make(chan struct{})
	var once sync.Once
	geo := &mockGeocoder{fn: func(ctx context.Context, lat, lon float64) (domain.Address, error) {
		once.Do(func() { close(entered) })
		<-release
		if err := ctx.Err(); err != nil {
			return domain.Address{}, err
		}
		return domain.Address{Street: "Main", City: "X", Region: "Y", Country: "Z"}, nil
	}}
	cache := usecases.NewGeocodeCache(geo, nil, usecases.GeocodeCacheConfig{})

	reqCtx, cancel := context.WithCancel(context.Background())
	leader := make(chan domain.Address, 1)
	go func() { leader <- cache.Resolve(reqCtx, 10, 20) }()
	<-entered

	follower := make(chan domain.Address, 1)
	go func() { follower <- cache.Resolve(context.Background(), 10, 20) }()
	time.Sleep(20 * time.Millisecond)

	cancel()
	close(release)

	for name, ch := range map[string]chan domain.Address{"leader": leader, "follower": follower} {
		if got := <-ch; got.Unknown || got.Street != "Main" {
			t.Errorf("%s: expected resolved address, got %+v", name, got)
		}
	}
}
