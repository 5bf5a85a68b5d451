package usecases

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"

	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/singleflight"

	"github.com/samirrijal/fieldpins/internal/core/domain"
	"github.com/samirrijal/fieldpins/internal/core/ports"
	"github.com/samirrijal/fieldpins/internal/pkg/geospatial"
	"github.com/samirrijal/fieldpins/internal/pkg/metrics"
	"github.com/samirrijal/fieldpins/internal/pkg/telemetry"
)

// DefaultGeocodePrecision is roughly 11 m at the equator.
const DefaultGeocodePrecision = 4

// GeocodeCacheConfig tunes GeocodeCache.
type GeocodeCacheConfig struct {
	Precision  int // decimal places kept in the cache key
	TTLSeconds int // persistent tier expiry, 0 = never
}

// GeocodeCache memoizes reverse geocoding by quantized coordinate.
type GeocodeCache struct {
	provider ports.GeocodeProvider
	store    ports.AddressCache
	cfg      GeocodeCacheConfig
	log      *slog.Logger

	mu      sync.RWMutex
	entries map[string]domain.Address
	group   singleflight.Group
}

// NewGeocodeCache creates a GeocodeCache. store may be nil.
func NewGeocodeCache(provider ports.GeocodeProvider, store ports.AddressCache, cfg GeocodeCacheConfig) *GeocodeCache {
	if cfg.Precision <= 0 {
		cfg.Precision = DefaultGeocodePrecision
	}
	return &GeocodeCache{
		provider: provider,
		store:    store,
		cfg:      cfg,
		log:      slog.Default().With("component", "geocode_cache"),
		entries:  make(map[string]domain.Address),
	}
}

// Key returns the cache key used for a coordinate.
func (g *GeocodeCache) Key(lat, lon float64) string {
	return "geocode:" + geospatial.QuantizedKey(lat, lon, g.cfg.Precision)
}

// Resolve returns the address for a coordinate. It never fails: an
// unavailable provider yields domain.UnknownAddress, which is not cached.
func (g *GeocodeCache) Resolve(ctx context.Context, lat, lon float64) domain.Address {
	key := g.Key(lat, lon)

	g.mu.RLock()
	addr, ok := g.entries[key]
	g.mu.RUnlock()
	if ok {
		metrics.GeocodeHits.WithLabelValues("memory").Inc()
		return addr
	}

	// Followers share the leader's lookup, so it must not die with the
	// leader's request.
	v, _, shared := g.group.Do(key, func() (interface{}, error) {
		return g.lookup(context.WithoutCancel(ctx), key, lat, lon), nil
	})
	if shared {
		metrics.GeocodeHits.WithLabelValues("shared").Inc()
	}
	return v.(domain.Address)
}

func (g *GeocodeCache) lookup(ctx context.Context, key string, lat, lon float64) domain.Address {
	ctx, span := telemetry.Tracer().Start(ctx, telemetry.SpanGeocode)
	span.SetAttributes(attribute.String(telemetry.AttrCacheKey, key))
	defer span.End()

	if g.store != nil {
		if data, err := g.store.Get(ctx, key); err == nil && len(data) > 0 {
			var addr domain.Address
			if err := json.Unmarshal(data, &addr); err == nil && !addr.Unknown {
				metrics.GeocodeHits.WithLabelValues("persistent").Inc()
				g.remember(key, addr)
				return addr
			}
		}
	}

	metrics.GeocodeMisses.Inc()
	addr, err := g.provider.ReverseGeocode(ctx, lat, lon)
	if err != nil {
		metrics.GeocodeErrors.Inc()
		span.RecordError(err)
		g.log.Warn("reverse geocode failed", "key", key, "error", err)
		return domain.UnknownAddress
	}

	g.remember(key, addr)
	if g.store != nil {
		if data, err := json.Marshal(addr); err == nil {
			if err := g.store.Set(ctx, key, data, g.cfg.TTLSeconds); err != nil {
				g.log.Debug("persist geocode", "key", key, "error", err)
			}
		}
	}
	return addr
}

func (g *GeocodeCache) remember(key string, addr domain.Address) {
	g.mu.Lock()
	g.entries[key] = addr
	g.mu.Unlock()
}

// Len reports how many addresses are held in memory.
func (g *GeocodeCache) Len() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.entries)
}
