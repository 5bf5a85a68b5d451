package ports

import (
	"context"

	"github.com/samirrijal/fieldpins/internal/core/domain"
)

// AccuracyMode selects how hard the location provider should try.
type AccuracyMode int

const (
	AccuracyBalanced AccuracyMode = iota
	AccuracyHigh
	AccuracyBestForNavigation
)

// WatchOptions configures a continuous position subscription.
type WatchOptions struct {
	DistanceInterval float64 // meters between updates
	Accuracy         AccuracyMode
}

// Subscription is a live position stream; Cancel releases it.
type Subscription interface {
	Cancel()
}

// LocationProvider is the device position sensor.
type LocationProvider interface {
	RequestPermission(ctx context.Context) (bool, error)
	CurrentFix(ctx context.Context) (domain.Position, error)
	Watch(ctx context.Context, opts WatchOptions, fn func(domain.Position)) (Subscription, error)
}

// GeocodeProvider turns coordinates into an address.
type GeocodeProvider interface {
	ReverseGeocode(ctx context.Context, lat, lon float64) (domain.Address, error)
}

// AddressCache is a persistent key/value tier behind the in-memory geocode cache.
// A ttlSeconds of zero means no expiry.
type AddressCache interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttlSeconds int) error
}

// EventPublisher broadcasts marker and observer events to other observers.
type EventPublisher interface {
	PublishMarkerPlaced(ctx context.Context, m domain.Marker) error
	PublishPhotoAttached(ctx context.Context, task domain.UploadTask) error
	PublishObserverPosition(ctx context.Context, p domain.Position) error
}
