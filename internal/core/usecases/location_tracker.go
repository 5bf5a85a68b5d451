package usecases

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/samirrijal/fieldpins/internal/core/domain"
	"github.com/samirrijal/fieldpins/internal/core/ports"
	"github.com/samirrijal/fieldpins/internal/pkg/geospatial"
	"github.com/samirrijal/fieldpins/internal/pkg/metrics"
	"github.com/samirrijal/fieldpins/internal/pkg/telemetry"
)

// DefaultFirstFixTimeout bounds how long Start waits for the initial fix.
const DefaultFirstFixTimeout = 15 * time.Second

// LocationTrackerConfig tunes the movement and precision filter.
type LocationTrackerConfig struct {
	DistanceInterval float64       // meters; updates closer than this to the last emitted one are dropped
	MaxAccuracy      float64       // meters; worse fixes are dropped, 0 disables
	FirstFixTimeout  time.Duration // default DefaultFirstFixTimeout
}

// ObserverState is what the rendering client shows for the observer.
type ObserverState struct {
	Position *domain.Position `json:"position"`
	Address  domain.Address   `json:"address"`
	Loading  bool             `json:"loading"`
	Running  bool             `json:"running"`
	Err      string           `json:"error,omitempty"`
}

// LocationTracker turns the provider stream into filtered position updates
// and keeps the observer's current address.
type LocationTracker struct {
	provider  ports.LocationProvider
	geocoder  *GeocodeCache
	publisher ports.EventPublisher
	cfg       LocationTrackerConfig
	log       *slog.Logger

	mu       sync.Mutex
	gen      uint64 // bumped by every Start and Stop
	running  bool
	loading  bool
	lastErr  error
	last     *domain.Position
	address  domain.Address
	sub      ports.Subscription
	cancel   context.CancelFunc
	onUpdate func(domain.Position)
}

// NewLocationTracker creates a stopped tracker. publisher may be nil.
func NewLocationTracker(
	provider ports.LocationProvider,
	geocoder *GeocodeCache,
	publisher ports.EventPublisher,
	cfg LocationTrackerConfig,
) *LocationTracker {
	if cfg.DistanceInterval < 0 {
		cfg.DistanceInterval = 0
	}
	if cfg.FirstFixTimeout <= 0 {
		cfg.FirstFixTimeout = DefaultFirstFixTimeout
	}
	return &LocationTracker{
		provider:  provider,
		geocoder:  geocoder,
		publisher: publisher,
		cfg:       cfg,
		log:       slog.Default().With("component", "location_tracker"),
	}
}

// Start requests permission, emits the initial fix through onUpdate before
// returning and then subscribes to the continuous stream. onUpdate may be
// nil. After a failure or Stop the tracker can be started again.
func (t *LocationTracker) Start(ctx context.Context, onUpdate func(domain.Position)) error {
	ctx, span := telemetry.Tracer().Start(ctx, telemetry.SpanLocationStart)
	defer span.End()

	t.mu.Lock()
	if t.running {
		t.mu.Unlock()
		return domain.ErrTrackerRunning
	}
	t.gen++
	gen := t.gen
	t.running = true
	t.loading = true
	t.lastErr = nil
	t.last = nil
	t.onUpdate = onUpdate
	t.mu.Unlock()

	granted, err := t.provider.RequestPermission(ctx)
	if err != nil {
		return t.fail(gen, fmt.Errorf("%w: %v", domain.ErrPermissionDenied, err))
	}
	if !granted {
		return t.fail(gen, domain.ErrPermissionDenied)
	}

	fixCtx, cancelFix := context.WithTimeout(ctx, t.cfg.FirstFixTimeout)
	first, err := t.provider.CurrentFix(fixCtx)
	cancelFix()
	if err != nil {
		return t.fail(gen, fmt.Errorf("%w: %v", domain.ErrLocationUnavailable, err))
	}

	// The initial fix is always emitted, whatever its accuracy.
	if !t.emit(gen, first, true) {
		return nil
	}

	watchCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	sub, err := t.provider.Watch(watchCtx, ports.WatchOptions{
		DistanceInterval: t.cfg.DistanceInterval,
		Accuracy:         ports.AccuracyBestForNavigation,
	}, func(p domain.Position) { t.emit(gen, p, false) })
	if err != nil {
		cancel()
		return t.fail(gen, fmt.Errorf("%w: watch: %v", domain.ErrLocationUnavailable, err))
	}

	t.mu.Lock()
	if t.gen != gen {
		// Stop, or Stop and another Start, raced with this Start.
		t.mu.Unlock()
		cancel()
		sub.Cancel()
		return nil
	}
	t.sub = sub
	t.cancel = cancel
	t.mu.Unlock()

	t.log.Info("location tracking started",
		"distance_interval", t.cfg.DistanceInterval, "max_accuracy", t.cfg.MaxAccuracy)
	return nil
}

func (t *LocationTracker) fail(gen uint64, err error) error {
	t.mu.Lock()
	if t.gen != gen {
		t.mu.Unlock()
		return err
	}
	t.running = false
	t.loading = false
	t.lastErr = err
	t.onUpdate = nil
	t.mu.Unlock()
	t.log.Warn("location tracking failed", "error", err)
	return err
}

// Stop releases the position subscription. In-flight geocodes still
// complete and update the address.
func (t *LocationTracker) Stop() {
	t.mu.Lock()
	sub, cancel := t.sub, t.cancel
	t.sub, t.cancel = nil, nil
	t.gen++
	t.running = false
	t.loading = false
	t.onUpdate = nil
	t.mu.Unlock()

	if sub != nil {
		sub.Cancel()
	}
	if cancel != nil {
		cancel()
	}
	t.log.Info("location tracking stopped")
}

// emit filters one position from the run started as gen and delivers it if
// it passes. initial skips the filter. It reports whether gen is still current.
func (t *LocationTracker) emit(gen uint64, p domain.Position, initial bool) bool {
	t.mu.Lock()
	if !t.running || t.gen != gen {
		t.mu.Unlock()
		return false
	}
	if !initial && t.filtered(p) {
		t.mu.Unlock()
		metrics.PositionUpdates.WithLabelValues("filtered").Inc()
		return true
	}
	pos := p
	t.last = &pos
	t.loading = false
	onUpdate := t.onUpdate
	t.mu.Unlock()

	metrics.PositionUpdates.WithLabelValues("emitted").Inc()
	if onUpdate != nil {
		onUpdate(p)
	}

	go t.resolve(p)
	return true
}

// filtered reports whether p is too imprecise or too close to the last
// emitted position. Callers hold t.mu.
func (t *LocationTracker) filtered(p domain.Position) bool {
	if t.cfg.MaxAccuracy > 0 && p.Accuracy > t.cfg.MaxAccuracy {
		return true
	}
	return t.last != nil &&
		geospatial.Haversine(t.last.Latitude, t.last.Longitude, p.Latitude, p.Longitude) < t.cfg.DistanceInterval
}

func (t *LocationTracker) resolve(p domain.Position) {
	ctx := context.Background()
	addr := t.geocoder.Resolve(ctx, p.Latitude, p.Longitude)

	t.mu.Lock()
	t.address = addr
	t.mu.Unlock()

	if t.publisher != nil {
		if err := t.publisher.PublishObserverPosition(ctx, p); err != nil {
			t.log.Debug("publish observer position", "error", err)
		}
	}
}

// Snapshot returns the current observer state.
func (t *LocationTracker) Snapshot() ObserverState {
	t.mu.Lock()
	defer t.mu.Unlock()

	s := ObserverState{
		Address: t.address,
		Loading: t.loading,
		Running: t.running,
	}
	if t.last != nil {
		p := *t.last
		s.Position = &p
	}
	if t.lastErr != nil {
		s.Err = t.lastErr.Error()
	}
	return s
}
