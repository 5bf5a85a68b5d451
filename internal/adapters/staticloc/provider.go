package staticloc

import (
	"context"
	"sync"
	"time"

	"github.com/samirrijal/fieldpins/internal/core/domain"
	"github.com/samirrijal/fieldpins/internal/core/ports"
)

// Provider implements ports.LocationProvider with a fixed, always-granted
// position. Set moves it and notifies active watchers; useful on hosts
// without GeoClue and in tests.
type Provider struct {
	mu       sync.Mutex
	pos      domain.Position
	watchers map[int]func(domain.Position)
	next     int
}

// New creates a provider reporting lat/lon with the given accuracy in meters.
func New(lat, lon, accuracy float64) *Provider {
	return &Provider{
		pos:      domain.Position{Latitude: lat, Longitude: lon, Accuracy: accuracy},
		watchers: make(map[int]func(domain.Position)),
	}
}

func (p *Provider) RequestPermission(ctx context.Context) (bool, error) { return true, nil }

func (p *Provider) CurrentFix(ctx context.Context) (domain.Position, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	pos := p.pos
	pos.Timestamp = time.Now().UTC()
	return pos, nil
}

type subscription struct {
	once sync.Once
	stop func()
}

func (s *subscription) Cancel() { s.once.Do(s.stop) }

func (p *Provider) Watch(ctx context.Context, opts ports.WatchOptions, fn func(domain.Position)) (ports.Subscription, error) {
	p.mu.Lock()
	id := p.next
	p.next++
	p.watchers[id] = fn
	p.mu.Unlock()

	remove := func() {
		p.mu.Lock()
		delete(p.watchers, id)
		p.mu.Unlock()
	}
	done := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
			remove()
		case <-done:
		}
	}()
	return &subscription{stop: func() {
		remove()
		close(done)
	}}, nil
}

// Set moves the reported position and delivers it to every watcher.
func (p *Provider) Set(lat, lon, accuracy float64) {
	p.mu.Lock()
	p.pos = domain.Position{Latitude: lat, Longitude: lon, Accuracy: accuracy}
	pos := p.pos
	pos.Timestamp = time.Now().UTC()
	fns := make([]func(domain.Position), 0, len(p.watchers))
	for _, fn := range p.watchers {
		fns = append(fns, fn)
	}
	p.mu.Unlock()

	for _, fn := range fns {
		fn(pos)
	}
}
