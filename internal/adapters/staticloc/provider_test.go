package staticloc_test

import (
	"context"
	"sync"
	"testing"

	"github.com/samirrijal/fieldpins/internal/adapters/staticloc"
	"github.com/samirrijal/fieldpins/internal/core/domain"
	"github.com/samirrijal/fieldpins/internal/core/ports"
)

func TestProvider_WatchAndCancel(t *testing.T) {
	p := staticloc.New(10, 20, 5)

	fix, err := p.CurrentFix(context.Background())
	if err != nil || fix.Latitude != 10 || fix.Longitude != 20 {
		t.Fatalf("unexpected fix %+v (%v)", fix, err)
	}

	var mu sync.Mutex
	var got []domain.Position
	sub, err := p.Watch(context.Background(), ports.WatchOptions{}, func(pos domain.Position) {
		mu.Lock()
		got = append(got, pos)
		mu.Unlock()
	})
	if err != nil {
		t.Fatalf("watch: %v", err)
	}

	p.Set(11, 21, 5)
	sub.Cancel()
	p.Set(12, 22, 5)

	mu.Lock()
	defer mu.Unlock()
	if len(got) != 1 || got[0].Latitude != 11 {
		t.Errorf("expected exactly the update before cancel, got %+v", got)
	}
}
