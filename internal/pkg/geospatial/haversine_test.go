package geospatial_test

import (
	"math"
	"testing"

	"github.com/samirrijal/fieldpins/internal/pkg/geospatial"
)

func TestHaversine_SamePoint(t *testing.T) {
	if d := geospatial.Haversine(37.7749, -122.4194, 37.7749, -122.4194); d != 0 {
		t.Errorf("expected 0, got %v", d)
	}
}

func TestHaversine_KnownDistance(t *testing.T) {
	// San Francisco -> Los Angeles is roughly 559 km.
	d := geospatial.Haversine(37.7749, -122.4194, 34.0522, -118.2437)
	if math.Abs(d-559_000) > 5_000 {
		t.Errorf("expected ~559km, got %.0fm", d)
	}
}

func TestHaversine_OneMeter(t *testing.T) {
	// 1e-5 degrees of latitude is about 1.1 m.
	d := geospatial.Haversine(10, 20, 10.00001, 20)
	if d < 1 || d > 1.2 {
		t.Errorf("expected ~1.1m, got %v", d)
	}
}

func TestQuantizedKey(t *testing.T) {
	tests := []struct {
		name     string
		lat, lon float64
		places   int
		want     string
	}{
		{"exact", 10, 20, 4, "10.0000:20.0000"},
		{"jitter rounds down", 37.77491, -122.41941, 4, "37.7749:-122.4194"},
		{"jitter rounds up", 37.77489, -122.41939, 4, "37.7749:-122.4194"},
		{"negative zero", -0.00001, 0.00001, 4, "0.0000:0.0000"},
		{"coarse", 43.2630, -2.9361, 2, "43.26:-2.94"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := geospatial.QuantizedKey(tt.lat, tt.lon, tt.places); got != tt.want {
				t.Errorf("QuantizedKey(%v, %v, %d) = %q, want %q", tt.lat, tt.lon, tt.places, got, tt.want)
			}
		})
	}
}
