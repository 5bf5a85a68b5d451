package nominatim

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/muesli/gominatim"
	"golang.org/x/time/rate"

	"github.com/samirrijal/fieldpins/internal/core/domain"
)

// DefaultServer is the public OpenStreetMap Nominatim instance.
const DefaultServer = "https://nominatim.openstreetmap.org/"

// Zoom 18 asks Nominatim for building-level detail; lower zooms collapse the
// result toward the country.
const Zoom = 18

// ReverseFunc resolves a coordinate to a Nominatim reverse result.
type ReverseFunc func(lat, lon string) (*gominatim.ReverseResult, error)

// Geocoder implements ports.GeocodeProvider with Nominatim reverse lookups,
// throttled to the server's usage policy.
type Geocoder struct {
	reverse ReverseFunc
	limiter *rate.Limiter
}

// New creates a Geocoder against server. minInterval spaces requests; the
// public instance allows one per second. gominatim keeps the server
// process-wide, so the last New wins.
func New(server string, minInterval time.Duration) *Geocoder {
	if server == "" {
		server = DefaultServer
	}
	gominatim.SetServer(server)
	return NewWithReverse(reverseLookup, minInterval)
}

// NewWithReverse creates a Geocoder around a custom lookup.
func NewWithReverse(reverse ReverseFunc, minInterval time.Duration) *Geocoder {
	limit := rate.Inf
	if minInterval > 0 {
		limit = rate.Every(minInterval)
	}
	return &Geocoder{reverse: reverse, limiter: rate.NewLimiter(limit, 1)}
}

func reverseLookup(lat, lon string) (*gominatim.ReverseResult, error) {
	q := gominatim.ReverseQuery{Lat: lat, Lon: lon, Zoom: Zoom, AddressDetails: true}
	return q.Get()
}

// ReverseGeocode returns the address at lat/lon. Empty results are reported
// as domain.ErrGeocodeUnavailable.
func (g *Geocoder) ReverseGeocode(ctx context.Context, lat, lon float64) (domain.Address, error) {
	if err := g.limiter.Wait(ctx); err != nil {
		return domain.Address{}, fmt.Errorf("%w: %v", domain.ErrGeocodeUnavailable, err)
	}

	type result struct {
		res *gominatim.ReverseResult
		err error
	}
	ch := make(chan result, 1)
	go func() {
		res, err := g.reverse(
			strconv.FormatFloat(lat, 'f', -1, 64),
			strconv.FormatFloat(lon, 'f', -1, 64),
		)
		ch <- result{res, err}
	}()

	select {
	case <-ctx.Done():
		return domain.Address{}, fmt.Errorf("%w: %v", domain.ErrGeocodeUnavailable, ctx.Err())
	case r := <-ch:
		if r.err != nil {
			return domain.Address{}, fmt.Errorf("%w: %v", domain.ErrGeocodeUnavailable, r.err)
		}
		if r.res == nil {
			return domain.Address{}, fmt.Errorf("%w: no result", domain.ErrGeocodeUnavailable)
		}
		if addr := FromDetails(r.res.Address); addr != (domain.Address{}) {
			return addr, nil
		}
		if strings.TrimSpace(r.res.DisplayName) == "" {
			return domain.Address{}, fmt.Errorf("%w: no result", domain.ErrGeocodeUnavailable)
		}
		return ParseDisplayName(r.res.DisplayName), nil
	}
}

// FromDetails maps Nominatim's structured address. The city falls back
// through town, village and suburb, the region through state district.
func FromDetails(a gominatim.Address) domain.Address {
	street := strings.TrimSpace(a.Road + " " + a.House)
	return domain.Address{
		Street:  street,
		City:    firstNonEmpty(a.City, a.Town, a.Village, a.Suburb),
		Region:  firstNonEmpty(a.State, a.County),
		Country: a.Country,
	}
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}

// ParseDisplayName is the fallback for results without address details. It
// splits a Nominatim display name, which runs from the most
// specific component to the country, into an Address. Postcodes are dropped
// and a leading house number is folded into the street.
func ParseDisplayName(name string) domain.Address {
	var parts []string
	for _, p := range strings.Split(name, ",") {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		parts = append(parts, p)
	}

	var addr domain.Address
	if len(parts) == 0 {
		return addr
	}

	// A trailing postcode-like token never names a place.
	filtered := parts[:0:0]
	for i, p := range parts {
		if i > 0 && isPostcode(p) {
			continue
		}
		filtered = append(filtered, p)
	}
	parts = filtered

	if len(parts) >= 2 && isNumber(parts[0]) {
		addr.Street = parts[1] + " " + parts[0]
		parts = parts[2:]
	} else if len(parts) >= 2 {
		addr.Street = parts[0]
		parts = parts[1:]
	}

	switch n := len(parts); {
	case n >= 3:
		addr.City = parts[0]
		addr.Region = parts[n-2]
		addr.Country = parts[n-1]
	case n == 2:
		addr.City = parts[0]
		addr.Country = parts[1]
	case n == 1:
		addr.Country = parts[0]
	}
	return addr
}

func isNumber(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if (r < '0' || r > '9') && r != '-' && r != '/' {
			return false
		}
	}
	return true
}

func isPostcode(s string) bool {
	digits := 0
	for _, r := range s {
		if r >= '0' && r <= '9' {
			digits++
		}
	}
	return digits >= 3 && digits*2 >= len(strings.ReplaceAll(s, " ", ""))
}
