package geoclue

import (
	"time"

	"github.com/godbus/dbus/v5"

	"github.com/samirrijal/fieldpins/internal/core/domain"
	"github.com/samirrijal/fieldpins/internal/core/ports"
)

// GeoClue accuracy levels (GClueAccuracyLevel).
const (
	levelCity   uint32 = 4
	levelStreet uint32 = 6
	levelExact  uint32 = 8
)

func accuracyLevel(m ports.AccuracyMode) uint32 {
	switch m {
	case ports.AccuracyBestForNavigation, ports.AccuracyHigh:
		return levelExact
	case ports.AccuracyBalanced:
		return levelStreet
	default:
		return levelCity
	}
}

// positionFromProps decodes a Location object's properties. A 0,0 fix is
// treated as invalid.
func positionFromProps(props map[string]dbus.Variant, now time.Time) (domain.Position, bool) {
	f64 := func(key string) float64 {
		if v, ok := props[key]; ok {
			if f, ok := v.Value().(float64); ok {
				return f
			}
		}
		return 0
	}

	pos := domain.Position{
		Latitude:  f64("Latitude"),
		Longitude: f64("Longitude"),
		Accuracy:  f64("Accuracy"),
		Timestamp: now.UTC(),
	}
	if pos.Latitude == 0 && pos.Longitude == 0 {
		return domain.Position{}, false
	}

	// Timestamp is (seconds, microseconds) since the epoch.
	if v, ok := props["Timestamp"]; ok {
		if tt, ok := v.Value().([]interface{}); ok && len(tt) == 2 {
			sec, ok1 := tt[0].(uint64)
			usec, ok2 := tt[1].(uint64)
			if ok1 && ok2 && sec > 0 {
				pos.Timestamp = time.Unix(int64(sec), int64(usec)*1000).UTC()
			}
		}
	}
	return pos, true
}

// locationFromSignal extracts the new Location path from a
// PropertiesChanged signal on the client.
func locationFromSignal(sig *dbus.Signal, client dbus.ObjectPath) (dbus.ObjectPath, bool) {
	if sig.Name != propsIface+".PropertiesChanged" || sig.Path != client || len(sig.Body) < 2 {
		return "", false
	}
	changed, ok := sig.Body[1].(map[string]dbus.Variant)
	if !ok {
		return "", false
	}
	v, ok := changed["Location"]
	if !ok {
		return "", false
	}
	path, ok := v.Value().(dbus.ObjectPath)
	if !ok || path == "" || path == "/" {
		return "", false
	}
	return path, true
}
