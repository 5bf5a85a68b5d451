package geospatial

import (
	"math"
	"strconv"
)

const earthRadiusKm = 6371.0

// Haversine calculates the great-circle distance in meters between two points.
func Haversine(lat1, lon1, lat2, lon2 float64) float64 {
	dLat := toRad(lat2 - lat1)
	dLon := toRad(lon2 - lon1)

	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(toRad(lat1))*math.Cos(toRad(lat2))*
			math.Sin(dLon/2)*math.Sin(dLon/2)

	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
	return earthRadiusKm * c * 1000
}

// Round rounds v to places decimal digits.
func Round(v float64, places int) float64 {
	p := math.Pow10(places)
	return math.Round(v*p) / p
}

// QuantizedKey renders a coordinate rounded to places decimals as "lat:lon".
// Points closer than the rounding step share a key.
func QuantizedKey(lat, lon float64, places int) string {
	la := strconv.FormatFloat(Round(lat, places), 'f', places, 64)
	lo := strconv.FormatFloat(Round(lon, places), 'f', places, 64)
	// -0.0000 and 0.0000 are the same cell
	if la == "-"+strconv.FormatFloat(0, 'f', places, 64) {
		la = la[1:]
	}
	if lo == "-"+strconv.FormatFloat(0, 'f', places, 64) {
		lo = lo[1:]
	}
	return la + ":" + lo
}

func toRad(deg float64) float64 {
	return deg * math.Pi / 180
}
