package domain

import (
	"fmt"
	"math"
)

// Coordinate is a WGS 84 point. Values are stored exactly as given.
type Coordinate struct {
	Latitude  float64 `json:"latitude" dynamodbav:"latitude"`
	Longitude float64 `json:"longitude" dynamodbav:"longitude"`
}

// Validate rejects non-finite coordinates and those outside the WGS 84 range.
func (c Coordinate) Validate() error {
	if !finite(c.Latitude) || !finite(c.Longitude) {
		return fmt.Errorf("coordinate (%v, %v) is not finite", c.Latitude, c.Longitude)
	}
	if c.Latitude < -90 || c.Latitude > 90 {
		return fmt.Errorf("latitude %v out of range [-90, 90]", c.Latitude)
	}
	if c.Longitude < -180 || c.Longitude > 180 {
		return fmt.Errorf("longitude %v out of range [-180, 180]", c.Longitude)
	}
	return nil
}

func finite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}
