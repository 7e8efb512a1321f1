// Package geo holds the spherical geometry shared by the geofence store,
// the membership evaluator and fix validation.
package geo

import (
	"errors"
	"fmt"
	"math"
)

// EarthRadiusMeters is the mean Earth radius used by the haversine formula.
const EarthRadiusMeters = 6371000.0

// ErrInvalidGeometry is returned for coordinates outside the valid range,
// non-finite values, or a non-positive radius.
var ErrInvalidGeometry = errors.New("invalid geometry")

// Point is a WGS84 coordinate in degrees.
type Point struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// Validate rejects NaN/Inf and coordinates outside lat [-90,90], lon [-180,180].
func (p Point) Validate() error {
	if !finite(p.Lat) || !finite(p.Lon) {
		return fmt.Errorf("%w: coordinates must be finite", ErrInvalidGeometry)
	}
	if p.Lat < -90 || p.Lat > 90 {
		return fmt.Errorf("%w: latitude %v out of range [-90,90]", ErrInvalidGeometry, p.Lat)
	}
	if p.Lon < -180 || p.Lon > 180 {
		return fmt.Errorf("%w: longitude %v out of range [-180,180]", ErrInvalidGeometry, p.Lon)
	}
	return nil
}

// ValidateRadius rejects radii that are not finite and strictly positive.
func ValidateRadius(radius float64) error {
	if !finite(radius) || radius <= 0 {
		return fmt.Errorf("%w: radius must be > 0, got %v", ErrInvalidGeometry, radius)
	}
	return nil
}

// DistanceMeters is the great-circle distance between a and b.
func DistanceMeters(a, b Point) float64 {
	lat1 := radians(a.Lat)
	lat2 := radians(b.Lat)
	dLat := lat2 - lat1
	dLon := radians(b.Lon - a.Lon)

	sinLat := math.Sin(dLat / 2)
	sinLon := math.Sin(dLon / 2)
	h := sinLat*sinLat + math.Cos(lat1)*math.Cos(lat2)*sinLon*sinLon
	// Rounding can push h a hair past 1 for antipodal points.
	h = math.Min(1, math.Max(0, h))

	return 2 * EarthRadiusMeters * math.Asin(math.Sqrt(h))
}

// Offset returns the point reached by travelling distance meters from p on
// the given bearing (degrees clockwise from north).
func Offset(p Point, bearingDeg, distance float64) Point {
	delta := distance / EarthRadiusMeters
	theta := radians(bearingDeg)
	lat1 := radians(p.Lat)
	lon1 := radians(p.Lon)

	lat2 := math.Asin(math.Sin(lat1)*math.Cos(delta) + math.Cos(lat1)*math.Sin(delta)*math.Cos(theta))
	lon2 := lon1 + math.Atan2(
		math.Sin(theta)*math.Sin(delta)*math.Cos(lat1),
		math.Cos(delta)-math.Sin(lat1)*math.Sin(lat2),
	)

	lon := math.Mod(degrees(lon2)+540, 360) - 180
	return Point{Lat: degrees(lat2), Lon: lon}
}

func radians(deg float64) float64 { return deg * math.Pi / 180 }
func degrees(rad float64) float64 { return rad * 180 / math.Pi }

func finite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}
