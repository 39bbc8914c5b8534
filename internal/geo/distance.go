package geo

import (
	"errors"
	"math"
)

// EarthRadiusMeters is the mean radius used by the spherical approximation.
const EarthRadiusMeters = 6371000.0

// ErrMissingCoordinates is returned when a distance cannot be computed because
// one of the points is absent or not a real coordinate.
var ErrMissingCoordinates = errors.New("missing coordinates")

// Point is a WGS84 latitude/longitude pair in decimal degrees.
type Point struct {
	Lat float64 `json:"lat" yaml:"lat"`
	Lon float64 `json:"lon" yaml:"lon"`
}

// NewPoint returns a point, or nil when either component is absent.
func NewPoint(lat, lon *float64) *Point {
	if lat == nil || lon == nil {
		return nil
	}
	return &Point{Lat: *lat, Lon: *lon}
}

func (p *Point) valid() bool {
	if p == nil {
		return false
	}
	for _, v := range []float64{p.Lat, p.Lon} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}

// DistanceMeters returns the great-circle distance between a and b using the
// Haversine formula, rounded to the nearest meter.
func DistanceMeters(a, b *Point) (int, error) {
	if !a.valid() || !b.valid() {
		return 0, ErrMissingCoordinates
	}

	lat1 := toRadians(a.Lat)
	lat2 := toRadians(b.Lat)
	dLat := toRadians(b.Lat - a.Lat)
	dLon := toRadians(b.Lon - a.Lon)

	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1)*math.Cos(lat2)*math.Sin(dLon/2)*math.Sin(dLon/2)
	// Rounding can push h just outside [0,1] for antipodal points.
	h = math.Min(1, math.Max(0, h))
	c := 2 * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))

	return int(math.Round(EarthRadiusMeters * c)), nil
}

func toRadians(deg float64) float64 {
	return deg * math.Pi / 180
}
