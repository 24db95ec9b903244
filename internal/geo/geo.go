// Package geo holds the great-circle math used by the location index.
package geo

import (
	"fmt"
	"math"
)

// EarthRadiusKm is the IUGG mean Earth radius.
const EarthRadiusKm = 6371.0088

// Point is a WGS 84 coordinate.
type Point struct {
	Lat float64 `json:"latitude"`
	Lng float64 `json:"longitude"`
}

// Validate checks the coordinate ranges.
func (p Point) Validate() error {
	if math.IsNaN(p.Lat) || p.Lat < -90 || p.Lat > 90 {
		return fmt.Errorf("latitude %v out of range [-90, 90]", p.Lat)
	}
	if math.IsNaN(p.Lng) || p.Lng < -180 || p.Lng > 180 {
		return fmt.Errorf("longitude %v out of range [-180, 180]", p.Lng)
	}
	return nil
}

// Bounds is a latitude/longitude box. When WrapsAntimeridian is set the
// longitude range is MinLng..180 plus -180..MaxLng.
type Bounds struct {
	MinLat, MaxLat    float64
	MinLng, MaxLng    float64
	WrapsAntimeridian bool
}

// Contains reports whether p lies inside b.
func (b Bounds) Contains(p Point) bool {
	if p.Lat < b.MinLat || p.Lat > b.MaxLat {
		return false
	}
	if b.WrapsAntimeridian {
		return p.Lng >= b.MinLng || p.Lng <= b.MaxLng
	}
	return p.Lng >= b.MinLng && p.Lng <= b.MaxLng
}

func toRad(deg float64) float64 { return deg * math.Pi / 180 }
func toDeg(rad float64) float64 { return rad * 180 / math.Pi }

// DistanceKm returns the haversine distance between a and b.
func DistanceKm(a, b Point) float64 {
	lat1, lat2 := toRad(a.Lat), toRad(b.Lat)
	dLat := lat2 - lat1
	dLng := toRad(b.Lng - a.Lng)

	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1)*math.Cos(lat2)*math.Sin(dLng/2)*math.Sin(dLng/2)
	h = math.Min(1, h)
	return 2 * EarthRadiusKm * math.Asin(math.Sqrt(h))
}

// BoundingBox returns a box guaranteed to contain every point within
// radiusKm of center. It is a prefilter only; callers refine with DistanceKm.
func BoundingBox(center Point, radiusKm float64) Bounds {
	// small margin so float rounding never excludes a boundary point
	angular := radiusKm/EarthRadiusKm + 1e-9
	dLat := toDeg(angular)

	b := Bounds{
		MinLat: math.Max(-90, center.Lat-dLat),
		MaxLat: math.Min(90, center.Lat+dLat),
		MinLng: -180,
		MaxLng: 180,
	}
	// near a pole every longitude is reachable
	if b.MinLat == -90 || b.MaxLat == 90 {
		return b
	}

	dLng := toDeg(math.Asin(math.Min(1, math.Sin(angular)/math.Cos(toRad(center.Lat)))))
	minLng, maxLng := center.Lng-dLng, center.Lng+dLng
	switch {
	case dLng >= 180:
	case minLng < -180:
		b.MinLng, b.MaxLng, b.WrapsAntimeridian = minLng+360, maxLng, true
	case maxLng > 180:
		b.MinLng, b.MaxLng, b.WrapsAntimeridian = minLng, maxLng-360, true
	default:
		b.MinLng, b.MaxLng = minLng, maxLng
	}
	return b
}
