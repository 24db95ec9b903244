package geo

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDistanceKm(t *testing.T) {
	seoulStation := Point{Lat: 37.5547, Lng: 126.9707}
	gangnam := Point{Lat: 37.4979, Lng: 127.0276}

	assert.Equal(t, 0.0, DistanceKm(seoulStation, seoulStation))
	assert.InDelta(t, 8.0, DistanceKm(seoulStation, gangnam), 0.3)
	assert.InDelta(t, DistanceKm(seoulStation, gangnam), DistanceKm(gangnam, seoulStation), 1e-12)

	// a quarter of the equator
	assert.InDelta(t, math.Pi/2*EarthRadiusKm, DistanceKm(Point{0, 0}, Point{0, 90}), 1e-6)
	// antipodes do not produce NaN
	assert.InDelta(t, math.Pi*EarthRadiusKm, DistanceKm(Point{0, 0}, Point{0, 180}), 1e-6)
}

func TestPointValidate(t *testing.T) {
	require.NoError(t, Point{Lat: 90, Lng: -180}.Validate())
	assert.Error(t, Point{Lat: 90.0001, Lng: 0}.Validate())
	assert.Error(t, Point{Lat: 0, Lng: 181}.Validate())
	assert.Error(t, Point{Lat: math.NaN(), Lng: 0}.Validate())
}

func TestBoundingBoxContainsCircle(t *testing.T) {
	centers := []Point{
		{Lat: 37.5665, Lng: 126.9780},
		{Lat: -33.86, Lng: 151.2},
		{Lat: 0, Lng: 179.9},
		{Lat: 10, Lng: -179.95},
		{Lat: 89.9, Lng: 0},
	}
	for _, c := range centers {
		box := BoundingBox(c, 50)
		assert.True(t, box.Contains(c), "center %v", c)
		// walk the 50 km circle and check every point is inside the box
		for bearing := 0.0; bearing < 360; bearing += 15 {
			p := destination(c, 49.999, bearing)
			assert.True(t, box.Contains(p), "center %v bearing %v point %v", c, bearing, p)
		}
	}
}

func TestBoundingBoxWrapsAntimeridian(t *testing.T) {
	box := BoundingBox(Point{Lat: 0, Lng: 179.9}, 50)
	require.True(t, box.WrapsAntimeridian)
	assert.True(t, box.Contains(Point{Lat: 0, Lng: -179.9}))
	assert.False(t, box.Contains(Point{Lat: 0, Lng: 0}))
}

func TestBoundingBoxNearPole(t *testing.T) {
	box := BoundingBox(Point{Lat: 89.9, Lng: 0}, 50)
	assert.Equal(t, -180.0, box.MinLng)
	assert.Equal(t, 180.0, box.MaxLng)
	assert.Equal(t, 90.0, box.MaxLat)
}

// destination returns the point reached from p after distKm on the given bearing.
func destination(p Point, distKm, bearingDeg float64) Point {
	d := distKm / EarthRadiusKm
	br := toRad(bearingDeg)
	lat1, lng1 := toRad(p.Lat), toRad(p.Lng)
	lat2 := math.Asin(math.Sin(lat1)*math.Cos(d) + math.Cos(lat1)*math.Sin(d)*math.Cos(br))
	lng2 := lng1 + math.Atan2(math.Sin(br)*math.Sin(d)*math.Cos(lat1), math.Cos(d)-math.Sin(lat1)*math.Sin(lat2))
	lng := math.Mod(toDeg(lng2)+540, 360) - 180
	return Point{Lat: toDeg(lat2), Lng: lng}
}
