package geom

import (
	"math"

	"github.com/golang/geo/s2"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geo"
)

// EarthRadiusMeters matches the radius orb uses for its haversine.
const EarthRadiusMeters = orb.EarthRadius

// GeodesicDistance returns the great-circle distance between two points in meters
// using the Haversine formula. Points are orb.Point{lon, lat}.
func GeodesicDistance(a, b orb.Point) float64 {
	if a == b {
		return 0
	}
	return geo.DistanceHaversine(a, b)
}

// Midpoint is the arithmetic mean of the two coordinate pairs. It is not the
// geodesic midpoint.
func Midpoint(a, b orb.Point) orb.Point {
	return orb.Point{(a[0] + b[0]) / 2, (a[1] + b[1]) / 2}
}

// SegmentDistance returns the shortest great-circle distance in meters from p to the
// edge ab, projecting onto the sphere with s2.
func SegmentDistance(p, a, b orb.Point) float64 {
	x := s2.PointFromLatLng(s2.LatLngFromDegrees(p.Lat(), p.Lon()))
	sa := s2.PointFromLatLng(s2.LatLngFromDegrees(a.Lat(), a.Lon()))
	sb := s2.PointFromLatLng(s2.LatLngFromDegrees(b.Lat(), b.Lon()))
	if sa == sb {
		return GeodesicDistance(p, a)
	}
	return s2.DistanceFromSegment(x, sa, sb).Radians() * EarthRadiusMeters
}

// ValidCoordinate reports whether lat/lon are finite and inside WGS84 range.
func ValidCoordinate(lat, lon float64) bool {
	if math.IsNaN(lat) || math.IsNaN(lon) || math.IsInf(lat, 0) || math.IsInf(lon, 0) {
		return false
	}
	return lat >= -90 && lat <= 90 && lon >= -180 && lon <= 180
}

// boundAround returns a lon/lat box that contains every point within distanceMeters
// of center. The box degrades to the full longitude range near the poles and
// across the antimeridian.
func boundAround(center orb.Point, distanceMeters float64) (min, max [2]float64) {
	delta := distanceMeters / EarthRadiusMeters
	deltaLat := delta * 180.0 / math.Pi

	minLat := math.Max(center.Lat()-deltaLat, -90)
	maxLat := math.Min(center.Lat()+deltaLat, 90)

	minLon, maxLon := -180.0, 180.0
	cosLat := math.Cos(center.Lat() * math.Pi / 180.0)
	if s := math.Sin(delta); delta < math.Pi/2 && s < cosLat {
		deltaLon := math.Asin(s/cosLat) * 180.0 / math.Pi
		if center.Lon()-deltaLon >= -180 && center.Lon()+deltaLon <= 180 {
			minLon = center.Lon() - deltaLon
			maxLon = center.Lon() + deltaLon
		}
	}
	if minLat <= -90 || maxLat >= 90 {
		minLon, maxLon = -180, 180
	}
	return [2]float64{minLon, minLat}, [2]float64{maxLon, maxLat}
}
