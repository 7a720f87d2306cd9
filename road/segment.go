// Package road holds the road network and GPS trajectory records the matcher
// consumes, plus the validation boundary they cross before matching.
package road

import (
	"time"

	"github.com/paulmach/orb"
)

// Road types the default scoring policy knows about.
const (
	Highway     = "highway"
	ServiceRoad = "service road"
)

// Segment is an immutable road segment. Its identity is its position in the
// network slice it was loaded into.
type Segment struct {
	StartLat float64 `json:"start_lat" validate:"latitude"`
	StartLon float64 `json:"start_lon" validate:"longitude"`
	EndLat   float64 `json:"end_lat" validate:"latitude"`
	EndLon   float64 `json:"end_lon" validate:"longitude"`
	RoadType string  `json:"road_type" validate:"required"`
}

// Start returns the segment start as orb.Point{lon, lat}.
func (s Segment) Start() orb.Point {
	return orb.Point{s.StartLon, s.StartLat}
}

// End returns the segment end as orb.Point{lon, lat}.
func (s Segment) End() orb.Point {
	return orb.Point{s.EndLon, s.EndLat}
}

// TrajectoryPoint is one GPS fix. Order within a trajectory is meaningful.
type TrajectoryPoint struct {
	Lat       float64   `json:"lat" validate:"latitude"`
	Lon       float64   `json:"lon" validate:"longitude"`
	Timestamp time.Time `json:"timestamp" validate:"required"`
}

// Point returns the fix as orb.Point{lon, lat}.
func (p TrajectoryPoint) Point() orb.Point {
	return orb.Point{p.Lon, p.Lat}
}
