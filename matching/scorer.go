package matching

import (
	"fmt"

	"github.com/paulmach/orb"

	"kuanb/gosm-matcher/geom"
	"kuanb/gosm-matcher/road"
)

// Approximation measures how far a GPS fix is from a segment, in meters.
type Approximation interface {
	Distance(gps orb.Point, segment road.Segment) float64
	Name() string
}

// PointApproximation treats a segment as its arithmetic midpoint.
type PointApproximation struct{}

func (PointApproximation) Distance(gps orb.Point, segment road.Segment) float64 {
	return geom.GeodesicDistance(geom.Midpoint(segment.Start(), segment.End()), gps)
}

func (PointApproximation) Name() string { return ApproxPoint }

// SegmentProjection projects the fix onto the segment on the sphere.
type SegmentProjection struct{}

func (SegmentProjection) Distance(gps orb.Point, segment road.Segment) float64 {
	return geom.SegmentDistance(gps, segment.Start(), segment.End())
}

func (SegmentProjection) Name() string { return ApproxProjection }

// NewApproximation returns the strategy registered under name.
func NewApproximation(name string) (Approximation, error) {
	switch name {
	case ApproxPoint, "":
		return PointApproximation{}, nil
	case ApproxProjection:
		return SegmentProjection{}, nil
	}
	return nil, fmt.Errorf("unknown approximation %q", name)
}

// Scorer ranks candidate segments for a fix. Lower scores are better.
type Scorer struct {
	approx            Approximation
	speedThreshold    float64
	bonus             float64
	highSpeedRoadType string
	lowSpeedRoadType  string
}

// NewScorer creates a scorer from the policy in cfg.
func NewScorer(cfg Config, approx Approximation) *Scorer {
	if approx == nil {
		approx = PointApproximation{}
	}
	return &Scorer{
		approx:            approx,
		speedThreshold:    cfg.SpeedThreshold,
		bonus:             cfg.RoadTypeBonus,
		highSpeedRoadType: cfg.HighSpeedRoadType,
		lowSpeedRoadType:  cfg.LowSpeedRoadType,
	}
}

// Score returns the distance from gps to the segment minus the road-type bonus.
func (s *Scorer) Score(gps orb.Point, speedMPS float64, segment road.Segment) float64 {
	return s.approx.Distance(gps, segment) - s.Bonus(speedMPS, segment.RoadType)
}

// Bonus is the configured bonus when the road type fits the speed regime and
// zero otherwise: above the threshold only the high speed type earns it, at or
// below the threshold only the low speed type does.
func (s *Scorer) Bonus(speedMPS float64, roadType string) float64 {
	if speedMPS > s.speedThreshold {
		if roadType == s.highSpeedRoadType {
			return s.bonus
		}
		return 0
	}
	if roadType == s.lowSpeedRoadType {
		return s.bonus
	}
	return 0
}
