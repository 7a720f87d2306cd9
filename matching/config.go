package matching

import (
	"fmt"

	"kuanb/gosm-matcher/road"
)

// Index backends.
const (
	IndexBallTree = "balltree"
	IndexRTree    = "rtree"
)

// Segment distance approximations.
const (
	ApproxPoint      = "point"
	ApproxProjection = "projection"
)

// Config holds the matching policy knobs.
type Config struct {
	Neighbors         int     `mapstructure:"neighbors"`           // candidate fan-out per point
	SpeedThreshold    float64 `mapstructure:"speed_threshold"`     // m/s, compared literally
	RoadTypeBonus     float64 `mapstructure:"road_type_bonus"`     // meters subtracted on a road-type match
	HighSpeedRoadType string  `mapstructure:"high_speed_road_type"`
	LowSpeedRoadType  string  `mapstructure:"low_speed_road_type"`
	Index             string  `mapstructure:"index"`
	Approximation     string  `mapstructure:"approximation"`
	LeafSize          int     `mapstructure:"leaf_size"`
}

// DefaultConfig creates a config with the default matching policy
func DefaultConfig() Config {
	return Config{
		Neighbors:         5,
		SpeedThreshold:    50.0,
		RoadTypeBonus:     10.0,
		HighSpeedRoadType: road.Highway,
		LowSpeedRoadType:  road.ServiceRoad,
		Index:             IndexBallTree,
		Approximation:     ApproxPoint,
		LeafSize:          16,
	}
}

func (c Config) Validate() error {
	if c.Neighbors <= 0 {
		return fmt.Errorf("neighbors must be positive, got %d", c.Neighbors)
	}
	if c.LeafSize <= 0 {
		return fmt.Errorf("leaf size must be positive, got %d", c.LeafSize)
	}
	if c.SpeedThreshold < 0 {
		return fmt.Errorf("speed threshold must not be negative, got %v", c.SpeedThreshold)
	}
	if c.RoadTypeBonus < 0 {
		return fmt.Errorf("road type bonus must not be negative, got %v", c.RoadTypeBonus)
	}
	switch c.Index {
	case IndexBallTree, IndexRTree:
	default:
		return fmt.Errorf("unknown index %q", c.Index)
	}
	switch c.Approximation {
	case ApproxPoint, ApproxProjection:
	default:
		return fmt.Errorf("unknown approximation %q", c.Approximation)
	}
	return nil
}
