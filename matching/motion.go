package matching

import (
	"math"

	"kuanb/gosm-matcher/geom"
	"kuanb/gosm-matcher/road"
)

// Motion is the movement from the previous fix to the current one.
type Motion struct {
	DistanceMeters float64
	SpeedMPS       float64
}

// ExtractMotion computes distance and speed from prev to cur. With no
// predecessor both are zero. A non-positive elapsed time (duplicate or
// out-of-order timestamps) floors the speed to zero but keeps the distance.
func ExtractMotion(cur road.TrajectoryPoint, prev *road.TrajectoryPoint) Motion {
	if prev == nil {
		return Motion{}
	}
	distance := geom.GeodesicDistance(prev.Point(), cur.Point())
	elapsed := cur.Timestamp.Sub(prev.Timestamp).Seconds()

	var speed float64
	if elapsed > 0 {
		speed = distance / elapsed
	}
	if math.IsNaN(speed) || math.IsInf(speed, 0) {
		speed = 0
	}
	return Motion{DistanceMeters: distance, SpeedMPS: speed}
}
