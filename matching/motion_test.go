package matching

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"kuanb/gosm-matcher/road"
)

func TestExtractMotion(t *testing.T) {
	prev := road.TrajectoryPoint{Lat: 0, Lon: 0, Timestamp: t0}

	testCases := []struct {
		name         string
		cur          road.TrajectoryPoint
		prev         *road.TrajectoryPoint
		wantDistance float64
		wantSpeed    float64
	}{
		{
			name: "first point",
			cur:  road.TrajectoryPoint{Lat: 5, Lon: 5, Timestamp: t0},
		},
		{
			name:         "ten seconds apart",
			cur:          road.TrajectoryPoint{Lat: 0, Lon: 0.001, Timestamp: t0.Add(10 * time.Second)},
			prev:         &prev,
			wantDistance: 111.32,
			wantSpeed:    11.132,
		},
		{
			name:         "same timestamp",
			cur:          road.TrajectoryPoint{Lat: 0, Lon: 0.001, Timestamp: t0},
			prev:         &prev,
			wantDistance: 111.32,
		},
		{
			name:         "timestamp goes backwards",
			cur:          road.TrajectoryPoint{Lat: 0, Lon: 0.001, Timestamp: t0.Add(-time.Minute)},
			prev:         &prev,
			wantDistance: 111.32,
		},
		{
			name: "standing still",
			cur:  road.TrajectoryPoint{Lat: 0, Lon: 0, Timestamp: t0.Add(time.Second)},
			prev: &prev,
		},
	}

	for _, tt := range testCases {
		t.Run(tt.name, func(t *testing.T) {
			got := ExtractMotion(tt.cur, tt.prev)
			assert.InDelta(t, tt.wantDistance, got.DistanceMeters, 0.01)
			assert.InDelta(t, tt.wantSpeed, got.SpeedMPS, 0.001)
			assert.GreaterOrEqual(t, got.SpeedMPS, 0.0)
			assert.False(t, math.IsInf(got.SpeedMPS, 0) || math.IsNaN(got.SpeedMPS))
		})
	}
}

func TestExtractMotionTinyElapsed(t *testing.T) {
	prev := road.TrajectoryPoint{Lat: -80, Lon: -170, Timestamp: t0}
	cur := road.TrajectoryPoint{Lat: 80, Lon: 170, Timestamp: t0.Add(time.Nanosecond)}

	got := ExtractMotion(cur, &prev)
	assert.Greater(t, got.SpeedMPS, 0.0)
	assert.False(t, math.IsInf(got.SpeedMPS, 0))
}
