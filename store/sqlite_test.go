package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"kuanb/gosm-matcher/matching"
	"kuanb/gosm-matcher/road"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(context.Background(), filepath.Join(t.TempDir(), "matcher.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestSegmentsRoundTrip(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	segments := []road.Segment{
		{StartLat: 0, StartLon: 0, EndLat: 0, EndLon: 0.001, RoadType: road.Highway},
		{StartLat: 0, StartLon: 1, EndLat: 0, EndLon: 1.001, RoadType: road.ServiceRoad},
	}
	n, err := s.SaveSegments(ctx, segments)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	got, err := s.LoadSegments(ctx)
	require.NoError(t, err)
	assert.Equal(t, segments, got)
}

func TestLoadSegmentsEmpty(t *testing.T) {
	got, err := openTestStore(t).LoadSegments(context.Background())
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestMatchesRoundTrip(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	ts := time.Date(2024, 5, 1, 8, 0, 0, 0, time.UTC)

	records := []matching.MatchedRecord{
		{GPSLat: 0, GPSLon: 0, Timestamp: ts, SegmentID: 0, EndLon: 0.001, RoadType: road.Highway, Score: 55.6},
		{GPSLat: 0, GPSLon: 0.0005, Timestamp: ts.Add(time.Second), SegmentID: 0, EndLon: 0.001, RoadType: road.Highway, DistanceMeters: 55.66, SpeedMPS: 55.66},
	}
	first, err := s.SaveMatches(ctx, records)
	require.NoError(t, err)
	second, err := s.SaveMatches(ctx, records[:1])
	require.NoError(t, err)
	assert.NotEqual(t, first, second)

	got, err := s.LoadMatches(ctx, first)
	require.NoError(t, err)
	assert.Equal(t, records, got)

	got, err = s.LoadMatches(ctx, second)
	require.NoError(t, err)
	assert.Len(t, got, 1)
}
