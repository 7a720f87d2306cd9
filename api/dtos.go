package api

import (
	"time"

	"kuanb/gosm-matcher/geocode"
	"kuanb/gosm-matcher/matching"
	"kuanb/gosm-matcher/render"
	"kuanb/gosm-matcher/road"
)

// Pointer fields let required reject absent values while still accepting 0.
type pointRequest struct {
	Lat       *float64   `json:"lat" validate:"required,latitude"`
	Lon       *float64   `json:"lon" validate:"required,longitude"`
	Timestamp *time.Time `json:"timestamp" validate:"required"`
}

type matchRequest struct {
	Points  []pointRequest `json:"points" validate:"required,dive"`
	Geocode bool           `json:"geocode"`
}

type trajectoryRequest struct {
	Points []pointRequest `json:"points" validate:"required,dive"`
}

type batchRequest struct {
	Trajectories []trajectoryRequest `json:"trajectories" validate:"required,min=1,dive"`
}

func toTrajectory(points []pointRequest) []road.TrajectoryPoint {
	out := make([]road.TrajectoryPoint, len(points))
	for i, p := range points {
		out[i] = road.TrajectoryPoint{Lat: *p.Lat, Lon: *p.Lon, Timestamp: *p.Timestamp}
	}
	return out
}

type matchResponse struct {
	RunID           int64  `json:"run_id,omitempty"`
	Records         any    `json:"records"`
	Polyline        string `json:"polyline"`
	MatchedPolyline string `json:"matched_polyline"`
}

func NewMatchResponse(records []matching.MatchedRecord, enriched []geocode.EnrichedRecord) matchResponse {
	resp := matchResponse{
		Records:         records,
		Polyline:        render.Polyline(records),
		MatchedPolyline: render.MatchedPolyline(records),
	}
	if records == nil {
		resp.Records = []matching.MatchedRecord{}
	}
	if enriched != nil {
		resp.Records = enriched
	}
	return resp
}
