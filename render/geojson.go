// Package render turns matched records into map artifacts.
package render

import (
	"encoding/json"
	"io"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	polyline "github.com/twpayne/go-polyline"

	"kuanb/gosm-matcher/matching"
)

// GeoJSON builds a FeatureCollection with the GPS path as a LineString, one Point
// per fix carrying its match, and each distinct matched segment as a LineString.
// The collection's "center" member is the mean fix position.
func GeoJSON(records []matching.MatchedRecord) *geojson.FeatureCollection {
	fc := geojson.NewFeatureCollection()
	if len(records) == 0 {
		return fc
	}

	path := make(orb.LineString, 0, len(records))
	var sumLat, sumLon float64
	for _, r := range records {
		path = append(path, orb.Point{r.GPSLon, r.GPSLat})
		sumLat += r.GPSLat
		sumLon += r.GPSLon
	}
	n := float64(len(records))
	fc.ExtraMembers = geojson.Properties{
		"center": []float64{sumLon / n, sumLat / n},
	}

	if len(path) > 1 {
		f := geojson.NewFeature(path)
		f.Properties["kind"] = "gps_path"
		f.Properties["stroke"] = "#0000FF"
		fc.Append(f)
	}

	seen := make(map[int]bool)
	for i, r := range records {
		p := geojson.NewFeature(orb.Point{r.GPSLon, r.GPSLat})
		p.Properties["kind"] = "fix"
		p.Properties["index"] = i
		p.Properties["timestamp"] = r.Timestamp
		p.Properties["segment_id"] = r.SegmentID
		p.Properties["road_type"] = r.RoadType
		p.Properties["distance_m"] = r.DistanceMeters
		p.Properties["speed_mps"] = r.SpeedMPS
		fc.Append(p)

		if seen[r.SegmentID] {
			continue
		}
		seen[r.SegmentID] = true
		s := geojson.NewFeature(orb.LineString{{r.StartLon, r.StartLat}, {r.EndLon, r.EndLat}})
		s.Properties["kind"] = "segment"
		s.Properties["segment_id"] = r.SegmentID
		s.Properties["road_type"] = r.RoadType
		fc.Append(s)
	}
	return fc
}

// WriteGeoJSON encodes the collection for records to w.
func WriteGeoJSON(w io.Writer, records []matching.MatchedRecord) error {
	return json.NewEncoder(w).Encode(GeoJSON(records))
}

// Polyline encodes the GPS path with the Google polyline algorithm.
func Polyline(records []matching.MatchedRecord) string {
	coords := make([][]float64, len(records))
	for i, r := range records {
		coords[i] = []float64{r.GPSLat, r.GPSLon}
	}
	return string(polyline.EncodeCoords(coords))
}

// MatchedPolyline encodes the matched segment midpoints, the snapped path.
func MatchedPolyline(records []matching.MatchedRecord) string {
	coords := make([][]float64, len(records))
	for i, r := range records {
		coords[i] = []float64{(r.StartLat + r.EndLat) / 2, (r.StartLon + r.EndLon) / 2}
	}
	return string(polyline.EncodeCoords(coords))
}
