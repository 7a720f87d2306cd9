// Package ingest reads road networks and GPS trajectories from CSV, the format
// the upload endpoint accepts.
package ingest

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"kuanb/gosm-matcher/road"
)

// Road network columns.
const (
	ColStartLatitude  = "start_latitude"
	ColStartLongitude = "start_longitude"
	ColEndLatitude    = "end_latitude"
	ColEndLongitude   = "end_longitude"
	ColRoadType       = "road_type"
)

// Trajectory columns.
const (
	ColLatitude  = "latitude"
	ColLongitude = "longitude"
	ColTimestamp = "timestamp"
)

var (
	segmentColumns    = []string{ColStartLatitude, ColStartLongitude, ColEndLatitude, ColEndLongitude, ColRoadType}
	trajectoryColumns = []string{ColLatitude, ColLongitude, ColTimestamp}
)

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02 15:04:05.999999999",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04",
}

// ReadSegments reads a road network. Every required column must be present in
// the header; a missing one is reported before any row is read.
func ReadSegments(r io.Reader) ([]road.Segment, error) {
	rows, err := newTable(r, segmentColumns)
	if err != nil {
		return nil, err
	}

	var segments []road.Segment
	for row := 0; ; row++ {
		rec, err := rows.next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}

		var s road.Segment
		if s.StartLat, err = rec.float(ColStartLatitude, row); err != nil {
			return nil, err
		}
		if s.StartLon, err = rec.float(ColStartLongitude, row); err != nil {
			return nil, err
		}
		if s.EndLat, err = rec.float(ColEndLatitude, row); err != nil {
			return nil, err
		}
		if s.EndLon, err = rec.float(ColEndLongitude, row); err != nil {
			return nil, err
		}
		if s.RoadType, err = rec.text(ColRoadType, row); err != nil {
			return nil, err
		}
		segments = append(segments, s)
	}

	if err := road.ValidateSegments(segments); err != nil {
		return nil, err
	}
	return segments, nil
}

// ReadTrajectory reads GPS fixes in file order.
func ReadTrajectory(r io.Reader) ([]road.TrajectoryPoint, error) {
	rows, err := newTable(r, trajectoryColumns)
	if err != nil {
		return nil, err
	}

	var points []road.TrajectoryPoint
	for row := 0; ; row++ {
		rec, err := rows.next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}

		var p road.TrajectoryPoint
		if p.Lat, err = rec.float(ColLatitude, row); err != nil {
			return nil, err
		}
		if p.Lon, err = rec.float(ColLongitude, row); err != nil {
			return nil, err
		}
		raw, err := rec.text(ColTimestamp, row)
		if err != nil {
			return nil, err
		}
		if p.Timestamp, err = ParseTimestamp(raw); err != nil {
			return nil, &road.InvalidFieldError{Field: ColTimestamp, Row: row, Value: raw, Reason: err.Error()}
		}
		points = append(points, p)
	}

	if err := road.ValidateTrajectory(points); err != nil {
		return nil, err
	}
	return points, nil
}

// ParseTimestamp accepts RFC3339, "2006-01-02 15:04:05" style local layouts
// (read as UTC) and unix seconds.
func ParseTimestamp(raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	for _, layout := range timestampLayouts {
		if ts, err := time.Parse(layout, raw); err == nil {
			return ts, nil
		}
	}
	if secs, err := strconv.ParseFloat(raw, 64); err == nil {
		whole := int64(secs)
		return time.Unix(whole, int64((secs-float64(whole))*1e9)).UTC(), nil
	}
	return time.Time{}, fmt.Errorf("unrecognised timestamp format")
}

type table struct {
	reader  *csv.Reader
	columns map[string]int
}

type record struct {
	fields  []string
	columns map[string]int
}

func newTable(r io.Reader, required []string) (*table, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if errors.Is(err, io.EOF) {
		return nil, &road.MissingFieldError{Field: required[0], Row: -1}
	}
	if err != nil {
		return nil, fmt.Errorf("read csv header: %w", err)
	}

	columns := make(map[string]int, len(header))
	for i, name := range header {
		name = strings.ToLower(strings.TrimSpace(strings.TrimPrefix(name, "\ufeff")))
		columns[name] = i
	}
	for _, col := range required {
		if _, ok := columns[col]; !ok {
			return nil, &road.MissingFieldError{Field: col, Row: -1}
		}
	}
	return &table{reader: reader, columns: columns}, nil
}

func (t *table) next() (record, error) {
	fields, err := t.reader.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return record{}, err
		}
		return record{}, fmt.Errorf("read csv: %w", err)
	}
	return record{fields: fields, columns: t.columns}, nil
}

func (r record) text(col string, row int) (string, error) {
	i := r.columns[col]
	if i >= len(r.fields) || strings.TrimSpace(r.fields[i]) == "" {
		return "", &road.MissingFieldError{Field: col, Row: row}
	}
	return strings.TrimSpace(r.fields[i]), nil
}

func (r record) float(col string, row int) (float64, error) {
	raw, err := r.text(col, row)
	if err != nil {
		return 0, err
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, &road.InvalidFieldError{Field: col, Row: row, Value: raw, Reason: "not a number"}
	}
	return v, nil
}
