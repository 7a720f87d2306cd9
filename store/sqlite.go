// Package store persists road networks and match results in SQLite.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"kuanb/gosm-matcher/matching"
	"kuanb/gosm-matcher/road"
)

const schema = `
CREATE TABLE IF NOT EXISTS road_segments (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	start_lat  REAL NOT NULL,
	start_lon  REAL NOT NULL,
	end_lat    REAL NOT NULL,
	end_lon    REAL NOT NULL,
	road_type  TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS match_runs (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	created_at INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS matched_points (
	run_id     INTEGER NOT NULL REFERENCES match_runs(id) ON DELETE CASCADE,
	seq        INTEGER NOT NULL,
	gps_lat    REAL NOT NULL,
	gps_lon    REAL NOT NULL,
	timestamp  INTEGER NOT NULL,
	segment_id INTEGER NOT NULL,
	start_lat  REAL NOT NULL,
	start_lon  REAL NOT NULL,
	end_lat    REAL NOT NULL,
	end_lon    REAL NOT NULL,
	road_type  TEXT NOT NULL,
	distance_m REAL NOT NULL,
	speed_mps  REAL NOT NULL,
	score      REAL NOT NULL,
	PRIMARY KEY (run_id, seq)
);`

// Store wraps a SQLite database.
type Store struct {
	db *sql.DB
}

// Open opens (creating if needed) the database at path and applies the schema.
func Open(ctx context.Context, path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)

	for _, pragma := range []string{"PRAGMA journal_mode=WAL", "PRAGMA foreign_keys=ON"} {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("%s: %w", pragma, err)
		}
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the database connection
func (s *Store) Close() error {
	return s.db.Close()
}

// transaction executes fn within a database transaction
func (s *Store) transaction(ctx context.Context, fn func(*sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return fmt.Errorf("transaction error: %v, rollback error: %w", err, rbErr)
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// SaveSegments inserts segments in one transaction and returns how many were written.
func (s *Store) SaveSegments(ctx context.Context, segments []road.Segment) (int, error) {
	err := s.transaction(ctx, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx,
			`INSERT INTO road_segments (start_lat, start_lon, end_lat, end_lon, road_type) VALUES (?, ?, ?, ?, ?)`)
		if err != nil {
			return fmt.Errorf("prepare segment insert: %w", err)
		}
		defer stmt.Close()

		for i, seg := range segments {
			if _, err := stmt.ExecContext(ctx, seg.StartLat, seg.StartLon, seg.EndLat, seg.EndLon, seg.RoadType); err != nil {
				return fmt.Errorf("insert segment %d: %w", i, err)
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return len(segments), nil
}

// LoadSegments returns every stored segment in insertion order.
func (s *Store) LoadSegments(ctx context.Context) ([]road.Segment, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT start_lat, start_lon, end_lat, end_lon, road_type FROM road_segments ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("query segments: %w", err)
	}
	defer rows.Close()

	var segments []road.Segment
	for rows.Next() {
		var seg road.Segment
		if err := rows.Scan(&seg.StartLat, &seg.StartLon, &seg.EndLat, &seg.EndLon, &seg.RoadType); err != nil {
			return nil, fmt.Errorf("scan segment: %w", err)
		}
		segments = append(segments, seg)
	}
	return segments, rows.Err()
}

// SaveMatches stores one run's records and returns the new run ID.
func (s *Store) SaveMatches(ctx context.Context, records []matching.MatchedRecord) (int64, error) {
	var runID int64
	err := s.transaction(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `INSERT INTO match_runs (created_at) VALUES (?)`, time.Now().UnixNano())
		if err != nil {
			return fmt.Errorf("insert match run: %w", err)
		}
		if runID, err = res.LastInsertId(); err != nil {
			return err
		}

		stmt, err := tx.PrepareContext(ctx, `INSERT INTO matched_points
			(run_id, seq, gps_lat, gps_lon, timestamp, segment_id, start_lat, start_lon, end_lat, end_lon,
			 road_type, distance_m, speed_mps, score)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
		if err != nil {
			return fmt.Errorf("prepare match insert: %w", err)
		}
		defer stmt.Close()

		for i, r := range records {
			if _, err := stmt.ExecContext(ctx, runID, i, r.GPSLat, r.GPSLon, r.Timestamp.UnixNano(), r.SegmentID,
				r.StartLat, r.StartLon, r.EndLat, r.EndLon, r.RoadType, r.DistanceMeters, r.SpeedMPS, r.Score); err != nil {
				return fmt.Errorf("insert matched point %d: %w", i, err)
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return runID, nil
}

// LoadMatches returns the records of a run in their original order.
func (s *Store) LoadMatches(ctx context.Context, runID int64) ([]matching.MatchedRecord, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT gps_lat, gps_lon, timestamp, segment_id, start_lat, start_lon,
		end_lat, end_lon, road_type, distance_m, speed_mps, score
		FROM matched_points WHERE run_id = ? ORDER BY seq`, runID)
	if err != nil {
		return nil, fmt.Errorf("query matches: %w", err)
	}
	defer rows.Close()

	var records []matching.MatchedRecord
	for rows.Next() {
		var (
			r  matching.MatchedRecord
			ts int64
		)
		if err := rows.Scan(&r.GPSLat, &r.GPSLon, &ts, &r.SegmentID, &r.StartLat, &r.StartLon,
			&r.EndLat, &r.EndLon, &r.RoadType, &r.DistanceMeters, &r.SpeedMPS, &r.Score); err != nil {
			return nil, fmt.Errorf("scan matched point: %w", err)
		}
		r.Timestamp = time.Unix(0, ts).UTC()
		records = append(records, r)
	}
	return records, rows.Err()
}
