package matching

import (
	"context"
	"math"
	"time"

	"github.com/paulmach/orb"
	"go.uber.org/zap"

	"kuanb/gosm-matcher/geom"
	"kuanb/gosm-matcher/road"
)

// MatchedRecord is the output for one trajectory point.
type MatchedRecord struct {
	GPSLat         float64   `json:"gps_lat"`
	GPSLon         float64   `json:"gps_lon"`
	Timestamp      time.Time `json:"timestamp"`
	SegmentID      int       `json:"segment_id"`
	StartLat       float64   `json:"start_lat"`
	StartLon       float64   `json:"start_lon"`
	EndLat         float64   `json:"end_lat"`
	EndLon         float64   `json:"end_lon"`
	RoadType       string    `json:"road_type"`
	DistanceMeters float64   `json:"distance_m"`
	SpeedMPS       float64   `json:"speed_mps"`
	Score          float64   `json:"score"`
}

// Segment returns the matched segment.
func (r MatchedRecord) Segment() road.Segment {
	return road.Segment{
		StartLat: r.StartLat,
		StartLon: r.StartLon,
		EndLat:   r.EndLat,
		EndLon:   r.EndLon,
		RoadType: r.RoadType,
	}
}

// Recorder observes matcher activity.
type Recorder interface {
	ObserveCandidates(n int)
	ObserveTrajectory(points int, elapsed time.Duration, err error)
}

type nopRecorder struct{}

func (nopRecorder) ObserveCandidates(int) {}

func (nopRecorder) ObserveTrajectory(int, time.Duration, error) {}

// Matcher snaps trajectories onto the segments of an Index. Each point is
// matched on its own, using only the previous point for motion features.
// A Matcher holds no per-trajectory state and may be shared across goroutines.
type Matcher struct {
	index     *Index
	scorer    *Scorer
	neighbors int
	log       *zap.Logger
	recorder  Recorder
}

// Option configures a Matcher.
type Option func(*Matcher)

// WithLogger sets the logger used for per-trajectory debug output.
func WithLogger(log *zap.Logger) Option {
	return func(m *Matcher) {
		if log != nil {
			m.log = log
		}
	}
}

// WithRecorder sets the metrics hook.
func WithRecorder(r Recorder) Option {
	return func(m *Matcher) {
		if r != nil {
			m.recorder = r
		}
	}
}

// NewMatcher creates a matcher over index using the policy in cfg.
func NewMatcher(index *Index, cfg Config, opts ...Option) (*Matcher, error) {
	if index.Len() == 0 {
		return nil, ErrEmptyRoadNetwork
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	approx, err := NewApproximation(cfg.Approximation)
	if err != nil {
		return nil, err
	}

	m := &Matcher{
		index:     index,
		scorer:    NewScorer(cfg, approx),
		neighbors: cfg.Neighbors,
		log:       zap.NewNop(),
		recorder:  nopRecorder{},
	}
	for _, opt := range opts {
		opt(m)
	}
	return m, nil
}

// MatchTrajectory matches trajectory against index with the default policy.
func MatchTrajectory(ctx context.Context, trajectory []road.TrajectoryPoint, index *Index) ([]MatchedRecord, error) {
	m, err := NewMatcher(index, DefaultConfig())
	if err != nil {
		return nil, err
	}
	return m.Match(ctx, trajectory)
}

// Index returns the index the matcher queries.
func (m *Matcher) Index() *Index {
	return m.index
}

// Match returns one record per trajectory point, in input order. Any per-point
// failure, including ctx being done, aborts the run with a *MatchError.
func (m *Matcher) Match(ctx context.Context, trajectory []road.TrajectoryPoint) ([]MatchedRecord, error) {
	start := time.Now()
	records, err := m.match(ctx, trajectory)
	elapsed := time.Since(start)
	m.recorder.ObserveTrajectory(len(trajectory), elapsed, err)

	if err != nil {
		m.log.Debug("trajectory match failed", zap.Int("points", len(trajectory)), zap.Error(err))
		return nil, err
	}
	m.log.Debug("trajectory matched", zap.Int("points", len(trajectory)), zap.Duration("elapsed", elapsed))
	return records, nil
}

func (m *Matcher) match(ctx context.Context, trajectory []road.TrajectoryPoint) ([]MatchedRecord, error) {
	records := make([]MatchedRecord, 0, len(trajectory))

	k := m.neighbors
	if n := m.index.Len(); n < k {
		k = n
	}

	var prev *road.TrajectoryPoint
	for i := range trajectory {
		if err := ctx.Err(); err != nil {
			return nil, &MatchError{Index: i, Err: err, Partial: records}
		}

		p := trajectory[i]
		if !geom.ValidCoordinate(p.Lat, p.Lon) {
			return nil, &MatchError{Index: i, Err: ErrInvalidPoint, Partial: records}
		}

		motion := ExtractMotion(p, prev)
		candidates := m.index.Query(p.Point(), k)
		m.recorder.ObserveCandidates(len(candidates))

		best, score, ok := m.selectBest(p.Point(), motion.SpeedMPS, candidates)
		if !ok {
			return nil, &MatchError{Index: i, Err: ErrNoCandidate, Partial: records}
		}

		records = append(records, MatchedRecord{
			GPSLat:         p.Lat,
			GPSLon:         p.Lon,
			Timestamp:      p.Timestamp,
			SegmentID:      best.SegmentID,
			StartLat:       best.Segment.StartLat,
			StartLon:       best.Segment.StartLon,
			EndLat:         best.Segment.EndLat,
			EndLon:         best.Segment.EndLon,
			RoadType:       best.Segment.RoadType,
			DistanceMeters: motion.DistanceMeters,
			SpeedMPS:       motion.SpeedMPS,
			Score:          score,
		})
		prev = &trajectory[i]
	}
	return records, nil
}

// selectBest returns the lowest scoring candidate. Ties keep the earlier
// candidate in neighbor order.
func (m *Matcher) selectBest(gps orb.Point, speedMPS float64, candidates []Candidate) (Candidate, float64, bool) {
	var best Candidate
	bestScore := math.Inf(1)
	found := false
	for _, c := range candidates {
		score := m.scorer.Score(gps, speedMPS, c.Segment)
		if score < bestScore {
			best = c
			bestScore = score
			found = true
		}
	}
	return best, bestScore, found
}
