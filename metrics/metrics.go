// Package metrics exposes matcher and geocoder activity to Prometheus.
package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"kuanb/gosm-matcher/matching"
)

// Collector implements matching.Recorder and geocode.Recorder on a private registry.
type Collector struct {
	reg *prometheus.Registry

	TrajectoriesMatched prometheus.Counter
	PointsMatched       prometheus.Counter
	MatchErrors         *prometheus.CounterVec // reason label: cancelled|invalid_point|no_candidate|other

	MatchDuration prometheus.Histogram
	Candidates    prometheus.Histogram

	GeocodeRequests prometheus.Counter
	GeocodeFailures prometheus.Counter

	Segments prometheus.Gauge
}

func NewCollector() *Collector {
	reg := prometheus.NewRegistry()

	c := &Collector{
		reg: reg,
		TrajectoriesMatched: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "matcher_trajectories_matched_total",
			Help: "Total trajectories matched without error.",
		}),
		PointsMatched: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "matcher_points_matched_total",
			Help: "Total GPS points matched to a segment.",
		}),
		MatchErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "matcher_match_errors_total",
			Help: "Trajectory matches aborted by an error.",
		}, []string{"reason"}),
		MatchDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "matcher_match_duration_seconds",
			Help:    "Time to match one trajectory.",
			Buckets: prometheus.ExponentialBuckets(0.0005, 2, 15),
		}),
		Candidates: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "matcher_candidates",
			Help:    "Candidate segments considered per GPS point.",
			Buckets: prometheus.LinearBuckets(0, 1, 11),
		}),
		GeocodeRequests: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "matcher_geocode_requests_total",
			Help: "Total reverse geocoding lookups.",
		}),
		GeocodeFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "matcher_geocode_failures_total",
			Help: "Reverse geocoding lookups that failed after retries.",
		}),
		Segments: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "matcher_road_segments",
			Help: "Number of road segments in the loaded index.",
		}),
	}

	reg.MustRegister(
		c.TrajectoriesMatched, c.PointsMatched, c.MatchErrors,
		c.MatchDuration, c.Candidates,
		c.GeocodeRequests, c.GeocodeFailures,
		c.Segments,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return c
}

func (c *Collector) Handler() http.Handler { return promhttp.HandlerFor(c.reg, promhttp.HandlerOpts{}) }

func (c *Collector) ObserveCandidates(n int) {
	c.Candidates.Observe(float64(n))
}

func (c *Collector) ObserveTrajectory(points int, elapsed time.Duration, err error) {
	c.MatchDuration.Observe(elapsed.Seconds())
	if err != nil {
		c.MatchErrors.WithLabelValues(reason(err)).Inc()
		return
	}
	c.TrajectoriesMatched.Inc()
	c.PointsMatched.Add(float64(points))
}

func (c *Collector) ObserveGeocode(err error) {
	c.GeocodeRequests.Inc()
	if err != nil {
		c.GeocodeFailures.Inc()
	}
}

// SetSegments records the size of the loaded road network.
func (c *Collector) SetSegments(n int) {
	c.Segments.Set(float64(n))
}

func reason(err error) string {
	switch {
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "cancelled"
	case errors.Is(err, matching.ErrInvalidPoint):
		return "invalid_point"
	case errors.Is(err, matching.ErrNoCandidate):
		return "no_candidate"
	default:
		return "other"
	}
}
