// Package api serves map matching over HTTP.
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/julienschmidt/httprouter"
	"github.com/justinas/alice"
	"github.com/rs/cors"
	"go.uber.org/zap"

	"kuanb/gosm-matcher/geocode"
	"kuanb/gosm-matcher/matching"
	"kuanb/gosm-matcher/road"
)

const (
	defaultTimeout = 30 * time.Second
	maxBodyBytes   = 32 << 20
)

// MatchStore persists uploaded networks and match runs.
type MatchStore interface {
	SaveSegments(ctx context.Context, segments []road.Segment) (int, error)
	SaveMatches(ctx context.Context, records []matching.MatchedRecord) (int64, error)
	LoadMatches(ctx context.Context, runID int64) ([]matching.MatchedRecord, error)
}

type API struct {
	matcher     *matching.Matcher
	matchCfg    matching.Config
	matcherOpts []matching.Option
	geocoder    geocode.Reverser
	store       MatchStore
	metrics     http.Handler
	timeout     time.Duration
	workers     int
	log         *zap.Logger
}

type Option func(*API)

// WithGeocoder enables the geocode flag on match requests.
func WithGeocoder(r geocode.Reverser) Option {
	return func(api *API) { api.geocoder = r }
}

// WithStore persists upload runs and enables run lookup.
func WithStore(s MatchStore) Option {
	return func(api *API) { api.store = s }
}

// WithMetrics mounts h at /metrics.
func WithMetrics(h http.Handler) Option {
	return func(api *API) { api.metrics = h }
}

func WithTimeout(d time.Duration) Option {
	return func(api *API) {
		if d > 0 {
			api.timeout = d
		}
	}
}

func WithWorkers(n int) Option {
	return func(api *API) { api.workers = n }
}

// WithMatching sets the policy and matcher options used for uploaded networks.
func WithMatching(cfg matching.Config, opts ...matching.Option) Option {
	return func(api *API) {
		api.matchCfg = cfg
		api.matcherOpts = opts
	}
}

// New creates the API around a matcher for the loaded road network. matcher
// may be nil when the server only accepts uploads.
func New(matcher *matching.Matcher, log *zap.Logger, opts ...Option) *API {
	if log == nil {
		log = zap.NewNop()
	}
	api := &API{
		matcher:  matcher,
		matchCfg: matching.DefaultConfig(),
		timeout:  defaultTimeout,
		log:      log,
	}
	for _, opt := range opts {
		opt(api)
	}
	return api
}

// Handler returns the routed handler wrapped in the middleware chain.
func (api *API) Handler() http.Handler {
	router := httprouter.New()

	router.POST("/api/match", api.match)
	router.POST("/api/match/geojson", api.matchGeoJSON)
	router.POST("/api/match/batch", api.matchBatch)
	router.POST("/api/match/upload", api.matchUpload)
	router.GET("/api/match/runs/:id", api.run)
	if api.metrics != nil {
		router.Handler(http.MethodGet, "/metrics", api.metrics)
	}

	corsHandler := cors.New(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	})

	return alice.New(corsHandler.Handler, api.recoverPanic, Heartbeat("/healthz"), Logger(api.log)).Then(router)
}

func (api *API) requestContext(r *http.Request) (context.Context, context.CancelFunc) {
	return context.WithTimeout(r.Context(), api.timeout)
}
