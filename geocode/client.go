// Package geocode enriches matched records with place names from a
// Nominatim-compatible reverse geocoding API.
package geocode

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const defaultBaseURL = "https://nominatim.openstreetmap.org"

var errRetryable = errors.New("retryable geocoder response")

// Place is the administrative location of a coordinate.
type Place struct {
	City    string `json:"city"`
	State   string `json:"state"`
	Country string `json:"country"`
}

// Config configures the HTTP client.
type Config struct {
	BaseURL       string        `mapstructure:"base_url"`
	UserAgent     string        `mapstructure:"user_agent"`
	RatePerSecond float64       `mapstructure:"rate_per_second"`
	Retries       int           `mapstructure:"retries"`
	Timeout       time.Duration `mapstructure:"timeout"`
}

// DefaultConfig follows the public Nominatim usage policy of one request per second.
func DefaultConfig() Config {
	return Config{
		BaseURL:       defaultBaseURL,
		UserAgent:     "gosm-matcher",
		RatePerSecond: 1,
		Retries:       3,
		Timeout:       10 * time.Second,
	}
}

// Recorder observes geocoder calls.
type Recorder interface {
	ObserveGeocode(err error)
}

// Client calls the reverse endpoint, rate limited and retried on transient failures.
type Client struct {
	httpClient *http.Client
	baseURL    string
	userAgent  string
	limiter    *rate.Limiter
	retries    int
	backoff    time.Duration
	log        *zap.Logger
	recorder   Recorder
}

// NewClient creates a client. A nil logger disables logging.
func NewClient(cfg Config, log *zap.Logger, recorder Recorder) *Client {
	if log == nil {
		log = zap.NewNop()
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultBaseURL
	}
	limit := rate.Inf
	if cfg.RatePerSecond > 0 {
		limit = rate.Limit(cfg.RatePerSecond)
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	return &Client{
		httpClient: &http.Client{Timeout: cfg.Timeout},
		baseURL:    cfg.BaseURL,
		userAgent:  cfg.UserAgent,
		limiter:    rate.NewLimiter(limit, 1),
		retries:    cfg.Retries,
		backoff:    250 * time.Millisecond,
		log:        log,
		recorder:   recorder,
	}
}

type reverseResponse struct {
	Error   string `json:"error"`
	Address struct {
		City    string `json:"city"`
		Town    string `json:"town"`
		Village string `json:"village"`
		State   string `json:"state"`
		Country string `json:"country"`
	} `json:"address"`
}

// Reverse looks up the place at lat/lon. A coordinate the service cannot place
// (open sea) yields an empty Place and no error.
func (c *Client) Reverse(ctx context.Context, lat, lon float64) (Place, error) {
	var (
		place Place
		err   error
	)
	for attempt := 0; attempt <= c.retries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return Place{}, ctx.Err()
			case <-time.After(c.backoff << (attempt - 1)):
			}
		}
		place, err = c.reverseOnce(ctx, lat, lon)
		if err == nil || !errors.Is(err, errRetryable) {
			break
		}
		c.log.Debug("retrying reverse geocode", zap.Int("attempt", attempt+1), zap.Error(err))
	}
	if c.recorder != nil {
		c.recorder.ObserveGeocode(err)
	}
	return place, err
}

func (c *Client) reverseOnce(ctx context.Context, lat, lon float64) (Place, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return Place{}, err
	}

	q := url.Values{}
	q.Set("format", "jsonv2")
	q.Set("lat", strconv.FormatFloat(lat, 'f', -1, 64))
	q.Set("lon", strconv.FormatFloat(lon, 'f', -1, 64))
	q.Set("zoom", "10")
	q.Set("addressdetails", "1")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/reverse?"+q.Encode(), nil)
	if err != nil {
		return Place{}, err
	}
	req.Header.Set("Accept", "application/json")
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return Place{}, ctx.Err()
		}
		return Place{}, fmt.Errorf("%w: %v", errRetryable, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		return Place{}, fmt.Errorf("%w: status %d", errRetryable, resp.StatusCode)
	case resp.StatusCode != http.StatusOK:
		return Place{}, fmt.Errorf("reverse geocode: status %d", resp.StatusCode)
	}

	var body reverseResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return Place{}, fmt.Errorf("decode reverse geocode response: %w", err)
	}
	if body.Error != "" {
		return Place{}, nil
	}

	city := body.Address.City
	if city == "" {
		city = body.Address.Town
	}
	if city == "" {
		city = body.Address.Village
	}
	return Place{City: city, State: body.Address.State, Country: body.Address.Country}, nil
}
