// Package config loads server settings from .env, an optional config file and
// the environment, in increasing precedence.
package config

import (
	"errors"
	"fmt"
	"runtime"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"kuanb/gosm-matcher/geocode"
	"kuanb/gosm-matcher/matching"
)

type Config struct {
	Addr            string          `mapstructure:"addr"`
	RoadNetworkPath string          `mapstructure:"road_network_path"` // .csv or .osm.pbf
	DBPath          string          `mapstructure:"db_path"`           // empty disables persistence
	LogLevel        string          `mapstructure:"log_level"`
	RequestTimeout  time.Duration   `mapstructure:"request_timeout"`
	Workers         int             `mapstructure:"workers"`
	Geocoder        GeocoderConfig  `mapstructure:"geocoder"`
	Matching        matching.Config `mapstructure:"matching"`
}

type GeocoderConfig struct {
	Enabled        bool `mapstructure:"enabled"`
	geocode.Config `mapstructure:",squash"`
}

func defaults() map[string]any {
	m := matching.DefaultConfig()
	g := geocode.DefaultConfig()
	return map[string]any{
		"addr":              ":8080",
		"road_network_path": "",
		"db_path":           "",
		"log_level":         "info",
		"request_timeout":   30 * time.Second,
		"workers":           runtime.GOMAXPROCS(0),

		"geocoder.enabled":         false,
		"geocoder.base_url":        g.BaseURL,
		"geocoder.user_agent":      g.UserAgent,
		"geocoder.rate_per_second": g.RatePerSecond,
		"geocoder.retries":         g.Retries,
		"geocoder.timeout":         g.Timeout,

		"matching.neighbors":            m.Neighbors,
		"matching.speed_threshold":      m.SpeedThreshold,
		"matching.road_type_bonus":      m.RoadTypeBonus,
		"matching.high_speed_road_type": m.HighSpeedRoadType,
		"matching.low_speed_road_type":  m.LowSpeedRoadType,
		"matching.index":                m.Index,
		"matching.approximation":        m.Approximation,
		"matching.leaf_size":            m.LeafSize,
	}
}

// envName maps a config key to its environment variable, e.g.
// matching.neighbors -> MATCH_NEIGHBORS, geocoder.base_url -> GEOCODER_BASE_URL.
func envName(key string) string {
	return strings.ToUpper(strings.NewReplacer("matching.", "match_", ".", "_").Replace(key))
}

// Load reads configuration. dir is searched for config.{yaml,json,toml}; a
// missing file is not an error.
func Load(dir string) (*Config, error) {
	// Load .env into environment (ignore if missing)
	_ = godotenv.Load()

	v := viper.New()
	for key, value := range defaults() {
		v.SetDefault(key, value)
		if err := v.BindEnv(key, envName(key)); err != nil {
			return nil, err
		}
	}

	if dir != "" {
		v.SetConfigName("config")
		v.AddConfigPath(dir)
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("read config file: %w", err)
			}
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	if c.RequestTimeout <= 0 {
		return fmt.Errorf("request timeout must be positive, got %s", c.RequestTimeout)
	}
	if c.Workers <= 0 {
		c.Workers = runtime.GOMAXPROCS(0)
	}
	if err := c.Matching.Validate(); err != nil {
		return fmt.Errorf("matching: %w", err)
	}
	return nil
}
