package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"strings"
	"syscall"
	"time"

	"go.uber.org/zap"

	"kuanb/gosm-matcher/api"
	"kuanb/gosm-matcher/config"
	"kuanb/gosm-matcher/geocode"
	"kuanb/gosm-matcher/ingest"
	"kuanb/gosm-matcher/logger"
	"kuanb/gosm-matcher/matching"
	"kuanb/gosm-matcher/metrics"
	"kuanb/gosm-matcher/osm"
	"kuanb/gosm-matcher/road"
	"kuanb/gosm-matcher/store"
)

var (
	configDir      = flag.String("config", ".", "directory searched for config.{yaml,json,toml}")
	networkPath    = flag.String("network", "", "road network file (.csv or .osm.pbf), overrides ROAD_NETWORK_PATH")
	persistNetwork = flag.Bool("persist-network", false, "store the loaded road network in the database")
	statsInterval  = flag.Duration("stats-interval", 30*time.Second, "runtime stats log interval, 0 disables")
)

func main() {
	flag.Parse()

	cfg, err := config.Load(*configDir)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}
	if *networkPath != "" {
		cfg.RoadNetworkPath = *networkPath
	}

	log, err := logger.New(cfg.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "create logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log); err != nil {
		log.Fatal("gosm-matcher stopped", zap.Error(err))
	}
	log.Info("gosm-matcher stopped")
}

func run(ctx context.Context, cfg *config.Config, log *zap.Logger) error {
	log.Info("gosm-matcher starting", zap.String("addr", cfg.Addr), zap.String("index", cfg.Matching.Index))

	var db *store.Store
	if cfg.DBPath != "" {
		var err error
		if db, err = store.Open(ctx, cfg.DBPath); err != nil {
			return err
		}
		defer db.Close()
	}

	segments, err := loadNetwork(ctx, cfg.RoadNetworkPath, db, log)
	if err != nil {
		return err
	}
	if db != nil && *persistNetwork && cfg.RoadNetworkPath != "" {
		n, err := db.SaveSegments(ctx, segments)
		if err != nil {
			return err
		}
		log.Info("road network stored", zap.Int("segments", n))
	}

	collector := metrics.NewCollector()
	opts := []api.Option{
		api.WithMetrics(collector.Handler()),
		api.WithTimeout(cfg.RequestTimeout),
		api.WithWorkers(cfg.Workers),
		api.WithMatching(cfg.Matching, matching.WithRecorder(collector)),
	}
	if db != nil {
		opts = append(opts, api.WithStore(db))
	}
	if cfg.Geocoder.Enabled {
		opts = append(opts, api.WithGeocoder(geocode.NewClient(cfg.Geocoder.Config, log, collector)))
	}

	var matcher *matching.Matcher
	if len(segments) == 0 {
		log.Warn("no road network loaded, only uploads can be matched")
	} else {
		start := time.Now()
		index, err := matching.NewIndex(segments, cfg.Matching)
		if err != nil {
			return err
		}
		matcher, err = matching.NewMatcher(index, cfg.Matching, matching.WithLogger(log), matching.WithRecorder(collector))
		if err != nil {
			return err
		}
		collector.SetSegments(index.Len())
		log.Info("index built", zap.Int("segments", index.Len()), zap.String("kind", index.Kind()),
			zap.Duration("elapsed", time.Since(start)))
	}

	if *statsInterval > 0 {
		go logRuntimeStats(ctx, log, *statsInterval)
	}

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           api.New(matcher, log, opts...).Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      cfg.RequestTimeout + 5*time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		log.Info("listening", zap.String("addr", cfg.Addr))
		serverErr <- srv.ListenAndServe()
	}()

	select {
	case err := <-serverErr:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		log.Info("shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

// loadNetwork reads segments from path, or from db when no path is set.
func loadNetwork(ctx context.Context, path string, db *store.Store, log *zap.Logger) ([]road.Segment, error) {
	start := time.Now()
	var (
		segments []road.Segment
		err      error
	)
	switch {
	case strings.HasSuffix(path, ".pbf"):
		segments, err = osm.LoadSegments(path, log)
	case path != "":
		var f *os.File
		if f, err = os.Open(path); err != nil {
			return nil, err
		}
		defer f.Close()
		segments, err = ingest.ReadSegments(f)
	case db != nil:
		segments, err = db.LoadSegments(ctx)
	default:
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load road network: %w", err)
	}
	log.Info("road network loaded", zap.String("source", sourceName(path)), zap.Int("segments", len(segments)),
		zap.Duration("elapsed", time.Since(start)))
	return segments, nil
}

func sourceName(path string) string {
	if path == "" {
		return "database"
	}
	return path
}

// logRuntimeStats logs memory and goroutine statistics until ctx is done.
func logRuntimeStats(ctx context.Context, log *zap.Logger, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			var m runtime.MemStats
			runtime.ReadMemStats(&m)
			log.Info("runtime stats",
				zap.Int("goroutines", runtime.NumGoroutine()),
				zap.Float64("alloc_mb", float64(m.Alloc)/1024/1024),
				zap.Float64("sys_mb", float64(m.Sys)/1024/1024),
				zap.Uint64("heap_objects", m.HeapObjects),
				zap.Uint32("gc_cycles", m.NumGC),
			)
		}
	}
}
