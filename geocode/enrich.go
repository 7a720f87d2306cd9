package geocode

import (
	"context"
	"math"

	"go.uber.org/zap"

	"kuanb/gosm-matcher/matching"
)

// Reverser resolves a coordinate to a place.
type Reverser interface {
	Reverse(ctx context.Context, lat, lon float64) (Place, error)
}

// EnrichedRecord is a matched record with its place names.
type EnrichedRecord struct {
	matching.MatchedRecord
	Place
}

// Enrich looks up a place for every record's GPS fix. Lookup failures are
// logged and leave the names empty; they never fail the batch. Fixes that
// round to the same ~1 m cell share one lookup.
func Enrich(ctx context.Context, r Reverser, records []matching.MatchedRecord, log *zap.Logger) []EnrichedRecord {
	if log == nil {
		log = zap.NewNop()
	}
	type cell struct{ lat, lon int64 }
	cache := make(map[cell]Place)

	out := make([]EnrichedRecord, len(records))
	for i, rec := range records {
		out[i].MatchedRecord = rec
		if ctx.Err() != nil {
			continue
		}

		key := cell{int64(math.Round(rec.GPSLat * 1e5)), int64(math.Round(rec.GPSLon * 1e5))}
		if place, ok := cache[key]; ok {
			out[i].Place = place
			continue
		}
		place, err := r.Reverse(ctx, rec.GPSLat, rec.GPSLon)
		if err != nil {
			log.Warn("reverse geocode failed",
				zap.Int("record", i), zap.Float64("lat", rec.GPSLat), zap.Float64("lon", rec.GPSLon), zap.Error(err))
			continue
		}
		cache[key] = place
		out[i].Place = place
	}
	return out
}
