package matching

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"kuanb/gosm-matcher/road"
)

// MatchBatch matches independent trajectories in parallel, at most workers at a
// time (unbounded when workers <= 0). Points within a trajectory stay in order.
// The first failure cancels the remaining runs and no results are returned.
func (m *Matcher) MatchBatch(ctx context.Context, trajectories [][]road.TrajectoryPoint, workers int) ([][]MatchedRecord, error) {
	results := make([][]MatchedRecord, len(trajectories))

	g, gctx := errgroup.WithContext(ctx)
	if workers > 0 {
		g.SetLimit(workers)
	}
	for i := range trajectories {
		i := i
		g.Go(func() error {
			records, err := m.Match(gctx, trajectories[i])
			if err != nil {
				return fmt.Errorf("trajectory %d: %w", i, err)
			}
			results[i] = records
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}
