package tasks

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/oneclickdz/ocpay-reconciler/types"
	"github.com/redis/go-redis/v9"
)

// RunRecorder keeps the last run of each sweep tier in Redis for diagnostics
type RunRecorder struct {
	client redis.UniversalClient
}

// NewRunRecorder creates a new RunRecorder
func NewRunRecorder(client redis.UniversalClient) *RunRecorder {
	return &RunRecorder{client: client}
}

// Record stores the stats of a finished run. Skipped runs are not recorded.
func (r *RunRecorder) Record(ctx context.Context, stats types.SweepStats) error {
	if stats.Skipped {
		return nil
	}

	payload, err := json.Marshal(stats)
	if err != nil {
		return fmt.Errorf("marshal sweep stats: %w", err)
	}
	return r.client.Set(ctx, lastRunKeyPrefix+string(stats.Tier), payload, 0).Err()
}

// LastRun returns the last recorded run of a tier, or nil if it never ran
func (r *RunRecorder) LastRun(ctx context.Context, tier types.SweepTier) (*types.SweepStats, error) {
	payload, err := r.client.Get(ctx, lastRunKeyPrefix+string(tier)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var stats types.SweepStats
	if err := json.Unmarshal(payload, &stats); err != nil {
		return nil, fmt.Errorf("unmarshal sweep stats: %w", err)
	}
	return &stats, nil
}
