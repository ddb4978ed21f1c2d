// Package jobs contains the engine's background jobs: periodic snapshot
// flushing, stale-key eviction and ingress stats reporting.
package jobs

import (
	"context"
	"log/slog"

	"github.com/learnpulse/adaptive-engine/internal/domain/performance"
	"github.com/learnpulse/adaptive-engine/internal/engine/aggregator"
	"github.com/learnpulse/adaptive-engine/pkg/circuitbreaker"
	"github.com/learnpulse/adaptive-engine/pkg/retry"
)

// FlushSnapshotsJob periodically persists dirty aggregates to the snapshot
// store and refreshes the read cache. Persistence failures are retried with
// bounded backoff behind a circuit breaker; the in-memory aggregates remain
// authoritative either way.
type FlushSnapshotsJob struct {
	agg     *aggregator.Engine
	store   performance.SnapshotStore
	cache   performance.SnapshotCache
	retrier *retry.Retrier
	breaker *circuitbreaker.CircuitBreaker
	logger  *slog.Logger
}

// NewFlushSnapshotsJob creates the flush job. The cache may be nil.
func NewFlushSnapshotsJob(agg *aggregator.Engine, store performance.SnapshotStore, cache performance.SnapshotCache, logger *slog.Logger) *FlushSnapshotsJob {
	if logger == nil {
		logger = slog.Default()
	}
	return &FlushSnapshotsJob{
		agg:     agg,
		store:   store,
		cache:   cache,
		retrier: retry.StoreRetrier(),
		breaker: circuitbreaker.New("snapshot-store"),
		logger:  logger.With("job", "flush_snapshots"),
	}
}

// Name implements scheduler.Job.
func (j *FlushSnapshotsJob) Name() string { return "flush_snapshots" }

// Description implements scheduler.Job.
func (j *FlushSnapshotsJob) Description() string {
	return "persists dirty performance aggregates to the snapshot store"
}

// Run implements scheduler.Job.
func (j *FlushSnapshotsJob) Run(ctx context.Context) error {
	snaps := j.agg.DrainDirty()
	if len(snaps) == 0 {
		return nil
	}

	err := j.breaker.Execute(ctx, func(ctx context.Context) error {
		return j.retrier.Do(ctx, func(ctx context.Context) error {
			if err := j.store.SaveSnapshots(ctx, snaps); err != nil {
				return retry.Retryable(err)
			}
			return nil
		})
	})
	if err != nil {
		j.logger.Error("snapshot flush failed", "count", len(snaps), "error", err)
		return err
	}

	if j.cache != nil {
		for _, snap := range snaps {
			if err := j.cache.Put(ctx, snap); err != nil {
				j.logger.Debug("snapshot cache refresh failed",
					"key", snap.Key().String(), "error", err)
			}
		}
	}

	j.logger.Debug("snapshots flushed", "count", len(snaps))
	return nil
}
