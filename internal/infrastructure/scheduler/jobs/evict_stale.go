package jobs

import (
	"context"
	"log/slog"
	"time"

	"github.com/learnpulse/adaptive-engine/internal/domain/curriculum"
	"github.com/learnpulse/adaptive-engine/internal/domain/performance"
	"github.com/learnpulse/adaptive-engine/internal/domain/shared"
	"github.com/learnpulse/adaptive-engine/internal/engine/aggregator"
	"github.com/learnpulse/adaptive-engine/pkg/timeutil"
)

// DefaultIdleTTL is how long a key may sit without activity before its
// aggregate is evicted.
const DefaultIdleTTL = 24 * time.Hour

// EvictStaleJob removes completed and idle aggregates from the aggregation
// engine and cleans up their dependent state: persisted snapshot, cached
// snapshot, and curriculum plan. Completed keys keep their persisted
// snapshot for audit; idle keys lose it along with everything else.
type EvictStaleJob struct {
	agg    *aggregator.Engine
	store  performance.SnapshotStore
	cache  performance.SnapshotCache
	plans  curriculum.PlanStore
	clock  timeutil.Clock
	ttl    time.Duration
	logger *slog.Logger
}

// NewEvictStaleJob creates the eviction job. The cache may be nil.
func NewEvictStaleJob(agg *aggregator.Engine, store performance.SnapshotStore, cache performance.SnapshotCache, plans curriculum.PlanStore, ttl time.Duration, clock timeutil.Clock, logger *slog.Logger) *EvictStaleJob {
	if ttl <= 0 {
		ttl = DefaultIdleTTL
	}
	if clock == nil {
		clock = timeutil.SystemClock{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &EvictStaleJob{
		agg:    agg,
		store:  store,
		cache:  cache,
		plans:  plans,
		clock:  clock,
		ttl:    ttl,
		logger: logger.With("job", "evict_stale"),
	}
}

// Name implements scheduler.Job.
func (j *EvictStaleJob) Name() string { return "evict_stale" }

// Description implements scheduler.Job.
func (j *EvictStaleJob) Description() string {
	return "evicts completed and idle performance aggregates"
}

// Run implements scheduler.Job.
func (j *EvictStaleJob) Run(ctx context.Context) error {
	completed := j.agg.EvictCompleted()
	for _, key := range completed {
		j.cleanup(ctx, key, false)
	}

	cutoff := j.clock.Now().Add(-j.ttl)
	idle := j.agg.EvictIdle(cutoff)
	for _, key := range idle {
		j.cleanup(ctx, key, true)
	}

	if len(completed)+len(idle) > 0 {
		j.logger.Info("aggregates evicted",
			"completed", len(completed), "idle", len(idle))
	}
	return nil
}

// cleanup is best-effort: a failed delete leaves an orphan row that the
// next run retries, never an inconsistent live state.
func (j *EvictStaleJob) cleanup(ctx context.Context, key shared.Key, dropSnapshot bool) {
	if dropSnapshot {
		if err := j.store.Delete(ctx, key); err != nil {
			j.logger.Debug("snapshot delete failed", "key", key.String(), "error", err)
		}
	}
	if j.cache != nil {
		if err := j.cache.Invalidate(ctx, key); err != nil {
			j.logger.Debug("cache invalidate failed", "key", key.String(), "error", err)
		}
	}
	if j.plans != nil {
		if err := j.plans.Delete(ctx, key); err != nil {
			j.logger.Debug("plan delete failed", "key", key.String(), "error", err)
		}
	}
}
