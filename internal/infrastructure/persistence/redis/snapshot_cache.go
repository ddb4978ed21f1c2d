package redis

import (
	"context"
	"errors"

	"github.com/learnpulse/adaptive-engine/internal/domain/performance"
	"github.com/learnpulse/adaptive-engine/internal/domain/shared"
)

// SnapshotCache serves "current performance" reads from Redis without
// touching the aggregation engine. It implements performance.SnapshotCache.
type SnapshotCache struct {
	cache *Cache
}

// NewSnapshotCache creates a snapshot cache.
func NewSnapshotCache(cache *Cache) *SnapshotCache {
	return &SnapshotCache{cache: cache}
}

// SnapshotKey returns the cache key for a (student, module) pair.
func SnapshotKey(key shared.Key) string {
	return PrefixSnapshot + key.String()
}

// Put stores the latest snapshot for its key.
func (s *SnapshotCache) Put(ctx context.Context, snap *performance.Aggregate) error {
	if snap == nil {
		return nil
	}
	if err := s.cache.Set(ctx, SnapshotKey(snap.Key()), snap, TTLSnapshot); err != nil {
		return shared.WrapError("redis", "Put", shared.ErrServiceUnavailable,
			"caching snapshot "+snap.Key().String(), err)
	}
	return nil
}

// Get returns the cached snapshot, or shared.ErrNotFound on a miss.
func (s *SnapshotCache) Get(ctx context.Context, key shared.Key) (*performance.Aggregate, error) {
	var snap performance.Aggregate
	if err := s.cache.Get(ctx, SnapshotKey(key), &snap); err != nil {
		if errors.Is(err, ErrCacheMiss) {
			return nil, shared.NewDomainError("redis", "Get", shared.ErrNotFound,
				"no cached snapshot for "+key.String())
		}
		return nil, shared.WrapError("redis", "Get", shared.ErrServiceUnavailable,
			"loading snapshot "+key.String(), err)
	}
	return &snap, nil
}

// Invalidate drops the cached snapshot for an evicted key.
func (s *SnapshotCache) Invalidate(ctx context.Context, key shared.Key) error {
	if err := s.cache.Delete(ctx, SnapshotKey(key)); err != nil {
		return shared.WrapError("redis", "Invalidate", shared.ErrServiceUnavailable,
			"invalidating snapshot "+key.String(), err)
	}
	return nil
}
