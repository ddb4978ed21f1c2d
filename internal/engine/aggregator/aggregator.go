// Package aggregator maintains the per-key performance aggregates as an
// incremental fold over the accepted event stream. Keys are isolated behind
// a sharded map: different keys never block each other, while updates to
// one key are strictly serialized.
package aggregator

import (
	"context"
	"hash/fnv"
	"log/slog"
	"sync"
	"time"

	"github.com/learnpulse/adaptive-engine/internal/domain/performance"
	"github.com/learnpulse/adaptive-engine/internal/domain/shared"
)

// shardCount sizes the shard array. Power of two so the hash can be masked.
const shardCount = 32

// UpdateFunc is invoked after each applied event with the event itself and
// a point-in-time snapshot. It runs outside the shard lock so slow
// downstream work never blocks folds on other keys; invocations for one
// key arrive in fold order as long as the caller serializes Consume per
// key, which the ingress partitioning guarantees.
type UpdateFunc func(ctx context.Context, ev shared.InteractionEvent, snapshot *performance.Aggregate)

type shard struct {
	mu    sync.RWMutex
	aggs  map[shared.Key]*performance.Aggregate
	dirty map[shared.Key]struct{}
}

// Engine folds interaction events into performance aggregates. It
// implements the ingress sink contract.
type Engine struct {
	shards   [shardCount]*shard
	onUpdate UpdateFunc
	logger   *slog.Logger
}

// New creates an aggregation engine. onUpdate may be nil; set it later with
// SetUpdateFunc before events start flowing.
func New(onUpdate UpdateFunc, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	e := &Engine{
		onUpdate: onUpdate,
		logger:   logger.With("component", "aggregator"),
	}
	for i := range e.shards {
		e.shards[i] = &shard{
			aggs:  make(map[shared.Key]*performance.Aggregate),
			dirty: make(map[shared.Key]struct{}),
		}
	}
	return e
}

// SetUpdateFunc wires the downstream pipeline. Call before Start on the
// ingress; the function is read without synchronization afterwards.
func (e *Engine) SetUpdateFunc(fn UpdateFunc) {
	e.onUpdate = fn
}

func (e *Engine) shardFor(key shared.Key) *shard {
	h := fnv.New32a()
	h.Write([]byte(key.StudentID))
	h.Write([]byte{'/'})
	h.Write([]byte(key.ModuleID))
	return e.shards[h.Sum32()&(shardCount-1)]
}

// Consume folds one accepted event into its key's aggregate, creating the
// aggregate on first touch. Duplicate event IDs are no-ops. After a
// successful fold the update hook receives a snapshot, with the shard lock
// already released so downstream persistence or generator calls cannot
// stall folds for other keys sharing the shard.
func (e *Engine) Consume(ctx context.Context, ev shared.InteractionEvent) {
	key := ev.Key()
	s := e.shardFor(key)

	s.mu.Lock()
	agg, ok := s.aggs[key]
	if !ok {
		agg = performance.NewAggregate(key)
		s.aggs[key] = agg
	}
	if !agg.Apply(ev) {
		s.mu.Unlock()
		e.logger.Debug("duplicate event ignored", "event_id", ev.EventID, "key", key.String())
		return
	}
	s.dirty[key] = struct{}{}
	snap := agg.Snapshot()
	s.mu.Unlock()

	if e.onUpdate != nil {
		e.onUpdate(ctx, ev, snap)
	}
}

// Snapshot returns a point-in-time copy of the aggregate for a key, or
// shared.ErrNotFound when the key has never produced an event.
func (e *Engine) Snapshot(key shared.Key) (*performance.Aggregate, error) {
	s := e.shardFor(key)
	s.mu.RLock()
	defer s.mu.RUnlock()

	agg, ok := s.aggs[key]
	if !ok {
		return nil, shared.NewDomainError("aggregator", "Snapshot", shared.ErrNotFound,
			"no aggregate for key "+key.String())
	}
	return agg.Snapshot(), nil
}

// SnapshotAll returns snapshots of every aggregate belonging to a student,
// keyed by module ID.
func (e *Engine) SnapshotAll(studentID string) map[string]*performance.Aggregate {
	out := make(map[string]*performance.Aggregate)
	for _, s := range e.shards {
		s.mu.RLock()
		for key, agg := range s.aggs {
			if key.StudentID == studentID {
				out[key.ModuleID] = agg.Snapshot()
			}
		}
		s.mu.RUnlock()
	}
	return out
}

// Len returns the number of live aggregates.
func (e *Engine) Len() int {
	n := 0
	for _, s := range e.shards {
		s.mu.RLock()
		n += len(s.aggs)
		s.mu.RUnlock()
	}
	return n
}

// DrainDirty returns snapshots of every aggregate touched since the last
// call and clears the dirty marks. The flush job persists the result.
func (e *Engine) DrainDirty() []*performance.Aggregate {
	var out []*performance.Aggregate
	for _, s := range e.shards {
		s.mu.Lock()
		for key := range s.dirty {
			if agg, ok := s.aggs[key]; ok {
				out = append(out, agg.Snapshot())
			}
		}
		s.dirty = make(map[shared.Key]struct{})
		s.mu.Unlock()
	}
	return out
}

// EvictCompleted removes aggregates whose module has been completed and
// returns their keys so callers can clean up dependent state.
func (e *Engine) EvictCompleted() []shared.Key {
	var evicted []shared.Key
	for _, s := range e.shards {
		s.mu.Lock()
		for key, agg := range s.aggs {
			if agg.Completed {
				delete(s.aggs, key)
				delete(s.dirty, key)
				evicted = append(evicted, key)
			}
		}
		s.mu.Unlock()
	}
	return evicted
}

// EvictIdle removes aggregates with no activity since the cutoff and
// returns their keys. Completed aggregates are left for EvictCompleted.
func (e *Engine) EvictIdle(cutoff time.Time) []shared.Key {
	var evicted []shared.Key
	for _, s := range e.shards {
		s.mu.Lock()
		for key, agg := range s.aggs {
			if !agg.Completed && agg.LastActivityAt.Before(cutoff) {
				delete(s.aggs, key)
				delete(s.dirty, key)
				evicted = append(evicted, key)
			}
		}
		s.mu.Unlock()
	}
	return evicted
}

// Restore rebuilds the aggregate map from persisted snapshots. Recovery
// replays persisted aggregates, not raw events, so startup time stays
// bounded by key count. Call before the ingress starts draining.
func (e *Engine) Restore(ctx context.Context, store performance.SnapshotStore) error {
	snapshots, err := store.LoadAll(ctx)
	if err != nil {
		return shared.WrapError("aggregator", "Restore", shared.ErrPersistenceUnavailable,
			"loading snapshots", err)
	}
	for _, snap := range snapshots {
		key := snap.Key()
		s := e.shardFor(key)
		s.mu.Lock()
		s.aggs[key] = snap
		s.mu.Unlock()
	}
	e.logger.Info("aggregates restored", "count", len(snapshots))
	return nil
}
