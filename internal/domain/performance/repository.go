package performance

import (
	"context"

	"github.com/learnpulse/adaptive-engine/internal/domain/shared"
)

// SnapshotStore persists aggregate snapshots for crash recovery. The
// in-memory aggregates remain authoritative; the store is written on the
// flush schedule and read once at startup.
type SnapshotStore interface {
	// SaveSnapshot upserts one aggregate snapshot.
	SaveSnapshot(ctx context.Context, snapshot *Aggregate) error

	// SaveSnapshots upserts a batch in one round trip.
	SaveSnapshots(ctx context.Context, snapshots []*Aggregate) error

	// LoadAll returns every persisted snapshot, used to rebuild the
	// aggregate map after a restart.
	LoadAll(ctx context.Context) ([]*Aggregate, error)

	// Delete removes the snapshot for a key, after eviction.
	Delete(ctx context.Context, key shared.Key) error
}

// SnapshotCache is a read-through cache of the latest snapshot per key,
// serving external "current performance" queries without touching the
// aggregation engine.
type SnapshotCache interface {
	// Put stores the latest snapshot for its key.
	Put(ctx context.Context, snapshot *Aggregate) error

	// Get returns the cached snapshot, or shared.ErrNotFound.
	Get(ctx context.Context, key shared.Key) (*Aggregate, error)

	// Invalidate drops the cached snapshot for a key.
	Invalidate(ctx context.Context, key shared.Key) error
}
