// Package memory provides in-process implementations of the persistence
// contracts. The plan store is the live working set even in production; the
// decision and snapshot stores back tests and single-node deployments
// without PostgreSQL.
package memory

import (
	"context"
	"sync"

	"github.com/learnpulse/adaptive-engine/internal/domain/curriculum"
	"github.com/learnpulse/adaptive-engine/internal/domain/performance"
	"github.com/learnpulse/adaptive-engine/internal/domain/shared"
)

// PlanStore is a mutex-guarded map of curriculum plans. It implements
// curriculum.PlanStore.
type PlanStore struct {
	mu    sync.RWMutex
	plans map[shared.Key]*curriculum.Plan
}

// NewPlanStore creates an empty plan store.
func NewPlanStore() *PlanStore {
	return &PlanStore{plans: make(map[shared.Key]*curriculum.Plan)}
}

// Get returns a copy of the plan for a key, or shared.ErrNotFound.
func (s *PlanStore) Get(ctx context.Context, key shared.Key) (*curriculum.Plan, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.plans[key]
	if !ok {
		return nil, shared.NewDomainError("memory", "Get", shared.ErrNotFound,
			"no plan for key "+key.String())
	}
	return p.Clone(), nil
}

// Save upserts the plan.
func (s *PlanStore) Save(ctx context.Context, p *curriculum.Plan) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.plans[p.Key()] = p.Clone()
	return nil
}

// Delete removes the plan for a key.
func (s *PlanStore) Delete(ctx context.Context, key shared.Key) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.plans, key)
	return nil
}

// DecisionStore is an in-memory append-only decision log. It implements
// curriculum.DecisionStore.
type DecisionStore struct {
	mu    sync.RWMutex
	byKey map[shared.Key][]*curriculum.Decision
	ids   map[string]struct{}
}

// NewDecisionStore creates an empty decision store.
func NewDecisionStore() *DecisionStore {
	return &DecisionStore{
		byKey: make(map[shared.Key][]*curriculum.Decision),
		ids:   make(map[string]struct{}),
	}
}

// SaveDecision appends one decision; duplicate IDs are ignored.
func (s *DecisionStore) SaveDecision(ctx context.Context, d *curriculum.Decision) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.ids[d.ID]; ok {
		return nil
	}
	s.ids[d.ID] = struct{}{}
	key := shared.Key{StudentID: d.StudentID, ModuleID: d.ModuleID}
	s.byKey[key] = append(s.byKey[key], d)
	return nil
}

// ListByKey returns the most recent decisions for a key, newest first.
func (s *DecisionStore) ListByKey(ctx context.Context, key shared.Key, limit int) ([]*curriculum.Decision, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	list := s.byKey[key]
	if limit <= 0 || limit > len(list) {
		limit = len(list)
	}
	out := make([]*curriculum.Decision, 0, limit)
	for i := len(list) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, list[i])
	}
	return out, nil
}

// SnapshotStore is an in-memory snapshot store. It implements
// performance.SnapshotStore.
type SnapshotStore struct {
	mu    sync.RWMutex
	snaps map[shared.Key]*performance.Aggregate
}

// NewSnapshotStore creates an empty snapshot store.
func NewSnapshotStore() *SnapshotStore {
	return &SnapshotStore{snaps: make(map[shared.Key]*performance.Aggregate)}
}

// SaveSnapshot upserts one snapshot.
func (s *SnapshotStore) SaveSnapshot(ctx context.Context, snap *performance.Aggregate) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snaps[snap.Key()] = snap
	return nil
}

// SaveSnapshots upserts a batch.
func (s *SnapshotStore) SaveSnapshots(ctx context.Context, snaps []*performance.Aggregate) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, snap := range snaps {
		s.snaps[snap.Key()] = snap
	}
	return nil
}

// LoadAll returns every stored snapshot.
func (s *SnapshotStore) LoadAll(ctx context.Context) ([]*performance.Aggregate, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*performance.Aggregate, 0, len(s.snaps))
	for _, snap := range s.snaps {
		out = append(out, snap)
	}
	return out, nil
}

// Delete removes the snapshot for a key.
func (s *SnapshotStore) Delete(ctx context.Context, key shared.Key) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.snaps, key)
	return nil
}
