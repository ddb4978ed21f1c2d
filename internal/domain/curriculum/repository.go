package curriculum

import (
	"context"

	"github.com/learnpulse/adaptive-engine/internal/domain/shared"
)

// DecisionStore persists adaptation decisions for audit. Writes are
// append-only; a decision is never updated after the fact.
type DecisionStore interface {
	// SaveDecision appends one decision. Saving a decision whose ID
	// already exists is a no-op, so replays after recovery are safe.
	SaveDecision(ctx context.Context, d *Decision) error

	// ListByKey returns the most recent decisions for a key, newest
	// first, up to limit.
	ListByKey(ctx context.Context, key shared.Key, limit int) ([]*Decision, error)
}

// PlanStore holds the current curriculum plan per key.
type PlanStore interface {
	// Get returns the plan for a key, or shared.ErrNotFound.
	Get(ctx context.Context, key shared.Key) (*Plan, error)

	// Save upserts the plan.
	Save(ctx context.Context, p *Plan) error

	// Delete removes the plan for a key.
	Delete(ctx context.Context, key shared.Key) error
}
