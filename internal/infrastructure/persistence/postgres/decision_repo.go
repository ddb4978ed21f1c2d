package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/learnpulse/adaptive-engine/internal/domain/curriculum"
	"github.com/learnpulse/adaptive-engine/internal/domain/shared"
)

// DecisionRepo is the append-only audit log of adaptation decisions. It
// implements curriculum.DecisionStore.
type DecisionRepo struct {
	conn *Connection
}

// NewDecisionRepo creates a decision repository.
func NewDecisionRepo(conn *Connection) *DecisionRepo {
	return &DecisionRepo{conn: conn}
}

// SaveDecision appends one decision. Decision IDs are deterministic per
// (key, revision), so replaying a decision after recovery hits the primary
// key and is ignored.
func (r *DecisionRepo) SaveDecision(ctx context.Context, d *curriculum.Decision) error {
	actions, err := json.Marshal(d.Actions)
	if err != nil {
		return fmt.Errorf("postgres: marshaling actions: %w", err)
	}

	_, err = r.conn.Exec(ctx, `
		INSERT INTO adaptation_decisions (
			id, student_id, module_id, decision_type, priority,
			actions, rationale, revision, computed_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (id) DO NOTHING`,
		d.ID, d.StudentID, d.ModuleID, string(d.Type), d.Priority.String(),
		actions, d.Rationale, d.Revision, d.ComputedAt)
	if err != nil {
		return shared.WrapError("postgres", "SaveDecision", shared.ErrPersistenceUnavailable,
			"inserting decision "+d.ID, err)
	}
	return nil
}

// ListByKey returns the most recent decisions for a key, newest first.
func (r *DecisionRepo) ListByKey(ctx context.Context, key shared.Key, limit int) ([]*curriculum.Decision, error) {
	if limit <= 0 {
		limit = 20
	}

	rows, err := r.conn.Query(ctx, `
		SELECT id, student_id, module_id, decision_type, priority,
		       actions, rationale, revision, computed_at
		FROM adaptation_decisions
		WHERE student_id = $1 AND module_id = $2
		ORDER BY revision DESC
		LIMIT $3`,
		key.StudentID, key.ModuleID, limit)
	if err != nil {
		return nil, shared.WrapError("postgres", "ListByKey", shared.ErrPersistenceUnavailable,
			"querying decisions for "+key.String(), err)
	}
	defer rows.Close()

	var out []*curriculum.Decision
	for rows.Next() {
		var (
			d        curriculum.Decision
			dType    string
			priority string
			actions  []byte
		)
		if err := rows.Scan(&d.ID, &d.StudentID, &d.ModuleID, &dType, &priority,
			&actions, &d.Rationale, &d.Revision, &d.ComputedAt); err != nil {
			return nil, shared.WrapError("postgres", "ListByKey", shared.ErrPersistenceUnavailable,
				"scanning decision row", err)
		}
		if err := json.Unmarshal(actions, &d.Actions); err != nil {
			return nil, fmt.Errorf("postgres: unmarshaling actions: %w", err)
		}
		d.Type = curriculum.DecisionType(dType)
		d.Priority = curriculum.ParsePriority(priority)
		out = append(out, &d)
	}
	if err := rows.Err(); err != nil {
		return nil, shared.WrapError("postgres", "ListByKey", shared.ErrPersistenceUnavailable,
			"iterating decisions", err)
	}
	return out, nil
}
