package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/learnpulse/adaptive-engine/internal/domain/performance"
	"github.com/learnpulse/adaptive-engine/internal/domain/shared"
)

// AggregateRepo persists performance-aggregate snapshots. It implements
// performance.SnapshotStore.
type AggregateRepo struct {
	conn *Connection
}

// NewAggregateRepo creates a snapshot repository.
func NewAggregateRepo(conn *Connection) *AggregateRepo {
	return &AggregateRepo{conn: conn}
}

const upsertAggregateSQL = `
	INSERT INTO performance_aggregates (
		student_id, module_id, total_quiz_attempts, score_sum,
		struggle_count, weak_topic_tally, total_time_spent_seconds,
		last_activity_at, recent_scores, trend, revision, last_sequence,
		completed, final_score, updated_at
	) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, NOW())
	ON CONFLICT (student_id, module_id) DO UPDATE SET
		total_quiz_attempts = EXCLUDED.total_quiz_attempts,
		score_sum = EXCLUDED.score_sum,
		struggle_count = EXCLUDED.struggle_count,
		weak_topic_tally = EXCLUDED.weak_topic_tally,
		total_time_spent_seconds = EXCLUDED.total_time_spent_seconds,
		last_activity_at = EXCLUDED.last_activity_at,
		recent_scores = EXCLUDED.recent_scores,
		trend = EXCLUDED.trend,
		revision = EXCLUDED.revision,
		last_sequence = EXCLUDED.last_sequence,
		completed = EXCLUDED.completed,
		final_score = EXCLUDED.final_score,
		updated_at = NOW()
	WHERE performance_aggregates.revision <= EXCLUDED.revision`

// SaveSnapshot upserts one snapshot. A stored row with a newer revision is
// left untouched.
func (r *AggregateRepo) SaveSnapshot(ctx context.Context, snap *performance.Aggregate) error {
	args, err := aggregateArgs(snap)
	if err != nil {
		return err
	}
	if _, err := r.conn.Exec(ctx, upsertAggregateSQL, args...); err != nil {
		return shared.WrapError("postgres", "SaveSnapshot", shared.ErrPersistenceUnavailable,
			"upserting aggregate "+snap.Key().String(), err)
	}
	return nil
}

// SaveSnapshots upserts a batch in one round trip.
func (r *AggregateRepo) SaveSnapshots(ctx context.Context, snaps []*performance.Aggregate) error {
	if len(snaps) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	for _, snap := range snaps {
		args, err := aggregateArgs(snap)
		if err != nil {
			return err
		}
		batch.Queue(upsertAggregateSQL, args...)
	}

	results := r.conn.Pool().SendBatch(ctx, batch)
	defer results.Close()
	for range snaps {
		if _, err := results.Exec(); err != nil {
			return shared.WrapError("postgres", "SaveSnapshots", shared.ErrPersistenceUnavailable,
				"flushing aggregate batch", err)
		}
	}
	return nil
}

// LoadAll returns every persisted snapshot for startup recovery.
func (r *AggregateRepo) LoadAll(ctx context.Context) ([]*performance.Aggregate, error) {
	rows, err := r.conn.Query(ctx, `
		SELECT student_id, module_id, total_quiz_attempts, score_sum,
		       struggle_count, weak_topic_tally, total_time_spent_seconds,
		       last_activity_at, recent_scores, trend, revision,
		       last_sequence, completed, final_score
		FROM performance_aggregates`)
	if err != nil {
		return nil, shared.WrapError("postgres", "LoadAll", shared.ErrPersistenceUnavailable,
			"querying aggregates", err)
	}
	defer rows.Close()

	var out []*performance.Aggregate
	for rows.Next() {
		snap, err := scanAggregate(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, snap)
	}
	if err := rows.Err(); err != nil {
		return nil, shared.WrapError("postgres", "LoadAll", shared.ErrPersistenceUnavailable,
			"iterating aggregates", err)
	}
	return out, nil
}

// Delete removes the snapshot for an evicted key.
func (r *AggregateRepo) Delete(ctx context.Context, key shared.Key) error {
	_, err := r.conn.Exec(ctx,
		`DELETE FROM performance_aggregates WHERE student_id = $1 AND module_id = $2`,
		key.StudentID, key.ModuleID)
	if err != nil {
		return shared.WrapError("postgres", "Delete", shared.ErrPersistenceUnavailable,
			"deleting aggregate "+key.String(), err)
	}
	return nil
}

func aggregateArgs(snap *performance.Aggregate) ([]interface{}, error) {
	tally, err := json.Marshal(snap.WeakTopicTally)
	if err != nil {
		return nil, fmt.Errorf("postgres: marshaling weak_topic_tally: %w", err)
	}
	scores, err := json.Marshal(snap.RecentScores)
	if err != nil {
		return nil, fmt.Errorf("postgres: marshaling recent_scores: %w", err)
	}
	return []interface{}{
		snap.StudentID, snap.ModuleID, snap.TotalQuizAttempts, snap.ScoreSum,
		snap.StruggleCount, tally, snap.TotalTimeSpentSeconds,
		snap.LastActivityAt, scores, string(snap.Trend), snap.Revision,
		snap.LastSequence, snap.Completed, snap.FinalScore,
	}, nil
}

func scanAggregate(rows pgx.Rows) (*performance.Aggregate, error) {
	var (
		snap   performance.Aggregate
		tally  []byte
		scores []byte
		trend  string
	)
	err := rows.Scan(
		&snap.StudentID, &snap.ModuleID, &snap.TotalQuizAttempts, &snap.ScoreSum,
		&snap.StruggleCount, &tally, &snap.TotalTimeSpentSeconds,
		&snap.LastActivityAt, &scores, &trend, &snap.Revision,
		&snap.LastSequence, &snap.Completed, &snap.FinalScore,
	)
	if err != nil {
		return nil, shared.WrapError("postgres", "LoadAll", shared.ErrPersistenceUnavailable,
			"scanning aggregate row", err)
	}
	if err := json.Unmarshal(tally, &snap.WeakTopicTally); err != nil {
		return nil, fmt.Errorf("postgres: unmarshaling weak_topic_tally: %w", err)
	}
	if err := json.Unmarshal(scores, &snap.RecentScores); err != nil {
		return nil, fmt.Errorf("postgres: unmarshaling recent_scores: %w", err)
	}
	snap.Trend = performance.Trend(trend)
	return &snap, nil
}
