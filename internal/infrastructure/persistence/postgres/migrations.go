// Package postgres implements the PostgreSQL persistence layer for the
// adaptive engine.
package postgres

// ══════════════════════════════════════════════════════════════════════════════
// MIGRATION 001: CREATE PERFORMANCE AGGREGATES
// ══════════════════════════════════════════════════════════════════════════════

const migration001Up = `
-- Migration: Create performance aggregate snapshots
-- Version: 001

-- One row per (student, module) key. Snapshots are written on the flush
-- schedule; the live aggregate in memory is authoritative between flushes.
CREATE TABLE IF NOT EXISTS performance_aggregates (
    student_id VARCHAR(100) NOT NULL,
    module_id VARCHAR(100) NOT NULL,
    total_quiz_attempts INTEGER NOT NULL DEFAULT 0,
    score_sum DOUBLE PRECISION NOT NULL DEFAULT 0,
    struggle_count INTEGER NOT NULL DEFAULT 0,
    weak_topic_tally JSONB NOT NULL DEFAULT '{}'::jsonb,
    total_time_spent_seconds INTEGER NOT NULL DEFAULT 0,
    last_activity_at TIMESTAMP WITH TIME ZONE,
    recent_scores JSONB NOT NULL DEFAULT '[]'::jsonb,
    trend VARCHAR(20) NOT NULL DEFAULT 'stable',
    revision BIGINT NOT NULL DEFAULT 0,
    last_sequence BIGINT NOT NULL DEFAULT 0,
    completed BOOLEAN NOT NULL DEFAULT FALSE,
    final_score DOUBLE PRECISION NOT NULL DEFAULT 0,
    updated_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),

    PRIMARY KEY (student_id, module_id),

    CONSTRAINT valid_trend CHECK (trend IN ('improving', 'declining', 'stable')),
    CONSTRAINT valid_attempts CHECK (total_quiz_attempts >= 0),
    CONSTRAINT valid_time CHECK (total_time_spent_seconds >= 0)
);

CREATE INDEX IF NOT EXISTS idx_performance_aggregates_student ON performance_aggregates(student_id);
CREATE INDEX IF NOT EXISTS idx_performance_aggregates_activity ON performance_aggregates(last_activity_at);
CREATE INDEX IF NOT EXISTS idx_performance_aggregates_completed ON performance_aggregates(completed) WHERE completed;
`

const migration001Down = `
DROP TABLE IF EXISTS performance_aggregates;
`

// ══════════════════════════════════════════════════════════════════════════════
// MIGRATION 002: CREATE ADAPTATION DECISIONS
// ══════════════════════════════════════════════════════════════════════════════

const migration002Up = `
-- Migration: Create adaptation decision audit log
-- Version: 002

-- Append-only audit of every adaptation decision. The deterministic
-- decision ID makes replays after recovery idempotent inserts.
CREATE TABLE IF NOT EXISTS adaptation_decisions (
    id UUID PRIMARY KEY,
    student_id VARCHAR(100) NOT NULL,
    module_id VARCHAR(100) NOT NULL,
    decision_type VARCHAR(30) NOT NULL,
    priority VARCHAR(20) NOT NULL,
    actions JSONB NOT NULL DEFAULT '[]'::jsonb,
    rationale TEXT NOT NULL DEFAULT '',
    revision BIGINT NOT NULL DEFAULT 0,
    computed_at TIMESTAMP WITH TIME ZONE NOT NULL,
    created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),

    CONSTRAINT valid_decision_type CHECK (decision_type IN
        ('no_action', 'rerank_topics', 'inject_remedial', 'adjust_difficulty', 'allow_skip')),
    CONSTRAINT valid_priority CHECK (priority IN ('low', 'medium', 'high', 'critical'))
);

CREATE INDEX IF NOT EXISTS idx_adaptation_decisions_key ON adaptation_decisions(student_id, module_id, revision DESC);
CREATE INDEX IF NOT EXISTS idx_adaptation_decisions_created ON adaptation_decisions(created_at DESC);
CREATE INDEX IF NOT EXISTS idx_adaptation_decisions_priority ON adaptation_decisions(priority) WHERE priority = 'critical';
`

const migration002Down = `
DROP TABLE IF EXISTS adaptation_decisions;
`

// GetMigrations returns all embedded migrations.
func GetMigrations() []Migration {
	return []Migration{
		{
			Version: 1,
			Name:    "create_performance_aggregates",
			UpSQL:   migration001Up,
			DownSQL: migration001Down,
		},
		{
			Version: 2,
			Name:    "create_adaptation_decisions",
			UpSQL:   migration002Up,
			DownSQL: migration002Down,
		},
	}
}
