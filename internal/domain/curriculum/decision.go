package curriculum

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// DecisionType classifies what kind of adaptation a decision carries.
type DecisionType string

const (
	DecisionNoAction         DecisionType = "no_action"
	DecisionRerankTopics     DecisionType = "rerank_topics"
	DecisionInjectRemedial   DecisionType = "inject_remedial"
	DecisionAdjustDifficulty DecisionType = "adjust_difficulty"
	DecisionAllowSkip        DecisionType = "allow_skip"
)

// Priority orders decisions for the orchestrator and the notification sink.
type Priority int

const (
	PriorityLow Priority = iota
	PriorityMedium
	PriorityHigh
	PriorityCritical
)

// String returns the string representation of the priority.
func (p Priority) String() string {
	switch p {
	case PriorityLow:
		return "low"
	case PriorityMedium:
		return "medium"
	case PriorityHigh:
		return "high"
	case PriorityCritical:
		return "critical"
	default:
		return "unknown"
	}
}

// ParsePriority parses a priority name, defaulting to low.
func ParsePriority(s string) Priority {
	switch s {
	case "critical":
		return PriorityCritical
	case "high":
		return PriorityHigh
	case "medium":
		return PriorityMedium
	default:
		return PriorityLow
	}
}

// ActionKind is the concrete operation an action descriptor requests.
type ActionKind string

const (
	// ActionInsertRemedial inserts a prerequisite/simplified item before
	// the first occurrence of the associated weak topic.
	ActionInsertRemedial ActionKind = "insert_remedial"

	// ActionMoveTopic moves a topic to a new position in the remaining
	// sequence.
	ActionMoveTopic ActionKind = "move_topic"

	// ActionSetDifficulty changes the module-level difficulty.
	ActionSetDifficulty ActionKind = "set_difficulty"

	// ActionMarkSkippable marks a remaining topic as skippable.
	ActionMarkSkippable ActionKind = "mark_skippable"
)

// Action is one ordered step of an adaptation decision.
type Action struct {
	Kind ActionKind `json:"kind"`

	// Topic is the target topic name (remedial item name for
	// insert_remedial).
	Topic string `json:"topic,omitempty"`

	// Before names the weak topic a remedial item must precede.
	Before string `json:"before,omitempty"`

	// Position is the target index within the remaining sequence for
	// move_topic.
	Position int `json:"position,omitempty"`

	// Difficulty applies to set_difficulty and remedial items.
	Difficulty Difficulty `json:"difficulty,omitempty"`

	// EstimatedMinutes is the fixed per-item duration for remedial items.
	EstimatedMinutes int `json:"estimated_minutes,omitempty"`

	// Reason is the per-action trace.
	Reason string `json:"reason,omitempty"`
}

// Decision is one adaptation decision for a (student, module) key. Created
// fresh on each re-evaluation, never mutated, consumed once by the
// orchestrator and then persisted for audit.
type Decision struct {
	ID        string       `json:"id"`
	StudentID string       `json:"student_id"`
	ModuleID  string       `json:"module_id"`
	Type      DecisionType `json:"decision_type"`
	Priority  Priority     `json:"priority"`
	Actions   []Action     `json:"actions"`
	Rationale string       `json:"rationale"`

	// Revision is the aggregate revision the decision was computed from.
	// The orchestrator discards decisions whose revision is older than the
	// latest one it has seen for the key (stale-key protection).
	Revision uint64 `json:"revision"`

	// ComputedAt is derived from the aggregate's last activity timestamp
	// so that recomputing with unchanged inputs yields an identical
	// decision.
	ComputedAt time.Time `json:"computed_at"`
}

// decisionNamespace is the UUIDv5 namespace for deterministic decision IDs.
var decisionNamespace = uuid.MustParse("9f2dc1a4-7c3b-4f61-8a52-0e64be0a6a11")

// decisionID derives a stable ID from the key and aggregate revision, so a
// recomputation over unchanged inputs produces the same decision.
func decisionID(studentID, moduleID string, revision uint64) string {
	name := fmt.Sprintf("%s/%s@%d", studentID, moduleID, revision)
	return uuid.NewSHA1(decisionNamespace, []byte(name)).String()
}

// IsActionable reports whether the decision requires the orchestrator to do
// anything.
func (d *Decision) IsActionable() bool {
	return d.Type != DecisionNoAction && len(d.Actions) > 0
}
