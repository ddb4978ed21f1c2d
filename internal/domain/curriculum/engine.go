package curriculum

import (
	"fmt"
	"sort"
	"strings"

	"github.com/learnpulse/adaptive-engine/internal/domain/performance"
)

// EngineConfig holds the decision-rule constants. Like the classifier
// thresholds these are product configuration, not invariants.
type EngineConfig struct {
	// WeakTopicThreshold is the minimum weak-topic tally for remedial
	// injection.
	WeakTopicThreshold int

	// RemedialMinutes is the fixed estimated duration per remedial item.
	RemedialMinutes int

	// SkipMinAttempts is the minimum quiz attempts before allow_skip.
	SkipMinAttempts int
}

// DefaultEngineConfig returns the product defaults.
func DefaultEngineConfig() EngineConfig {
	return EngineConfig{
		WeakTopicThreshold: 2,
		RemedialMinutes:    15,
		SkipMinAttempts:    3,
	}
}

// Engine produces adaptation decisions from classifier output and
// curriculum state. It holds no mutable state: Decide is deterministic, so
// recomputing with unchanged inputs yields an identical decision, and it is
// safe to call concurrently for different keys.
type Engine struct {
	cfg     EngineConfig
	prereqs PrerequisiteResolver
}

// NewEngine creates a decision engine. A nil resolver falls back to
// synthesized foundations items.
func NewEngine(cfg EngineConfig, prereqs PrerequisiteResolver) *Engine {
	if cfg.WeakTopicThreshold <= 0 {
		cfg.WeakTopicThreshold = 2
	}
	if cfg.RemedialMinutes <= 0 {
		cfg.RemedialMinutes = 15
	}
	if cfg.SkipMinAttempts <= 0 {
		cfg.SkipMinAttempts = 3
	}
	if prereqs == nil {
		prereqs = NewStaticPrerequisites(nil)
	}
	return &Engine{cfg: cfg, prereqs: prereqs}
}

// Decide evaluates the decision rules in precedence order (first match
// wins; topic reranking may compose with any other decision) and returns a
// fresh decision for the key.
func (e *Engine) Decide(agg *performance.Aggregate, cls performance.Classification, plan *Plan) *Decision {
	d := &Decision{
		ID:         decisionID(agg.StudentID, agg.ModuleID, agg.Revision),
		StudentID:  agg.StudentID,
		ModuleID:   agg.ModuleID,
		Type:       DecisionNoAction,
		Priority:   PriorityLow,
		Revision:   agg.Revision,
		ComputedAt: agg.LastActivityAt,
	}

	remaining := plan.Remaining()

	// Rule 1: anomaly, critical tier, or a recurring weak topic while the
	// average sits below the satisfactory band forces remediation. The
	// tier clauses need at least one attempt so an untouched key does not
	// trigger from a zero average. Without any recurring weak topic the
	// rule produces no actions and evaluation falls through.
	belowSatisfactory := cls.Tier == performance.TierCritical || cls.Tier == performance.TierStruggling
	if cls.IsAnomaly || (belowSatisfactory && agg.TotalQuizAttempts > 0) {
		actions, covered := e.remedialActions(agg, remaining)
		if len(actions) > 0 {
			actions = append(actions, e.rerankActions(agg, remaining)...)
			d.Type = DecisionInjectRemedial
			d.Priority = PriorityCritical
			d.Actions = actions
			d.Rationale = e.remedialRationale(agg, cls, covered)
			return d
		}
	}

	// Rule 2: struggling tier reranks upcoming topics toward weak areas.
	if cls.Tier == performance.TierStruggling {
		if moves := e.rerankActions(agg, remaining); len(moves) > 0 {
			d.Type = DecisionRerankTopics
			d.Priority = PriorityHigh
			d.Actions = moves
			d.Rationale = fmt.Sprintf(
				"average score %.1f in tier %s: moving %d weak topics to the front of the remaining sequence",
				agg.AverageScore(), cls.Tier, len(moves))
			return d
		}
	}

	// Rule 3: sustained excellence with no struggles allows acceleration.
	if cls.Tier == performance.TierExcellent && agg.StruggleCount == 0 &&
		agg.TotalQuizAttempts >= e.cfg.SkipMinAttempts {
		if marks := e.skipActions(plan, remaining); len(marks) > 0 {
			d.Type = DecisionAllowSkip
			d.Priority = PriorityLow
			d.Actions = marks
			d.Rationale = fmt.Sprintf(
				"average score %.1f over %d attempts with no struggles: %d low-difficulty topics marked skippable",
				agg.AverageScore(), agg.TotalQuizAttempts, len(marks))
			return d
		}
	}

	// Rules 4 and 5: trend-driven difficulty adjustment.
	if cls.Trend == performance.TrendImproving && plan.Difficulty < DifficultyExpert {
		next := plan.Difficulty.Increase()
		d.Type = DecisionAdjustDifficulty
		d.Priority = PriorityMedium
		d.Actions = []Action{{
			Kind:       ActionSetDifficulty,
			Difficulty: next,
			Reason:     "improving trend over recent quizzes",
		}}
		d.Rationale = fmt.Sprintf("improving trend: raising difficulty %s -> %s", plan.Difficulty, next)
		return d
	}
	if cls.Trend == performance.TrendDeclining && plan.Difficulty > DifficultyBeginner {
		next := plan.Difficulty.Decrease()
		d.Type = DecisionAdjustDifficulty
		d.Priority = PriorityMedium
		d.Actions = []Action{{
			Kind:       ActionSetDifficulty,
			Difficulty: next,
			Reason:     "declining trend over recent quizzes",
		}}
		d.Rationale = fmt.Sprintf("declining trend: lowering difficulty %s -> %s", plan.Difficulty, next)
		return d
	}

	// Rule 6: nothing to adapt.
	d.Rationale = "performance within expected band: no adaptation needed"
	return d
}

// remedialActions builds insert_remedial actions for every weak topic at or
// above the tally threshold, ordered so items land before the first
// occurrence of their weak topic in the remaining sequence. It returns the
// covered weak topics for the rationale.
func (e *Engine) remedialActions(agg *performance.Aggregate, remaining []Topic) ([]Action, []string) {
	weak := e.recurringWeakTopics(agg, remaining)
	if len(weak) == 0 {
		return nil, nil
	}

	var actions []Action
	for _, topic := range weak {
		for _, prereq := range e.prereqs.Prerequisites(topic) {
			actions = append(actions, Action{
				Kind:             ActionInsertRemedial,
				Topic:            prereq,
				Before:           topic,
				Difficulty:       DifficultyBeginner,
				EstimatedMinutes: e.cfg.RemedialMinutes,
				Reason:           fmt.Sprintf("prerequisite for recurring weak topic %q", topic),
			})
		}
	}
	return actions, weak
}

// recurringWeakTopics returns weak topics with tally >= threshold, ordered
// by first occurrence in the remaining sequence; topics absent from the
// sequence follow in name order so the output is deterministic.
func (e *Engine) recurringWeakTopics(agg *performance.Aggregate, remaining []Topic) []string {
	position := make(map[string]int, len(remaining))
	for i, t := range remaining {
		if _, ok := position[t.Name]; !ok {
			position[t.Name] = i
		}
	}

	var inPlan, offPlan []string
	for topic, count := range agg.WeakTopicTally {
		if count < e.cfg.WeakTopicThreshold {
			continue
		}
		if _, ok := position[topic]; ok {
			inPlan = append(inPlan, topic)
		} else {
			offPlan = append(offPlan, topic)
		}
	}
	sort.Slice(inPlan, func(i, j int) bool { return position[inPlan[i]] < position[inPlan[j]] })
	sort.Strings(offPlan)
	return append(inPlan, offPlan...)
}

// rerankActions computes a stable partition of the remaining sequence: every
// topic whose name appears in the weak-topic tally moves to the earliest
// feasible position, preserving relative order among moved and unmoved
// topics alike. Only topics whose position actually changes produce actions.
// Remedial items never move; they stay pinned ahead of their weak topic, so
// positions index the non-remedial remaining sequence.
func (e *Engine) rerankActions(agg *performance.Aggregate, remaining []Topic) []Action {
	if len(remaining) == 0 || len(agg.WeakTopicTally) == 0 {
		return nil
	}

	var weak, rest []Topic
	for _, t := range remaining {
		if t.Remedial {
			continue
		}
		if _, ok := agg.WeakTopicTally[t.Name]; ok {
			weak = append(weak, t)
		} else {
			rest = append(rest, t)
		}
	}
	if len(weak) == 0 {
		return nil
	}

	ordered := make([]Topic, 0, len(weak)+len(rest))
	for _, t := range remaining {
		if !t.Remedial {
			ordered = append(ordered, t)
		}
	}
	oldPos := make(map[string]int, len(ordered))
	for i, t := range ordered {
		oldPos[t.Name] = i
	}

	var actions []Action
	for newIdx, t := range append(weak, rest...) {
		if oldPos[t.Name] == newIdx {
			continue
		}
		reason := "standard progression"
		if _, ok := agg.WeakTopicTally[t.Name]; ok {
			reason = "identified as weak area: prioritizing review"
		}
		actions = append(actions, Action{
			Kind:     ActionMoveTopic,
			Topic:    t.Name,
			Position: newIdx,
			Reason:   reason,
		})
	}
	return actions
}

// skipActions marks remaining low-difficulty topics skippable. A topic
// counts as low difficulty when it sits below the module's current level,
// or at beginner level outright.
func (e *Engine) skipActions(plan *Plan, remaining []Topic) []Action {
	var actions []Action
	for _, t := range remaining {
		if t.Remedial {
			continue
		}
		if t.Difficulty < plan.Difficulty || t.Difficulty == DifficultyBeginner {
			actions = append(actions, Action{
				Kind:   ActionMarkSkippable,
				Topic:  t.Name,
				Reason: "mastered material at this difficulty",
			})
		}
	}
	return actions
}

func (e *Engine) remedialRationale(agg *performance.Aggregate, cls performance.Classification, covered []string) string {
	var cause string
	switch {
	case cls.IsAnomaly && cls.Tier != performance.TierCritical:
		cause = fmt.Sprintf("anomaly flagged (%.0fs on module)", float64(agg.TotalTimeSpentSeconds))
	case cls.IsAnomaly:
		cause = fmt.Sprintf("anomaly flagged with average score %.1f", agg.AverageScore())
	default:
		cause = fmt.Sprintf("average score %.1f in tier %s", agg.AverageScore(), cls.Tier)
	}
	return fmt.Sprintf("%s: injecting prerequisites ahead of %s",
		cause, strings.Join(covered, ", "))
}
