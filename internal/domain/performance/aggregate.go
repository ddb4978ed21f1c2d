// Package performance contains the per-key performance aggregate and the
// pure classifier that maps it to a tier and trend. The aggregate is a cache
// of the event log: every field is recomputable by replaying events, and the
// fold is idempotent per event ID so at-least-once delivery is safe.
package performance

import (
	"time"

	"github.com/learnpulse/adaptive-engine/internal/domain/shared"
)

// TrendWindow is the number of recent quiz percentages used for trend
// detection.
const TrendWindow = 5

// DefaultTrendEpsilon is the slope band (in percentage points per attempt)
// inside which the trend is considered stable.
const DefaultTrendEpsilon = 0.5

// defaultSeenCapacity bounds the recent event-id set kept per aggregate for
// duplicate suppression.
const defaultSeenCapacity = 256

// Trend is the short-window directional signal over recent quiz scores.
type Trend string

const (
	TrendImproving Trend = "improving"
	TrendDeclining Trend = "declining"
	TrendStable    Trend = "stable"
)

// Aggregate holds the rolling performance metrics for one (student, module)
// key. It is owned exclusively by the aggregation engine; everything handed
// outward is a Snapshot copy.
type Aggregate struct {
	// StudentID and ModuleID form the aggregate key.
	StudentID string
	ModuleID  string

	// TotalQuizAttempts counts quiz_submitted events folded in.
	TotalQuizAttempts int

	// ScoreSum is the sum of quiz percentages. The running average is
	// ScoreSum/TotalQuizAttempts, divided lazily to avoid the drift of
	// repeated incremental averaging.
	ScoreSum float64

	// StruggleCount counts struggle_signaled events.
	StruggleCount int

	// WeakTopicTally maps topic name to how many times it appeared in a
	// quiz's weak-topics set, regardless of overall pass/fail.
	WeakTopicTally map[string]int

	// TotalTimeSpentSeconds accumulates study and quiz time.
	TotalTimeSpentSeconds int

	// LastActivityAt is the timestamp of the newest folded event.
	LastActivityAt time.Time

	// RecentScores holds the last TrendWindow quiz percentages, oldest
	// first.
	RecentScores []float64

	// Trend is recomputed after each quiz_submitted event.
	Trend Trend

	// Revision increments on every applied event. Decisions record the
	// revision they were computed from so stale ones can be discarded.
	Revision uint64

	// LastSequence is the ingress sequence of the newest applied event.
	LastSequence uint64

	// Completed is set by a module_completed event and makes the key
	// eligible for eviction.
	Completed  bool
	FinalScore float64

	// Bounded recent-id set for idempotence under at-least-once delivery.
	seen      map[string]struct{}
	seenOrder []string
}

// NewAggregate creates an empty aggregate for the given key.
func NewAggregate(key shared.Key) *Aggregate {
	return &Aggregate{
		StudentID:      key.StudentID,
		ModuleID:       key.ModuleID,
		WeakTopicTally: make(map[string]int),
		Trend:          TrendStable,
		seen:           make(map[string]struct{}),
	}
}

// Key returns the aggregate key.
func (a *Aggregate) Key() shared.Key {
	return shared.Key{StudentID: a.StudentID, ModuleID: a.ModuleID}
}

// AverageScore returns the score-weighted mean over all quiz_submitted
// events seen so far, or 0 with no attempts.
func (a *Aggregate) AverageScore() float64 {
	if a.TotalQuizAttempts == 0 {
		return 0
	}
	return a.ScoreSum / float64(a.TotalQuizAttempts)
}

// Seen reports whether the event ID was already folded in.
func (a *Aggregate) Seen(eventID string) bool {
	_, ok := a.seen[eventID]
	return ok
}

// Apply folds one event into the aggregate. It returns false without
// mutating anything when the event ID was already processed (idempotence)
// or the payload tag does not belong to this fold.
func (a *Aggregate) Apply(ev shared.InteractionEvent) bool {
	if a.Seen(ev.EventID) {
		return false
	}

	switch p := ev.Payload.(type) {
	case shared.QuizSubmittedPayload:
		pct := p.Percentage()
		a.TotalQuizAttempts++
		a.ScoreSum += pct
		a.TotalTimeSpentSeconds += p.DurationSeconds
		for _, topic := range p.WeakTopics {
			a.WeakTopicTally[topic]++
		}
		a.RecentScores = append(a.RecentScores, pct)
		if len(a.RecentScores) > TrendWindow {
			a.RecentScores = a.RecentScores[len(a.RecentScores)-TrendWindow:]
		}
		a.Trend = ComputeTrend(a.RecentScores, DefaultTrendEpsilon)

	case shared.ContentViewedPayload:
		a.TotalTimeSpentSeconds += p.TimeSpentSeconds

	case shared.TimeSpentPayload:
		a.TotalTimeSpentSeconds += p.Seconds

	case shared.StruggleSignaledPayload:
		a.StruggleCount++
		a.WeakTopicTally[p.TopicID]++

	case shared.ModuleStartedPayload:
		// Key creation is the only effect; nothing to accumulate.

	case shared.ModuleCompletedPayload:
		a.Completed = true
		a.FinalScore = p.FinalScore

	default:
		return false
	}

	a.markSeen(ev.EventID)
	if ev.Timestamp.After(a.LastActivityAt) {
		a.LastActivityAt = ev.Timestamp
	}
	if ev.Sequence > a.LastSequence {
		a.LastSequence = ev.Sequence
	}
	a.Revision++
	return true
}

func (a *Aggregate) markSeen(eventID string) {
	if a.seen == nil {
		a.seen = make(map[string]struct{})
	}
	a.seen[eventID] = struct{}{}
	a.seenOrder = append(a.seenOrder, eventID)
	if len(a.seenOrder) > defaultSeenCapacity {
		evicted := a.seenOrder[0]
		a.seenOrder = a.seenOrder[1:]
		delete(a.seen, evicted)
	}
}

// Snapshot returns a point-in-time copy safe to hand to the classifier,
// decision engine, and persistence without synchronization.
func (a *Aggregate) Snapshot() *Aggregate {
	cp := *a
	cp.WeakTopicTally = make(map[string]int, len(a.WeakTopicTally))
	for k, v := range a.WeakTopicTally {
		cp.WeakTopicTally[k] = v
	}
	cp.RecentScores = append([]float64(nil), a.RecentScores...)
	// The seen set stays with the owner; snapshots are read-only views.
	cp.seen = nil
	cp.seenOrder = nil
	return &cp
}

// ComputeTrend returns the directional signal for the given recent scores
// (oldest first) using a least-squares slope. With fewer than 2 points the
// trend is stable by convention.
func ComputeTrend(scores []float64, epsilon float64) Trend {
	n := len(scores)
	if n < 2 {
		return TrendStable
	}

	// Least-squares slope with x = 0..n-1.
	var sumX, sumY, sumXY, sumXX float64
	for i, y := range scores {
		x := float64(i)
		sumX += x
		sumY += y
		sumXY += x * y
		sumXX += x * x
	}
	fn := float64(n)
	denom := fn*sumXX - sumX*sumX
	if denom == 0 {
		return TrendStable
	}
	slope := (fn*sumXY - sumX*sumY) / denom

	switch {
	case slope > epsilon:
		return TrendImproving
	case slope < -epsilon:
		return TrendDeclining
	default:
		return TrendStable
	}
}
