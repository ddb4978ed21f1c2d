package performance

// Tier is the discretized performance bucket derived from the running
// average score.
type Tier string

const (
	TierCritical     Tier = "critical"
	TierStruggling   Tier = "struggling"
	TierSatisfactory Tier = "satisfactory"
	TierGood         Tier = "good"
	TierExcellent    Tier = "excellent"
)

// Tier cut points (percentage). Scores below TierCutStruggling are Critical.
const (
	TierCutStruggling   = 40.0
	TierCutSatisfactory = 60.0
	TierCutGood         = 75.0
	TierCutExcellent    = 90.0
)

// Classification is the classifier output for one aggregate.
type Classification struct {
	Tier  Tier
	Trend Trend

	// IsAnomaly flags a critically low average or excessive module time.
	// Anomalies force escalation to critical priority downstream
	// regardless of tier.
	IsAnomaly bool
}

// ClassifierConfig holds the product constants the classifier depends on.
// They are configuration, not invariants.
type ClassifierConfig struct {
	// AnomalyScoreBelow flags an anomaly when the average score is below
	// this value.
	AnomalyScoreBelow float64

	// AnomalyTimeSeconds flags an anomaly when total time on a single
	// module exceeds this value.
	AnomalyTimeSeconds int
}

// DefaultClassifierConfig returns the product defaults (score < 40 or more
// than 3 hours on one module).
func DefaultClassifierConfig() ClassifierConfig {
	return ClassifierConfig{
		AnomalyScoreBelow:  40.0,
		AnomalyTimeSeconds: 3 * 3600,
	}
}

// Classify maps an aggregate snapshot to its tier, trend, and anomaly flag.
// It is a pure function: no hidden state, safe to call concurrently for
// different keys without synchronization.
func Classify(a *Aggregate, cfg ClassifierConfig) Classification {
	avg := a.AverageScore()

	var tier Tier
	switch {
	case avg >= TierCutExcellent:
		tier = TierExcellent
	case avg >= TierCutGood:
		tier = TierGood
	case avg >= TierCutSatisfactory:
		tier = TierSatisfactory
	case avg >= TierCutStruggling:
		tier = TierStruggling
	default:
		tier = TierCritical
	}

	// The score clause needs at least one attempt; a fresh key with no
	// quizzes is not an anomaly, just unclassified.
	anomaly := (a.TotalQuizAttempts > 0 && avg < cfg.AnomalyScoreBelow) ||
		a.TotalTimeSpentSeconds > cfg.AnomalyTimeSeconds

	return Classification{
		Tier:      tier,
		Trend:     a.Trend,
		IsAnomaly: anomaly,
	}
}
