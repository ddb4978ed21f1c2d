// Package curriculum contains the adaptation decision engine and the
// curriculum plan model it operates on: an ordered topic sequence per
// (student, module) with a module-level difficulty.
package curriculum

import (
	"github.com/learnpulse/adaptive-engine/internal/domain/shared"
)

// Difficulty is the content difficulty ladder.
type Difficulty int

const (
	DifficultyBeginner Difficulty = iota
	DifficultyIntermediate
	DifficultyAdvanced
	DifficultyExpert
)

// String returns the string representation of the difficulty.
func (d Difficulty) String() string {
	switch d {
	case DifficultyBeginner:
		return "beginner"
	case DifficultyIntermediate:
		return "intermediate"
	case DifficultyAdvanced:
		return "advanced"
	case DifficultyExpert:
		return "expert"
	default:
		return "unknown"
	}
}

// ParseDifficulty parses a difficulty name, defaulting to intermediate.
func ParseDifficulty(s string) Difficulty {
	switch s {
	case "beginner":
		return DifficultyBeginner
	case "intermediate":
		return DifficultyIntermediate
	case "advanced":
		return DifficultyAdvanced
	case "expert":
		return DifficultyExpert
	default:
		return DifficultyIntermediate
	}
}

// Increase returns the next level up, capped at expert.
func (d Difficulty) Increase() Difficulty {
	if d >= DifficultyExpert {
		return DifficultyExpert
	}
	return d + 1
}

// Decrease returns the next level down, capped at beginner.
func (d Difficulty) Decrease() Difficulty {
	if d <= DifficultyBeginner {
		return DifficultyBeginner
	}
	return d - 1
}

// Topic is one entry in a module's ordered topic sequence.
type Topic struct {
	Name             string     `json:"name"`
	Difficulty       Difficulty `json:"difficulty"`
	Completed        bool       `json:"completed"`
	Skippable        bool       `json:"skippable"`
	Remedial         bool       `json:"remedial"`
	EstimatedMinutes int        `json:"estimated_minutes,omitempty"`
}

// Plan is the current curriculum state for one (student, module) key.
type Plan struct {
	StudentID  string     `json:"student_id"`
	ModuleID   string     `json:"module_id"`
	Topics     []Topic    `json:"topics"`
	Difficulty Difficulty `json:"difficulty"`
}

// NewPlan builds a plan from plain topic names at the given difficulty.
func NewPlan(key shared.Key, topicNames []string, difficulty Difficulty) *Plan {
	topics := make([]Topic, len(topicNames))
	for i, name := range topicNames {
		topics[i] = Topic{Name: name, Difficulty: difficulty}
	}
	return &Plan{
		StudentID:  key.StudentID,
		ModuleID:   key.ModuleID,
		Topics:     topics,
		Difficulty: difficulty,
	}
}

// Key returns the plan's aggregate key.
func (p *Plan) Key() shared.Key {
	return shared.Key{StudentID: p.StudentID, ModuleID: p.ModuleID}
}

// Clone returns a deep copy.
func (p *Plan) Clone() *Plan {
	cp := *p
	cp.Topics = append([]Topic(nil), p.Topics...)
	return &cp
}

// Remaining returns the not-yet-completed topics in order.
func (p *Plan) Remaining() []Topic {
	var out []Topic
	for _, t := range p.Topics {
		if !t.Completed {
			out = append(out, t)
		}
	}
	return out
}

// NextTopic returns the first remaining non-skippable topic, or false when
// the module has been worked through.
func (p *Plan) NextTopic() (Topic, bool) {
	for _, t := range p.Topics {
		if !t.Completed && !t.Skippable {
			return t, true
		}
	}
	return Topic{}, false
}

// MarkCompleted marks the named topic completed. Unknown names are ignored.
func (p *Plan) MarkCompleted(name string) {
	for i := range p.Topics {
		if p.Topics[i].Name == name {
			p.Topics[i].Completed = true
			return
		}
	}
}
