// Package learner contains the per-student orchestration record and the
// pedagogical state enum it moves through. Transitions live in the
// orchestrator; this package only models the state itself.
package learner

import (
	"time"

	"github.com/learnpulse/adaptive-engine/internal/domain/shared"
)

// State is the learner's position in the pedagogical cycle.
type State string

const (
	StateNotStarted         State = "not_started"
	StateStudyingTheory     State = "studying_theory"
	StateReadyForAssessment State = "ready_for_assessment"
	StateTakingQuiz         State = "taking_quiz"
	StateNeedsRemediation   State = "needs_remediation"
	StateMasteredModule     State = "mastered_module"
	StateReadyForNextModule State = "ready_for_next_module"
	StateCompletedCourse    State = "completed_course"
)

// IsValid reports whether the state is known.
func (s State) IsValid() bool {
	switch s {
	case StateNotStarted, StateStudyingTheory, StateReadyForAssessment,
		StateTakingQuiz, StateNeedsRemediation, StateMasteredModule,
		StateReadyForNextModule, StateCompletedCourse:
		return true
	default:
		return false
	}
}

// IsTerminal reports whether no further transitions are possible.
func (s State) IsTerminal() bool {
	return s == StateCompletedCourse
}

// LearnerState is the orchestrator's per-student record. It is owned
// exclusively by the orchestrator; transitions are the only mutator.
type LearnerState struct {
	StudentID string

	// Current is the learner's state in the pedagogical cycle.
	Current State

	// CurrentModuleID is the module the learner is working through.
	CurrentModuleID string

	// StudyStartedAt marks when the current theory phase began; the
	// assessment gate requires a minimum study time since this point.
	StudyStartedAt time.Time

	// StudySeconds accumulates reported study time since StudyStartedAt.
	StudySeconds int

	// LastQuizAttemptAt drives the quiz cooldown guard. Zero means no
	// attempt yet, so the first quiz is never throttled.
	LastQuizAttemptAt time.Time

	// ConsecutiveWeakAttempts counts quiz outcomes below the
	// satisfactory cut since the last good one.
	ConsecutiveWeakAttempts int

	// RemainingModules is the ordered course backlog after the current
	// module.
	RemainingModules []string
}

// NewLearnerState creates a fresh record at the initial state.
func NewLearnerState(studentID string, modules []string) *LearnerState {
	ls := &LearnerState{
		StudentID: studentID,
		Current:   StateNotStarted,
	}
	if len(modules) > 0 {
		ls.CurrentModuleID = modules[0]
		ls.RemainingModules = append([]string(nil), modules[1:]...)
	}
	return ls
}

// Key returns the aggregate key for the learner's current module.
func (ls *LearnerState) Key() shared.Key {
	return shared.Key{StudentID: ls.StudentID, ModuleID: ls.CurrentModuleID}
}

// AdvanceModule shifts to the next module in the backlog and resets the
// per-module counters. It returns false when the backlog is empty.
func (ls *LearnerState) AdvanceModule() bool {
	if len(ls.RemainingModules) == 0 {
		return false
	}
	ls.CurrentModuleID = ls.RemainingModules[0]
	ls.RemainingModules = ls.RemainingModules[1:]
	ls.StudyStartedAt = time.Time{}
	ls.StudySeconds = 0
	ls.LastQuizAttemptAt = time.Time{}
	ls.ConsecutiveWeakAttempts = 0
	return true
}

// Clone returns a deep copy, used for snapshots handed outside the
// orchestrator's lock.
func (ls *LearnerState) Clone() *LearnerState {
	cp := *ls
	cp.RemainingModules = append([]string(nil), ls.RemainingModules...)
	return &cp
}
