package orchestrator

import (
	"fmt"
	"sort"
	"time"

	"github.com/learnpulse/adaptive-engine/internal/domain/curriculum"
	"github.com/learnpulse/adaptive-engine/internal/domain/learner"
	"github.com/learnpulse/adaptive-engine/internal/domain/performance"
	"github.com/learnpulse/adaptive-engine/internal/domain/shared"
)

// Trigger is the external signal driving a transition.
type Trigger string

const (
	// TriggerContentRequested is the learner asking for study material.
	TriggerContentRequested Trigger = "content_requested"

	// TriggerStudyTimeElapsed reports accumulated study time.
	TriggerStudyTimeElapsed Trigger = "study_time_elapsed"

	// TriggerQuizRequested is the learner asking to be assessed.
	TriggerQuizRequested Trigger = "quiz_requested"

	// TriggerQuizSubmitted follows a folded quiz_submitted event.
	TriggerQuizSubmitted Trigger = "quiz_submitted"

	// TriggerRemedialDelivered signals that remedial content reached the
	// learner.
	TriggerRemedialDelivered Trigger = "remedial_delivered"

	// TriggerAdvance is the learner moving on after mastering a module.
	TriggerAdvance Trigger = "advance"
)

// ActionKind identifies an emitted orchestration action.
type ActionKind string

const (
	ActionRequestContent  ActionKind = "request_content"
	ActionRequestQuiz     ActionKind = "request_quiz"
	ActionRequestRemedial ActionKind = "request_remedial"
	ActionNotify          ActionKind = "notify"
)

// EmittedAction is one side effect a transition requests. The orchestrator
// dispatches these to the content generator and notification sink; the
// state machine itself performs no I/O.
type EmittedAction struct {
	Kind       ActionKind
	StudentID  string
	ModuleID   string
	TopicFocus []string
	Difficulty curriculum.Difficulty
	Message    string
}

// FSMConfig holds the transition-guard constants. Thresholds are product
// configuration, not invariants.
type FSMConfig struct {
	// StudyFloorSeconds is the minimum study time before assessment.
	StudyFloorSeconds int

	// QuizCooldownSeconds is the minimum interval between quiz attempts.
	QuizCooldownSeconds int

	// MasteryThreshold is the running average at which a module counts
	// as learned.
	MasteryThreshold float64

	// RemediationBelow is the running average under which repeated
	// attempts force remediation.
	RemediationBelow float64

	// RemediationMinAttempts is the attempt count the remediation guard
	// requires.
	RemediationMinAttempts int
}

// DefaultFSMConfig returns the product defaults.
func DefaultFSMConfig() FSMConfig {
	return FSMConfig{
		StudyFloorSeconds:      300,
		QuizCooldownSeconds:    600,
		MasteryThreshold:       80.0,
		RemediationBelow:       60.0,
		RemediationMinAttempts: 3,
	}
}

// StepInput is everything a transition may reference. Aggregate and
// Decision may be nil when no events have been folded for the key yet.
type StepInput struct {
	State   *learner.LearnerState
	Trigger Trigger
	Now     time.Time

	// StudySeconds accompanies TriggerStudyTimeElapsed.
	StudySeconds int

	Aggregate *performance.Aggregate
	Decision  *curriculum.Decision
}

// StepResult carries the post-transition state and requested side effects.
type StepResult struct {
	State        *learner.LearnerState
	Actions      []EmittedAction
	Transitioned bool
}

// stepFunc computes one transition. It operates on a private clone of the
// learner state and never performs I/O.
type stepFunc func(cfg FSMConfig, ls *learner.LearnerState, in StepInput) (StepResult, error)

// transitions is the state machine table. A missing (state, trigger) cell
// means the trigger does not apply in that state.
var transitions = map[learner.State]map[Trigger]stepFunc{
	learner.StateNotStarted: {
		TriggerContentRequested: startStudying,
	},
	learner.StateStudyingTheory: {
		TriggerStudyTimeElapsed: accumulateStudyTime,
		TriggerContentRequested: refreshContent,
	},
	learner.StateReadyForAssessment: {
		TriggerQuizRequested:    startQuiz,
		TriggerStudyTimeElapsed: accumulateStudyTime,
	},
	learner.StateTakingQuiz: {
		TriggerQuizSubmitted: gradeQuizOutcome,
	},
	learner.StateNeedsRemediation: {
		TriggerRemedialDelivered: resumeStudying,
	},
	learner.StateMasteredModule: {
		TriggerAdvance: promoteToNextModule,
	},
	learner.StateReadyForNextModule: {
		TriggerAdvance:          advanceOrFinish,
		TriggerContentRequested: advanceOrFinish,
	},
}

// Step evaluates one trigger against the transition table. It is a pure
// function of its input: the given state is cloned, guards read only the
// input, and the same input always produces the same result. Triggers that
// do not apply in the current state return an unchanged state with no
// error, except explicit requests (content, quiz, advance), which are
// rejected so the caller learns the request was out of order.
func Step(cfg FSMConfig, in StepInput) (StepResult, error) {
	ls := in.State.Clone()

	if ls.Current.IsTerminal() {
		if isRequest(in.Trigger) {
			return StepResult{State: ls}, shared.NewDomainError("orchestrator", "Step",
				shared.ErrStateTransition, "course already completed")
		}
		return StepResult{State: ls}, nil
	}

	byTrigger, ok := transitions[ls.Current]
	if ok {
		if fn, ok := byTrigger[in.Trigger]; ok {
			return fn(cfg, ls, in)
		}
	}
	if isRequest(in.Trigger) {
		return StepResult{State: ls}, shared.NewDomainError("orchestrator", "Step",
			shared.ErrStateTransition,
			fmt.Sprintf("%s not allowed in state %s", in.Trigger, ls.Current))
	}
	return StepResult{State: ls}, nil
}

func isRequest(t Trigger) bool {
	switch t {
	case TriggerContentRequested, TriggerQuizRequested, TriggerAdvance:
		return true
	default:
		return false
	}
}

func startStudying(cfg FSMConfig, ls *learner.LearnerState, in StepInput) (StepResult, error) {
	ls.Current = learner.StateStudyingTheory
	ls.StudyStartedAt = in.Now
	ls.StudySeconds = 0
	return StepResult{
		State:        ls,
		Transitioned: true,
		Actions: []EmittedAction{
			requestContentAction(ls, in.Decision),
			notifyAction(ls, "started studying module "+ls.CurrentModuleID),
		},
	}, nil
}

// accumulateStudyTime adds reported study time and promotes the learner to
// assessment once the floor is met. The guard is a non-blocking check, not
// a sleep.
func accumulateStudyTime(cfg FSMConfig, ls *learner.LearnerState, in StepInput) (StepResult, error) {
	ls.StudySeconds += in.StudySeconds
	if ls.Current == learner.StateStudyingTheory && ls.StudySeconds >= cfg.StudyFloorSeconds {
		ls.Current = learner.StateReadyForAssessment
		return StepResult{
			State:        ls,
			Transitioned: true,
			Actions: []EmittedAction{
				notifyAction(ls, "ready for assessment"),
			},
		}, nil
	}
	return StepResult{State: ls}, nil
}

// refreshContent re-issues a content request without changing state, so a
// learner can keep pulling adapted material while studying.
func refreshContent(cfg FSMConfig, ls *learner.LearnerState, in StepInput) (StepResult, error) {
	return StepResult{
		State:   ls,
		Actions: []EmittedAction{requestContentAction(ls, in.Decision)},
	}, nil
}

// startQuiz enforces the quiz cooldown. A violation rejects with the
// remaining wait so the caller can schedule a retry instead of polling.
func startQuiz(cfg FSMConfig, ls *learner.LearnerState, in StepInput) (StepResult, error) {
	cooldown := time.Duration(cfg.QuizCooldownSeconds) * time.Second
	if !ls.LastQuizAttemptAt.IsZero() {
		if elapsed := in.Now.Sub(ls.LastQuizAttemptAt); elapsed < cooldown {
			return StepResult{State: ls}, shared.NewCooldownError(cooldown - elapsed)
		}
	}
	ls.Current = learner.StateTakingQuiz
	ls.LastQuizAttemptAt = in.Now
	return StepResult{
		State:        ls,
		Transitioned: true,
		Actions: []EmittedAction{
			requestQuizAction(ls, in.Aggregate, in.Decision),
		},
	}, nil
}

// gradeQuizOutcome routes a quiz submission to mastery, remediation, or
// continued study, per the aggregate's running average and the latest
// decision.
func gradeQuizOutcome(cfg FSMConfig, ls *learner.LearnerState, in StepInput) (StepResult, error) {
	if in.Aggregate == nil {
		return StepResult{State: ls}, shared.NewDomainError("orchestrator", "Step",
			shared.ErrInvalidState, "quiz outcome without an aggregate")
	}
	avg := in.Aggregate.AverageScore()

	weak := avg < cfg.RemediationBelow
	if weak {
		ls.ConsecutiveWeakAttempts++
	} else {
		ls.ConsecutiveWeakAttempts = 0
	}

	remedialPending := in.Decision != nil && in.Decision.Type == curriculum.DecisionInjectRemedial
	critical := in.Decision != nil && in.Decision.Priority == curriculum.PriorityCritical

	switch {
	case avg >= cfg.MasteryThreshold && !remedialPending:
		// The mastered state carries no guard; the orchestrator
		// promotes it to ready_for_next_module right away via
		// TriggerAdvance.
		ls.Current = learner.StateMasteredModule
		return StepResult{
			State:        ls,
			Transitioned: true,
			Actions: []EmittedAction{
				notifyAction(ls, fmt.Sprintf("module mastered with average %.1f", avg)),
			},
		}, nil

	case (weak && in.Aggregate.TotalQuizAttempts >= cfg.RemediationMinAttempts) || critical:
		ls.Current = learner.StateNeedsRemediation
		return StepResult{
			State:        ls,
			Transitioned: true,
			Actions: []EmittedAction{
				requestRemedialAction(ls, in.Aggregate, in.Decision),
				notifyAction(ls, fmt.Sprintf("remediation required, average %.1f over %d attempts",
					avg, in.Aggregate.TotalQuizAttempts)),
			},
		}, nil

	default:
		ls.Current = learner.StateStudyingTheory
		ls.StudyStartedAt = in.Now
		ls.StudySeconds = 0
		return StepResult{
			State:        ls,
			Transitioned: true,
			Actions: []EmittedAction{
				requestContentAction(ls, in.Decision),
			},
		}, nil
	}
}

func resumeStudying(cfg FSMConfig, ls *learner.LearnerState, in StepInput) (StepResult, error) {
	ls.Current = learner.StateStudyingTheory
	ls.StudyStartedAt = in.Now
	ls.StudySeconds = 0
	return StepResult{
		State:        ls,
		Transitioned: true,
		Actions: []EmittedAction{
			requestContentAction(ls, in.Decision),
		},
	}, nil
}

// promoteToNextModule is the guardless hop out of the mastered state.
func promoteToNextModule(cfg FSMConfig, ls *learner.LearnerState, in StepInput) (StepResult, error) {
	ls.Current = learner.StateReadyForNextModule
	return StepResult{State: ls, Transitioned: true}, nil
}

func advanceOrFinish(cfg FSMConfig, ls *learner.LearnerState, in StepInput) (StepResult, error) {
	if !ls.AdvanceModule() {
		ls.Current = learner.StateCompletedCourse
		return StepResult{
			State:        ls,
			Transitioned: true,
			Actions: []EmittedAction{
				notifyAction(ls, "course completed"),
			},
		}, nil
	}
	ls.Current = learner.StateStudyingTheory
	ls.StudyStartedAt = in.Now
	return StepResult{
		State:        ls,
		Transitioned: true,
		Actions: []EmittedAction{
			requestContentAction(ls, in.Decision),
			notifyAction(ls, "advanced to module "+ls.CurrentModuleID),
		},
	}, nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Action builders
// ─────────────────────────────────────────────────────────────────────────────

func requestContentAction(ls *learner.LearnerState, d *curriculum.Decision) EmittedAction {
	a := EmittedAction{
		Kind:       ActionRequestContent,
		StudentID:  ls.StudentID,
		ModuleID:   ls.CurrentModuleID,
		Difficulty: curriculum.DifficultyIntermediate,
	}
	applyDecisionFocus(&a, d)
	return a
}

func requestQuizAction(ls *learner.LearnerState, agg *performance.Aggregate, d *curriculum.Decision) EmittedAction {
	a := EmittedAction{
		Kind:       ActionRequestQuiz,
		StudentID:  ls.StudentID,
		ModuleID:   ls.CurrentModuleID,
		Difficulty: curriculum.DifficultyIntermediate,
	}
	applyDecisionFocus(&a, d)
	if len(a.TopicFocus) == 0 && agg != nil {
		for topic := range agg.WeakTopicTally {
			a.TopicFocus = append(a.TopicFocus, topic)
		}
		sort.Strings(a.TopicFocus)
	}
	return a
}

func requestRemedialAction(ls *learner.LearnerState, agg *performance.Aggregate, d *curriculum.Decision) EmittedAction {
	a := EmittedAction{
		Kind:       ActionRequestRemedial,
		StudentID:  ls.StudentID,
		ModuleID:   ls.CurrentModuleID,
		Difficulty: curriculum.DifficultyBeginner,
	}
	if d != nil {
		for _, act := range d.Actions {
			if act.Kind == curriculum.ActionInsertRemedial {
				a.TopicFocus = append(a.TopicFocus, act.Topic)
			}
		}
	}
	return a
}

func notifyAction(ls *learner.LearnerState, msg string) EmittedAction {
	return EmittedAction{
		Kind:      ActionNotify,
		StudentID: ls.StudentID,
		ModuleID:  ls.CurrentModuleID,
		Message:   msg,
	}
}

// applyDecisionFocus narrows a content or quiz request using the latest
// decision: difficulty adjustments set the level, remedial and rerank
// actions set the topic focus.
func applyDecisionFocus(a *EmittedAction, d *curriculum.Decision) {
	if d == nil {
		return
	}
	for _, act := range d.Actions {
		switch act.Kind {
		case curriculum.ActionSetDifficulty:
			a.Difficulty = act.Difficulty
		case curriculum.ActionInsertRemedial, curriculum.ActionMoveTopic:
			if act.Topic != "" {
				a.TopicFocus = append(a.TopicFocus, act.Topic)
			}
		}
	}
}
