package orchestrator

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/learnpulse/adaptive-engine/internal/domain/learner"
	"github.com/learnpulse/adaptive-engine/internal/domain/performance"
	"github.com/learnpulse/adaptive-engine/internal/domain/shared"
)

var fsmNow = time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)

func learnerAt(state learner.State, modules ...string) *learner.LearnerState {
	if len(modules) == 0 {
		modules = []string{"statistics-101"}
	}
	ls := learner.NewLearnerState("student-1", modules)
	ls.Current = state
	return ls
}

func aggregateAveraging(avg float64, attempts int) *performance.Aggregate {
	agg := performance.NewAggregate(shared.Key{StudentID: "student-1", ModuleID: "statistics-101"})
	agg.TotalQuizAttempts = attempts
	agg.ScoreSum = avg * float64(attempts)
	return agg
}

func TestStepStartStudying(t *testing.T) {
	res, err := Step(DefaultFSMConfig(), StepInput{
		State:   learnerAt(learner.StateNotStarted),
		Trigger: TriggerContentRequested,
		Now:     fsmNow,
	})
	require.NoError(t, err)

	assert.True(t, res.Transitioned)
	assert.Equal(t, learner.StateStudyingTheory, res.State.Current)
	assert.Equal(t, fsmNow, res.State.StudyStartedAt)
	require.NotEmpty(t, res.Actions)
	assert.Equal(t, ActionRequestContent, res.Actions[0].Kind)
}

func TestStepStudyFloor(t *testing.T) {
	cfg := DefaultFSMConfig()

	ls := learnerAt(learner.StateStudyingTheory)
	res, err := Step(cfg, StepInput{
		State: ls, Trigger: TriggerStudyTimeElapsed, Now: fsmNow, StudySeconds: 299,
	})
	require.NoError(t, err)
	assert.False(t, res.Transitioned)
	assert.Equal(t, learner.StateStudyingTheory, res.State.Current)

	res, err = Step(cfg, StepInput{
		State: res.State, Trigger: TriggerStudyTimeElapsed, Now: fsmNow, StudySeconds: 1,
	})
	require.NoError(t, err)
	assert.True(t, res.Transitioned)
	assert.Equal(t, learner.StateReadyForAssessment, res.State.Current)
}

func TestStepQuizCooldown(t *testing.T) {
	cfg := DefaultFSMConfig()
	ls := learnerAt(learner.StateReadyForAssessment)
	ls.LastQuizAttemptAt = fsmNow

	_, err := Step(cfg, StepInput{
		State: ls, Trigger: TriggerQuizRequested, Now: fsmNow.Add(200 * time.Second),
	})
	require.Error(t, err)
	require.ErrorIs(t, err, shared.ErrCooldown)

	var cdErr *shared.CooldownError
	require.True(t, errors.As(err, &cdErr))
	assert.Equal(t, 400*time.Second, cdErr.Remaining)

	res, err := Step(cfg, StepInput{
		State: ls, Trigger: TriggerQuizRequested, Now: fsmNow.Add(601 * time.Second),
	})
	require.NoError(t, err)
	assert.Equal(t, learner.StateTakingQuiz, res.State.Current)
	assert.Equal(t, fsmNow.Add(601*time.Second), res.State.LastQuizAttemptAt)
}

func TestStepFirstQuizIsNeverThrottled(t *testing.T) {
	res, err := Step(DefaultFSMConfig(), StepInput{
		State:   learnerAt(learner.StateReadyForAssessment),
		Trigger: TriggerQuizRequested,
		Now:     fsmNow,
	})
	require.NoError(t, err)
	assert.Equal(t, learner.StateTakingQuiz, res.State.Current)
	require.NotEmpty(t, res.Actions)
	assert.Equal(t, ActionRequestQuiz, res.Actions[0].Kind)
}

func TestStepMasteryTransition(t *testing.T) {
	res, err := Step(DefaultFSMConfig(), StepInput{
		State:     learnerAt(learner.StateTakingQuiz),
		Trigger:   TriggerQuizSubmitted,
		Now:       fsmNow,
		Aggregate: aggregateAveraging(80.0, 4),
	})
	require.NoError(t, err)

	assert.True(t, res.Transitioned)
	assert.Equal(t, learner.StateMasteredModule, res.State.Current)

	res, err = Step(DefaultFSMConfig(), StepInput{
		State: res.State, Trigger: TriggerAdvance, Now: fsmNow,
	})
	require.NoError(t, err)
	assert.Equal(t, learner.StateReadyForNextModule, res.State.Current)
}

func TestStepRemediationOnWeakAttempts(t *testing.T) {
	res, err := Step(DefaultFSMConfig(), StepInput{
		State:     learnerAt(learner.StateTakingQuiz),
		Trigger:   TriggerQuizSubmitted,
		Now:       fsmNow,
		Aggregate: aggregateAveraging(54.33, 3),
	})
	require.NoError(t, err)

	assert.Equal(t, learner.StateNeedsRemediation, res.State.Current)
	require.NotEmpty(t, res.Actions)
	assert.Equal(t, ActionRequestRemedial, res.Actions[0].Kind)
}

func TestStepMiddlingOutcomeResumesStudy(t *testing.T) {
	res, err := Step(DefaultFSMConfig(), StepInput{
		State:     learnerAt(learner.StateTakingQuiz),
		Trigger:   TriggerQuizSubmitted,
		Now:       fsmNow,
		Aggregate: aggregateAveraging(70.0, 2),
	})
	require.NoError(t, err)

	assert.Equal(t, learner.StateStudyingTheory, res.State.Current)
	assert.Equal(t, fsmNow, res.State.StudyStartedAt)
	assert.Equal(t, 0, res.State.StudySeconds)
}

func TestStepRemedialDeliveredResumesStudy(t *testing.T) {
	res, err := Step(DefaultFSMConfig(), StepInput{
		State:   learnerAt(learner.StateNeedsRemediation),
		Trigger: TriggerRemedialDelivered,
		Now:     fsmNow,
	})
	require.NoError(t, err)
	assert.Equal(t, learner.StateStudyingTheory, res.State.Current)
}

func TestStepAdvanceToNextModuleOrFinish(t *testing.T) {
	ls := learnerAt(learner.StateReadyForNextModule, "statistics-101", "linear-algebra")
	res, err := Step(DefaultFSMConfig(), StepInput{
		State: ls, Trigger: TriggerAdvance, Now: fsmNow,
	})
	require.NoError(t, err)
	assert.Equal(t, learner.StateStudyingTheory, res.State.Current)
	assert.Equal(t, "linear-algebra", res.State.CurrentModuleID)
	assert.Empty(t, res.State.RemainingModules)

	res.State.Current = learner.StateReadyForNextModule
	res, err = Step(DefaultFSMConfig(), StepInput{
		State: res.State, Trigger: TriggerAdvance, Now: fsmNow,
	})
	require.NoError(t, err)
	assert.Equal(t, learner.StateCompletedCourse, res.State.Current)
}

func TestStepRejectsOutOfOrderRequests(t *testing.T) {
	_, err := Step(DefaultFSMConfig(), StepInput{
		State:   learnerAt(learner.StateStudyingTheory),
		Trigger: TriggerQuizRequested,
		Now:     fsmNow,
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, shared.ErrStateTransition)
}

func TestStepIgnoresInapplicablePassiveTriggers(t *testing.T) {
	res, err := Step(DefaultFSMConfig(), StepInput{
		State:   learnerAt(learner.StateNotStarted),
		Trigger: TriggerQuizSubmitted,
		Now:     fsmNow,
	})
	require.NoError(t, err)
	assert.False(t, res.Transitioned)
	assert.Equal(t, learner.StateNotStarted, res.State.Current)
}

func TestStepTerminalStateRejectsRequests(t *testing.T) {
	ls := learnerAt(learner.StateCompletedCourse)

	_, err := Step(DefaultFSMConfig(), StepInput{
		State: ls, Trigger: TriggerContentRequested, Now: fsmNow,
	})
	assert.ErrorIs(t, err, shared.ErrStateTransition)

	res, err := Step(DefaultFSMConfig(), StepInput{
		State: ls, Trigger: TriggerQuizSubmitted, Now: fsmNow,
	})
	require.NoError(t, err)
	assert.False(t, res.Transitioned)
}

func TestStepDoesNotMutateInputState(t *testing.T) {
	ls := learnerAt(learner.StateNotStarted)
	_, err := Step(DefaultFSMConfig(), StepInput{
		State: ls, Trigger: TriggerContentRequested, Now: fsmNow,
	})
	require.NoError(t, err)

	assert.Equal(t, learner.StateNotStarted, ls.Current, "Step works on a clone")
	assert.True(t, ls.StudyStartedAt.IsZero())
}
