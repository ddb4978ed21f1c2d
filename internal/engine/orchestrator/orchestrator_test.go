package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/learnpulse/adaptive-engine/internal/domain/curriculum"
	"github.com/learnpulse/adaptive-engine/internal/domain/learner"
	"github.com/learnpulse/adaptive-engine/internal/domain/performance"
	"github.com/learnpulse/adaptive-engine/internal/domain/shared"
	"github.com/learnpulse/adaptive-engine/internal/engine/aggregator"
	"github.com/learnpulse/adaptive-engine/internal/infrastructure/persistence/memory"
	"github.com/learnpulse/adaptive-engine/pkg/retry"
	"github.com/learnpulse/adaptive-engine/pkg/timeutil"
)

// fakeGenerator records content and quiz requests.
type fakeGenerator struct {
	mu      sync.Mutex
	content int
	quiz    int
}

func (g *fakeGenerator) RequestContent(context.Context, string, string, []string, curriculum.Difficulty) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.content++
	return fmt.Sprintf("content-%d", g.content), nil
}

func (g *fakeGenerator) RequestQuiz(context.Context, string, string, []string, curriculum.Difficulty) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.quiz++
	return fmt.Sprintf("quiz-%d", g.quiz), nil
}

type fakeNotifier struct{}

func (fakeNotifier) NotifyDecision(context.Context, *curriculum.Decision) error { return nil }
func (fakeNotifier) NotifyTransition(context.Context, TransitionRecord) error   { return nil }

// pipeline wires an orchestrator behind an aggregation engine the way main
// does, with a controllable clock and in-memory stores.
type pipeline struct {
	orch      *Orchestrator
	agg       *aggregator.Engine
	plans     *memory.PlanStore
	decisions *memory.DecisionStore
	clock     *timeutil.FakeClock
	gen       *fakeGenerator

	seq uint64
}

func newPipeline(t *testing.T) *pipeline {
	t.Helper()
	p := &pipeline{
		plans:     memory.NewPlanStore(),
		decisions: memory.NewDecisionStore(),
		clock:     timeutil.NewFakeClock(time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)),
		gen:       &fakeGenerator{},
	}
	p.orch = New(
		DefaultFSMConfig(),
		performance.DefaultClassifierConfig(),
		curriculum.NewEngine(curriculum.DefaultEngineConfig(), nil),
		Deps{
			Plans:         p.plans,
			DecisionStore: p.decisions,
			Generator:     p.gen,
			Notifier:      fakeNotifier{},
			Clock:         p.clock,
		},
	)
	p.agg = aggregator.New(p.orch.HandleUpdate, nil)
	return p
}

func (p *pipeline) register(t *testing.T, studentID string, modules []string, topics []string) {
	t.Helper()
	p.orch.RegisterStudent(studentID, modules)
	for _, m := range modules {
		key := shared.Key{StudentID: studentID, ModuleID: m}
		require.NoError(t, p.plans.Save(context.Background(),
			curriculum.NewPlan(key, topics, curriculum.DifficultyIntermediate)))
	}
}

func (p *pipeline) submitQuiz(studentID, moduleID string, pct float64, weak []string) {
	p.seq++
	p.agg.Consume(context.Background(), shared.InteractionEvent{
		EventID:   fmt.Sprintf("ev-%d", p.seq),
		StudentID: studentID,
		ModuleID:  moduleID,
		Type:      shared.EventQuizSubmitted,
		Timestamp: p.clock.Now(),
		Payload: shared.QuizSubmittedPayload{
			QuizID:     fmt.Sprintf("quiz-%d", p.seq),
			Score:      pct,
			MaxScore:   100,
			WeakTopics: weak,
		},
	})
}

func (p *pipeline) submitStudyTime(studentID, moduleID string, seconds int) {
	p.seq++
	p.agg.Consume(context.Background(), shared.InteractionEvent{
		EventID:   fmt.Sprintf("ev-%d", p.seq),
		StudentID: studentID,
		ModuleID:  moduleID,
		Type:      shared.EventTimeSpent,
		Timestamp: p.clock.Now(),
		Payload:   shared.TimeSpentPayload{Seconds: seconds},
	})
}

func (p *pipeline) stateOf(t *testing.T, studentID string) learner.State {
	t.Helper()
	ls, err := p.orch.StateOf(studentID)
	require.NoError(t, err)
	return ls.Current
}

func TestPipelineMasteryPath(t *testing.T) {
	p := newPipeline(t)
	ctx := context.Background()
	p.register(t, "alice", []string{"statistics-101", "linear-algebra"},
		[]string{"Probability Basics", "Covariance"})

	_, err := p.orch.RequestContent(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, learner.StateStudyingTheory, p.stateOf(t, "alice"))

	p.submitStudyTime("alice", "statistics-101", 300)
	assert.Equal(t, learner.StateReadyForAssessment, p.stateOf(t, "alice"))

	_, err = p.orch.RequestQuiz(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, learner.StateTakingQuiz, p.stateOf(t, "alice"))

	p.submitQuiz("alice", "statistics-101", 85, nil)
	assert.Equal(t, learner.StateReadyForNextModule, p.stateOf(t, "alice"),
		"mastery promotes through mastered_module to ready_for_next_module")

	_, err = p.orch.RequestContent(ctx, "alice")
	require.NoError(t, err)
	ls, err := p.orch.StateOf("alice")
	require.NoError(t, err)
	assert.Equal(t, learner.StateStudyingTheory, ls.Current)
	assert.Equal(t, "linear-algebra", ls.CurrentModuleID)
}

func TestPipelineCooldownEnforcement(t *testing.T) {
	p := newPipeline(t)
	ctx := context.Background()
	p.register(t, "bob", []string{"statistics-101"}, []string{"Probability Basics"})

	_, err := p.orch.RequestContent(ctx, "bob")
	require.NoError(t, err)
	p.submitStudyTime("bob", "statistics-101", 300)
	_, err = p.orch.RequestQuiz(ctx, "bob")
	require.NoError(t, err)

	p.submitQuiz("bob", "statistics-101", 70, nil)
	require.Equal(t, learner.StateStudyingTheory, p.stateOf(t, "bob"))
	p.submitStudyTime("bob", "statistics-101", 300)
	require.Equal(t, learner.StateReadyForAssessment, p.stateOf(t, "bob"))

	p.clock.Advance(200 * time.Second)
	_, err = p.orch.RequestQuiz(ctx, "bob")
	require.Error(t, err)
	require.ErrorIs(t, err, shared.ErrCooldown)
	var cdErr *shared.CooldownError
	require.True(t, errors.As(err, &cdErr))
	assert.Equal(t, 400*time.Second, cdErr.Remaining)
	assert.Equal(t, learner.StateReadyForAssessment, p.stateOf(t, "bob"),
		"a rejected request leaves the state untouched")

	p.clock.Advance(401 * time.Second)
	_, err = p.orch.RequestQuiz(ctx, "bob")
	require.NoError(t, err)
	assert.Equal(t, learner.StateTakingQuiz, p.stateOf(t, "bob"))
}

func TestPipelineRemediationPath(t *testing.T) {
	p := newPipeline(t)
	ctx := context.Background()
	p.register(t, "carol", []string{"statistics-101"},
		[]string{"Probability Basics", "Covariance", "Hypothesis Testing"})
	key := shared.Key{StudentID: "carol", ModuleID: "statistics-101"}

	_, err := p.orch.RequestContent(ctx, "carol")
	require.NoError(t, err)
	p.submitStudyTime("carol", "statistics-101", 300)
	_, err = p.orch.RequestQuiz(ctx, "carol")
	require.NoError(t, err)

	p.submitQuiz("carol", "statistics-101", 55, []string{"Covariance"})
	require.Equal(t, learner.StateStudyingTheory, p.stateOf(t, "carol"),
		"one weak attempt continues the study cycle")

	p.submitStudyTime("carol", "statistics-101", 300)
	p.clock.Advance(601 * time.Second)
	_, err = p.orch.RequestQuiz(ctx, "carol")
	require.NoError(t, err)

	p.submitQuiz("carol", "statistics-101", 50, []string{"Covariance"})
	assert.Equal(t, learner.StateNeedsRemediation, p.stateOf(t, "carol"),
		"a critical remediation decision forces the transition")

	d, ok := p.orch.LatestDecision(key)
	require.True(t, ok)
	assert.Equal(t, curriculum.DecisionInjectRemedial, d.Type)
	assert.Equal(t, curriculum.PriorityCritical, d.Priority)

	plan, err := p.plans.Get(ctx, key)
	require.NoError(t, err)
	var prereqAt, weakAt = -1, -1
	for i, topic := range plan.Remaining() {
		switch topic.Name {
		case "Foundations of Covariance":
			prereqAt = i
		case "Covariance":
			weakAt = i
		}
	}
	require.GreaterOrEqual(t, prereqAt, 0, "remedial item lands in the plan")
	assert.Less(t, prereqAt, weakAt)

	_, err = p.orch.RemedialDelivered(ctx, "carol")
	require.NoError(t, err)
	assert.Equal(t, learner.StateStudyingTheory, p.stateOf(t, "carol"))
}

func TestPipelinePersistsDecisions(t *testing.T) {
	p := newPipeline(t)
	ctx := context.Background()
	p.register(t, "dave", []string{"statistics-101"}, []string{"Probability Basics"})
	key := shared.Key{StudentID: "dave", ModuleID: "statistics-101"}

	p.submitQuiz("dave", "statistics-101", 70, nil)
	p.submitQuiz("dave", "statistics-101", 72, nil)

	stored, err := p.decisions.ListByKey(ctx, key, 10)
	require.NoError(t, err)
	require.Len(t, stored, 2)
	assert.Equal(t, uint64(2), stored[0].Revision, "newest first")
	assert.Equal(t, uint64(1), stored[1].Revision)
}

// flakyDecisionStore fails the first N writes, then delegates.
type flakyDecisionStore struct {
	*memory.DecisionStore
	mu       sync.Mutex
	failures int
	attempts int
}

func (s *flakyDecisionStore) SaveDecision(ctx context.Context, d *curriculum.Decision) error {
	s.mu.Lock()
	s.attempts++
	fail := s.attempts <= s.failures
	s.mu.Unlock()
	if fail {
		return errors.New("connection refused")
	}
	return s.DecisionStore.SaveDecision(ctx, d)
}

func TestPipelineRetriesDecisionPersistence(t *testing.T) {
	ctx := context.Background()
	store := &flakyDecisionStore{DecisionStore: memory.NewDecisionStore(), failures: 1}

	orch := New(
		DefaultFSMConfig(),
		performance.DefaultClassifierConfig(),
		curriculum.NewEngine(curriculum.DefaultEngineConfig(), nil),
		Deps{
			Plans:         memory.NewPlanStore(),
			DecisionStore: store,
			Generator:     &fakeGenerator{},
			Notifier:      fakeNotifier{},
			Clock:         timeutil.NewFakeClock(time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)),
			Retrier: retry.New(
				retry.WithMaxAttempts(3),
				retry.WithInitialDelay(time.Millisecond),
				retry.WithJitter(0),
			),
		},
	)
	agg := aggregator.New(orch.HandleUpdate, nil)

	agg.Consume(ctx, shared.InteractionEvent{
		EventID:   "ev-1",
		StudentID: "grace",
		ModuleID:  "statistics-101",
		Type:      shared.EventQuizSubmitted,
		Timestamp: time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC),
		Payload:   shared.QuizSubmittedPayload{QuizID: "quiz-1", Score: 70, MaxScore: 100},
	})

	key := shared.Key{StudentID: "grace", ModuleID: "statistics-101"}
	stored, err := store.ListByKey(ctx, key, 10)
	require.NoError(t, err)
	require.Len(t, stored, 1, "a single transient failure must not lose the audit record")
	assert.Equal(t, uint64(1), stored[0].Revision)

	store.mu.Lock()
	attempts := store.attempts
	store.mu.Unlock()
	assert.Equal(t, 2, attempts, "first write fails, the retry lands")
}

func TestPipelineIgnoresUnknownStudents(t *testing.T) {
	p := newPipeline(t)

	// No registration; the fold still succeeds and nothing panics.
	p.submitQuiz("ghost", "statistics-101", 70, nil)

	_, err := p.orch.StateOf("ghost")
	assert.ErrorIs(t, err, shared.ErrNotFound)

	snap, err := p.agg.Snapshot(shared.Key{StudentID: "ghost", ModuleID: "statistics-101"})
	require.NoError(t, err)
	assert.Equal(t, 1, snap.TotalQuizAttempts)
}

func TestRecordDecisionDiscardsStale(t *testing.T) {
	p := newPipeline(t)
	key := shared.Key{StudentID: "eve", ModuleID: "statistics-101"}

	newer := &curriculum.Decision{ID: "d2", Revision: 5}
	older := &curriculum.Decision{ID: "d1", Revision: 4}

	assert.True(t, p.orch.recordDecision(key, 5, newer))
	assert.False(t, p.orch.recordDecision(key, 4, older), "superseded revision is dropped")

	d, ok := p.orch.LatestDecision(key)
	require.True(t, ok)
	assert.Equal(t, "d2", d.ID)
}

func TestRegisterStudentIsIdempotent(t *testing.T) {
	p := newPipeline(t)

	first := p.orch.RegisterStudent("frank", []string{"m1", "m2"})
	second := p.orch.RegisterStudent("frank", []string{"m9"})

	assert.Equal(t, first.CurrentModuleID, second.CurrentModuleID)
	assert.Equal(t, first.RemainingModules, second.RemainingModules)
}
