// Package orchestrator drives the per-student pedagogical cycle. It
// consumes aggregate updates from the aggregation engine, runs the
// classifier and decision engine, and steps the learner state machine,
// dispatching the resulting actions to the content generator and
// notification sink. State is serialized per student; different students
// transition fully in parallel.
package orchestrator

import (
	"context"
	"errors"
	"hash/fnv"
	"log/slog"
	"sync"

	"github.com/learnpulse/adaptive-engine/internal/domain/curriculum"
	"github.com/learnpulse/adaptive-engine/internal/domain/learner"
	"github.com/learnpulse/adaptive-engine/internal/domain/performance"
	"github.com/learnpulse/adaptive-engine/internal/domain/shared"
	"github.com/learnpulse/adaptive-engine/pkg/retry"
	"github.com/learnpulse/adaptive-engine/pkg/timeutil"
)

// stripeCount sizes the per-student lock array. Power of two for masking.
const stripeCount = 64

// ContentGenerator is the external content and assessment service. The
// orchestrator supplies topic focus and difficulty and is agnostic to how
// material is produced.
type ContentGenerator interface {
	// RequestContent asks for study material and returns a handle.
	RequestContent(ctx context.Context, studentID, moduleID string,
		topicFocus []string, difficulty curriculum.Difficulty) (string, error)

	// RequestQuiz asks for an assessment and returns a handle.
	RequestQuiz(ctx context.Context, studentID, moduleID string,
		topicFocus []string, difficulty curriculum.Difficulty) (string, error)
}

// NotificationSink receives decisions and transition records for display.
// Delivery is fire-and-forget; the orchestrator never blocks on it.
type NotificationSink interface {
	NotifyDecision(ctx context.Context, d *curriculum.Decision) error
	NotifyTransition(ctx context.Context, rec TransitionRecord) error
}

// TransitionRecord describes one state change for the notification sink.
type TransitionRecord struct {
	StudentID string        `json:"student_id"`
	ModuleID  string        `json:"module_id"`
	From      learner.State `json:"from"`
	To        learner.State `json:"to"`
	Trigger   Trigger       `json:"trigger"`
	Message   string        `json:"message,omitempty"`
}

// Orchestrator owns the learner states and the decision pipeline behind
// them.
type Orchestrator struct {
	cfg       FSMConfig
	clsCfg    performance.ClassifierConfig
	decisions *curriculum.Engine

	plans         curriculum.PlanStore
	decisionStore curriculum.DecisionStore
	generator     ContentGenerator
	notifier      NotificationSink
	clock         timeutil.Clock
	retrier       *retry.Retrier
	logger        *slog.Logger

	stripes [stripeCount]sync.Mutex

	mu       sync.RWMutex
	students map[string]*learner.LearnerState

	revMu          sync.Mutex
	latestRevision map[shared.Key]uint64
	latestDecision map[shared.Key]*curriculum.Decision
}

// Deps bundles the orchestrator's collaborators.
type Deps struct {
	Plans         curriculum.PlanStore
	DecisionStore curriculum.DecisionStore
	Generator     ContentGenerator
	Notifier      NotificationSink
	Clock         timeutil.Clock
	Logger        *slog.Logger

	// Retrier backs the audit writes. Nil means retry.StoreRetrier().
	Retrier *retry.Retrier
}

// New creates an orchestrator.
func New(cfg FSMConfig, clsCfg performance.ClassifierConfig, engine *curriculum.Engine, deps Deps) *Orchestrator {
	if deps.Clock == nil {
		deps.Clock = timeutil.SystemClock{}
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.Retrier == nil {
		deps.Retrier = retry.StoreRetrier()
	}
	return &Orchestrator{
		cfg:            cfg,
		clsCfg:         clsCfg,
		decisions:      engine,
		plans:          deps.Plans,
		decisionStore:  deps.DecisionStore,
		generator:      deps.Generator,
		notifier:       deps.Notifier,
		clock:          deps.Clock,
		retrier:        deps.Retrier,
		logger:         deps.Logger.With("component", "orchestrator"),
		students:       make(map[string]*learner.LearnerState),
		latestRevision: make(map[shared.Key]uint64),
		latestDecision: make(map[shared.Key]*curriculum.Decision),
	}
}

func (o *Orchestrator) stripeFor(studentID string) *sync.Mutex {
	h := fnv.New32a()
	h.Write([]byte(studentID))
	return &o.stripes[h.Sum32()&(stripeCount-1)]
}

// RegisterStudent creates the learner record with the student's ordered
// module backlog. Registering an existing student is a no-op.
func (o *Orchestrator) RegisterStudent(studentID string, modules []string) *learner.LearnerState {
	o.mu.Lock()
	defer o.mu.Unlock()
	if ls, ok := o.students[studentID]; ok {
		return ls.Clone()
	}
	ls := learner.NewLearnerState(studentID, modules)
	o.students[studentID] = ls
	return ls.Clone()
}

// StateOf returns a snapshot of the learner record, or shared.ErrNotFound.
func (o *Orchestrator) StateOf(studentID string) (*learner.LearnerState, error) {
	o.mu.RLock()
	ls, ok := o.students[studentID]
	o.mu.RUnlock()
	if !ok {
		return nil, shared.NewDomainError("orchestrator", "StateOf", shared.ErrNotFound,
			"unknown student "+studentID)
	}
	return ls.Clone(), nil
}

// HandleUpdate is the aggregation engine's update hook. It classifies the
// snapshot, recomputes the adaptation decision, persists and publishes it,
// and feeds the triggering event into the learner state machine.
func (o *Orchestrator) HandleUpdate(ctx context.Context, ev shared.InteractionEvent, snap *performance.Aggregate) {
	key := snap.Key()

	cls := performance.Classify(snap, o.clsCfg)
	plan := o.planFor(ctx, key)
	decision := o.decisions.Decide(snap, cls, plan)

	if !o.recordDecision(key, snap.Revision, decision) {
		o.logger.Warn("stale decision discarded",
			"key", key.String(), "revision", decision.Revision)
		return
	}

	if err := o.persistDecision(ctx, decision); err != nil {
		// In-memory state stays authoritative; the aggregate is a cache
		// of the event log and the decision is recomputable.
		o.logger.Error("decision persist failed", "key", key.String(), "error", err)
	}
	if decision.IsActionable() {
		updated := curriculum.ApplyDecision(plan, decision)
		if err := o.plans.Save(ctx, updated); err != nil {
			o.logger.Error("plan persist failed", "key", key.String(), "error", err)
		}
		o.notifyDecision(decision)
	}

	o.stepForEvent(ctx, ev, snap, decision)
}

// persistDecision writes the audit record, retrying transient store
// failures with bounded backoff. Exhausted retries surface to the caller;
// the decision itself is recomputable from the aggregate.
func (o *Orchestrator) persistDecision(ctx context.Context, d *curriculum.Decision) error {
	return o.retrier.Do(ctx, func(ctx context.Context) error {
		if err := o.decisionStore.SaveDecision(ctx, d); err != nil {
			return retry.Retryable(err)
		}
		return nil
	})
}

// planFor loads the current plan, falling back to an empty plan for keys
// that were never seeded with a topic sequence.
func (o *Orchestrator) planFor(ctx context.Context, key shared.Key) *curriculum.Plan {
	plan, err := o.plans.Get(ctx, key)
	if err != nil {
		if !errors.Is(err, shared.ErrNotFound) {
			o.logger.Error("plan load failed", "key", key.String(), "error", err)
		}
		return curriculum.NewPlan(key, nil, curriculum.DifficultyIntermediate)
	}
	return plan
}

// recordDecision tracks the newest aggregate revision per key and reports
// whether the decision is current. Folding is ordered per key, so a lower
// revision here means the decision raced a newer one and must be dropped.
func (o *Orchestrator) recordDecision(key shared.Key, revision uint64, d *curriculum.Decision) bool {
	o.revMu.Lock()
	defer o.revMu.Unlock()
	if revision < o.latestRevision[key] {
		return false
	}
	o.latestRevision[key] = revision
	o.latestDecision[key] = d
	return true
}

// LatestDecision returns the newest decision computed for a key.
func (o *Orchestrator) LatestDecision(key shared.Key) (*curriculum.Decision, bool) {
	o.revMu.Lock()
	defer o.revMu.Unlock()
	d, ok := o.latestDecision[key]
	return d, ok
}

// stepForEvent translates a folded event into a state machine trigger.
func (o *Orchestrator) stepForEvent(ctx context.Context, ev shared.InteractionEvent, snap *performance.Aggregate, d *curriculum.Decision) {
	switch p := ev.Payload.(type) {
	case shared.QuizSubmittedPayload:
		o.step(ctx, ev.StudentID, StepInput{
			Trigger:   TriggerQuizSubmitted,
			Aggregate: snap,
			Decision:  d,
		})
	case shared.ContentViewedPayload:
		o.step(ctx, ev.StudentID, StepInput{
			Trigger:      TriggerStudyTimeElapsed,
			StudySeconds: p.TimeSpentSeconds,
			Aggregate:    snap,
			Decision:     d,
		})
	case shared.TimeSpentPayload:
		o.step(ctx, ev.StudentID, StepInput{
			Trigger:      TriggerStudyTimeElapsed,
			StudySeconds: p.Seconds,
			Aggregate:    snap,
			Decision:     d,
		})
	}
}

// step serializes one transition for a student and dispatches its actions.
// Unknown students are skipped: events may arrive for learners this
// process does not orchestrate.
func (o *Orchestrator) step(ctx context.Context, studentID string, in StepInput) (*StepResult, error) {
	mu := o.stripeFor(studentID)
	mu.Lock()
	defer mu.Unlock()

	o.mu.RLock()
	ls, ok := o.students[studentID]
	o.mu.RUnlock()
	if !ok {
		return nil, shared.NewDomainError("orchestrator", "Step", shared.ErrNotFound,
			"unknown student "+studentID)
	}

	in.State = ls
	in.Now = o.clock.Now()
	from := ls.Current

	res, err := Step(o.cfg, in)
	if err != nil {
		return nil, err
	}
	o.commit(ctx, studentID, from, in.Trigger, &res)

	// The mastered state carries no guard: promote immediately.
	if res.State.Current == learner.StateMasteredModule {
		next := StepInput{State: res.State, Trigger: TriggerAdvance, Now: in.Now}
		if chained, err := Step(o.cfg, next); err == nil && chained.Transitioned {
			o.commit(ctx, studentID, learner.StateMasteredModule, TriggerAdvance, &chained)
			res = chained
		}
	}
	return &res, nil
}

// commit installs the post-transition state and dispatches emitted actions.
// The caller holds the student's stripe lock.
func (o *Orchestrator) commit(ctx context.Context, studentID string, from learner.State, trigger Trigger, res *StepResult) {
	o.mu.Lock()
	o.students[studentID] = res.State
	o.mu.Unlock()

	if res.Transitioned {
		o.logger.Info("learner transition",
			"student_id", studentID,
			"from", string(from),
			"to", string(res.State.Current),
			"trigger", string(trigger))
		o.notifyTransition(TransitionRecord{
			StudentID: studentID,
			ModuleID:  res.State.CurrentModuleID,
			From:      from,
			To:        res.State.Current,
			Trigger:   trigger,
		})
	}
	o.dispatch(ctx, res.Actions)
}

// dispatch fans emitted actions out to the collaborators. Generator
// failures degrade gracefully: the learner state has already advanced and
// the next request retries the call.
func (o *Orchestrator) dispatch(ctx context.Context, actions []EmittedAction) {
	for _, a := range actions {
		switch a.Kind {
		case ActionRequestContent, ActionRequestRemedial:
			if _, err := o.generator.RequestContent(ctx, a.StudentID, a.ModuleID, a.TopicFocus, a.Difficulty); err != nil {
				o.logger.Error("content request failed",
					"student_id", a.StudentID, "module_id", a.ModuleID, "error", err)
			}
		case ActionRequestQuiz:
			if _, err := o.generator.RequestQuiz(ctx, a.StudentID, a.ModuleID, a.TopicFocus, a.Difficulty); err != nil {
				o.logger.Error("quiz request failed",
					"student_id", a.StudentID, "module_id", a.ModuleID, "error", err)
			}
		case ActionNotify:
			o.notifyTransition(TransitionRecord{
				StudentID: a.StudentID,
				ModuleID:  a.ModuleID,
				Message:   a.Message,
			})
		}
	}
}

func (o *Orchestrator) notifyDecision(d *curriculum.Decision) {
	if o.notifier == nil {
		return
	}
	go func() {
		if err := o.notifier.NotifyDecision(context.Background(), d); err != nil {
			o.logger.Debug("decision notification dropped", "decision_id", d.ID, "error", err)
		}
	}()
}

func (o *Orchestrator) notifyTransition(rec TransitionRecord) {
	if o.notifier == nil {
		return
	}
	go func() {
		if err := o.notifier.NotifyTransition(context.Background(), rec); err != nil {
			o.logger.Debug("transition notification dropped", "student_id", rec.StudentID, "error", err)
		}
	}()
}

// ─────────────────────────────────────────────────────────────────────────────
// External request surface
// ─────────────────────────────────────────────────────────────────────────────

// RequestContent handles a learner's content request. In the initial state
// it starts the study phase; after mastery it advances the module.
func (o *Orchestrator) RequestContent(ctx context.Context, studentID string) (*StepResult, error) {
	return o.step(ctx, studentID, StepInput{Trigger: TriggerContentRequested})
}

// RequestQuiz handles a quiz request. A cooldown violation returns a
// shared.CooldownError carrying the remaining wait.
func (o *Orchestrator) RequestQuiz(ctx context.Context, studentID string) (*StepResult, error) {
	key := shared.Key{}
	if ls, err := o.StateOf(studentID); err == nil {
		key = ls.Key()
	}
	var decision *curriculum.Decision
	if d, ok := o.LatestDecision(key); ok {
		decision = d
	}
	return o.step(ctx, studentID, StepInput{Trigger: TriggerQuizRequested, Decision: decision})
}

// RemedialDelivered signals that remedial content reached the learner.
func (o *Orchestrator) RemedialDelivered(ctx context.Context, studentID string) (*StepResult, error) {
	return o.step(ctx, studentID, StepInput{Trigger: TriggerRemedialDelivered})
}

// Advance moves a learner who is ready for the next module forward.
func (o *Orchestrator) Advance(ctx context.Context, studentID string) (*StepResult, error) {
	return o.step(ctx, studentID, StepInput{Trigger: TriggerAdvance})
}
