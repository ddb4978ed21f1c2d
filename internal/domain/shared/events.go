package shared

import (
	"fmt"
	"time"
)

// EventType represents the type of learner interaction event.
type EventType string

// Interaction event types - these drive the adaptation engine.
// Each event is an immutable fact produced by an external UI/API layer.
const (
	EventQuizSubmitted    EventType = "quiz_submitted"
	EventContentViewed    EventType = "content_viewed"
	EventTimeSpent        EventType = "time_spent"
	EventStruggleSignaled EventType = "struggle_signaled"
	EventModuleStarted    EventType = "module_started"
	EventModuleCompleted  EventType = "module_completed"
)

// IsValid reports whether the event type is known.
func (t EventType) IsValid() bool {
	switch t {
	case EventQuizSubmitted, EventContentViewed, EventTimeSpent,
		EventStruggleSignaled, EventModuleStarted, EventModuleCompleted:
		return true
	default:
		return false
	}
}

// Key identifies the (student, module) pair that owns a performance aggregate.
type Key struct {
	StudentID string
	ModuleID  string
}

// String returns the canonical "student/module" form, used in cache keys
// and log fields.
func (k Key) String() string {
	return k.StudentID + "/" + k.ModuleID
}

// IsValid reports whether both components are present.
func (k Key) IsValid() bool {
	return k.StudentID != "" && k.ModuleID != ""
}

// Payload is the variant part of an InteractionEvent. Exactly one concrete
// shape exists per event type; an invalid tag/shape pairing is rejected at
// the ingress boundary, never downstream.
type Payload interface {
	// EventType returns the tag this payload shape belongs to.
	EventType() EventType

	// Validate checks that required fields for the tag are present.
	Validate() error
}

// InteractionEvent is an immutable learner interaction fact. It is created
// once by an external producer and consumed exactly once by the aggregation
// engine (at-least-once delivery is tolerated because folding is idempotent
// per EventID).
type InteractionEvent struct {
	// EventID uniquely identifies the event for idempotent processing.
	EventID string

	// StudentID identifies the learner.
	StudentID string

	// ModuleID identifies the course module.
	ModuleID string

	// Type is the payload tag.
	Type EventType

	// Timestamp is the producer-side occurrence time. Clocks may tie or
	// skew, so ordering within a key uses Sequence, never Timestamp alone.
	Timestamp time.Time

	// Sequence is assigned by the ingress on acceptance; monotonically
	// increasing, it breaks ties between events with identical timestamps.
	Sequence uint64

	// Payload carries the tag-specific data.
	Payload Payload
}

// Key returns the (student, module) aggregate key for the event.
func (e InteractionEvent) Key() Key {
	return Key{StudentID: e.StudentID, ModuleID: e.ModuleID}
}

// Validate checks identity fields and the tag/shape pairing.
func (e InteractionEvent) Validate() error {
	if e.EventID == "" {
		return NewDomainError("event", "Validate", ErrMalformed, "event_id is required")
	}
	if e.StudentID == "" {
		return NewDomainError("event", "Validate", ErrMalformed, "student_id is required")
	}
	if e.ModuleID == "" {
		return NewDomainError("event", "Validate", ErrMalformed, "module_id is required")
	}
	if !e.Type.IsValid() {
		return NewDomainError("event", "Validate", ErrMalformed,
			fmt.Sprintf("unknown event type %q", e.Type))
	}
	if e.Timestamp.IsZero() {
		return NewDomainError("event", "Validate", ErrMalformed, "timestamp is required")
	}
	if e.Payload == nil {
		return NewDomainError("event", "Validate", ErrMalformed, "payload is required")
	}
	if e.Payload.EventType() != e.Type {
		return NewDomainError("event", "Validate", ErrMalformed,
			fmt.Sprintf("payload shape %q does not match event type %q", e.Payload.EventType(), e.Type))
	}
	if err := e.Payload.Validate(); err != nil {
		return err
	}
	return nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Payload shapes
// ─────────────────────────────────────────────────────────────────────────────

// QuizSubmittedPayload carries the result of a quiz attempt. Correctness and
// grading semantics live upstream; the engine only consumes the normalized
// score.
type QuizSubmittedPayload struct {
	QuizID          string   `json:"quiz_id"`
	Score           float64  `json:"score"`
	MaxScore        float64  `json:"max_score"`
	WeakTopics      []string `json:"weak_topics,omitempty"`
	DurationSeconds int      `json:"duration_seconds"`
}

// EventType implements Payload.
func (p QuizSubmittedPayload) EventType() EventType { return EventQuizSubmitted }

// Validate implements Payload.
func (p QuizSubmittedPayload) Validate() error {
	if p.QuizID == "" {
		return NewDomainError("event", "Validate", ErrMalformed, "quiz_submitted: quiz_id is required")
	}
	if p.MaxScore <= 0 {
		return NewDomainError("event", "Validate", ErrMalformed, "quiz_submitted: max_score must be positive")
	}
	if p.Score < 0 || p.Score > p.MaxScore {
		return NewDomainError("event", "Validate", ErrMalformed, "quiz_submitted: score out of range")
	}
	if p.DurationSeconds < 0 {
		return NewDomainError("event", "Validate", ErrMalformed, "quiz_submitted: duration cannot be negative")
	}
	return nil
}

// Percentage returns the normalized score in [0,100].
func (p QuizSubmittedPayload) Percentage() float64 {
	return p.Score / p.MaxScore * 100
}

// ContentViewedPayload records that a learner viewed theory content.
type ContentViewedPayload struct {
	TopicID          string `json:"topic_id"`
	TimeSpentSeconds int    `json:"time_spent_seconds"`
}

// EventType implements Payload.
func (p ContentViewedPayload) EventType() EventType { return EventContentViewed }

// Validate implements Payload.
func (p ContentViewedPayload) Validate() error {
	if p.TopicID == "" {
		return NewDomainError("event", "Validate", ErrMalformed, "content_viewed: topic_id is required")
	}
	if p.TimeSpentSeconds < 0 {
		return NewDomainError("event", "Validate", ErrMalformed, "content_viewed: time_spent cannot be negative")
	}
	return nil
}

// TimeSpentPayload records raw study time without a content view.
type TimeSpentPayload struct {
	TopicID string `json:"topic_id,omitempty"`
	Seconds int    `json:"seconds"`
}

// EventType implements Payload.
func (p TimeSpentPayload) EventType() EventType { return EventTimeSpent }

// Validate implements Payload.
func (p TimeSpentPayload) Validate() error {
	if p.Seconds <= 0 {
		return NewDomainError("event", "Validate", ErrMalformed, "time_spent: seconds must be positive")
	}
	return nil
}

// StruggleSignaledPayload records an explicit struggle indicator
// (repeated wrong attempts, help clicked, excessive dwell).
type StruggleSignaledPayload struct {
	TopicID      string `json:"topic_id"`
	StruggleType string `json:"struggle_type"`
}

// EventType implements Payload.
func (p StruggleSignaledPayload) EventType() EventType { return EventStruggleSignaled }

// Validate implements Payload.
func (p StruggleSignaledPayload) Validate() error {
	if p.TopicID == "" {
		return NewDomainError("event", "Validate", ErrMalformed, "struggle_signaled: topic_id is required")
	}
	if p.StruggleType == "" {
		return NewDomainError("event", "Validate", ErrMalformed, "struggle_signaled: struggle_type is required")
	}
	return nil
}

// ModuleStartedPayload marks the learner's first touch of a module.
type ModuleStartedPayload struct{}

// EventType implements Payload.
func (p ModuleStartedPayload) EventType() EventType { return EventModuleStarted }

// Validate implements Payload.
func (p ModuleStartedPayload) Validate() error { return nil }

// ModuleCompletedPayload marks the end of a module with its final score.
// Completion makes the aggregate eligible for eviction.
type ModuleCompletedPayload struct {
	FinalScore float64 `json:"final_score"`
}

// EventType implements Payload.
func (p ModuleCompletedPayload) EventType() EventType { return EventModuleCompleted }

// Validate implements Payload.
func (p ModuleCompletedPayload) Validate() error {
	if p.FinalScore < 0 || p.FinalScore > 100 {
		return NewDomainError("event", "Validate", ErrMalformed, "module_completed: final_score out of range")
	}
	return nil
}
