// Package external holds adapters for the engine's external collaborators.
// The content and assessment generator lives outside this system; the
// adapters here speak its contract without knowing how material is made.
package external

import (
	"context"
	"log/slog"

	"github.com/google/uuid"

	"github.com/learnpulse/adaptive-engine/internal/domain/curriculum"
)

// StubGenerator satisfies the content generator contract with synthetic
// handles. It stands in until a real generation service is wired, and backs
// single-node deployments where requests are consumed from the
// notification channels instead.
type StubGenerator struct {
	logger *slog.Logger
}

// NewStubGenerator creates a stub generator.
func NewStubGenerator(logger *slog.Logger) *StubGenerator {
	if logger == nil {
		logger = slog.Default()
	}
	return &StubGenerator{logger: logger.With("component", "generator")}
}

// RequestContent implements orchestrator.ContentGenerator.
func (g *StubGenerator) RequestContent(ctx context.Context, studentID, moduleID string, topicFocus []string, difficulty curriculum.Difficulty) (string, error) {
	handle := "content-" + uuid.NewString()
	g.logger.Info("content requested",
		"student_id", studentID,
		"module_id", moduleID,
		"topic_focus", topicFocus,
		"difficulty", difficulty.String(),
		"handle", handle)
	return handle, nil
}

// RequestQuiz implements orchestrator.ContentGenerator.
func (g *StubGenerator) RequestQuiz(ctx context.Context, studentID, moduleID string, topicFocus []string, difficulty curriculum.Difficulty) (string, error) {
	handle := "quiz-" + uuid.NewString()
	g.logger.Info("quiz requested",
		"student_id", studentID,
		"module_id", moduleID,
		"topic_focus", topicFocus,
		"difficulty", difficulty.String(),
		"handle", handle)
	return handle, nil
}
