// Package notifier publishes adaptation decisions and learner transitions
// to external consumers. Delivery is fire-and-forget: the engine never
// blocks on a display layer.
package notifier

import (
	"context"
	"log/slog"

	"github.com/learnpulse/adaptive-engine/internal/domain/curriculum"
	"github.com/learnpulse/adaptive-engine/internal/engine/orchestrator"
	redisinfra "github.com/learnpulse/adaptive-engine/internal/infrastructure/persistence/redis"
)

// RedisNotifier publishes records over Redis pub/sub channels. Subscribers
// that are not listening simply miss the message; nothing is queued.
type RedisNotifier struct {
	cache  *redisinfra.Cache
	logger *slog.Logger
}

// NewRedisNotifier creates a pub/sub notifier.
func NewRedisNotifier(cache *redisinfra.Cache, logger *slog.Logger) *RedisNotifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &RedisNotifier{
		cache:  cache,
		logger: logger.With("component", "notifier"),
	}
}

// NotifyDecision publishes an adaptation decision.
func (n *RedisNotifier) NotifyDecision(ctx context.Context, d *curriculum.Decision) error {
	if err := n.cache.Publish(ctx, redisinfra.ChannelDecisions, d); err != nil {
		n.logger.Debug("decision publish failed", "decision_id", d.ID, "error", err)
		return err
	}
	return nil
}

// NotifyTransition publishes a learner state transition.
func (n *RedisNotifier) NotifyTransition(ctx context.Context, rec orchestrator.TransitionRecord) error {
	if err := n.cache.Publish(ctx, redisinfra.ChannelTransitions, rec); err != nil {
		n.logger.Debug("transition publish failed", "student_id", rec.StudentID, "error", err)
		return err
	}
	return nil
}

// NopNotifier discards all notifications, used in tests and when Redis is
// not configured.
type NopNotifier struct{}

// NotifyDecision implements orchestrator.NotificationSink.
func (NopNotifier) NotifyDecision(ctx context.Context, d *curriculum.Decision) error { return nil }

// NotifyTransition implements orchestrator.NotificationSink.
func (NopNotifier) NotifyTransition(ctx context.Context, rec orchestrator.TransitionRecord) error {
	return nil
}
