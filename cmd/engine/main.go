// Command engine runs the real-time performance-aggregation and
// curriculum-adaptation engine: event ingress, per-key aggregation,
// classification, adaptation decisions, and the learner state machine,
// with snapshot persistence and pub/sub notifications around them.
package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/learnpulse/adaptive-engine/config"
	"github.com/learnpulse/adaptive-engine/internal/domain/curriculum"
	"github.com/learnpulse/adaptive-engine/internal/domain/performance"
	"github.com/learnpulse/adaptive-engine/internal/engine/aggregator"
	"github.com/learnpulse/adaptive-engine/internal/engine/ingress"
	"github.com/learnpulse/adaptive-engine/internal/engine/orchestrator"
	"github.com/learnpulse/adaptive-engine/internal/infrastructure/external"
	"github.com/learnpulse/adaptive-engine/internal/infrastructure/notifier"
	"github.com/learnpulse/adaptive-engine/internal/infrastructure/persistence/memory"
	"github.com/learnpulse/adaptive-engine/internal/infrastructure/persistence/postgres"
	redisinfra "github.com/learnpulse/adaptive-engine/internal/infrastructure/persistence/redis"
	"github.com/learnpulse/adaptive-engine/internal/infrastructure/scheduler"
	"github.com/learnpulse/adaptive-engine/internal/infrastructure/scheduler/jobs"
	"github.com/learnpulse/adaptive-engine/pkg/timeutil"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("configuration error", "error", err)
		os.Exit(1)
	}

	logger := newLogger(cfg)
	slog.SetDefault(logger)
	logger.Info("starting adaptive engine",
		"version", cfg.App.Version,
		"environment", string(cfg.App.Environment))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("engine exited with error", "error", err)
		os.Exit(1)
	}
	logger.Info("engine stopped")
}

func run(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	// Persistence. PostgreSQL is optional; without it the snapshot store
	// is in-process and recovery is empty.
	var (
		snapStore     performance.SnapshotStore
		decisionStore curriculum.DecisionStore
	)
	if cfg.Database.Enabled {
		conn, err := postgres.NewConnectionFromURL(ctx, cfg.Database.URL)
		if err != nil {
			return err
		}
		defer conn.Close()

		if err := postgres.NewMigrator(conn).Migrate(ctx); err != nil {
			return err
		}
		snapStore = postgres.NewAggregateRepo(conn)
		decisionStore = postgres.NewDecisionRepo(conn)
		logger.Info("postgres connected")
	} else {
		snapStore = memory.NewSnapshotStore()
		decisionStore = memory.NewDecisionStore()
		logger.Warn("postgres disabled, snapshots are in-process only")
	}

	// Redis backs the snapshot read cache and the pub/sub notifier.
	var (
		snapCache performance.SnapshotCache
		sink      orchestrator.NotificationSink = notifier.NopNotifier{}
	)
	if cfg.Redis.Enabled {
		rcfg := redisinfra.DefaultConfig()
		rcfg.Host = cfg.Redis.Host
		rcfg.Port = cfg.Redis.Port
		rcfg.Password = cfg.Redis.Password
		rcfg.DB = cfg.Redis.DB

		cache, err := redisinfra.NewCache(ctx, rcfg)
		if err != nil {
			return err
		}
		defer cache.Close()

		snapCache = redisinfra.NewSnapshotCache(cache)
		sink = notifier.NewRedisNotifier(cache, logger)
		logger.Info("redis connected", "addr", rcfg.Addr())
	} else {
		logger.Warn("redis disabled, notifications are dropped")
	}

	// Core pipeline: ingress -> aggregator -> classifier -> decision
	// engine -> orchestrator.
	plans := memory.NewPlanStore()
	decisionEngine := curriculum.NewEngine(curriculum.EngineConfig{
		WeakTopicThreshold: cfg.Engine.WeakTopicThreshold,
		RemedialMinutes:    cfg.Engine.RemedialMinutes,
		SkipMinAttempts:    cfg.Engine.SkipMinAttempts,
	}, nil)

	orch := orchestrator.New(
		orchestrator.FSMConfig{
			StudyFloorSeconds:      int(cfg.Engine.StudyFloor.Seconds()),
			QuizCooldownSeconds:    int(cfg.Engine.QuizCooldown.Seconds()),
			MasteryThreshold:       cfg.Engine.MasteryThreshold,
			RemediationBelow:       cfg.Engine.RemediationBelow,
			RemediationMinAttempts: cfg.Engine.RemediationMinAttempts,
		},
		performance.ClassifierConfig{
			AnomalyScoreBelow:  cfg.Engine.AnomalyScoreBelow,
			AnomalyTimeSeconds: int(cfg.Engine.AnomalyTime.Seconds()),
		},
		decisionEngine,
		orchestrator.Deps{
			Plans:         plans,
			DecisionStore: decisionStore,
			Generator:     external.NewStubGenerator(logger),
			Notifier:      sink,
			Clock:         timeutil.SystemClock{},
			Logger:        logger,
		},
	)

	agg := aggregator.New(orch.HandleUpdate, logger)
	if err := agg.Restore(ctx, snapStore); err != nil {
		// Recovery failure is not fatal: aggregates rebuild from new
		// events, only history before the crash is lost.
		logger.Error("aggregate recovery failed", "error", err)
	}

	ing := ingress.New(ingress.Config{
		BufferSize: cfg.Engine.BufferSize,
		Workers:    cfg.Engine.IngressWorkers,
	}, agg, logger)
	ing.Start(ctx)
	defer ing.Close()

	// Background jobs.
	sched := scheduler.NewScheduler(scheduler.SchedulerConfig{Logger: logger})
	flushJob := jobs.NewFlushSnapshotsJob(agg, snapStore, snapCache, logger)
	if err := sched.Register(flushJob, scheduler.Every(cfg.Scheduler.FlushInterval)); err != nil {
		return err
	}
	evictSchedule, err := scheduler.Cron(cfg.Scheduler.EvictionCron)
	if err != nil {
		return err
	}
	evictJob := jobs.NewEvictStaleJob(agg, snapStore, snapCache, plans,
		cfg.Engine.IdleTTL, timeutil.SystemClock{}, logger)
	if err := sched.Register(evictJob, evictSchedule); err != nil {
		return err
	}
	statsJob := jobs.NewReportStatsJob(ing, logger)
	if err := sched.Register(statsJob, scheduler.Every(cfg.Scheduler.StatsInterval)); err != nil {
		return err
	}
	if err := sched.Start(ctx); err != nil {
		return err
	}

	<-ctx.Done()
	logger.Info("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.App.ShutdownTimeout)
	defer cancel()

	if err := sched.Stop(); err != nil {
		logger.Error("scheduler stop failed", "error", err)
	}
	ing.Close()

	// Final flush so restarts recover the freshest snapshots.
	if err := flushJob.Run(shutdownCtx); err != nil {
		logger.Error("final snapshot flush failed", "error", err)
	}
	return nil
}

func newLogger(cfg *config.Config) *slog.Logger {
	level := slog.LevelInfo
	if cfg.App.Debug {
		level = slog.LevelDebug
	}
	opts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	if cfg.IsProduction() {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}
	return slog.New(handler).With(
		"app", cfg.App.Name,
		"started_at", time.Now().UTC().Format(time.RFC3339),
	)
}
