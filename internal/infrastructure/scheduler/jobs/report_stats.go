package jobs

import (
	"context"
	"log/slog"

	"github.com/learnpulse/adaptive-engine/internal/engine/ingress"
)

// ReportStatsJob periodically logs the ingress counters so sustained drops
// or malformed-event spikes surface in the log stream without an external
// metrics pipeline.
type ReportStatsJob struct {
	ing    *ingress.Ingress
	logger *slog.Logger
}

// NewReportStatsJob creates the stats-reporting job.
func NewReportStatsJob(ing *ingress.Ingress, logger *slog.Logger) *ReportStatsJob {
	if logger == nil {
		logger = slog.Default()
	}
	return &ReportStatsJob{
		ing:    ing,
		logger: logger.With("job", "report_stats"),
	}
}

// Name implements scheduler.Job.
func (j *ReportStatsJob) Name() string { return "report_stats" }

// Description implements scheduler.Job.
func (j *ReportStatsJob) Description() string {
	return "logs ingress throughput and drop counters"
}

// Run implements scheduler.Job.
func (j *ReportStatsJob) Run(ctx context.Context) error {
	s := j.ing.Stats()
	level := slog.LevelInfo
	if s.Dropped > 0 || s.Malformed > 0 {
		level = slog.LevelWarn
	}
	j.logger.Log(ctx, level, "ingress stats",
		"accepted", s.Accepted,
		"dropped", s.Dropped,
		"malformed", s.Malformed,
		"drop_rate", s.DropRate,
		"utilization", s.Utilization,
		"events_per_second", s.EventsPerSecond)
	return nil
}
