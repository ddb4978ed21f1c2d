package scheduler

import (
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
)

// IntervalSchedule runs a job at a fixed interval.
type IntervalSchedule struct {
	Interval time.Duration
}

// Every creates an interval schedule.
func Every(d time.Duration) IntervalSchedule {
	return IntervalSchedule{Interval: d}
}

// Next implements Schedule.
func (s IntervalSchedule) Next(t time.Time) time.Time {
	return t.Add(s.Interval)
}

// String implements Schedule.
func (s IntervalSchedule) String() string {
	return fmt.Sprintf("every %s", s.Interval)
}

// CronSchedule runs a job on a standard 5-field cron expression.
type CronSchedule struct {
	expr     string
	schedule cron.Schedule
}

// Cron parses a cron expression into a schedule.
func Cron(expr string) (CronSchedule, error) {
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)
	sched, err := parser.Parse(expr)
	if err != nil {
		return CronSchedule{}, fmt.Errorf("scheduler: parsing cron expression %q: %w", expr, err)
	}
	return CronSchedule{expr: expr, schedule: sched}, nil
}

// MustCron parses a cron expression, panicking on error. For package-level
// defaults known to be valid.
func MustCron(expr string) CronSchedule {
	s, err := Cron(expr)
	if err != nil {
		panic(err)
	}
	return s
}

// Next implements Schedule.
func (s CronSchedule) Next(t time.Time) time.Time {
	return s.schedule.Next(t)
}

// String implements Schedule.
func (s CronSchedule) String() string {
	return "cron " + s.expr
}
