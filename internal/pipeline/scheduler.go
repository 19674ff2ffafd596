package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-co-op/gocron"

	"github.com/couchcryptid/netatmo-ingest/internal/observability"
)

// CycleRunner runs one ingest cycle.
type CycleRunner interface {
	Run(ctx context.Context) (CycleSummary, error)
}

// Scheduler triggers ingest cycles on a cron schedule with a seconds field.
// A cycle still running when the next tick fires makes that tick wait, so
// cycles never overlap.
type Scheduler struct {
	scheduler *gocron.Scheduler
	runner    CycleRunner
	schedule  string
	logger    *slog.Logger
	metrics   *observability.Metrics
}

// NewScheduler creates a Scheduler for the given cron expression.
func NewScheduler(schedule string, runner CycleRunner, logger *slog.Logger, metrics *observability.Metrics) *Scheduler {
	return &Scheduler{
		scheduler: gocron.NewScheduler(time.UTC),
		runner:    runner,
		schedule:  schedule,
		logger:    logger,
		metrics:   metrics,
	}
}

// Run schedules the ingest job and blocks until ctx is cancelled. A cycle in
// progress at shutdown sees ctx cancelled.
func (s *Scheduler) Run(ctx context.Context) error {
	_, err := s.scheduler.CronWithSeconds(s.schedule).SingletonMode().Do(func() {
		if ctx.Err() != nil {
			return
		}
		// Failures are logged and counted by the runner.
		_, _ = s.runner.Run(ctx)
	})
	if err != nil {
		return fmt.Errorf("schedule ingest %q: %w", s.schedule, err)
	}

	s.scheduler.StartAsync()
	s.metrics.PipelineRunning.Set(1)
	defer s.metrics.PipelineRunning.Set(0)
	s.logger.Info("scheduler started", "schedule", s.schedule)

	<-ctx.Done()
	s.logger.Info("scheduler stopping", "reason", ctx.Err())
	s.scheduler.Stop()
	return nil
}
