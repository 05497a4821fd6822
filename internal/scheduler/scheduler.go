// Package scheduler triggers recurring pipeline runs in serve mode.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-co-op/gocron"

	"github.com/couchcryptid/sunset-stats/internal/pipeline"
)

// Runner executes one complete run.
type Runner interface {
	RunOnce(ctx context.Context) (*pipeline.Run, error)
}

// Scheduler runs the pipeline every interval. Overlapping triggers are
// skipped while a run is still in progress.
type Scheduler struct {
	scheduler *gocron.Scheduler
	runner    Runner
	interval  time.Duration
	logger    *slog.Logger
	ctx       context.Context
	cancel    context.CancelFunc
}

// New creates a Scheduler. Nothing runs until Start.
func New(runner Runner, interval time.Duration, logger *slog.Logger) *Scheduler {
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		scheduler: gocron.NewScheduler(time.UTC),
		runner:    runner,
		interval:  interval,
		logger:    logger,
		ctx:       ctx,
		cancel:    cancel,
	}
}

// Start schedules the recurring job and starts the underlying scheduler.
// The first run fires immediately.
func (s *Scheduler) Start() error {
	if s.interval <= 0 {
		return fmt.Errorf("scheduler interval must be positive, got %s", s.interval)
	}
	_, err := s.scheduler.Every(s.interval).SingletonMode().Do(s.tick)
	if err != nil {
		return fmt.Errorf("schedule run: %w", err)
	}
	s.scheduler.StartAsync()
	s.logger.Info("scheduler started", "interval", s.interval)
	return nil
}

// Stop cancels any in-flight run and stops future triggers.
func (s *Scheduler) Stop() {
	s.cancel()
	s.scheduler.Stop()
}

func (s *Scheduler) tick() {
	s.logger.Info("scheduled run triggered")
	run, err := s.runner.RunOnce(s.ctx)
	switch {
	case errors.Is(err, pipeline.ErrRunInProgress):
		s.logger.Info("scheduled run skipped", "reason", "run in progress")
	case err != nil && run != nil:
		s.logger.Error("scheduled run failed", "run_id", run.ID, "error", err)
	case err != nil:
		s.logger.Error("scheduled run failed", "error", err)
	default:
		s.logger.Info("scheduled run completed", "run_id", run.ID)
	}
}
