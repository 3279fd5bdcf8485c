package usecase

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"CommentTrends/internal/ports"
)

// Scheduler wires the cron driver with the refresh pipeline.
type Scheduler struct {
	driver   ports.Scheduler
	pipeline *Pipeline
	logger   *slog.Logger
}

// NewScheduler returns a helper to start/stop recurring refreshes.
func NewScheduler(driver ports.Scheduler, pipeline *Pipeline, logger *slog.Logger) *Scheduler {
	return &Scheduler{driver: driver, pipeline: pipeline, logger: logger}
}

// Start registers the refresh with the provided scheduler.
func (s *Scheduler) Start(ctx context.Context) error {
	if s.driver == nil || s.pipeline == nil {
		return nil
	}

	job := func(trigger time.Time) {
		run, err := s.pipeline.Refresh(ctx, RefreshOptions{Refetch: true})
		if s.logger == nil {
			return
		}
		switch {
		case errors.Is(err, ErrRefreshInProgress):
			s.logger.Info("scheduled refresh skipped", "trigger", trigger, "reason", err)
		case err != nil:
			s.logger.Error("scheduled refresh failed", "trigger", trigger, "error", err)
		default:
			s.logger.Info("scheduled refresh done", "trigger", trigger, "run_id", run.ID)
		}
	}

	return s.driver.Start(ctx, job)
}

// Stop gracefully tears down the underlying scheduler.
func (s *Scheduler) Stop(ctx context.Context) error {
	if s.driver == nil {
		return nil
	}

	return s.driver.Stop(ctx)
}
