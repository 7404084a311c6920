/**
 * @description
 * Cron scheduler setup for the verdict poll job.
 */
package app

import (
	"context"
	"log/slog"

	"github.com/robfig/cron/v3"
	"github.com/transfa/kyc-service/internal/config"
)

// Scheduler manages the cron jobs.
type Scheduler struct {
	cron   *cron.Cron
	jobs   *Jobs
	logger *slog.Logger
	config config.Config
}

// NewScheduler creates a new scheduler instance.
func NewScheduler(jobs *Jobs, logger *slog.Logger, cfg config.Config) *Scheduler {
	cronLogger := cron.PrintfLogger(slog.NewLogLogger(logger.Handler(), slog.LevelInfo))
	c := cron.New(cron.WithChain(cron.Recover(cronLogger), cron.SkipIfStillRunning(cronLogger)))

	return &Scheduler{
		cron:   c,
		jobs:   jobs,
		logger: logger,
		config: cfg,
	}
}

// Start registers the jobs and starts the cron scheduler.
func (s *Scheduler) Start() error {
	if _, err := s.cron.AddFunc(s.config.VerdictPollSchedule, s.jobs.PollStaleVerdicts); err != nil {
		s.logger.Error("failed to schedule verdict poll job", "error", err)
		return err
	}
	s.logger.Info("scheduled verdict poll job", "schedule", s.config.VerdictPollSchedule)

	s.cron.Start()
	return nil
}

// Stop gracefully stops the cron scheduler.
func (s *Scheduler) Stop() context.Context {
	return s.cron.Stop()
}
