/**
 * @description
 * Cron scheduler setup for the background maintenance jobs.
 */
package app

import (
	"context"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// ScheduleConfig holds the cron specs for each job. An empty spec disables the job.
type ScheduleConfig struct {
	GroupReconcile string
	OutboxBacklog  string
}

// Scheduler manages the cron jobs.
type Scheduler struct {
	cron   *cron.Cron
	jobs   *Jobs
	logger *zap.Logger
	config ScheduleConfig
}

// NewScheduler creates a new scheduler instance.
func NewScheduler(jobs *Jobs, logger *zap.Logger, cfg ScheduleConfig) *Scheduler {
	cronLogger := cron.PrintfLogger(zap.NewStdLog(logger))
	c := cron.New(cron.WithChain(cron.Recover(cronLogger)))

	return &Scheduler{
		cron:   c,
		jobs:   jobs,
		logger: logger,
		config: cfg,
	}
}

// Start registers the jobs and starts the cron scheduler.
func (s *Scheduler) Start() {
	s.register("group aggregate reconcile", s.config.GroupReconcile, s.jobs.ReconcileGroupAggregates)
	s.register("outbox backlog report", s.config.OutboxBacklog, s.jobs.ReportOutboxBacklog)
	s.cron.Start()
}

func (s *Scheduler) register(name, spec string, job func()) {
	if spec == "" {
		s.logger.Info("job disabled", zap.String("job", name))
		return
	}
	if _, err := s.cron.AddFunc(spec, job); err != nil {
		s.logger.Error("failed to schedule job", zap.String("job", name), zap.String("schedule", spec), zap.Error(err))
		return
	}
	s.logger.Info("scheduled job", zap.String("job", name), zap.String("schedule", spec))
}

// Stop gracefully stops the cron scheduler.
func (s *Scheduler) Stop() context.Context {
	return s.cron.Stop()
}
