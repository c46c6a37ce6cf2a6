/**
 * @description
 * Scheduled job implementations: group aggregate reconciliation and outbox
 * backlog reporting.
 */
package app

import (
	"context"
	"time"

	"github.com/BenyBen1/EstienCapital-sub000/internal/store"
	"go.uber.org/zap"
)

// JobsRepository defines database operations needed by the jobs.
type JobsRepository interface {
	RecomputeAllGroupAggregates(ctx context.Context) (int64, error)
	GetOutboxBacklog(ctx context.Context) (*store.OutboxBacklog, error)
}

const outboxBacklogWarnAge = 15 * time.Minute

// Jobs contains the logic for all scheduled tasks.
type Jobs struct {
	repo   JobsRepository
	logger *zap.Logger
	now    func() time.Time
}

// NewJobs creates a new Jobs runner.
func NewJobs(repo JobsRepository, logger *zap.Logger) *Jobs {
	return &Jobs{
		repo:   repo,
		logger: logger,
		now:    time.Now,
	}
}

// ReconcileGroupAggregates recomputes member_count and simple_balance for every
// group and reports how many had drifted.
func (j *Jobs) ReconcileGroupAggregates() {
	ctx := context.Background()

	drifted, err := j.repo.RecomputeAllGroupAggregates(ctx)
	if err != nil {
		j.logger.Error("group aggregate reconcile failed", zap.Error(err))
		return
	}
	if drifted > 0 {
		j.logger.Warn("group aggregates repaired", zap.Int64("groups", drifted))
		return
	}
	j.logger.Debug("group aggregates consistent")
}

// ReportOutboxBacklog logs undelivered notification counts and warns when the
// oldest pending row is stuck.
func (j *Jobs) ReportOutboxBacklog() {
	ctx := context.Background()

	backlog, err := j.repo.GetOutboxBacklog(ctx)
	if err != nil {
		j.logger.Error("failed to read outbox backlog", zap.Error(err))
		return
	}

	fields := []zap.Field{
		zap.Int64("pending", backlog.Pending),
		zap.Int64("processing", backlog.Processing),
		zap.Int64("retrying", backlog.Retrying),
	}
	if backlog.OldestPending != nil {
		age := j.now().Sub(*backlog.OldestPending)
		fields = append(fields, zap.Duration("oldest_pending_age", age))
		if age > outboxBacklogWarnAge {
			j.logger.Warn("outbox backlog is stale", fields...)
			return
		}
	}
	j.logger.Info("outbox backlog", fields...)
}
