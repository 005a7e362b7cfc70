package cron

import (
	"context"
	"fmt"
	"time"

	"github.com/projectdash/dashboard-backend/pkg/logger"
	"github.com/projectdash/dashboard-backend/pkg/metrics"
)

const (
	LedgerRetentionJobName     = "ledger-retention"
	defaultLedgerRetentionDays = 90
)

type LedgerRetentionJobParams struct {
	Logger     *logger.Logger
	Repository ledgerPruner
	Metrics    *metrics.CronJobMetrics
	// Retention is in days.
	Retention int
}

type ledgerPruner interface {
	DeleteLedgerBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// NewLedgerRetentionJob prunes processed-event ledger rows older than the
// retention window. Providers stop redelivering long before the cutoff.
func NewLedgerRetentionJob(params LedgerRetentionJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Repository == nil {
		return nil, fmt.Errorf("ledger repository required")
	}
	retention := params.Retention
	if retention <= 0 {
		retention = defaultLedgerRetentionDays
	}
	return &ledgerRetentionJob{
		logg:      params.Logger,
		repo:      params.Repository,
		metrics:   params.Metrics,
		retention: retention,
		now:       time.Now,
	}, nil
}

type ledgerRetentionJob struct {
	logg      *logger.Logger
	repo      ledgerPruner
	metrics   *metrics.CronJobMetrics
	retention int
	now       func() time.Time
}

func (j *ledgerRetentionJob) Name() string { return LedgerRetentionJobName }

func (j *ledgerRetentionJob) Run(ctx context.Context) error {
	cutoff := j.now().UTC().Add(-time.Duration(j.retention) * 24 * time.Hour)
	deleted, err := j.repo.DeleteLedgerBefore(ctx, cutoff)
	if err != nil {
		return fmt.Errorf("ledger retention: %w", err)
	}
	j.metrics.AddDeleted(j.Name(), deleted)
	j.logg.Info(j.logg.WithFields(ctx, map[string]any{
		"cutoff":         cutoff,
		"retention_days": j.retention,
		"rows_deleted":   deleted,
	}), "cron.ledger_pruned")
	return nil
}
