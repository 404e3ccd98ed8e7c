package cron

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/angelmondragon/stocktake-backend/pkg/logger"
)

const defaultAuditRetentionDays = 180

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type auditPruner interface {
	DeleteAuditBefore(ctx context.Context, tx *gorm.DB, cutoff time.Time) (int64, error)
}

type AuditRetentionJobParams struct {
	Logger        *logger.Logger
	DB            txRunner
	Repository    auditPruner
	RetentionDays int
	Now           func() time.Time
}

// NewAuditRetentionJob drops audit entries older than the retention window.
func NewAuditRetentionJob(params AuditRetentionJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.DB == nil {
		return nil, fmt.Errorf("db runner required")
	}
	if params.Repository == nil {
		return nil, fmt.Errorf("retention repository required")
	}
	days := params.RetentionDays
	if days <= 0 {
		days = defaultAuditRetentionDays
	}
	now := params.Now
	if now == nil {
		now = time.Now
	}
	return &auditRetentionJob{
		logg: params.Logger,
		db:   params.DB,
		repo: params.Repository,
		days: days,
		now:  now,
	}, nil
}

type auditRetentionJob struct {
	logg *logger.Logger
	db   txRunner
	repo auditPruner
	days int
	now  func() time.Time
}

func (j *auditRetentionJob) Name() string { return "audit-retention" }

func (j *auditRetentionJob) Run(ctx context.Context) error {
	cutoff := j.now().UTC().AddDate(0, 0, -j.days)
	var deleted int64
	err := j.db.WithTx(ctx, func(tx *gorm.DB) error {
		n, err := j.repo.DeleteAuditBefore(ctx, tx, cutoff)
		deleted = n
		return err
	})
	if err != nil {
		return fmt.Errorf("audit retention: %w", err)
	}
	j.logg.Info(j.logg.WithFields(ctx, map[string]any{
		"cutoff":         cutoff,
		"retention_days": j.days,
		"rows_deleted":   deleted,
	}), "audit retention complete")
	return nil
}
