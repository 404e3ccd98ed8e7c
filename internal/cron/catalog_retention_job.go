package cron

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/angelmondragon/stocktake-backend/pkg/calendar"
	"github.com/angelmondragon/stocktake-backend/pkg/logger"
)

type catalogPruner interface {
	DeleteCatalogBefore(ctx context.Context, tx *gorm.DB, day time.Time) (int64, int64, error)
}

type CatalogRetentionJobParams struct {
	Logger        *logger.Logger
	DB            txRunner
	Repository    catalogPruner
	Calendar      *calendar.Calendar
	RetentionDays int
}

// NewCatalogRetentionJob purges catalog days older than RetentionDays
// reference-timezone days, counts included. A non-positive window disables
// the job and returns a nil Job.
func NewCatalogRetentionJob(params CatalogRetentionJobParams) (Job, error) {
	if params.RetentionDays <= 0 {
		return nil, nil
	}
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.DB == nil {
		return nil, fmt.Errorf("db runner required")
	}
	if params.Repository == nil {
		return nil, fmt.Errorf("retention repository required")
	}
	if params.Calendar == nil {
		return nil, fmt.Errorf("calendar required")
	}
	return &catalogRetentionJob{
		logg: params.Logger,
		db:   params.DB,
		repo: params.Repository,
		cal:  params.Calendar,
		days: params.RetentionDays,
	}, nil
}

type catalogRetentionJob struct {
	logg *logger.Logger
	db   txRunner
	repo catalogPruner
	cal  *calendar.Calendar
	days int
}

func (j *catalogRetentionJob) Name() string { return "catalog-retention" }

func (j *catalogRetentionJob) Run(ctx context.Context) error {
	oldest := j.cal.Today().AddDate(0, 0, -j.days)
	var items, records int64
	err := j.db.WithTx(ctx, func(tx *gorm.DB) error {
		var err error
		items, records, err = j.repo.DeleteCatalogBefore(ctx, tx, oldest)
		return err
	})
	if err != nil {
		return fmt.Errorf("catalog retention: %w", err)
	}
	j.logg.Info(j.logg.WithFields(ctx, map[string]any{
		"oldest_kept":     calendar.FormatDay(oldest),
		"retention_days":  j.days,
		"items_deleted":   items,
		"records_deleted": records,
	}), "catalog retention complete")
	return nil
}
