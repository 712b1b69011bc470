package cron

import (
	"context"
	"fmt"
	"time"

	"github.com/angelmondragon/library-backend/internal/rentals"
	"github.com/angelmondragon/library-backend/pkg/logger"
)

type rentalCounter interface {
	Counts(ctx context.Context, now time.Time) (rentals.Counts, error)
}

type snapshotRecorder interface {
	SetSnapshot(active, overdue int64)
}

type OverdueSnapshotJobParams struct {
	Logger   *logger.Logger
	Rentals  rentalCounter
	Recorder snapshotRecorder
}

// NewOverdueSnapshotJob publishes the active and overdue rental gauges.
// It does not contact borrowers.
func NewOverdueSnapshotJob(params OverdueSnapshotJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Rentals == nil {
		return nil, fmt.Errorf("rental repository required")
	}
	if params.Recorder == nil {
		return nil, fmt.Errorf("snapshot recorder required")
	}
	return &overdueSnapshotJob{
		logg:     params.Logger,
		rentals:  params.Rentals,
		recorder: params.Recorder,
		now:      time.Now,
	}, nil
}

type overdueSnapshotJob struct {
	logg     *logger.Logger
	rentals  rentalCounter
	recorder snapshotRecorder
	now      func() time.Time
}

func (j *overdueSnapshotJob) Name() string { return "overdue-snapshot" }

func (j *overdueSnapshotJob) Run(ctx context.Context) error {
	now := j.now().UTC()
	counts, err := j.rentals.Counts(ctx, now)
	if err != nil {
		return fmt.Errorf("count rentals: %w", err)
	}
	j.recorder.SetSnapshot(counts.Active, counts.Overdue)

	logCtx := j.logg.WithFields(ctx, map[string]any{
		"active_rentals":  counts.Active,
		"overdue_rentals": counts.Overdue,
		"as_of":           now,
	})
	if counts.Overdue > 0 {
		j.logg.Warn(logCtx, "overdue rentals outstanding")
		return nil
	}
	j.logg.Info(logCtx, "no overdue rentals")
	return nil
}
