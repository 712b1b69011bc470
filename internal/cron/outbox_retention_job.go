package cron

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/angelmondragon/library-backend/pkg/logger"
)

const (
	outboxRetentionDays        = 30
	outboxRetentionBatch       = 500
	outboxRetentionMaxAttempts = 10

	// Upper bound on batches per sweep so one run cannot monopolize the worker.
	outboxRetentionMaxBatches = 100
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxRetentionRepo interface {
	DeletePublishedBefore(tx *gorm.DB, cutoff time.Time, limit int) (int64, error)
	DeleteTerminalBefore(tx *gorm.DB, cutoff time.Time, maxAttempts, limit int) (int64, error)
}

// OutboxRetentionJobParams configures the cleanup. MaxAttempts must match
// the publisher's setting so only rows it has given up on are purged.
type OutboxRetentionJobParams struct {
	Logger      *logger.Logger
	DB          txRunner
	Repo        outboxRetentionRepo
	Retention   int
	BatchSize   int
	MaxAttempts int
}

type outboxRetentionJob struct {
	logg        *logger.Logger
	db          txRunner
	repo        outboxRetentionRepo
	retention   int
	batch       int
	maxAttempts int
	now         func() time.Time
}

func NewOutboxRetentionJob(params OutboxRetentionJobParams) (Job, error) {
	switch {
	case params.Logger == nil:
		return nil, fmt.Errorf("logger required")
	case params.DB == nil:
		return nil, fmt.Errorf("db runner required")
	case params.Repo == nil:
		return nil, fmt.Errorf("outbox repository required")
	}
	job := &outboxRetentionJob{
		logg:        params.Logger,
		db:          params.DB,
		repo:        params.Repo,
		retention:   positiveOr(params.Retention, outboxRetentionDays),
		batch:       positiveOr(params.BatchSize, outboxRetentionBatch),
		maxAttempts: positiveOr(params.MaxAttempts, outboxRetentionMaxAttempts),
		now:         time.Now,
	}
	return job, nil
}

func positiveOr(v, fallback int) int {
	if v > 0 {
		return v
	}
	return fallback
}

func (j *outboxRetentionJob) Name() string { return "outbox-retention" }

// Run purges published rows and dead-lettered rows older than the retention
// window. Each batch commits on its own.
func (j *outboxRetentionJob) Run(ctx context.Context) error {
	cutoff := j.now().UTC().AddDate(0, 0, -j.retention)

	published, err := j.drain(ctx, func(tx *gorm.DB) (int64, error) {
		return j.repo.DeletePublishedBefore(tx, cutoff, j.batch)
	})
	if err != nil {
		return fmt.Errorf("outbox retention published: %w", err)
	}
	terminal, err := j.drain(ctx, func(tx *gorm.DB) (int64, error) {
		return j.repo.DeleteTerminalBefore(tx, cutoff, j.maxAttempts, j.batch)
	})
	if err != nil {
		return fmt.Errorf("outbox retention terminal: %w", err)
	}

	j.logg.Info(j.logg.WithFields(ctx, map[string]any{
		"cutoff":           cutoff,
		"retention_days":   j.retention,
		"published_purged": published,
		"terminal_purged":  terminal,
	}), "outbox retention cleanup complete")
	return nil
}

// drain repeats deleteBatch until it returns a short batch.
func (j *outboxRetentionJob) drain(ctx context.Context, deleteBatch func(*gorm.DB) (int64, error)) (int64, error) {
	var total int64
	for i := 0; i < outboxRetentionMaxBatches; i++ {
		if err := ctx.Err(); err != nil {
			return total, err
		}
		var n int64
		err := j.db.WithTx(ctx, func(tx *gorm.DB) error {
			var delErr error
			n, delErr = deleteBatch(tx)
			return delErr
		})
		if err != nil {
			return total, err
		}
		total += n
		if n < int64(j.batch) {
			break
		}
	}
	return total, nil
}
