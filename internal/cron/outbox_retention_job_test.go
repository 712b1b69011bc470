package cron

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/library-backend/pkg/db/dbtest"
	"github.com/angelmondragon/library-backend/pkg/db/models"
	"github.com/angelmondragon/library-backend/pkg/enums"
	"github.com/angelmondragon/library-backend/pkg/logger"
	"github.com/angelmondragon/library-backend/pkg/outbox"
)

func TestOutboxRetentionJobComputesCutoff(t *testing.T) {
	now := time.Date(2026, 2, 10, 0, 0, 0, 0, time.UTC)
	repo := &fakeOutboxRetentionRepo{}
	job := newOutboxRetentionJob(t, repo, 0)
	job.now = func() time.Time { return now }

	if err := job.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	expectedCutoff := now.Add(-outboxRetentionDays * 24 * time.Hour)
	if !repo.lastCutoff.Equal(expectedCutoff) {
		t.Fatalf("expected cutoff %s, got %s", expectedCutoff, repo.lastCutoff)
	}
	if repo.lastLimit != outboxRetentionBatch {
		t.Fatalf("expected batch %d, got %d", outboxRetentionBatch, repo.lastLimit)
	}
	if repo.called != 1 || repo.terminalCalled != 1 {
		t.Fatalf("expected one batch per sweep, got published=%d terminal=%d", repo.called, repo.terminalCalled)
	}
	if repo.lastMaxAttempts != outboxRetentionMaxAttempts {
		t.Fatalf("expected max attempts %d, got %d", outboxRetentionMaxAttempts, repo.lastMaxAttempts)
	}
}

func TestOutboxRetentionJobStopsWhenContextCanceled(t *testing.T) {
	repo := &fakeOutboxRetentionRepo{}
	job := newOutboxRetentionJob(t, repo, 0)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := job.Run(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if repo.called != 0 {
		t.Fatalf("no batch should run after cancel, got %d", repo.called)
	}
}

func TestOutboxRetentionJobLoopsUntilShortBatch(t *testing.T) {
	repo := &fakeOutboxRetentionRepo{results: []int64{2, 2, 1}}
	job := newOutboxRetentionJob(t, repo, 2)

	if err := job.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if repo.called != 3 {
		t.Fatalf("expected 3 batches, got %d", repo.called)
	}
}

func TestOutboxRetentionJobPropagatesError(t *testing.T) {
	repo := &fakeOutboxRetentionRepo{err: errors.New("boom")}
	job := newOutboxRetentionJob(t, repo, 0)

	if err := job.Run(context.Background()); err == nil {
		t.Fatal("expected error")
	}
}

func TestOutboxRetentionJobPurgesOldPublishedAndDeadRows(t *testing.T) {
	client := dbtest.NewSQLite(t)
	now := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)
	old := now.Add(-45 * 24 * time.Hour)
	recent := now.Add(-2 * 24 * time.Hour)

	deadOld := outboxRow(nil)
	deadOld.AttemptCount = 3
	deadOld.CreatedAt = old
	deadRecent := outboxRow(nil)
	deadRecent.AttemptCount = 3
	deadRecent.CreatedAt = recent
	rows := []models.OutboxEvent{
		outboxRow(&old),
		outboxRow(&old),
		outboxRow(&recent),
		outboxRow(nil),
		deadOld,
		deadRecent,
	}
	if err := client.DB().Create(&rows).Error; err != nil {
		t.Fatalf("seed outbox: %v", err)
	}

	jobIface, err := NewOutboxRetentionJob(OutboxRetentionJobParams{
		Logger:      logger.New(logger.Options{ServiceName: "test"}),
		DB:          client,
		Repo:        outbox.NewRepository(client.DB()),
		BatchSize:   1,
		MaxAttempts: 3,
	})
	if err != nil {
		t.Fatalf("NewOutboxRetentionJob: %v", err)
	}
	job := jobIface.(*outboxRetentionJob)
	job.now = func() time.Time { return now }

	if err := job.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	var remaining int64
	if err := client.DB().Model(&models.OutboxEvent{}).Count(&remaining).Error; err != nil {
		t.Fatalf("count: %v", err)
	}
	if remaining != 3 {
		t.Fatalf("expected recent, pending and recently dead rows to remain, got %d", remaining)
	}
}

func outboxRow(publishedAt *time.Time) models.OutboxEvent {
	return models.OutboxEvent{
		ID:            uuid.New(),
		EventType:     enums.EventRentalCreated,
		AggregateType: enums.AggregateRental,
		AggregateID:   1,
		Payload:       `{"version":1}`,
		PublishedAt:   publishedAt,
	}
}

func newOutboxRetentionJob(t *testing.T, repo *fakeOutboxRetentionRepo, batch int) *outboxRetentionJob {
	t.Helper()
	jobIface, err := NewOutboxRetentionJob(OutboxRetentionJobParams{
		Logger:    logger.New(logger.Options{ServiceName: "test"}),
		DB:        fakeTxRunner{},
		Repo:      repo,
		BatchSize: batch,
	})
	if err != nil {
		t.Fatalf("NewOutboxRetentionJob: %v", err)
	}
	job, ok := jobIface.(*outboxRetentionJob)
	if !ok {
		t.Fatalf("expected outboxRetentionJob, got %T", jobIface)
	}
	return job
}

type fakeOutboxRetentionRepo struct {
	lastCutoff      time.Time
	lastLimit       int
	lastMaxAttempts int
	called          int
	terminalCalled  int
	results         []int64
	err             error
}

func (f *fakeOutboxRetentionRepo) DeletePublishedBefore(tx *gorm.DB, cutoff time.Time, limit int) (int64, error) {
	f.called++
	f.lastCutoff = cutoff
	f.lastLimit = limit
	if f.err != nil {
		return 0, f.err
	}
	if len(f.results) == 0 {
		return 0, nil
	}
	n := f.results[0]
	f.results = f.results[1:]
	return n, nil
}

func (f *fakeOutboxRetentionRepo) DeleteTerminalBefore(tx *gorm.DB, cutoff time.Time, maxAttempts, limit int) (int64, error) {
	f.terminalCalled++
	f.lastMaxAttempts = maxAttempts
	return 0, f.err
}

type fakeTxRunner struct{}

func (fakeTxRunner) WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return fn(nil)
}
