package cron

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/multierr"

	"github.com/angelmondragon/library-backend/pkg/logger"
	"github.com/angelmondragon/library-backend/pkg/metrics"
)

const (
	defaultInterval   = time.Hour
	defaultJobTimeout = 5 * time.Minute
)

type ServiceParams struct {
	Logger     *logger.Logger
	Registry   *Registry
	Lock       Lock
	Metrics    *metrics.CronJobMetrics
	Interval   time.Duration
	JobTimeout time.Duration
}

// Service runs every registered job once per interval while holding Lock.
type Service struct {
	logg       *logger.Logger
	registry   *Registry
	lock       Lock
	metrics    *metrics.CronJobMetrics
	interval   time.Duration
	jobTimeout time.Duration
}

// JobResult is the outcome of one job within a cycle.
type JobResult struct {
	Name     string
	Duration time.Duration
	Err      error
}

// Report summarizes a cycle. Skipped is set when another replica held the lock.
type Report struct {
	Skipped bool
	Results []JobResult
}

// Err joins the failed jobs' errors, prefixed with the job name.
func (r Report) Err() error {
	var errs error
	for _, res := range r.Results {
		if res.Err != nil {
			errs = multierr.Append(errs, fmt.Errorf("%s: %w", res.Name, res.Err))
		}
	}
	return errs
}

func NewService(params ServiceParams) (*Service, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Lock == nil {
		return nil, fmt.Errorf("lock required")
	}
	s := &Service{
		logg:       params.Logger,
		registry:   params.Registry,
		lock:       params.Lock,
		metrics:    params.Metrics,
		interval:   params.Interval,
		jobTimeout: params.JobTimeout,
	}
	if s.registry == nil {
		s.registry = &Registry{}
	}
	if s.interval <= 0 {
		s.interval = defaultInterval
	}
	if s.jobTimeout <= 0 {
		s.jobTimeout = defaultJobTimeout
	}
	return s, nil
}

// Run executes a cycle immediately and then on every tick until ctx ends.
func (s *Service) Run(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		if _, err := s.RunOnce(ctx); err != nil {
			s.logg.Error(ctx, "scheduled run failed", err)
		}
		select {
		case <-ctx.Done():
			s.logg.Info(ctx, "cron service context canceled")
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// RunOnce executes a single locked cycle. Every job runs even when an earlier
// one fails; the returned error joins the failures.
func (s *Service) RunOnce(ctx context.Context) (Report, error) {
	locked, err := s.lock.Acquire(ctx)
	if err != nil {
		return Report{}, fmt.Errorf("lock acquire: %w", err)
	}
	if !locked {
		s.logg.Info(ctx, "another cron instance is running; skipping this cycle")
		return Report{Skipped: true}, nil
	}
	defer func() {
		if relErr := s.lock.Release(ctx); relErr != nil {
			s.logg.Error(ctx, "failed to release cron lock", relErr)
		}
	}()

	jobs := s.registry.Jobs()
	s.logg.Info(s.logg.WithField(ctx, "jobs", len(jobs)), "scheduled run starting")
	report := Report{Results: make([]JobResult, 0, len(jobs))}
	for _, job := range jobs {
		report.Results = append(report.Results, s.runJob(ctx, job))
	}
	if err := report.Err(); err != nil {
		return report, err
	}
	s.logg.Info(ctx, "scheduled run complete")
	return report, nil
}

func (s *Service) runJob(ctx context.Context, job Job) JobResult {
	jobCtx := s.logg.WithFields(ctx, map[string]any{
		"job":   job.Name(),
		"event": "cron.job",
	})
	s.logg.Info(jobCtx, "job start")

	runCtx, cancel := context.WithTimeout(jobCtx, s.jobTimeout)
	defer cancel()
	start := time.Now()
	err := runSafely(runCtx, job)
	result := JobResult{Name: job.Name(), Duration: time.Since(start), Err: err}
	s.metrics.ObserveRun(result.Name, result.Duration, err)

	jobCtx = s.logg.WithField(jobCtx, "duration_ms", result.Duration.Milliseconds())
	if err != nil {
		s.logg.Error(jobCtx, "job failed", err)
	} else {
		s.logg.Info(jobCtx, "job completed")
	}
	return result
}

// runSafely converts a job panic into an error so one bad job does not stop
// the worker.
func runSafely(ctx context.Context, job Job) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("panic: %v", rec)
		}
	}()
	return job.Run(ctx)
}
