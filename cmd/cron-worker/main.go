package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/angelmondragon/library-backend/internal/cron"
	"github.com/angelmondragon/library-backend/internal/rentals"
	"github.com/angelmondragon/library-backend/pkg/config"
	"github.com/angelmondragon/library-backend/pkg/db"
	"github.com/angelmondragon/library-backend/pkg/logger"
	"github.com/angelmondragon/library-backend/pkg/metrics"
	"github.com/angelmondragon/library-backend/pkg/migrate"
	"github.com/angelmondragon/library-backend/pkg/outbox"
	"github.com/angelmondragon/library-backend/pkg/redis"
)

const serviceName = "cron-worker"

type options struct {
	once bool
	jobs []string
}

func main() {
	var (
		opts options
		only string
	)
	flag.BoolVar(&opts.once, "once", false, "run a single cycle, print a report and exit")
	flag.StringVar(&only, "jobs", "", "comma separated job names to run (default: all)")
	flag.Parse()
	if only != "" {
		opts.jobs = strings.Split(only, ",")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	bootLogger := logger.New(logger.Options{ServiceName: serviceName})
	if err := godotenv.Load(); err != nil {
		bootLogger.Warn(ctx, ".env file not found, relying on environment")
	}
	cfg, err := config.Load()
	if err != nil {
		bootLogger.Error(ctx, "failed to load config", err)
		os.Exit(1)
	}
	cfg.Service.Kind = serviceName

	logg := logger.New(logger.Options{
		ServiceName: serviceName,
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})
	ctx = logg.WithFields(ctx, map[string]any{"env": cfg.App.Env, "serviceKind": serviceName})

	if err := run(ctx, cfg, logg, opts); err != nil {
		logg.Error(ctx, "cron worker failed", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, logg *logger.Logger, opts options) error {
	dbClient, err := db.New(ctx, cfg.DB, logg)
	if err != nil {
		return fmt.Errorf("database: %w", err)
	}
	defer func() {
		if err := dbClient.Close(); err != nil {
			logg.Error(ctx, "error closing database", err)
		}
	}()
	if err := migrate.MaybeRunDev(ctx, cfg, logg, dbClient); err != nil {
		return err
	}

	lock, closeLock, err := buildLock(ctx, cfg, logg)
	if err != nil {
		return fmt.Errorf("cron lock: %w", err)
	}
	defer closeLock()

	registry, err := buildRegistry(cfg, logg, dbClient, opts.jobs)
	if err != nil {
		return err
	}
	service, err := cron.NewService(cron.ServiceParams{
		Logger:     logg,
		Registry:   registry,
		Lock:       lock,
		Metrics:    metrics.NewCronJobMetrics(prometheus.DefaultRegisterer),
		Interval:   cfg.Cron.Interval,
		JobTimeout: cfg.Cron.JobTimeout,
	})
	if err != nil {
		return err
	}

	if opts.once {
		report, err := service.RunOnce(ctx)
		printReport(os.Stdout, report)
		return err
	}
	logg.Info(logg.WithField(ctx, "jobs", registry.Names()), "starting cron worker")
	if err := service.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	logg.Info(ctx, "cron worker shut down")
	return nil
}

// buildRegistry registers every job, narrowed to only when it is non-empty.
func buildRegistry(cfg *config.Config, logg *logger.Logger, dbClient *db.Client, only []string) (*cron.Registry, error) {
	snapshot, err := cron.NewOverdueSnapshotJob(cron.OverdueSnapshotJobParams{
		Logger:   logg,
		Rentals:  rentals.NewRepository(dbClient.DB()),
		Recorder: metrics.NewRentalMetrics(prometheus.DefaultRegisterer),
	})
	if err != nil {
		return nil, err
	}
	retention, err := cron.NewOutboxRetentionJob(cron.OutboxRetentionJobParams{
		Logger:      logg,
		DB:          dbClient,
		Repo:        outbox.NewRepository(dbClient.DB()),
		Retention:   cfg.Cron.OutboxRetentionDays,
		MaxAttempts: cfg.Outbox.MaxAttempts,
	})
	if err != nil {
		return nil, err
	}
	registry, err := cron.NewRegistry(snapshot, retention)
	if err != nil || len(only) == 0 {
		return registry, err
	}
	return registry.Only(only...)
}

// printReport writes one line per job: name, duration and outcome.
func printReport(w io.Writer, report cron.Report) {
	if report.Skipped {
		fmt.Fprintln(w, "skipped: another worker holds the cron lock")
		return
	}
	for _, res := range report.Results {
		outcome := "ok"
		if res.Err != nil {
			outcome = "FAILED " + res.Err.Error()
		}
		fmt.Fprintf(w, "%-24s %8s  %s\n", res.Name, res.Duration.Round(time.Millisecond), outcome)
	}
}

// buildLock uses redis when configured so replicas share one schedule.
func buildLock(ctx context.Context, cfg *config.Config, logg *logger.Logger) (cron.Lock, func(), error) {
	if !cfg.Redis.Enabled() {
		logg.Warn(ctx, "redis not configured; cron lock is process-local")
		return cron.NewLocalLock(), func() {}, nil
	}
	redisClient, err := redis.New(ctx, cfg.Redis, logg)
	if err != nil {
		return nil, nil, err
	}
	lock, err := cron.NewRedisLock(redisClient, redisClient.LockKey(lockKeyName(cfg.App.Env)), 0)
	if err != nil {
		_ = redisClient.Close()
		return nil, nil, err
	}
	return lock, func() {
		if err := redisClient.Close(); err != nil {
			logg.Error(ctx, "error closing redis", err)
		}
	}, nil
}

// lockKeyName scopes the lock per environment, e.g. "cron-worker-prod".
func lockKeyName(env string) string {
	env = strings.ToLower(strings.TrimSpace(env))
	if env == "" {
		env = "local"
	}
	return serviceName + "-" + env
}
