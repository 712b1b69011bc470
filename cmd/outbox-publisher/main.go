package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/angelmondragon/library-backend/pkg/config"
	"github.com/angelmondragon/library-backend/pkg/db"
	"github.com/angelmondragon/library-backend/pkg/logger"
	"github.com/angelmondragon/library-backend/pkg/metrics"
	"github.com/angelmondragon/library-backend/pkg/migrate"
	"github.com/angelmondragon/library-backend/pkg/outbox"
	"github.com/angelmondragon/library-backend/pkg/outbox/registry"
	"github.com/angelmondragon/library-backend/pkg/pubsub"
)

const serviceName = "outbox-publisher"

func main() {
	metricsAddr := flag.String("metrics-addr", "", "serve /metrics on this address (disabled when empty)")
	flag.Parse()

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

	if err := run(ctx, cfg, logg, *metricsAddr); err != nil {
		logg.Error(ctx, "outbox publisher stopped unexpectedly", err)
		os.Exit(1)
	}
	logg.Info(ctx, "outbox publisher shut down")
}

// run wires the publisher and blocks until ctx is canceled.
func run(ctx context.Context, cfg *config.Config, logg *logger.Logger, metricsAddr string) error {
	dbClient, err := db.New(ctx, cfg.DB, logg)
	if err != nil {
		return fmt.Errorf("database: %w", err)
	}
	defer closeLogged(ctx, logg, "database", dbClient.Close)

	if err := migrate.MaybeRunDev(ctx, cfg, logg, dbClient); err != nil {
		return err
	}

	pubsubClient, err := pubsub.NewClient(ctx, cfg.GCP, cfg.PubSub, logg)
	if err != nil {
		return fmt.Errorf("pubsub: %w", err)
	}
	defer closeLogged(ctx, logg, "pubsub", pubsubClient.Close)

	eventRegistry, err := registry.NewEventRegistry(cfg.PubSub)
	if err != nil {
		return fmt.Errorf("event registry: %w", err)
	}
	service, err := NewService(ServiceParams{
		Settings: Settings{
			BatchSize:    cfg.Outbox.BatchSize,
			MaxAttempts:  cfg.Outbox.MaxAttempts,
			PollInterval: time.Duration(cfg.Outbox.PollIntervalMS) * time.Millisecond,
		},
		Logger:     logg,
		DB:         dbClient,
		PubSub:     pubsubClient,
		Repository: outbox.NewRepository(dbClient.DB()),
		Registry:   eventRegistry,
		Metrics:    metrics.NewOutboxMetrics(prometheus.DefaultRegisterer),
	})
	if err != nil {
		return err
	}
	defer service.Close()

	if metricsAddr != "" {
		go serveMetrics(ctx, logg, metricsAddr)
	}
	logg.Info(ctx, "starting outbox publisher")
	if err := service.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

func closeLogged(ctx context.Context, logg *logger.Logger, what string, closeFn func() error) {
	if err := closeFn(); err != nil {
		logg.Error(logg.WithField(ctx, "resource", what), "close failed", err)
	}
}

func serveMetrics(ctx context.Context, logg *logger.Logger, addr string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		<-ctx.Done()
		_ = srv.Close()
	}()
	logg.Info(logg.WithField(ctx, "addr", addr), "serving publisher metrics")
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logg.Error(ctx, "metrics listener stopped", err)
	}
}
