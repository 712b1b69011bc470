package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/angelmondragon/library-backend/api/routes"
	"github.com/angelmondragon/library-backend/internal/books"
	"github.com/angelmondragon/library-backend/internal/borrowers"
	"github.com/angelmondragon/library-backend/internal/rentals"
	"github.com/angelmondragon/library-backend/pkg/config"
	"github.com/angelmondragon/library-backend/pkg/db"
	"github.com/angelmondragon/library-backend/pkg/env"
	"github.com/angelmondragon/library-backend/pkg/logger"
	"github.com/angelmondragon/library-backend/pkg/metrics"
	"github.com/angelmondragon/library-backend/pkg/migrate"
	"github.com/angelmondragon/library-backend/pkg/outbox"
	"github.com/angelmondragon/library-backend/pkg/redis"
)

const shutdownTimeout = 15 * time.Second

func main() {
	logg := logger.New(logger.Options{ServiceName: "api"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	logg = logger.New(logger.Options{
		ServiceName: "api",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

	dbClient, err := db.New(context.Background(), cfg.DB, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap database", err)
		os.Exit(1)
	}
	defer func() {
		if err := dbClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing database", err)
		}
	}()

	if err := migrate.MaybeRunDev(context.Background(), cfg, logg, dbClient); err != nil {
		logg.Error(context.Background(), "failed to run dev migrations", err)
		os.Exit(1)
	}

	deps := routes.Dependencies{
		Config:      cfg,
		Logger:      logg,
		DBPinger:    dbClient,
		HTTPMetrics: metrics.NewHTTPMetrics(prometheus.DefaultRegisterer),
		Gatherer:    prometheus.DefaultGatherer,
	}

	if cfg.Redis.Enabled() {
		redisClient, err := redis.New(context.Background(), cfg.Redis, logg)
		if err != nil {
			logg.Error(context.Background(), "failed to bootstrap redis", err)
			os.Exit(1)
		}
		defer func() {
			if err := redisClient.Close(); err != nil {
				logg.Error(context.Background(), "error closing redis", err)
			}
		}()
		deps.RedisPinger = redisClient
		deps.Idempotency = redisClient
	} else {
		logg.Warn(context.Background(), "redis not configured; idempotency keys are ignored")
	}

	deps.Books, err = books.NewService(books.NewRepository(dbClient.DB()))
	if err != nil {
		logg.Error(context.Background(), "failed to create books service", err)
		os.Exit(1)
	}
	deps.Borrowers, err = borrowers.NewService(borrowers.NewRepository(dbClient.DB()))
	if err != nil {
		logg.Error(context.Background(), "failed to create borrowers service", err)
		os.Exit(1)
	}
	deps.Rentals, err = rentals.NewService(rentals.ServiceParams{
		Repository:      rentals.NewRepository(dbClient.DB()),
		DB:              dbClient,
		Outbox:          outbox.NewService(outbox.NewRepository(dbClient.DB()), logg),
		Metrics:         metrics.NewRentalMetrics(prometheus.DefaultRegisterer),
		Logger:          logg,
		DefaultLoanDays: cfg.Rentals.DefaultLoanDays,
		MaxLoanDays:     cfg.Rentals.MaxLoanDays,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create rentals service", err)
		os.Exit(1)
	}

	addr := ":" + env.Get("PORT", cfg.App.Port)
	ctx := logg.WithFields(context.Background(), map[string]any{
		"env":    cfg.App.Env,
		"addr":   addr,
		"driver": dbClient.Driver(),
	})

	server := &http.Server{
		Addr:              addr,
		Handler:           routes.NewRouter(deps),
		ReadHeaderTimeout: 10 * time.Second,
	}

	sigCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		logg.Info(ctx, "starting api server")
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logg.Error(ctx, "api server stopped unexpectedly", err)
			os.Exit(1)
		}
	case <-sigCtx.Done():
		logg.Info(ctx, "shutting down api server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logg.Error(ctx, "graceful shutdown failed", err)
		}
	}
}
