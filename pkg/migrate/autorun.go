package migrate

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/angelmondragon/library-backend/pkg/config"
	"github.com/angelmondragon/library-backend/pkg/logger"
)

// Target is the database handle auto-migration runs against; *db.Client
// satisfies it.
type Target interface {
	SQL() (*sql.DB, error)
	Driver() string
}

// MaybeRunDev applies the embedded migrations for the target's driver when
// LIBRARY_APP_ENV is dev and LIBRARY_AUTO_MIGRATE is set. Other environments
// run cmd/migrate explicitly.
func MaybeRunDev(ctx context.Context, cfg *config.Config, logg *logger.Logger, target Target) error {
	if cfg == nil || !cfg.App.IsDev() || !cfg.FeatureFlags.AutoMigrate {
		return nil
	}
	sqlDB, err := target.SQL()
	if err != nil {
		return fmt.Errorf("auto-migrate: %w", err)
	}

	ctx = logg.WithFields(ctx, map[string]any{
		"env":    cfg.App.Env,
		"driver": target.Driver(),
	})
	results, err := Up(ctx, sqlDB, target.Driver())
	for _, res := range results {
		if res == nil || res.Source == nil {
			continue
		}
		logg.Info(logg.WithFields(ctx, map[string]any{
			"migration":   res.Source.Version,
			"duration_ms": res.Duration.Milliseconds(),
		}), "migration applied")
	}
	if err != nil {
		return fmt.Errorf("auto-migrate: %w", err)
	}
	logg.Info(logg.WithField(ctx, "applied", len(results)), "auto-migrate complete")
	return nil
}
