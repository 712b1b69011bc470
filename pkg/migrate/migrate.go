package migrate

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"io/fs"
	"strconv"

	"github.com/angelmondragon/library-backend/pkg/config"
	"github.com/pressly/goose/v3"
)

const BaseDir = "pkg/migrate/migrations"

//go:embed migrations/postgres/*.sql migrations/sqlite/*.sql
var embedded embed.FS

// DefaultDir returns the on-disk migrations directory for the given driver.
func DefaultDir(driver string) string {
	return BaseDir + "/" + driverDir(driver)
}

// Dialect maps a configured driver to the goose dialect name.
func Dialect(driver string) goose.Dialect {
	if driverDir(driver) == config.DBDriverSQLite {
		return goose.DialectSQLite3
	}
	return goose.DialectPostgres
}

func driverDir(driver string) string {
	if (config.DBConfig{Driver: driver}).IsSQLite() {
		return config.DBDriverSQLite
	}
	return config.DBDriverPostgres
}

// Embedded returns the migrations compiled into the binary for the driver.
func Embedded(driver string) (fs.FS, error) {
	return fs.Sub(embedded, "migrations/"+driverDir(driver))
}

// Up applies every embedded migration for the driver. It is safe to call
// concurrently against different databases.
func Up(ctx context.Context, db *sql.DB, driver string) ([]*goose.MigrationResult, error) {
	if db == nil {
		return nil, fmt.Errorf("db is required")
	}
	fsys, err := Embedded(driver)
	if err != nil {
		return nil, fmt.Errorf("open embedded migrations: %w", err)
	}
	provider, err := goose.NewProvider(Dialect(driver), db, fsys)
	if err != nil {
		return nil, fmt.Errorf("create goose provider: %w", err)
	}
	results, err := provider.Up(ctx)
	if err != nil {
		return results, fmt.Errorf("goose up: %w", err)
	}
	return results, nil
}

// Run executes a standard goose command that requires a DB connection.
func Run(ctx context.Context, db *sql.DB, driver string, dir string, command string, args ...string) error {
	if db == nil {
		return fmt.Errorf("db is required")
	}
	if dir == "" {
		return fmt.Errorf("dir is required")
	}

	if err := goose.SetDialect(string(Dialect(driver))); err != nil {
		return fmt.Errorf("set goose dialect: %w", err)
	}

	// RunContext prints status output to stdout (goose internal)
	if err := goose.RunContext(ctx, command, db, dir, args...); err != nil {
		return fmt.Errorf("goose %s: %w", command, err)
	}
	return nil
}

// MigrateToVersion migrates up/down to the requested version by comparing current DB version.
func MigrateToVersion(ctx context.Context, db *sql.DB, driver string, dir string, targetVersion string) error {
	if targetVersion == "" {
		return fmt.Errorf("targetVersion is required")
	}

	if err := goose.SetDialect(string(Dialect(driver))); err != nil {
		return fmt.Errorf("set goose dialect: %w", err)
	}

	target, err := strconv.ParseInt(targetVersion, 10, 64)
	if err != nil {
		return fmt.Errorf("invalid version %q (expected YYYYMMDDHHMMSS): %w", targetVersion, err)
	}

	current, err := goose.GetDBVersionContext(ctx, db)
	if err != nil {
		return fmt.Errorf("get db version: %w", err)
	}

	switch {
	case current == target:
		return nil

	case current < target:
		if err := goose.UpToContext(ctx, db, dir, target); err != nil {
			return fmt.Errorf("goose up-to %d: %w", target, err)
		}
		return nil

	default:
		if err := goose.DownToContext(ctx, db, dir, target); err != nil {
			return fmt.Errorf("goose down-to %d: %w", target, err)
		}
		return nil
	}
}
