package main

import (
	"context"
	"database/sql"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/joho/godotenv"

	"github.com/angelmondragon/library-backend/pkg/config"
	"github.com/angelmondragon/library-backend/pkg/db"
	"github.com/angelmondragon/library-backend/pkg/logger"
	"github.com/angelmondragon/library-backend/pkg/migrate"
)

type options struct {
	cmd     string
	dir     string
	root    string
	name    string
	version string
}

// Commands that only touch the migrations tree.
var offlineCommands = map[string]func(io.Writer, options) error{
	"create":   createMigration,
	"validate": validateMigrations,
}

// Commands that run goose against the configured database.
var onlineCommands = map[string]func(context.Context, *sql.DB, string, options) error{
	"up":      gooseCommand,
	"down":    gooseCommand,
	"status":  gooseCommand,
	"version": migrateToVersion,
}

func main() {
	_ = godotenv.Load()
	if err := run(os.Args[1:], os.Stdout); err != nil {
		fmt.Fprintln(os.Stderr, "migrate:", err)
		os.Exit(1)
	}
}

func run(args []string, stdout io.Writer) error {
	opts, err := parseOptions(args)
	if err != nil {
		return err
	}
	if fn, ok := offlineCommands[opts.cmd]; ok {
		return fn(stdout, opts)
	}
	fn, ok := onlineCommands[opts.cmd]
	if !ok {
		return fmt.Errorf("unknown -cmd %q", opts.cmd)
	}

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	logg := logger.New(logger.Options{
		ServiceName: "migrate",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})
	if opts.dir == "" {
		opts.dir = migrate.DefaultDir(cfg.DB.Driver)
	}
	ctx := logg.WithFields(context.Background(), map[string]any{
		"env":    cfg.App.Env,
		"cmd":    opts.cmd,
		"dir":    opts.dir,
		"driver": cfg.DB.Driver,
	})

	client, err := db.New(ctx, cfg.DB, logg)
	if err != nil {
		logg.Error(ctx, "database unavailable", err)
		return err
	}
	defer client.Close()
	sqlDB, err := client.SQL()
	if err != nil {
		return err
	}

	if err := fn(ctx, sqlDB, cfg.DB.Driver, opts); err != nil {
		logg.Error(ctx, "migration command failed", err)
		return err
	}
	logg.Info(ctx, "migration command finished")
	return nil
}

func parseOptions(args []string) (options, error) {
	var opts options
	fs := flag.NewFlagSet("migrate", flag.ContinueOnError)
	fs.StringVar(&opts.cmd, "cmd", "up", "up|down|status|version|create|validate")
	fs.StringVar(&opts.dir, "dir", "", "goose migrations directory (defaults to the driver's directory under "+migrate.BaseDir+")")
	fs.StringVar(&opts.root, "root", migrate.BaseDir, "directory holding one subdirectory per dialect")
	fs.StringVar(&opts.name, "name", "", "migration name for -cmd=create")
	fs.StringVar(&opts.version, "version", "", "target version (YYYYMMDDHHMMSS) for -cmd=version")
	if err := fs.Parse(args); err != nil {
		return options{}, err
	}
	if fs.NArg() > 0 {
		return options{}, fmt.Errorf("unexpected arguments %v", fs.Args())
	}
	return opts, nil
}

func createMigration(out io.Writer, opts options) error {
	if opts.name == "" {
		return errors.New("-name is required for create")
	}
	paths, err := migrate.CreatePairedMigration(opts.root, opts.name, time.Now())
	if err != nil {
		return err
	}
	for _, path := range paths {
		fmt.Fprintln(out, "created", path)
	}
	return nil
}

func validateMigrations(out io.Writer, opts options) error {
	if err := migrate.ValidatePaired(opts.root); err != nil {
		return err
	}
	fmt.Fprintln(out, "migrations ok:", opts.root)
	return nil
}

func gooseCommand(ctx context.Context, sqlDB *sql.DB, driver string, opts options) error {
	return migrate.Run(ctx, sqlDB, driver, opts.dir, opts.cmd)
}

func migrateToVersion(ctx context.Context, sqlDB *sql.DB, driver string, opts options) error {
	if opts.version == "" {
		return errors.New("-version is required for version")
	}
	return migrate.MigrateToVersion(ctx, sqlDB, driver, opts.dir, opts.version)
}
