package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/joho/godotenv"

	"github.com/angelmondragon/library-backend/internal/importer"
	"github.com/angelmondragon/library-backend/pkg/config"
	"github.com/angelmondragon/library-backend/pkg/db"
	"github.com/angelmondragon/library-backend/pkg/logger"
	"github.com/angelmondragon/library-backend/pkg/migrate"
)

func main() {
	logg := logger.New(logger.Options{ServiceName: "import"})
	_ = godotenv.Load()

	file := flag.String("file", "test_data/books.csv", "path to a title,author,year,quantity CSV")
	lenient := flag.Bool("lenient", false, "import valid rows even when some rows are rejected")
	flag.Parse()

	cfg, err := config.Load()
	requireResource(context.Background(), logg, "config", err)

	logg = logger.New(logger.Options{
		ServiceName: "import",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})
	ctx := logg.WithFields(context.Background(), map[string]any{
		"env":  cfg.App.Env,
		"file": *file,
	})

	dbClient, err := db.New(ctx, cfg.DB, logg)
	requireResource(ctx, logg, "database", err)
	defer dbClient.Close()

	err = migrate.MaybeRunDev(ctx, cfg, logg, dbClient)
	requireResource(ctx, logg, "migrations", err)

	f, err := os.Open(*file)
	requireResource(ctx, logg, "csv file", err)
	defer f.Close()

	imp, err := importer.New(importer.Params{DB: dbClient, Logger: logg, Lenient: *lenient})
	requireResource(ctx, logg, "importer", err)

	result, err := imp.ImportBooks(ctx, f)
	if result != nil {
		for _, row := range result.Rejected {
			fmt.Fprintf(os.Stderr, "rejected %v\n", row)
		}
	}
	if err != nil {
		logg.Error(ctx, "book import failed", err)
		os.Exit(1)
	}
	fmt.Printf("imported %d books\n", result.Imported)
}

func requireResource(ctx context.Context, logg *logger.Logger, resource string, err error) {
	if err == nil {
		return
	}
	logg.Error(ctx, fmt.Sprintf("resource not working: %s", resource), err)
	os.Exit(1)
}
