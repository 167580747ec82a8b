package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"

	"github.com/go-faster/errors"

	"github.com/xenking/promo-storefront/internal/restock"
	"github.com/xenking/promo-storefront/internal/storage/postgres"
)

func main() {
	var (
		dataDir     string
		pattern     string
		databaseURL string
		dryRun      bool
	)

	flag.StringVar(&dataDir, "data-dir", "data", "directory containing warehouse stock exports")
	flag.StringVar(&pattern, "pattern", "*.csv.gz", "glob of export files inside data-dir")
	flag.StringVar(&databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.BoolVar(&dryRun, "dry-run", false, "scan exports without touching stock")
	flag.Parse()

	if databaseURL == "" {
		databaseURL = os.Getenv("DATABASE_URL")
	}
	if databaseURL == "" {
		slog.Error("database URL is required: set --database-url or DATABASE_URL")
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := run(ctx, filepath.Join(dataDir, pattern), databaseURL, dryRun); err != nil {
		slog.Error("stock import failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	slog.Info("stock import completed successfully")
}

func run(ctx context.Context, glob, databaseURL string, dryRun bool) error {
	files, err := filepath.Glob(glob)
	if err != nil {
		return errors.Wrap(err, "match export files")
	}
	if len(files) == 0 {
		return errors.Errorf("no export files match %s", glob)
	}

	slog.Info("connecting to database")

	pool, err := postgres.NewPool(ctx, databaseURL)
	if err != nil {
		return errors.Wrap(err, "connect to database")
	}
	defer pool.Close()

	ids, err := postgres.NewProductRepository(pool).IDs(ctx)
	if err != nil {
		return errors.Wrap(err, "load catalog ids")
	}
	slog.Info("catalog loaded", slog.Int("products", len(ids)))

	slog.Info("scanning exports", slog.Int("files", len(files)))
	res, err := restock.ScanFiles(ctx, files, restock.NewFilter(ids))
	if err != nil {
		return errors.Wrap(err, "scan exports")
	}
	slog.Info("exports scanned",
		slog.Int64("lines", res.Lines),
		slog.Int("products", len(res.Deltas)),
		slog.Int64("malformed", res.Malformed),
		slog.Int64("unknown", res.Unknown),
	)

	if dryRun {
		slog.Info("dry run, stock unchanged")
		return nil
	}

	sum, err := restock.Apply(ctx, postgres.NewInventoryLedger(pool), res.Deltas)
	if err != nil {
		return errors.Wrap(err, "apply stock")
	}
	slog.Info("stock applied", slog.Int("applied", sum.Applied), slog.Int("missing", sum.Missing))
	return nil
}
