// Command offer-import bulk-loads restaurant offers from gzip-compressed
// JSON-lines files.
package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"

	"github.com/go-faster/errors"

	"github.com/xenking/food-delivery-orders/internal/storage/postgres"
)

func main() {
	var (
		databaseURL string
		dryRun      bool
	)

	flag.StringVar(&databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.BoolVar(&dryRun, "dry-run", false, "parse, validate and deduplicate without writing")
	flag.Parse()

	files := flag.Args()
	if len(files) == 0 {
		slog.Error("usage: offer-import [flags] offers1.jsonl.gz [offers2.jsonl.gz ...]")
		os.Exit(2)
	}

	if databaseURL == "" {
		databaseURL = os.Getenv("DATABASE_URL")
	}
	if databaseURL == "" && !dryRun {
		slog.Error("database URL is required: set --database-url or DATABASE_URL")
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := run(ctx, files, databaseURL, dryRun); err != nil {
		slog.Error("offer import failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	slog.Info("offer import completed successfully")
}

func run(ctx context.Context, files []string, databaseURL string, dryRun bool) error {
	for _, f := range files {
		if _, err := os.Stat(f); err != nil {
			return errors.Wrapf(err, "check file %s", f)
		}
	}

	slog.Info("parsing offer files", slog.Int("files", len(files)))
	batches, err := parseFiles(ctx, files)
	if err != nil {
		return errors.Wrap(err, "parse files")
	}

	result := deduplicate(batches)
	slog.Info("offers ready",
		slog.Int("unique", len(result.offers)),
		slog.Int("duplicates", result.duplicates),
		slog.Int("rejected", result.rejected),
	)

	if dryRun || len(result.offers) == 0 {
		return nil
	}

	pool, err := postgres.NewPool(ctx, databaseURL)
	if err != nil {
		return errors.Wrap(err, "connect to database")
	}
	defer pool.Close()

	if err := postgres.RunMigrations(ctx, pool); err != nil {
		return errors.Wrap(err, "run migrations")
	}

	return write(ctx, postgres.NewOfferRepository(pool), result.offers)
}
