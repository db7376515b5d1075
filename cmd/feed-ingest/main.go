// Command feed-ingest streams gzipped supplier catalog feeds into the
// supplier_products table. Each feed is a CSV file named
// <supplier>.csv.gz with lines of the form sku,title,price,stock.
// Feeds routinely repeat SKUs across chunks; a bloom filter screens
// duplicates so only the first occurrence of each SKU is written.
package main

import (
	"context"
	"encoding/csv"
	"flag"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"

	"github.com/bits-and-blooms/bloom/v3"
	"github.com/go-faster/errors"
	pgzip "github.com/klauspost/pgzip"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/xenking/dropship-fulfillment/internal/domain/supplier"
	"github.com/xenking/dropship-fulfillment/internal/repository"
)

const (
	bloomCapacity = 10_000_000
	bloomFPR      = 0.001
	batchSize     = 500
	progressEvery = 100_000
)

func main() {
	var (
		dataDir     string
		databaseURL string
	)

	flag.StringVar(&dataDir, "data-dir", "data", "directory containing <supplier>.csv.gz feed files")
	flag.StringVar(&databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
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

	if err := run(ctx, dataDir, databaseURL); err != nil {
		slog.Error("feed ingest failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	slog.Info("feed ingest completed successfully")
}

func run(ctx context.Context, dataDir, databaseURL string) error {
	files := make(map[supplier.Type]string, len(supplier.All))
	for _, sup := range supplier.All {
		f := filepath.Join(dataDir, string(sup)+".csv.gz")
		if _, err := os.Stat(f); err != nil {
			slog.Warn("feed file missing, skipping supplier",
				slog.String("supplier", string(sup)),
				slog.String("file", f),
			)
			continue
		}
		files[sup] = f
	}
	if len(files) == 0 {
		return errors.New("no feed files found")
	}

	pool, err := repository.NewPool(ctx, databaseURL)
	if err != nil {
		return errors.Wrap(err, "connect to database")
	}
	defer pool.Close()

	if err := repository.RunMigrations(ctx, pool); err != nil {
		return errors.Wrap(err, "run migrations")
	}

	products := repository.NewProductRepository(pool)

	// One worker per feed file.
	g, ctx := errgroup.WithContext(ctx)
	for sup, f := range files {
		g.Go(ingestFeed(ctx, products, sup, f))
	}
	return g.Wait()
}

func ingestFeed(ctx context.Context, products supplier.Catalog, sup supplier.Type, path string) func() error {
	return func() error {
		seen := bloom.NewWithEstimates(bloomCapacity, bloomFPR)

		var (
			batch   []supplier.CatalogProduct
			written uint64
			dups    uint64
			bad     uint64
		)

		flush := func() error {
			if len(batch) == 0 {
				return nil
			}
			if err := products.UpsertBatch(ctx, batch); err != nil {
				return errors.Wrapf(err, "upsert batch for %s", sup)
			}
			written += uint64(len(batch))
			batch = batch[:0]
			if written%progressEvery < batchSize {
				slog.Info("ingest progress",
					slog.String("supplier", string(sup)),
					slog.Uint64("written", written),
				)
			}
			return nil
		}

		if err := streamFeed(ctx, path, func(rec []string) {
			p, err := parseRecord(sup, rec)
			if err != nil {
				bad++
				return
			}
			if seen.TestAndAddString(p.SKU) {
				dups++
				return
			}
			batch = append(batch, p)
		}, func() error {
			if len(batch) >= batchSize {
				return flush()
			}
			return nil
		}); err != nil {
			return errors.Wrapf(err, "stream feed %s", path)
		}

		if err := flush(); err != nil {
			return err
		}

		slog.Info("feed complete",
			slog.String("supplier", string(sup)),
			slog.Uint64("written", written),
			slog.Uint64("duplicates", dups),
			slog.Uint64("malformed", bad),
		)
		return nil
	}
}

// streamFeed opens a gzip-compressed CSV file and calls fn for each
// record, then after for batching decisions.
func streamFeed(ctx context.Context, path string, fn func(rec []string), after func() error) error {
	f, err := os.Open(path)
	if err != nil {
		return errors.Wrapf(err, "open %s", path)
	}
	defer func() { _ = f.Close() }()

	gz, err := pgzip.NewReader(f)
	if err != nil {
		return errors.Wrapf(err, "create gzip reader for %s", path)
	}
	defer func() { _ = gz.Close() }()

	r := csv.NewReader(gz)
	r.FieldsPerRecord = -1
	r.ReuseRecord = true

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		rec, err := r.Read()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return errors.Wrapf(err, "read %s", path)
		}

		fn(rec)
		if err := after(); err != nil {
			return err
		}
	}
}

func parseRecord(sup supplier.Type, rec []string) (supplier.CatalogProduct, error) {
	if len(rec) < 4 || rec[0] == "" {
		return supplier.CatalogProduct{}, errors.New("malformed record")
	}
	price, err := decimal.NewFromString(rec[2])
	if err != nil {
		return supplier.CatalogProduct{}, errors.Wrap(err, "parse price")
	}
	stock, err := strconv.Atoi(rec[3])
	if err != nil {
		return supplier.CatalogProduct{}, errors.Wrap(err, "parse stock")
	}
	return supplier.CatalogProduct{
		Supplier: sup,
		SKU:      rec[0],
		Title:    rec[1],
		Price:    price,
		Stock:    stock,
	}, nil
}
