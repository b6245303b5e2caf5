// Command catalog-import bulk-loads a gzipped JSONL product feed into the
// catalog. Feed shards are parsed concurrently; a single writer upserts rows
// and uses a bloom filter to skip SKUs already seen across shards, so the
// first occurrence of a SKU wins.
package main

import (
	"bufio"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"

	"github.com/bits-and-blooms/bloom/v3"
	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	pgzip "github.com/klauspost/pgzip"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/storekit/storefront/internal/repository"
)

const (
	bloomCapacity = 10_000_000
	bloomFPR      = 0.001
	progressEvery = 100_000
)

const upsertBySKUSQL = `INSERT INTO products
	(id, sku, slug, name, description, price, currency, stock, status, variants)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	ON CONFLICT (sku) DO UPDATE SET
		slug = EXCLUDED.slug, name = EXCLUDED.name,
		description = EXCLUDED.description, price = EXCLUDED.price,
		currency = EXCLUDED.currency, stock = EXCLUDED.stock,
		status = EXCLUDED.status, variants = EXCLUDED.variants,
		updated_at = now()`

// feedRecord is one line of the product feed.
type feedRecord struct {
	SKU         string          `json:"sku"`
	Slug        string          `json:"slug"`
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Price       decimal.Decimal `json:"price"`
	Currency    string          `json:"currency"`
	Stock       int             `json:"stock"`
	Status      string          `json:"status"`
	Variants    json.RawMessage `json:"variants"`
}

func (r feedRecord) validate() error {
	switch {
	case r.SKU == "":
		return errors.New("missing sku")
	case r.Name == "":
		return errors.New("missing name")
	case r.Price.IsNegative():
		return errors.New("negative price")
	case r.Stock < 0:
		return errors.New("negative stock")
	}
	return nil
}

func main() {
	var (
		dataDir     string
		databaseURL string
		shards      int
	)

	flag.StringVar(&dataDir, "data-dir", "data", "directory containing feed-N.jsonl.gz shards")
	flag.IntVar(&shards, "shards", 1, "number of feed shards to import")
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

	if err := run(ctx, dataDir, databaseURL, shards); err != nil {
		slog.Error("catalog import failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	slog.Info("catalog import completed successfully")
}

func run(ctx context.Context, dataDir, databaseURL string, shards int) error {
	files := make([]string, shards)
	for i := range shards {
		files[i] = filepath.Join(dataDir, fmt.Sprintf("feed-%d.jsonl.gz", i+1))
	}
	for _, f := range files {
		if _, err := os.Stat(f); err != nil {
			return errors.Wrapf(err, "check file %s", f)
		}
	}

	slog.Info("connecting to database")

	pool, err := repository.NewPool(ctx, databaseURL)
	if err != nil {
		return errors.Wrap(err, "connect to database")
	}
	defer pool.Close()

	if err := repository.RunMigrations(ctx, pool); err != nil {
		return errors.Wrap(err, "run migrations")
	}

	return importFeed(ctx, pool, files)
}

// importFeed fans out one parser per shard and funnels records into a single
// writer goroutine that owns the dedup state.
func importFeed(ctx context.Context, pool *pgxpool.Pool, files []string) error {
	records := make(chan feedRecord, 1024)

	g, ctx := errgroup.WithContext(ctx)

	g.Go(writeRecords(ctx, pool, records))

	parsers, ctx := errgroup.WithContext(ctx)
	for i, f := range files {
		parsers.Go(parseShard(ctx, i, f, records))
	}
	g.Go(func() error {
		defer close(records)
		return parsers.Wait()
	})

	return g.Wait()
}

func parseShard(ctx context.Context, idx int, path string, out chan<- feedRecord) func() error {
	return func() error {
		var parsed, skipped uint64

		err := streamGzFile(ctx, path, func(line []byte) error {
			var rec feedRecord
			if err := json.Unmarshal(line, &rec); err != nil {
				skipped++
				return nil
			}
			if err := rec.validate(); err != nil {
				skipped++
				return nil
			}

			parsed++
			if parsed%progressEvery == 0 {
				slog.Info("parse progress", slog.Int("shard", idx+1), slog.Uint64("records", parsed))
			}

			select {
			case out <- rec:
				return nil
			case <-ctx.Done():
				return ctx.Err()
			}
		})
		if err != nil {
			return errors.Wrapf(err, "parse shard %d", idx+1)
		}

		slog.Info("shard complete",
			slog.Int("shard", idx+1),
			slog.Uint64("parsed", parsed),
			slog.Uint64("skipped", skipped),
		)
		return nil
	}
}

// writeRecords upserts records in arrival order. The bloom filter cheaply
// rejects SKUs that were definitely not seen; positives fall back to the
// exact set so a false positive never drops a product.
func writeRecords(ctx context.Context, pool *pgxpool.Pool, in <-chan feedRecord) func() error {
	return func() error {
		filter := bloom.NewWithEstimates(bloomCapacity, bloomFPR)
		exact := make(map[string]struct{})
		var written, deduped uint64

		for rec := range in {
			if filter.TestString(rec.SKU) {
				if _, ok := exact[rec.SKU]; ok {
					deduped++
					continue
				}
			}
			filter.AddString(rec.SKU)
			exact[rec.SKU] = struct{}{}

			variants := rec.Variants
			if len(variants) == 0 {
				variants = json.RawMessage(`[]`)
			}
			status := rec.Status
			if status == "" {
				status = "draft"
			}
			currency := rec.Currency
			if currency == "" {
				currency = "USD"
			}

			if _, err := pool.Exec(ctx, upsertBySKUSQL,
				uuid.New().String(), rec.SKU, rec.Slug, rec.Name, rec.Description,
				rec.Price, currency, rec.Stock, status, []byte(variants),
			); err != nil {
				return errors.Wrapf(err, "upsert product %s", rec.SKU)
			}

			written++
			if written%progressEvery == 0 {
				slog.Info("write progress", slog.Uint64("written", written))
			}
		}

		slog.Info("write complete", slog.Uint64("written", written), slog.Uint64("deduped", deduped))
		return nil
	}
}

// streamGzFile opens a gzip-compressed file and calls fn for each line.
func streamGzFile(ctx context.Context, path string, fn func(line []byte) error) error {
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

	scanner := bufio.NewScanner(gz)
	scanner.Buffer(make([]byte, 0, 1024*1024), 1024*1024)
	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := fn(scanner.Bytes()); err != nil {
			return err
		}
	}

	if err := scanner.Err(); err != nil {
		return errors.Wrapf(err, "scan %s", path)
	}
	return nil
}
