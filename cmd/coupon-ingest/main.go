// Command coupon-ingest loads bulk promo codes into the coupons table.
//
// The input is three gzipped code dumps. A code counts as a real promo code
// only when it appears in at least two of the three dumps, so the tool runs
// two streaming passes: pass one builds a bloom filter per dump, pass two
// re-streams each dump and tests every code against the other dumps' filters.
// Survivors are upserted as public percentage coupons.
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"log/slog"
	"math/bits"
	"os"
	"os/signal"
	"path/filepath"
	"time"

	"github.com/bits-and-blooms/bloom/v3"
	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	pgzip "github.com/klauspost/pgzip"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/dripmart/storefront/internal/repository"
)

const (
	filterCapacity = 120_000_000
	filterFPR      = 0.001
	dumpCount      = 3
	logEvery       = 10_000_000
	minCodeLen     = 8
	maxCodeLen     = 10
)

const upsertCouponSQL = `INSERT INTO coupons (id, code, discount_type, discount_value, minimum_purchase,
		expires_at, active, public, description)
	VALUES ($1, $2, $3, $4, $5, $6, TRUE, TRUE, $7)
	ON CONFLICT (code) DO UPDATE SET
		discount_type = EXCLUDED.discount_type, discount_value = EXCLUDED.discount_value,
		minimum_purchase = EXCLUDED.minimum_purchase, expires_at = EXCLUDED.expires_at,
		active = TRUE, description = EXCLUDED.description`

// promoRule is the discount attached to a recognized promo code.
type promoRule struct {
	kind        string
	value       string
	minPurchase string
	description string
}

// namedRules overrides the default rule for a handful of marketing codes.
var namedRules = map[string]promoRule{
	"FIFTYOFF": {kind: "percentage", value: "50", minPurchase: "0", description: "50% off entire order"},
	"SIXTYOFF": {kind: "percentage", value: "60", minPurchase: "0", description: "60% off entire order"},
	"GNULINUX": {kind: "percentage", value: "15", minPurchase: "0", description: "Open source discount: 15% off"},
	"OVER9000": {kind: "fixed", value: "9", minPurchase: "0", description: "$9 off your order"},
	"HAPPYHRS": {kind: "percentage", value: "18", minPurchase: "0", description: "Happy Hours: 18% off"},
	"SHIPFREE": {kind: "free_shipping", value: "0", minPurchase: "25", description: "Free shipping on orders over $25"},
}

var defaultRule = promoRule{
	kind:        "percentage",
	value:       "10",
	minPurchase: "0",
	description: "Valid promo code: 10% off",
}

func main() {
	var (
		dataDir     string
		databaseURL string
	)

	flag.StringVar(&dataDir, "data-dir", "data", "directory containing couponbaseN.gz files")
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
		slog.Error("coupon ingest failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	slog.Info("coupon ingest completed successfully")
}

func run(ctx context.Context, dataDir, databaseURL string) error {
	dumps := make([]string, dumpCount)
	for i := range dumpCount {
		dumps[i] = filepath.Join(dataDir, fmt.Sprintf("couponbase%d.gz", i+1))
		if _, err := os.Stat(dumps[i]); err != nil {
			return errors.Wrapf(err, "check dump %s", dumps[i])
		}
	}

	slog.Info("pass 1: building bloom filters", slog.Int("dumps", dumpCount))
	filters, err := buildFilters(ctx, dumps)
	if err != nil {
		return errors.Wrap(err, "build filters")
	}

	slog.Info("pass 2: intersecting dumps")
	codes, err := intersectDumps(ctx, dumps, filters)
	if err != nil {
		return errors.Wrap(err, "intersect dumps")
	}

	slog.Info("promo codes surviving intersection", slog.Int("count", len(codes)))
	if len(codes) == 0 {
		return nil
	}

	pool, err := repository.NewPool(ctx, databaseURL)
	if err != nil {
		return errors.Wrap(err, "connect to database")
	}
	defer pool.Close()

	return upsertPromoCoupons(ctx, pool, codes)
}

// buildFilters streams every dump concurrently and records each well-formed
// code in that dump's bloom filter.
func buildFilters(ctx context.Context, dumps []string) ([]*bloom.BloomFilter, error) {
	filters := make([]*bloom.BloomFilter, len(dumps))

	g, ctx := errgroup.WithContext(ctx)
	for i, path := range dumps {
		g.Go(func() error {
			filter := bloom.NewWithEstimates(filterCapacity, filterFPR)
			var seen uint64

			err := scanGzLines(ctx, path, func(code string) {
				if len(code) < minCodeLen || len(code) > maxCodeLen {
					return
				}
				filter.AddString(code)
				if seen++; seen%logEvery == 0 {
					slog.Info("pass 1 progress", slog.Int("dump", i+1), slog.Uint64("codes", seen))
				}
			})
			if err != nil {
				return errors.Wrapf(err, "scan dump %d", i+1)
			}

			slog.Info("pass 1 done", slog.Int("dump", i+1), slog.Uint64("codes", seen))
			filters[i] = filter
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return filters, nil
}

// intersectDumps re-streams every dump and keeps codes that the other dumps'
// filters also claim to contain. Each dump contributes a bitmask per
// candidate; a candidate survives when its merged mask covers two or more
// dumps. Bloom false positives can only add codes here, never lose them.
func intersectDumps(ctx context.Context, dumps []string, filters []*bloom.BloomFilter) ([]string, error) {
	perDump := make([]map[string]uint, len(dumps))

	g, ctx := errgroup.WithContext(ctx)
	for i, path := range dumps {
		g.Go(func() error {
			candidates := make(map[string]uint)
			mask := uint(1) << uint(i)
			var seen uint64

			err := scanGzLines(ctx, path, func(code string) {
				if len(code) < minCodeLen || len(code) > maxCodeLen {
					return
				}
				if seen++; seen%logEvery == 0 {
					slog.Info("pass 2 progress", slog.Int("dump", i+1), slog.Uint64("codes", seen))
				}
				for j, f := range filters {
					if j == i {
						continue
					}
					if f.TestString(code) {
						candidates[code] |= mask
						break
					}
				}
			})
			if err != nil {
				return errors.Wrapf(err, "scan dump %d", i+1)
			}

			slog.Info("pass 2 done",
				slog.Int("dump", i+1),
				slog.Uint64("codes", seen),
				slog.Int("candidates", len(candidates)),
			)
			perDump[i] = candidates
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	merged := make(map[string]uint)
	for _, candidates := range perDump {
		for code, mask := range candidates {
			merged[code] |= mask
		}
	}

	var codes []string
	for code, mask := range merged {
		if bits.OnesCount(mask) >= 2 {
			codes = append(codes, code)
		}
	}
	return codes, nil
}

// scanGzLines calls fn for every line of a gzipped file.
func scanGzLines(ctx context.Context, path string, fn func(code string)) error {
	f, err := os.Open(path)
	if err != nil {
		return errors.Wrapf(err, "open %s", path)
	}
	defer func() { _ = f.Close() }()

	gz, err := pgzip.NewReader(f)
	if err != nil {
		return errors.Wrapf(err, "gzip reader for %s", path)
	}
	defer func() { _ = gz.Close() }()

	scanner := bufio.NewScanner(gz)
	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return err
		}
		fn(scanner.Text())
	}
	return errors.Wrapf(scanner.Err(), "scan %s", path)
}

func upsertPromoCoupons(ctx context.Context, pool *pgxpool.Pool, codes []string) error {
	slog.Info("writing coupons", slog.Int("count", len(codes)))

	expiresAt := time.Now().AddDate(1, 0, 0)
	for i, code := range codes {
		rule, ok := namedRules[code]
		if !ok {
			rule = defaultRule
		}

		value, err := decimal.NewFromString(rule.value)
		if err != nil {
			return errors.Wrapf(err, "parse value for %s", code)
		}
		minPurchase, err := decimal.NewFromString(rule.minPurchase)
		if err != nil {
			return errors.Wrapf(err, "parse minimum purchase for %s", code)
		}

		if _, err := pool.Exec(ctx, upsertCouponSQL,
			uuid.New().String(), code, rule.kind, value, minPurchase, expiresAt, rule.description,
		); err != nil {
			return errors.Wrapf(err, "upsert coupon %s", code)
		}

		if (i+1)%100 == 0 || i+1 == len(codes) {
			slog.Info("write progress", slog.Int("written", i+1), slog.Int("total", len(codes)))
		}
	}
	return nil
}
