// Package restock reads warehouse stock exports and applies them to the
// inventory ledger as atomic increments.
//
// An export is a gzip-compressed text file with one "productId,quantity"
// record per line. An optional header line starting with "productId" is
// ignored. Records for products outside the catalog are dropped by a bloom
// filter prefilter; the ledger rejects the rare false positive.
package restock

import (
	"bufio"
	"context"
	"io"
	"log/slog"
	"os"
	"slices"
	"strconv"
	"strings"

	"github.com/bits-and-blooms/bloom/v3"
	"github.com/go-faster/errors"
	"github.com/klauspost/pgzip"
	"golang.org/x/sync/errgroup"

	"github.com/xenking/promo-storefront/internal/domain/apperr"
)

// FalsePositiveRate of the catalog filter.
const FalsePositiveRate = 0.001

const progressEvery = 1_000_000

// Result aggregates the records of one or more exports.
type Result struct {
	// Deltas is the summed quantity per product.
	Deltas    map[string]int64
	Lines     int64
	Malformed int64
	Unknown   int64
}

func newResult() *Result {
	return &Result{Deltas: make(map[string]int64)}
}

func (r *Result) merge(o *Result) {
	for id, qty := range o.Deltas {
		r.Deltas[id] += qty
	}
	r.Lines += o.Lines
	r.Malformed += o.Malformed
	r.Unknown += o.Unknown
}

// NewFilter returns a bloom filter holding every catalog product id.
func NewFilter(ids []string) *bloom.BloomFilter {
	f := bloom.NewWithEstimates(uint(max(len(ids), 1)), FalsePositiveRate)
	for _, id := range ids {
		f.AddString(id)
	}
	return f
}

// ScanFiles reads every export concurrently and merges the results. known
// may be nil to accept every product id.
func ScanFiles(ctx context.Context, paths []string, known *bloom.BloomFilter) (*Result, error) {
	results := make([]*Result, len(paths))

	g, ctx := errgroup.WithContext(ctx)
	for i, path := range paths {
		g.Go(func() error {
			res, err := scanFile(ctx, path, known)
			if err != nil {
				return errors.Wrapf(err, "scan %s", path)
			}
			slog.Info("file scanned",
				slog.String("path", path),
				slog.Int64("lines", res.Lines),
				slog.Int("products", len(res.Deltas)),
				slog.Int64("malformed", res.Malformed),
				slog.Int64("unknown", res.Unknown),
			)
			results[i] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	total := newResult()
	for _, r := range results {
		total.merge(r)
	}
	return total, nil
}

func scanFile(ctx context.Context, path string, known *bloom.BloomFilter) (*Result, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, "open")
	}
	defer func() { _ = f.Close() }()

	gz, err := pgzip.NewReader(f)
	if err != nil {
		return nil, errors.Wrap(err, "create gzip reader")
	}
	defer func() { _ = gz.Close() }()

	return Scan(ctx, gz, known)
}

// Scan aggregates the records read from r.
func Scan(ctx context.Context, r io.Reader, known *bloom.BloomFilter) (*Result, error) {
	res := newResult()
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if res.Lines == 0 && res.Malformed == 0 && strings.HasPrefix(line, "productId") {
			continue
		}

		res.Lines++
		if res.Lines%progressEvery == 0 {
			slog.Info("scan progress", slog.Int64("lines", res.Lines))
		}

		id, qty, ok := parseRecord(line)
		switch {
		case !ok:
			res.Malformed++
		case known != nil && !known.TestString(id):
			res.Unknown++
		default:
			res.Deltas[id] += qty
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, errors.Wrap(err, "scan")
	}
	return res, nil
}

func parseRecord(line string) (string, int64, bool) {
	id, raw, found := strings.Cut(line, ",")
	id = strings.TrimSpace(id)
	if !found || id == "" {
		return "", 0, false
	}
	qty, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
	if err != nil || qty <= 0 {
		return "", 0, false
	}
	return id, qty, true
}

// Adjuster atomically adds delta units to a product's stock.
type Adjuster interface {
	Adjust(ctx context.Context, productID string, delta int64) (int64, error)
}

// Summary reports the outcome of Apply.
type Summary struct {
	Applied int
	Missing int
}

// Apply increments stock for every delta in product id order. Products the
// ledger does not know are counted and skipped.
func Apply(ctx context.Context, ledger Adjuster, deltas map[string]int64) (Summary, error) {
	ids := make([]string, 0, len(deltas))
	for id := range deltas {
		ids = append(ids, id)
	}
	slices.Sort(ids)

	var sum Summary
	for _, id := range ids {
		stock, err := ledger.Adjust(ctx, id, deltas[id])
		switch {
		case apperr.CodeOf(err) == apperr.CodeNotFound:
			sum.Missing++
			slog.Warn("product not in catalog", slog.String("product_id", id))
			continue
		case err != nil:
			return sum, errors.Wrapf(err, "adjust %s", id)
		}
		sum.Applied++
		slog.Debug("stock adjusted",
			slog.String("product_id", id),
			slog.Int64("delta", deltas[id]),
			slog.Int64("stock", stock),
		)
	}
	return sum, nil
}
