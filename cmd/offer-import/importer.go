package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/bits-and-blooms/bloom/v3"
	"github.com/go-faster/errors"
	pgzip "github.com/klauspost/pgzip"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/xenking/food-delivery-orders/internal/domain/lifecycle"
	"github.com/xenking/food-delivery-orders/internal/domain/offer"
)

const (
	bloomFPR      = 0.001
	progressEvery = 100_000
	maxLineBytes  = 64 << 10
)

// record is one JSON line of an offer file.
type record struct {
	RestaurantID       int64           `json:"restaurantId"`
	ProductID          int64           `json:"productId"`
	DiscountType       string          `json:"discountType"`
	DiscountValue      decimal.Decimal `json:"discountValue"`
	MinimumOrderAmount decimal.Decimal `json:"minimumOrderAmount"`
	MinimumQuantity    int             `json:"minimumQuantity"`
	StartDate          time.Time       `json:"startDate"`
	EndDate            time.Time       `json:"endDate"`
	UsageLimit         int             `json:"usageLimit"`
	Status             string          `json:"status"`
	Description        string          `json:"description"`
}

// toOffer rounds money to cents as it will be stored, so validation sees the
// persisted values.
func (r record) toOffer() offer.Offer {
	status := offer.Status(r.Status)
	if status == "" {
		status = offer.StatusActive
	}
	return offer.Offer{
		RestaurantID:       r.RestaurantID,
		ProductID:          r.ProductID,
		DiscountType:       offer.DiscountType(r.DiscountType),
		DiscountValue:      r.DiscountValue.Round(2),
		MinimumOrderAmount: r.MinimumOrderAmount.Round(2),
		MinimumQuantity:    r.MinimumQuantity,
		StartDate:          r.StartDate.UTC(),
		EndDate:            r.EndDate.UTC(),
		UsageLimit:         r.UsageLimit,
		Status:             status,
		Description:        r.Description,
		State:              lifecycle.Active,
	}
}

// batch holds the valid offers of one file in line order.
type batch struct {
	offers   []offer.Offer
	rejected int
}

// parseFiles reads every file concurrently. Lines that fail to decode or
// validate are logged and counted, not fatal.
func parseFiles(ctx context.Context, files []string) ([]batch, error) {
	batches := make([]batch, len(files))

	g, ctx := errgroup.WithContext(ctx)
	for i, path := range files {
		g.Go(func() error {
			b, err := parseFile(ctx, path)
			if err != nil {
				return errors.Wrapf(err, "file %s", path)
			}
			batches[i] = b
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return batches, nil
}

func parseFile(ctx context.Context, path string) (batch, error) {
	f, err := os.Open(path)
	if err != nil {
		return batch{}, errors.Wrap(err, "open")
	}
	defer func() { _ = f.Close() }()

	gz, err := pgzip.NewReader(f)
	if err != nil {
		return batch{}, errors.Wrap(err, "create gzip reader")
	}
	defer func() { _ = gz.Close() }()

	var (
		b    batch
		line int
	)
	scanner := bufio.NewScanner(gz)
	scanner.Buffer(make([]byte, 0, 4096), maxLineBytes)
	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return batch{}, err
		}
		line++
		raw := scanner.Bytes()
		if len(raw) == 0 {
			continue
		}

		o, err := parseLine(raw)
		if err != nil {
			b.rejected++
			slog.Warn("rejected offer",
				slog.String("file", path),
				slog.Int("line", line),
				slog.String("error", err.Error()),
			)
			continue
		}
		b.offers = append(b.offers, o)

		if line%progressEvery == 0 {
			slog.Info("parse progress", slog.String("file", path), slog.Int("lines", line))
		}
	}
	if err := scanner.Err(); err != nil {
		return batch{}, errors.Wrap(err, "scan")
	}
	return b, nil
}

func parseLine(raw []byte) (offer.Offer, error) {
	var r record
	if err := json.Unmarshal(raw, &r); err != nil {
		return offer.Offer{}, errors.Wrap(err, "decode")
	}
	o := r.toOffer()
	if err := offer.Validate(&o); err != nil {
		return offer.Offer{}, err
	}
	return o, nil
}

// dedupKey identifies an offer the same way the offers unique index does,
// including the microsecond precision of TIMESTAMPTZ.
func dedupKey(o *offer.Offer) string {
	return fmt.Sprintf("%d|%d|%s|%s|%d|%d",
		o.RestaurantID, o.ProductID, o.DiscountType, o.DiscountValue.StringFixed(2),
		o.StartDate.UnixMicro(), o.EndDate.UnixMicro(),
	)
}

type dedupResult struct {
	offers     []offer.Offer
	duplicates int
	rejected   int
}

// deduplicate keeps the first occurrence of every offer key across all
// batches. A bloom filter flags keys that may repeat; only flagged keys are
// confirmed against an exact set.
func deduplicate(batches []batch) dedupResult {
	var res dedupResult
	total := 0
	for _, b := range batches {
		total += len(b.offers)
		res.rejected += b.rejected
	}
	if total == 0 {
		return res
	}

	filter := bloom.NewWithEstimates(uint(total), bloomFPR)
	suspects := make(map[string]struct{})
	for _, b := range batches {
		for i := range b.offers {
			key := dedupKey(&b.offers[i])
			if filter.TestAndAddString(key) {
				suspects[key] = struct{}{}
			}
		}
	}

	seen := make(map[string]struct{}, len(suspects))
	res.offers = make([]offer.Offer, 0, total)
	for _, b := range batches {
		for i := range b.offers {
			o := b.offers[i]
			key := dedupKey(&o)
			if _, suspect := suspects[key]; suspect {
				if _, dup := seen[key]; dup {
					res.duplicates++
					continue
				}
				seen[key] = struct{}{}
			}
			res.offers = append(res.offers, o)
		}
	}
	return res
}

// upserter is satisfied by *postgres.OfferRepository.
type upserter interface {
	Upsert(ctx context.Context, o *offer.Offer) error
}

func write(ctx context.Context, repo upserter, offers []offer.Offer) error {
	slog.Info("writing offers", slog.Int("count", len(offers)))

	for i := range offers {
		o := &offers[i]
		if err := repo.Upsert(ctx, o); err != nil {
			return errors.Wrapf(err, "upsert offer for restaurant %d product %d", o.RestaurantID, o.ProductID)
		}
		if (i+1)%1000 == 0 || i+1 == len(offers) {
			slog.Info("write progress", slog.Int("written", i+1), slog.Int("total", len(offers)))
		}
	}
	return nil
}
