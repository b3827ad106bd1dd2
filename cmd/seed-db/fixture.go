package main

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/go-faster/errors"
	pgzip "github.com/klauspost/pgzip"
	"github.com/shopspring/decimal"

	"github.com/xenking/food-delivery-orders/internal/domain/address"
	"github.com/xenking/food-delivery-orders/internal/domain/lifecycle"
	"github.com/xenking/food-delivery-orders/internal/domain/offer"
	"github.com/xenking/food-delivery-orders/internal/domain/product"
	"github.com/xenking/food-delivery-orders/internal/domain/restaurant"
)

// fixture references restaurants and products by key; database IDs are
// assigned on insert.
type fixture struct {
	Restaurants []restaurantFixture `json:"restaurants"`
	Products    []productFixture    `json:"products"`
	Overrides   []overrideFixture   `json:"overrides"`
	Addresses   []addressFixture    `json:"addresses"`
	Offers      []offerFixture      `json:"offers"`
}

type restaurantFixture struct {
	Key                      string          `json:"key"`
	Name                     string          `json:"name"`
	IsOpen                   bool            `json:"isOpen"`
	DeliveryFee              decimal.Decimal `json:"deliveryFee"`
	EstimatedDeliveryMinutes int             `json:"estimatedDeliveryMinutes"`
	Archived                 bool            `json:"archived"`
}

type productFixture struct {
	Key       string          `json:"key"`
	Name      string          `json:"name"`
	BasePrice decimal.Decimal `json:"basePrice"`
	Available bool            `json:"available"`
	Archived  bool            `json:"archived"`
}

type overrideFixture struct {
	Restaurant string          `json:"restaurant"`
	Product    string          `json:"product"`
	Price      decimal.Decimal `json:"price"`
	Available  bool            `json:"available"`
	Stock      int             `json:"stock"`
	Archived   bool            `json:"archived"`
}

type addressFixture struct {
	OwnerUserID int64  `json:"ownerUserId"`
	Line1       string `json:"line1"`
	City        string `json:"city"`
}

type offerFixture struct {
	Restaurant         string          `json:"restaurant"`
	Product            string          `json:"product"`
	DiscountType       string          `json:"discountType"`
	DiscountValue      decimal.Decimal `json:"discountValue"`
	MinimumOrderAmount decimal.Decimal `json:"minimumOrderAmount"`
	MinimumQuantity    int             `json:"minimumQuantity"`
	StartDate          time.Time       `json:"startDate"`
	EndDate            time.Time       `json:"endDate"`
	UsageLimit         int             `json:"usageLimit"`
	Description        string          `json:"description"`
}

func readFixture(path string) (*fixture, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, "open")
	}
	defer func() { _ = f.Close() }()

	var r io.Reader = f
	if strings.HasSuffix(path, ".gz") {
		gz, err := pgzip.NewReader(f)
		if err != nil {
			return nil, errors.Wrap(err, "create gzip reader")
		}
		defer func() { _ = gz.Close() }()
		r = gz
	}

	var fx fixture
	if err := json.NewDecoder(r).Decode(&fx); err != nil {
		return nil, errors.Wrap(err, "parse fixture JSON")
	}
	return &fx, nil
}

func state(archived bool) lifecycle.State {
	if archived {
		return lifecycle.Archived
	}
	return lifecycle.Active
}

type restaurantCreator interface {
	Create(ctx context.Context, r *restaurant.Restaurant) error
}

type productCreator interface {
	Create(ctx context.Context, p *product.Product) error
	UpsertOverride(ctx context.Context, rp *product.RestaurantProduct) error
}

type addressCreator interface {
	Create(ctx context.Context, a *address.Address) error
}

type offerUpserter interface {
	Upsert(ctx context.Context, o *offer.Offer) error
}

type seeder struct {
	restaurants restaurantCreator
	products    productCreator
	addresses   addressCreator
	offers      offerUpserter

	restaurantIDs map[string]int64
	productIDs    map[string]int64
}

func (s *seeder) seed(ctx context.Context, fx *fixture) error {
	s.restaurantIDs = make(map[string]int64, len(fx.Restaurants))
	s.productIDs = make(map[string]int64, len(fx.Products))

	for _, r := range fx.Restaurants {
		rest := &restaurant.Restaurant{
			Name:                     r.Name,
			IsOpen:                   r.IsOpen,
			DeliveryFee:              r.DeliveryFee,
			EstimatedDeliveryMinutes: r.EstimatedDeliveryMinutes,
			State:                    state(r.Archived),
		}
		if err := s.restaurants.Create(ctx, rest); err != nil {
			return errors.Wrapf(err, "restaurant %s", r.Key)
		}
		s.restaurantIDs[r.Key] = rest.ID
		slog.Info("created restaurant", slog.String("key", r.Key), slog.Int64("id", rest.ID))
	}

	for _, p := range fx.Products {
		prod := &product.Product{
			Name:      p.Name,
			BasePrice: p.BasePrice,
			Available: p.Available,
			State:     state(p.Archived),
		}
		if err := s.products.Create(ctx, prod); err != nil {
			return errors.Wrapf(err, "product %s", p.Key)
		}
		s.productIDs[p.Key] = prod.ID
		slog.Info("created product", slog.String("key", p.Key), slog.Int64("id", prod.ID))
	}

	for _, ov := range fx.Overrides {
		restID, prodID, err := s.resolve(ov.Restaurant, ov.Product)
		if err != nil {
			return errors.Wrap(err, "override")
		}
		if err := s.products.UpsertOverride(ctx, &product.RestaurantProduct{
			RestaurantID: restID,
			ProductID:    prodID,
			Price:        ov.Price,
			Available:    ov.Available,
			Stock:        ov.Stock,
			State:        state(ov.Archived),
		}); err != nil {
			return errors.Wrapf(err, "override %s/%s", ov.Restaurant, ov.Product)
		}
	}

	for _, a := range fx.Addresses {
		addr := &address.Address{OwnerUserID: a.OwnerUserID, Line1: a.Line1, City: a.City}
		if err := s.addresses.Create(ctx, addr); err != nil {
			return errors.Wrapf(err, "address of user %d", a.OwnerUserID)
		}
		slog.Info("created address", slog.Int64("owner", a.OwnerUserID), slog.Int64("id", addr.ID))
	}

	for _, o := range fx.Offers {
		restID, prodID, err := s.resolve(o.Restaurant, o.Product)
		if err != nil {
			return errors.Wrap(err, "offer")
		}
		of := &offer.Offer{
			RestaurantID:       restID,
			ProductID:          prodID,
			DiscountType:       offer.DiscountType(o.DiscountType),
			DiscountValue:      o.DiscountValue.Round(2),
			MinimumOrderAmount: o.MinimumOrderAmount.Round(2),
			MinimumQuantity:    o.MinimumQuantity,
			StartDate:          o.StartDate.UTC(),
			EndDate:            o.EndDate.UTC(),
			UsageLimit:         o.UsageLimit,
			Status:             offer.StatusActive,
			Description:        o.Description,
			State:              lifecycle.Active,
		}
		if err := offer.Validate(of); err != nil {
			return errors.Wrapf(err, "offer %s/%s", o.Restaurant, o.Product)
		}
		if err := s.offers.Upsert(ctx, of); err != nil {
			return errors.Wrapf(err, "offer %s/%s", o.Restaurant, o.Product)
		}
	}

	slog.Info("seeded fixture",
		slog.Int("restaurants", len(fx.Restaurants)),
		slog.Int("products", len(fx.Products)),
		slog.Int("overrides", len(fx.Overrides)),
		slog.Int("addresses", len(fx.Addresses)),
		slog.Int("offers", len(fx.Offers)),
	)
	return nil
}

func (s *seeder) resolve(restaurantKey, productKey string) (int64, int64, error) {
	restID, ok := s.restaurantIDs[restaurantKey]
	if !ok {
		return 0, 0, errors.Errorf("unknown restaurant %q", restaurantKey)
	}
	prodID, ok := s.productIDs[productKey]
	if !ok {
		return 0, 0, errors.Errorf("unknown product %q", productKey)
	}
	return restID, prodID, nil
}
