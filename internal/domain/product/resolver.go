package product

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/xenking/food-delivery-orders/internal/domain/fault"
)

// PriceResolver computes the effective unit price of a product at a
// restaurant.
type PriceResolver struct {
	products Repository
}

// NewPriceResolver creates a PriceResolver backed by the given catalog.
func NewPriceResolver(products Repository) *PriceResolver {
	return &PriceResolver{products: products}
}

// ResolveUnitPrice returns the restaurant override price when an available
// override exists, otherwise the catalog base price. found is false when
// neither an available override nor an available catalog product exists.
func (r *PriceResolver) ResolveUnitPrice(ctx context.Context, restaurantID, productID int64) (decimal.Decimal, bool, error) {
	ov, err := r.products.GetOverride(ctx, restaurantID, productID)
	switch {
	case err == nil:
		if ov.Available && ov.State.IsActive() {
			return ov.Price, true, nil
		}
	case errors.Is(err, fault.ErrNotFound):
	default:
		return decimal.Zero, false, errors.Wrap(err, "get override")
	}

	p, err := r.products.GetByID(ctx, productID)
	if err != nil {
		if errors.Is(err, fault.ErrNotFound) {
			return decimal.Zero, false, nil
		}
		return decimal.Zero, false, errors.Wrap(err, "get product")
	}
	if !p.Available || !p.State.IsActive() {
		return decimal.Zero, false, nil
	}
	return p.BasePrice, true, nil
}
