// Package offer evaluates per-product promotional offers and selects the one
// applied to each order line.
package offer

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/xenking/food-delivery-orders/internal/domain/fault"
	"github.com/xenking/food-delivery-orders/internal/domain/lifecycle"
)

// DiscountType enumerates the supported offer discount strategies.
type DiscountType string

const (
	// DiscountPercentage takes a percentage off the unit price.
	DiscountPercentage DiscountType = "percentage"
	// DiscountFixed takes a fixed amount off the unit price, capped at the
	// unit price.
	DiscountFixed DiscountType = "fixed"
)

// Status is the merchant-controlled switch of an offer.
type Status string

const (
	StatusActive   Status = "active"
	StatusInactive Status = "inactive"
)

// Offer is a promotional rule scoped to one (restaurant, product) pair.
type Offer struct {
	ID                 int64
	RestaurantID       int64
	ProductID          int64
	DiscountType       DiscountType
	DiscountValue      decimal.Decimal
	MinimumOrderAmount decimal.Decimal
	MinimumQuantity    int
	StartDate          time.Time
	EndDate            time.Time
	// UsageLimit of zero means unlimited.
	UsageLimit  int
	UsageCount  int
	Status      Status
	Description string
	State       lifecycle.State
}

// UsableAt reports whether the offer is active, inside its validity window
// and below its usage limit at the given instant.
func (o *Offer) UsableAt(now time.Time) bool {
	if o.Status != StatusActive {
		return false
	}
	if now.Before(o.StartDate) || now.After(o.EndDate) {
		return false
	}
	return o.UsageLimit == 0 || o.UsageCount < o.UsageLimit
}

var hundred = decimal.NewFromInt(100)

// Validate checks an offer authored by restaurant staff or imported in bulk.
// Every failure wraps fault.ErrValidation.
func Validate(o *Offer) error {
	switch o.DiscountType {
	case DiscountPercentage:
		if o.DiscountValue.GreaterThan(hundred) {
			return fmt.Errorf("%w: percentage discount above 100", fault.ErrValidation)
		}
	case DiscountFixed:
	default:
		return fmt.Errorf("%w: unknown discount type %q", fault.ErrValidation, o.DiscountType)
	}
	if !o.DiscountValue.IsPositive() {
		return fmt.Errorf("%w: discount value must be positive", fault.ErrValidation)
	}
	if o.MinimumOrderAmount.IsNegative() {
		return fmt.Errorf("%w: minimum order amount is negative", fault.ErrValidation)
	}
	if o.MinimumQuantity < 0 {
		return fmt.Errorf("%w: minimum quantity is negative", fault.ErrValidation)
	}
	if o.UsageLimit < 0 {
		return fmt.Errorf("%w: usage limit is negative", fault.ErrValidation)
	}
	if o.StartDate.IsZero() || o.EndDate.IsZero() {
		return fmt.Errorf("%w: validity window is required", fault.ErrValidation)
	}
	if !o.StartDate.Before(o.EndDate) {
		return fmt.Errorf("%w: start date must be before end date", fault.ErrValidation)
	}
	switch o.Status {
	case StatusActive, StatusInactive:
	default:
		return fmt.Errorf("%w: unknown status %q", fault.ErrValidation, o.Status)
	}
	if !o.State.Valid() {
		return fmt.Errorf("%w: unknown lifecycle %q", fault.ErrValidation, o.State)
	}
	return nil
}

// Catalog lists the offers a restaurant currently publishes.
type Catalog interface {
	ActiveOffers(ctx context.Context, restaurantID int64) ([]Offer, error)
}

// UsageCounter records that an offer was applied to a committed order.
// IncrementUsage reports false when the counter was not incremented, e.g.
// because the limit was reached concurrently.
type UsageCounter interface {
	IncrementUsage(ctx context.Context, offerID int64) (bool, error)
}

// Store combines read and usage-tracking access to offers.
type Store interface {
	Catalog
	UsageCounter
}
