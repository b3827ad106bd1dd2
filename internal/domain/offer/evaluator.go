package offer

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// Reason explains why an offer was not applied to a line.
type Reason string

const (
	ReasonNone        Reason = ""
	ReasonMinQuantity Reason = "min_quantity"
	ReasonMinOrder    Reason = "min_order"
	ReasonInactive    Reason = "inactive"
)

// Line is one priced order line presented to the evaluator.
type Line struct {
	ProductID int64
	Quantity  int
	UnitPrice decimal.Decimal
}

// Calculation is the outcome of evaluating one offer against one line.
type Calculation struct {
	// LineIndex is the position of the evaluated line in the input.
	LineIndex          int
	OfferID            int64
	ProductID          int64
	OriginalPrice      decimal.Decimal
	CalculatedDiscount decimal.Decimal
	FinalPrice         decimal.Decimal
	Applied            bool
	Reason             Reason
	Message            string
}

// Evaluator computes per-line offer discounts. It never writes.
type Evaluator struct {
	offers Catalog
	now    func() time.Time
}

// NewEvaluator creates an Evaluator reading offers from the given catalog.
func NewEvaluator(offers Catalog) *Evaluator {
	return &Evaluator{offers: offers, now: time.Now}
}

// Evaluate returns one Calculation per (line, offer) pair whose product
// matches, ordered by line and then by offer ID. orderSubtotal is the
// pre-discount subtotal of the whole order.
func (e *Evaluator) Evaluate(ctx context.Context, restaurantID int64, lines []Line, orderSubtotal decimal.Decimal) ([]Calculation, error) {
	offers, err := e.offers.ActiveOffers(ctx, restaurantID)
	if err != nil {
		return nil, errors.Wrap(err, "list active offers")
	}
	if len(offers) == 0 {
		return nil, nil
	}

	byProduct := make(map[int64][]Offer, len(offers))
	for _, o := range offers {
		byProduct[o.ProductID] = append(byProduct[o.ProductID], o)
	}
	for _, list := range byProduct {
		slices.SortFunc(list, func(a, b Offer) int { return cmp.Compare(a.ID, b.ID) })
	}

	now := e.now()
	var calcs []Calculation
	for idx, line := range lines {
		for i := range byProduct[line.ProductID] {
			c, err := evaluateOne(&byProduct[line.ProductID][i], line, orderSubtotal, now)
			if err != nil {
				return nil, err
			}
			c.LineIndex = idx
			calcs = append(calcs, c)
		}
	}
	return calcs, nil
}

func evaluateOne(o *Offer, line Line, orderSubtotal decimal.Decimal, now time.Time) (Calculation, error) {
	c := Calculation{
		OfferID:            o.ID,
		ProductID:          line.ProductID,
		OriginalPrice:      line.UnitPrice,
		CalculatedDiscount: decimal.Zero,
		FinalPrice:         line.UnitPrice,
	}

	switch {
	case !o.UsableAt(now):
		c.Reason = ReasonInactive
		c.Message = "offer is not currently active"
		return c, nil
	case line.Quantity < o.MinimumQuantity:
		c.Reason = ReasonMinQuantity
		c.Message = fmt.Sprintf("requires at least %d items", o.MinimumQuantity)
		return c, nil
	case orderSubtotal.LessThan(o.MinimumOrderAmount):
		c.Reason = ReasonMinOrder
		c.Message = fmt.Sprintf("requires order subtotal of at least %s", o.MinimumOrderAmount.StringFixed(2))
		return c, nil
	}

	discount, err := Discount(o, line.UnitPrice)
	if err != nil {
		return Calculation{}, err
	}
	c.CalculatedDiscount = discount
	c.FinalPrice = line.UnitPrice.Sub(discount)
	c.Applied = true
	return c, nil
}

// Discount returns the per-unit discount of o on unitPrice, rounded to cents.
// A fixed discount never exceeds the unit price.
func Discount(o *Offer, unitPrice decimal.Decimal) (decimal.Decimal, error) {
	var amount decimal.Decimal
	switch o.DiscountType {
	case DiscountPercentage:
		amount = unitPrice.Mul(o.DiscountValue).Div(hundred)
	case DiscountFixed:
		amount = decimal.Min(o.DiscountValue, unitPrice)
	default:
		return decimal.Zero, errors.Errorf("offer %d: unsupported discount type %q", o.ID, o.DiscountType)
	}
	amount = amount.Round(2)
	if amount.IsNegative() {
		return decimal.Zero, nil
	}
	if amount.GreaterThan(unitPrice) {
		return unitPrice, nil
	}
	return amount, nil
}
