package offer

import "github.com/shopspring/decimal"

// MinUnitPrice is the lowest unit price a discount may produce.
var MinUnitPrice = decimal.New(1, -2)

// SelectBest picks the applied calculation for productID with the largest
// discount, breaking ties by the lowest offer ID. The returned final price
// is floored at MinUnitPrice, or at the original price when that is lower.
func SelectBest(productID int64, calcs []Calculation) (Calculation, bool) {
	var (
		best  Calculation
		found bool
	)
	for _, c := range calcs {
		if !c.Applied || c.ProductID != productID {
			continue
		}
		if !found ||
			c.CalculatedDiscount.GreaterThan(best.CalculatedDiscount) ||
			(c.CalculatedDiscount.Equal(best.CalculatedDiscount) && c.OfferID < best.OfferID) {
			best = c
			found = true
		}
	}
	if !found {
		return Calculation{}, false
	}

	floor := decimal.Min(MinUnitPrice, best.OriginalPrice)
	if best.FinalPrice.LessThan(floor) {
		best.FinalPrice = floor
		best.CalculatedDiscount = best.OriginalPrice.Sub(floor)
	}
	return best, true
}
