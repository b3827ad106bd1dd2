package order

import (
	"github.com/shopspring/decimal"

	"github.com/xenking/food-delivery-orders/internal/domain/offer"
)

// Totals are the monetary figures of an order, rounded to cents.
type Totals struct {
	Items       []Item
	Subtotal    decimal.Decimal
	DeliveryFee decimal.Decimal
	Total       decimal.Decimal
}

// CalculateTotals builds order items from priced lines and adds the delivery
// fee. No tax is applied.
func CalculateTotals(lines []offer.PricedLine, deliveryFee decimal.Decimal) Totals {
	t := Totals{
		Items:       make([]Item, len(lines)),
		Subtotal:    decimal.Zero,
		DeliveryFee: deliveryFee.Round(2),
	}
	for i, l := range lines {
		unit := l.FinalUnitPrice.Round(2)
		item := Item{
			ProductID:         l.ProductID,
			Quantity:          l.Quantity,
			OriginalUnitPrice: l.UnitPrice.Round(2),
			UnitPrice:         unit,
			Subtotal:          unit.Mul(decimal.NewFromInt(int64(l.Quantity))),
		}
		if l.Applied != nil {
			id := l.Applied.OfferID
			item.OfferID = &id
		}
		t.Items[i] = item
		t.Subtotal = t.Subtotal.Add(item.Subtotal)
	}
	t.Total = t.Subtotal.Add(t.DeliveryFee)
	return t
}

// initialSubtotal is the pre-discount subtotal used for minimum-order checks.
func initialSubtotal(lines []offer.Line) decimal.Decimal {
	sum := decimal.Zero
	for _, l := range lines {
		sum = sum.Add(l.UnitPrice.Mul(decimal.NewFromInt(int64(l.Quantity))))
	}
	return sum
}
