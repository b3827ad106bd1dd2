package offer

import (
	"context"

	"github.com/shopspring/decimal"
)

// PricedLine is a line with the unit price that will be charged.
type PricedLine struct {
	Line
	FinalUnitPrice decimal.Decimal
	// Applied is the selected offer, nil when the line is charged in full.
	Applied *Calculation
}

// Pricing is the outcome of a Strategy for a whole order.
type Pricing struct {
	Lines        []PricedLine
	Calculations []Calculation
}

// AppliedOfferIDs returns the distinct offers applied across all lines in
// line order.
func (p *Pricing) AppliedOfferIDs() []int64 {
	var (
		ids  []int64
		seen = make(map[int64]struct{})
	)
	for _, l := range p.Lines {
		if l.Applied == nil {
			continue
		}
		if _, ok := seen[l.Applied.OfferID]; ok {
			continue
		}
		seen[l.Applied.OfferID] = struct{}{}
		ids = append(ids, l.Applied.OfferID)
	}
	return ids
}

// Strategy prices order lines. orderSubtotal is the pre-discount subtotal.
type Strategy interface {
	Price(ctx context.Context, restaurantID int64, lines []Line, orderSubtotal decimal.Decimal) (*Pricing, error)
}

// FullPrice charges every line its unit price.
func FullPrice(lines []Line) *Pricing {
	priced := make([]PricedLine, len(lines))
	for i, l := range lines {
		priced[i] = PricedLine{Line: l, FinalUnitPrice: l.UnitPrice}
	}
	return &Pricing{Lines: priced}
}

type withOffers struct {
	evaluator *Evaluator
}

// WithOffers returns a Strategy that applies the best eligible offer to each
// line.
func WithOffers(evaluator *Evaluator) Strategy {
	return &withOffers{evaluator: evaluator}
}

func (s *withOffers) Price(ctx context.Context, restaurantID int64, lines []Line, orderSubtotal decimal.Decimal) (*Pricing, error) {
	calcs, err := s.evaluator.Evaluate(ctx, restaurantID, lines, orderSubtotal)
	if err != nil {
		return nil, err
	}

	p := &Pricing{
		Lines:        make([]PricedLine, len(lines)),
		Calculations: calcs,
	}
	for i, l := range lines {
		p.Lines[i] = PricedLine{Line: l, FinalUnitPrice: l.UnitPrice}
		if best, ok := SelectBest(l.ProductID, forLine(calcs, i)); ok {
			p.Lines[i].FinalUnitPrice = best.FinalPrice
			p.Lines[i].Applied = &best
		}
	}
	return p, nil
}

type flatPrice struct{}

// FlatPrice returns a Strategy that never applies offers.
func FlatPrice() Strategy {
	return flatPrice{}
}

func (flatPrice) Price(_ context.Context, _ int64, lines []Line, _ decimal.Decimal) (*Pricing, error) {
	return FullPrice(lines), nil
}

// forLine returns the calculations produced for the line at idx. Evaluate
// emits them contiguously in line order.
func forLine(calcs []Calculation, idx int) []Calculation {
	start := -1
	for i, c := range calcs {
		if c.LineIndex == idx {
			if start < 0 {
				start = i
			}
			continue
		}
		if start >= 0 {
			return calcs[start:i]
		}
	}
	if start < 0 {
		return nil
	}
	return calcs[start:]
}
