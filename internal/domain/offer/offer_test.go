package offer

import (
	"context"
	"testing"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xenking/food-delivery-orders/internal/domain/fault"
	"github.com/xenking/food-delivery-orders/internal/domain/lifecycle"
)

func d(v string) decimal.Decimal {
	return decimal.RequireFromString(v)
}

var (
	fixedNow = time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)
	weekAgo  = fixedNow.Add(-7 * 24 * time.Hour)
	nextWeek = fixedNow.Add(7 * 24 * time.Hour)
)

type mockCatalog struct {
	offers []Offer
	err    error
	calls  int
}

func (m *mockCatalog) ActiveOffers(_ context.Context, _ int64) ([]Offer, error) {
	m.calls++
	return m.offers, m.err
}

func activeOffer(id, productID int64, typ DiscountType, value string) Offer {
	return Offer{
		ID:                 id,
		RestaurantID:       1,
		ProductID:          productID,
		DiscountType:       typ,
		DiscountValue:      d(value),
		MinimumOrderAmount: decimal.Zero,
		MinimumQuantity:    1,
		StartDate:          weekAgo,
		EndDate:            nextWeek,
		Status:             StatusActive,
		State:              lifecycle.Active,
	}
}

func newTestEvaluator(offers ...Offer) (*Evaluator, *mockCatalog) {
	cat := &mockCatalog{offers: offers}
	e := NewEvaluator(cat)
	e.now = func() time.Time { return fixedNow }
	return e, cat
}

func TestOffer_UsableAt(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(o *Offer)
		want   bool
	}{
		{name: "active inside window", mutate: func(*Offer) {}, want: true},
		{name: "inactive status", mutate: func(o *Offer) { o.Status = StatusInactive }},
		{name: "not started", mutate: func(o *Offer) { o.StartDate = fixedNow.Add(time.Hour) }},
		{name: "expired", mutate: func(o *Offer) { o.EndDate = fixedNow.Add(-time.Hour) }},
		{name: "window bounds are inclusive", mutate: func(o *Offer) { o.StartDate, o.EndDate = fixedNow, fixedNow }, want: true},
		{name: "usage limit reached", mutate: func(o *Offer) { o.UsageLimit, o.UsageCount = 5, 5 }},
		{name: "usage under limit", mutate: func(o *Offer) { o.UsageLimit, o.UsageCount = 5, 4 }, want: true},
		{name: "unlimited usage", mutate: func(o *Offer) { o.UsageLimit, o.UsageCount = 0, 9999 }, want: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			o := activeOffer(1, 1, DiscountFixed, "1")
			tt.mutate(&o)
			assert.Equal(t, tt.want, o.UsableAt(fixedNow))
		})
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(o *Offer)
		wantErr bool
	}{
		{name: "valid percentage", mutate: func(*Offer) {}},
		{name: "percentage above 100", mutate: func(o *Offer) { o.DiscountValue = d("101") }, wantErr: true},
		{name: "zero value", mutate: func(o *Offer) { o.DiscountValue = decimal.Zero }, wantErr: true},
		{name: "unknown type", mutate: func(o *Offer) { o.DiscountType = "bogo" }, wantErr: true},
		{name: "negative minimum order", mutate: func(o *Offer) { o.MinimumOrderAmount = d("-1") }, wantErr: true},
		{name: "negative minimum quantity", mutate: func(o *Offer) { o.MinimumQuantity = -1 }, wantErr: true},
		{name: "negative usage limit", mutate: func(o *Offer) { o.UsageLimit = -1 }, wantErr: true},
		{name: "inverted dates", mutate: func(o *Offer) { o.StartDate, o.EndDate = nextWeek, weekAgo }, wantErr: true},
		{name: "missing end date", mutate: func(o *Offer) { o.EndDate = time.Time{} }, wantErr: true},
		{name: "unknown status", mutate: func(o *Offer) { o.Status = "paused" }, wantErr: true},
		{name: "missing lifecycle", mutate: func(o *Offer) { o.State = "" }, wantErr: true},
		{name: "archived is a valid lifecycle", mutate: func(o *Offer) { o.State = lifecycle.Archived }},
		{name: "large fixed value is allowed", mutate: func(o *Offer) { o.DiscountType, o.DiscountValue = DiscountFixed, d("500") }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			o := activeOffer(1, 1, DiscountPercentage, "20")
			tt.mutate(&o)

			err := Validate(&o)
			if tt.wantErr {
				require.ErrorIs(t, err, fault.ErrValidation)
				return
			}
			require.NoError(t, err)
		})
	}
}

func TestEvaluator_Evaluate(t *testing.T) {
	tests := []struct {
		name         string
		offers       []Offer
		lines        []Line
		subtotal     decimal.Decimal
		wantApplied  []bool
		wantReasons  []Reason
		wantDiscount []decimal.Decimal
	}{
		{
			name:         "percentage offer applies",
			offers:       []Offer{activeOffer(1, 10, DiscountPercentage, "20")},
			lines:        []Line{{ProductID: 10, Quantity: 1, UnitPrice: d("10.00")}},
			subtotal:     d("10.00"),
			wantApplied:  []bool{true},
			wantReasons:  []Reason{ReasonNone},
			wantDiscount: []decimal.Decimal{d("2.00")},
		},
		{
			name: "minimum quantity not met",
			offers: func() []Offer {
				o := activeOffer(1, 10, DiscountPercentage, "20")
				o.MinimumQuantity = 3
				return []Offer{o}
			}(),
			lines:        []Line{{ProductID: 10, Quantity: 2, UnitPrice: d("10.00")}},
			subtotal:     d("20.00"),
			wantApplied:  []bool{false},
			wantReasons:  []Reason{ReasonMinQuantity},
			wantDiscount: []decimal.Decimal{decimal.Zero},
		},
		{
			name: "minimum order uses supplied subtotal",
			offers: func() []Offer {
				o := activeOffer(1, 10, DiscountFixed, "1")
				o.MinimumOrderAmount = d("25.00")
				return []Offer{o}
			}(),
			lines:        []Line{{ProductID: 10, Quantity: 2, UnitPrice: d("10.00")}},
			subtotal:     d("20.00"),
			wantApplied:  []bool{false},
			wantReasons:  []Reason{ReasonMinOrder},
			wantDiscount: []decimal.Decimal{decimal.Zero},
		},
		{
			name: "expired offer is inactive",
			offers: func() []Offer {
				o := activeOffer(1, 10, DiscountFixed, "1")
				o.EndDate = fixedNow.Add(-time.Minute)
				return []Offer{o}
			}(),
			lines:        []Line{{ProductID: 10, Quantity: 1, UnitPrice: d("10.00")}},
			subtotal:     d("10.00"),
			wantApplied:  []bool{false},
			wantReasons:  []Reason{ReasonInactive},
			wantDiscount: []decimal.Decimal{decimal.Zero},
		},
		{
			name:         "fixed discount capped at unit price",
			offers:       []Offer{activeOffer(1, 10, DiscountFixed, "15")},
			lines:        []Line{{ProductID: 10, Quantity: 1, UnitPrice: d("4.00")}},
			subtotal:     d("4.00"),
			wantApplied:  []bool{true},
			wantReasons:  []Reason{ReasonNone},
			wantDiscount: []decimal.Decimal{d("4.00")},
		},
		{
			name:         "percentage uses decimal division",
			offers:       []Offer{activeOffer(1, 10, DiscountPercentage, "15")},
			lines:        []Line{{ProductID: 10, Quantity: 1, UnitPrice: d("3.33")}},
			subtotal:     d("3.33"),
			wantApplied:  []bool{true},
			wantReasons:  []Reason{ReasonNone},
			wantDiscount: []decimal.Decimal{d("0.50")},
		},
		{
			name:   "offers for other products are ignored",
			offers: []Offer{activeOffer(1, 99, DiscountFixed, "1")},
			lines:  []Line{{ProductID: 10, Quantity: 1, UnitPrice: d("10.00")}},
		},
		{
			name: "results ordered by offer id",
			offers: []Offer{
				activeOffer(5, 10, DiscountFixed, "1"),
				activeOffer(2, 10, DiscountFixed, "2"),
			},
			lines:        []Line{{ProductID: 10, Quantity: 1, UnitPrice: d("10.00")}},
			subtotal:     d("10.00"),
			wantApplied:  []bool{true, true},
			wantReasons:  []Reason{ReasonNone, ReasonNone},
			wantDiscount: []decimal.Decimal{d("2"), d("1")},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e, _ := newTestEvaluator(tt.offers...)

			calcs, err := e.Evaluate(context.Background(), 1, tt.lines, tt.subtotal)
			require.NoError(t, err)
			require.Len(t, calcs, len(tt.wantApplied))

			for i, c := range calcs {
				assert.Equal(t, tt.wantApplied[i], c.Applied, "calc %d applied", i)
				assert.Equal(t, tt.wantReasons[i], c.Reason, "calc %d reason", i)
				assert.True(t, tt.wantDiscount[i].Equal(c.CalculatedDiscount),
					"calc %d: expected discount %s, got %s", i, tt.wantDiscount[i], c.CalculatedDiscount)
				assert.True(t, c.OriginalPrice.Sub(c.CalculatedDiscount).Equal(c.FinalPrice))
				if !c.Applied {
					assert.NotEmpty(t, c.Message)
				}
			}
		})
	}
}

func TestEvaluator_MinQuantityNeverApplies(t *testing.T) {
	o := activeOffer(1, 10, DiscountPercentage, "50")
	o.MinimumQuantity = 3
	e, _ := newTestEvaluator(o)

	for qty := 1; qty < 3; qty++ {
		for _, price := range []string{"0.01", "1.00", "10.00", "999.99"} {
			lines := []Line{{ProductID: 10, Quantity: qty, UnitPrice: d(price)}}
			calcs, err := e.Evaluate(context.Background(), 1, lines, d("100000"))
			require.NoError(t, err)
			require.Len(t, calcs, 1)
			assert.False(t, calcs[0].Applied, "qty %d price %s", qty, price)
		}
	}
}

func TestEvaluator_IsIdempotent(t *testing.T) {
	o := activeOffer(1, 10, DiscountPercentage, "20")
	o.UsageLimit = 1
	e, cat := newTestEvaluator(o)
	lines := []Line{{ProductID: 10, Quantity: 2, UnitPrice: d("10.00")}}

	first, err := e.Evaluate(context.Background(), 1, lines, d("20.00"))
	require.NoError(t, err)
	second, err := e.Evaluate(context.Background(), 1, lines, d("20.00"))
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, 0, cat.offers[0].UsageCount)
	assert.Equal(t, 2, cat.calls)
}

func TestEvaluator_Errors(t *testing.T) {
	t.Run("catalog failure", func(t *testing.T) {
		e := NewEvaluator(&mockCatalog{err: errors.New("db down")})
		_, err := e.Evaluate(context.Background(), 1, []Line{{ProductID: 1, Quantity: 1, UnitPrice: d("1")}}, d("1"))
		require.Error(t, err)
	})

	t.Run("unsupported discount type", func(t *testing.T) {
		e, _ := newTestEvaluator(activeOffer(1, 10, "bogo", "1"))
		_, err := e.Evaluate(context.Background(), 1, []Line{{ProductID: 10, Quantity: 1, UnitPrice: d("5")}}, d("5"))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "unsupported discount type")
	})
}

func TestSelectBest(t *testing.T) {
	calc := func(offerID int64, original, discount string, applied bool) Calculation {
		return Calculation{
			OfferID:            offerID,
			ProductID:          10,
			OriginalPrice:      d(original),
			CalculatedDiscount: d(discount),
			FinalPrice:         d(original).Sub(d(discount)),
			Applied:            applied,
		}
	}

	tests := []struct {
		name      string
		calcs     []Calculation
		wantOK    bool
		wantOffer int64
		wantFinal decimal.Decimal
	}{
		{
			name:  "nothing applied",
			calcs: []Calculation{calc(1, "10", "0", false)},
		},
		{
			name:      "largest discount wins",
			calcs:     []Calculation{calc(1, "10", "2", true), calc(2, "10", "5", true)},
			wantOK:    true,
			wantOffer: 2,
			wantFinal: d("5"),
		},
		{
			name:      "tie broken by lowest offer id",
			calcs:     []Calculation{calc(9, "10", "3", true), calc(4, "10", "3", true)},
			wantOK:    true,
			wantOffer: 4,
			wantFinal: d("7"),
		},
		{
			name:      "unapplied larger discount ignored",
			calcs:     []Calculation{calc(1, "10", "9", false), calc(2, "10", "1", true)},
			wantOK:    true,
			wantOffer: 2,
			wantFinal: d("9"),
		},
		{
			name:      "final price floored at one cent",
			calcs:     []Calculation{calc(1, "4", "4", true)},
			wantOK:    true,
			wantOffer: 1,
			wantFinal: d("0.01"),
		},
		{
			name: "other product ignored",
			calcs: func() []Calculation {
				c := calc(1, "10", "5", true)
				c.ProductID = 11
				return []Calculation{c}
			}(),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := SelectBest(10, tt.calcs)
			require.Equal(t, tt.wantOK, ok)
			if !ok {
				return
			}
			assert.Equal(t, tt.wantOffer, got.OfferID)
			assert.True(t, tt.wantFinal.Equal(got.FinalPrice), "expected %s, got %s", tt.wantFinal, got.FinalPrice)
			assert.True(t, got.OriginalPrice.Sub(got.CalculatedDiscount).Equal(got.FinalPrice))
		})
	}
}

func TestSelectBest_PriceFloor(t *testing.T) {
	prices := []string{"0.01", "0.50", "4.00", "10.00", "123.45"}
	for _, price := range prices {
		for _, o := range []Offer{
			activeOffer(1, 10, DiscountPercentage, "100"),
			activeOffer(2, 10, DiscountPercentage, "99.9"),
			activeOffer(3, 10, DiscountFixed, "1000"),
		} {
			e, _ := newTestEvaluator(o)
			calcs, err := e.Evaluate(context.Background(), 1, []Line{{ProductID: 10, Quantity: 1, UnitPrice: d(price)}}, d(price))
			require.NoError(t, err)

			best, ok := SelectBest(10, calcs)
			require.True(t, ok)
			assert.False(t, best.FinalPrice.IsNegative())
			assert.True(t, best.FinalPrice.GreaterThanOrEqual(decimal.Min(MinUnitPrice, d(price))),
				"offer %d price %s final %s", o.ID, price, best.FinalPrice)
		}
	}
}

func TestWithOffers_Price(t *testing.T) {
	t.Run("twenty percent off ten dollars", func(t *testing.T) {
		e, _ := newTestEvaluator(activeOffer(1, 10, DiscountPercentage, "20"))
		p, err := WithOffers(e).Price(context.Background(), 1,
			[]Line{{ProductID: 10, Quantity: 1, UnitPrice: d("10.00")}}, d("10.00"))
		require.NoError(t, err)
		require.Len(t, p.Lines, 1)
		assert.True(t, d("8.00").Equal(p.Lines[0].FinalUnitPrice))
		require.NotNil(t, p.Lines[0].Applied)
		assert.Equal(t, []int64{1}, p.AppliedOfferIDs())
	})

	t.Run("fixed three beats fifty percent of four", func(t *testing.T) {
		e, _ := newTestEvaluator(
			activeOffer(1, 10, DiscountPercentage, "50"),
			activeOffer(2, 10, DiscountFixed, "3"),
		)
		p, err := WithOffers(e).Price(context.Background(), 1,
			[]Line{{ProductID: 10, Quantity: 1, UnitPrice: d("4.00")}}, d("4.00"))
		require.NoError(t, err)
		assert.True(t, d("1.00").Equal(p.Lines[0].FinalUnitPrice))
		assert.Equal(t, int64(2), p.Lines[0].Applied.OfferID)
		assert.Len(t, p.Calculations, 2)
	})

	t.Run("selection is scoped to each line", func(t *testing.T) {
		o := activeOffer(1, 10, DiscountFixed, "2")
		o.MinimumQuantity = 3
		e, _ := newTestEvaluator(o)
		p, err := WithOffers(e).Price(context.Background(), 1, []Line{
			{ProductID: 10, Quantity: 1, UnitPrice: d("10.00")},
			{ProductID: 10, Quantity: 3, UnitPrice: d("10.00")},
		}, d("40.00"))
		require.NoError(t, err)
		assert.Nil(t, p.Lines[0].Applied)
		assert.True(t, d("10.00").Equal(p.Lines[0].FinalUnitPrice))
		require.NotNil(t, p.Lines[1].Applied)
		assert.True(t, d("8.00").Equal(p.Lines[1].FinalUnitPrice))
		assert.Equal(t, []int64{1}, p.AppliedOfferIDs())
	})

	t.Run("evaluator failure is returned", func(t *testing.T) {
		e := NewEvaluator(&mockCatalog{err: errors.New("db down")})
		_, err := WithOffers(e).Price(context.Background(), 1,
			[]Line{{ProductID: 10, Quantity: 1, UnitPrice: d("10.00")}}, d("10.00"))
		require.Error(t, err)
	})
}

func TestFlatPrice_Price(t *testing.T) {
	p, err := FlatPrice().Price(context.Background(), 1, []Line{
		{ProductID: 10, Quantity: 2, UnitPrice: d("10.00")},
		{ProductID: 11, Quantity: 1, UnitPrice: d("3.50")},
	}, d("23.50"))
	require.NoError(t, err)
	require.Len(t, p.Lines, 2)
	assert.True(t, d("10.00").Equal(p.Lines[0].FinalUnitPrice))
	assert.True(t, d("3.50").Equal(p.Lines[1].FinalUnitPrice))
	assert.Empty(t, p.AppliedOfferIDs())
	assert.Empty(t, p.Calculations)
}
