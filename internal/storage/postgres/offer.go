package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/food-delivery-orders/internal/domain/offer"
)

var listActiveOffersSQL = `SELECT o.id, o.restaurant_id, o.product_id, o.discount_type, o.discount_value,
		o.minimum_order_amount, o.minimum_quantity, o.start_date, o.end_date,
		o.usage_limit, o.usage_count, o.status, o.description, o.lifecycle
	FROM offers o
	WHERE o.restaurant_id = $1 AND o.status = 'active' AND ` + active("o") + `
	ORDER BY o.id`

const (
	// The limit check makes the increment a no-op once the offer is used up.
	incrementUsageSQL = `UPDATE offers SET usage_count = usage_count + 1
		WHERE id = $1 AND (usage_limit = 0 OR usage_count < usage_limit)`

	upsertOfferSQL = `INSERT INTO offers (restaurant_id, product_id, discount_type, discount_value,
			minimum_order_amount, minimum_quantity, start_date, end_date, usage_limit, status, description, lifecycle)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (restaurant_id, product_id, discount_type, discount_value, start_date, end_date)
		DO UPDATE SET minimum_order_amount = $5, minimum_quantity = $6, usage_limit = $9,
			status = $10, description = $11, lifecycle = $12
		RETURNING id`
)

var _ offer.Store = (*OfferRepository)(nil)

// OfferRepository implements offer.Store backed by PostgreSQL.
type OfferRepository struct {
	pool *pgxpool.Pool
}

// NewOfferRepository returns an OfferRepository that uses the given pool.
func NewOfferRepository(pool *pgxpool.Pool) *OfferRepository {
	return &OfferRepository{pool: pool}
}

// ActiveOffers returns the active offers of a restaurant ordered by ID.
func (r *OfferRepository) ActiveOffers(ctx context.Context, restaurantID int64) ([]offer.Offer, error) {
	rows, err := r.pool.Query(ctx, listActiveOffersSQL, restaurantID)
	if err != nil {
		return nil, fmt.Errorf("listing offers of restaurant %d: %w", restaurantID, err)
	}
	offers, err := pgx.CollectRows(rows, scanOffer)
	if err != nil {
		return nil, fmt.Errorf("listing offers of restaurant %d: %w", restaurantID, err)
	}
	return offers, nil
}

// IncrementUsage bumps the usage counter of an offer. It reports false when
// the offer does not exist or has reached its limit.
func (r *OfferRepository) IncrementUsage(ctx context.Context, offerID int64) (bool, error) {
	tag, err := r.pool.Exec(ctx, incrementUsageSQL, offerID)
	if err != nil {
		return false, fmt.Errorf("incrementing usage of offer %d: %w", offerID, err)
	}
	return tag.RowsAffected() == 1, nil
}

// Upsert inserts an offer or updates the mutable fields of the offer with the
// same restaurant, product, discount and validity window. It sets o.ID.
func (r *OfferRepository) Upsert(ctx context.Context, o *offer.Offer) error {
	if err := requireLifecycle("offer", o.State); err != nil {
		return err
	}
	if err := requireUTC("offer start date", o.StartDate); err != nil {
		return err
	}
	if err := requireUTC("offer end date", o.EndDate); err != nil {
		return err
	}

	if err := r.pool.QueryRow(ctx, upsertOfferSQL,
		o.RestaurantID, o.ProductID, string(o.DiscountType), o.DiscountValue.Round(2),
		o.MinimumOrderAmount.Round(2), o.MinimumQuantity, o.StartDate, o.EndDate,
		o.UsageLimit, string(o.Status), o.Description, string(o.State),
	).Scan(&o.ID); err != nil {
		return fmt.Errorf("upserting offer for product %d: %w", o.ProductID, err)
	}
	return nil
}

func scanOffer(row pgx.CollectableRow) (offer.Offer, error) {
	var (
		o          offer.Offer
		start, end time.Time
	)
	err := row.Scan(
		&o.ID, &o.RestaurantID, &o.ProductID, &o.DiscountType, &o.DiscountValue,
		&o.MinimumOrderAmount, &o.MinimumQuantity, &start, &end,
		&o.UsageLimit, &o.UsageCount, &o.Status, &o.Description, &o.State,
	)
	o.StartDate = start.UTC()
	o.EndDate = end.UTC()
	return o, err
}
