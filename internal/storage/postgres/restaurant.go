package postgres

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/food-delivery-orders/internal/domain/fault"
	"github.com/xenking/food-delivery-orders/internal/domain/restaurant"
)

var getRestaurantSQL = `SELECT r.id, r.name, r.is_open, r.delivery_fee, r.estimated_delivery_minutes, r.lifecycle
	FROM restaurants r WHERE r.id = $1 AND ` + active("r")

const createRestaurantSQL = `INSERT INTO restaurants (name, is_open, delivery_fee, estimated_delivery_minutes, lifecycle)
	VALUES ($1, $2, $3, $4, $5) RETURNING id`

var _ restaurant.Repository = (*RestaurantRepository)(nil)

// RestaurantRepository implements restaurant.Repository backed by PostgreSQL.
type RestaurantRepository struct {
	pool *pgxpool.Pool
}

// NewRestaurantRepository returns a RestaurantRepository that uses the given pool.
func NewRestaurantRepository(pool *pgxpool.Pool) *RestaurantRepository {
	return &RestaurantRepository{pool: pool}
}

// GetByID returns an active restaurant.
func (r *RestaurantRepository) GetByID(ctx context.Context, id int64) (*restaurant.Restaurant, error) {
	rows, err := r.pool.Query(ctx, getRestaurantSQL, id)
	if err != nil {
		return nil, fmt.Errorf("getting restaurant %d: %w", id, err)
	}

	rest, err := pgx.CollectExactlyOneRow(rows, func(row pgx.CollectableRow) (restaurant.Restaurant, error) {
		var rs restaurant.Restaurant
		err := row.Scan(&rs.ID, &rs.Name, &rs.IsOpen, &rs.DeliveryFee, &rs.EstimatedDeliveryMinutes, &rs.State)
		return rs, err
	})
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("restaurant %d: %w", id, fault.ErrNotFound)
		}
		return nil, fmt.Errorf("getting restaurant %d: %w", id, err)
	}
	return &rest, nil
}

// Create inserts a restaurant and sets its ID.
func (r *RestaurantRepository) Create(ctx context.Context, rs *restaurant.Restaurant) error {
	if err := requireLifecycle("restaurant", rs.State); err != nil {
		return err
	}
	if err := r.pool.QueryRow(ctx, createRestaurantSQL,
		rs.Name, rs.IsOpen, rs.DeliveryFee.Round(2), rs.EstimatedDeliveryMinutes, string(rs.State),
	).Scan(&rs.ID); err != nil {
		return fmt.Errorf("creating restaurant %q: %w", rs.Name, err)
	}
	return nil
}
