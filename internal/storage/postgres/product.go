package postgres

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/food-delivery-orders/internal/domain/fault"
	"github.com/xenking/food-delivery-orders/internal/domain/product"
)

var (
	getProductSQL = `SELECT p.id, p.name, p.base_price, p.available, p.lifecycle
		FROM products p WHERE p.id = $1 AND ` + active("p")

	getOverrideSQL = `SELECT rp.restaurant_id, rp.product_id, rp.price, rp.available, rp.stock, rp.lifecycle
		FROM restaurant_products rp
		WHERE rp.restaurant_id = $1 AND rp.product_id = $2 AND ` + active("rp")
)

const (
	createProductSQL = `INSERT INTO products (name, base_price, available, lifecycle)
		VALUES ($1, $2, $3, $4) RETURNING id`

	upsertOverrideSQL = `INSERT INTO restaurant_products (restaurant_id, product_id, price, available, stock, lifecycle)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (restaurant_id, product_id)
		DO UPDATE SET price = $3, available = $4, stock = $5, lifecycle = $6`
)

var _ product.Repository = (*ProductRepository)(nil)

// ProductRepository implements product.Repository backed by PostgreSQL.
type ProductRepository struct {
	pool *pgxpool.Pool
}

// NewProductRepository returns a ProductRepository that uses the given pool.
func NewProductRepository(pool *pgxpool.Pool) *ProductRepository {
	return &ProductRepository{pool: pool}
}

// GetByID returns an active catalog product.
func (r *ProductRepository) GetByID(ctx context.Context, id int64) (*product.Product, error) {
	rows, err := r.pool.Query(ctx, getProductSQL, id)
	if err != nil {
		return nil, fmt.Errorf("getting product %d: %w", id, err)
	}

	p, err := pgx.CollectExactlyOneRow(rows, scanProduct)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("product %d: %w", id, fault.ErrNotFound)
		}
		return nil, fmt.Errorf("getting product %d: %w", id, err)
	}
	return &p, nil
}

// GetOverride returns the active restaurant-specific override of a product.
func (r *ProductRepository) GetOverride(ctx context.Context, restaurantID, productID int64) (*product.RestaurantProduct, error) {
	rows, err := r.pool.Query(ctx, getOverrideSQL, restaurantID, productID)
	if err != nil {
		return nil, fmt.Errorf("getting override %d/%d: %w", restaurantID, productID, err)
	}

	ov, err := pgx.CollectExactlyOneRow(rows, func(row pgx.CollectableRow) (product.RestaurantProduct, error) {
		var rp product.RestaurantProduct
		err := row.Scan(&rp.RestaurantID, &rp.ProductID, &rp.Price, &rp.Available, &rp.Stock, &rp.State)
		return rp, err
	})
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("override %d/%d: %w", restaurantID, productID, fault.ErrNotFound)
		}
		return nil, fmt.Errorf("getting override %d/%d: %w", restaurantID, productID, err)
	}
	return &ov, nil
}

// Create inserts a catalog product and sets its ID.
func (r *ProductRepository) Create(ctx context.Context, p *product.Product) error {
	if err := requireLifecycle("product", p.State); err != nil {
		return err
	}
	if err := r.pool.QueryRow(ctx, createProductSQL,
		p.Name, p.BasePrice.Round(2), p.Available, string(p.State),
	).Scan(&p.ID); err != nil {
		return fmt.Errorf("creating product %q: %w", p.Name, err)
	}
	return nil
}

// UpsertOverride creates or replaces a restaurant override.
func (r *ProductRepository) UpsertOverride(ctx context.Context, rp *product.RestaurantProduct) error {
	if err := requireLifecycle("override", rp.State); err != nil {
		return err
	}
	if _, err := r.pool.Exec(ctx, upsertOverrideSQL,
		rp.RestaurantID, rp.ProductID, rp.Price.Round(2), rp.Available, rp.Stock, string(rp.State),
	); err != nil {
		return fmt.Errorf("upserting override %d/%d: %w", rp.RestaurantID, rp.ProductID, err)
	}
	return nil
}

func scanProduct(row pgx.CollectableRow) (product.Product, error) {
	var p product.Product
	err := row.Scan(&p.ID, &p.Name, &p.BasePrice, &p.Available, &p.State)
	return p, err
}
