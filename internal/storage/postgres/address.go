package postgres

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/food-delivery-orders/internal/domain/address"
	"github.com/xenking/food-delivery-orders/internal/domain/fault"
)

const (
	getAddressSQL    = `SELECT id, owner_user_id, line1, city FROM addresses WHERE id = $1`
	createAddressSQL = `INSERT INTO addresses (owner_user_id, line1, city) VALUES ($1, $2, $3) RETURNING id`
)

var _ address.Repository = (*AddressRepository)(nil)

// AddressRepository implements address.Repository backed by PostgreSQL.
type AddressRepository struct {
	pool *pgxpool.Pool
}

// NewAddressRepository returns an AddressRepository that uses the given pool.
func NewAddressRepository(pool *pgxpool.Pool) *AddressRepository {
	return &AddressRepository{pool: pool}
}

// GetByID returns a delivery address.
func (r *AddressRepository) GetByID(ctx context.Context, id int64) (*address.Address, error) {
	var a address.Address
	err := r.pool.QueryRow(ctx, getAddressSQL, id).Scan(&a.ID, &a.OwnerUserID, &a.Line1, &a.City)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("address %d: %w", id, fault.ErrNotFound)
		}
		return nil, fmt.Errorf("getting address %d: %w", id, err)
	}
	return &a, nil
}

// Create inserts an address and sets its ID.
func (r *AddressRepository) Create(ctx context.Context, a *address.Address) error {
	if err := r.pool.QueryRow(ctx, createAddressSQL, a.OwnerUserID, a.Line1, a.City).Scan(&a.ID); err != nil {
		return fmt.Errorf("creating address for user %d: %w", a.OwnerUserID, err)
	}
	return nil
}
