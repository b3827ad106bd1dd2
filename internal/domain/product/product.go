package product

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/xenking/food-delivery-orders/internal/domain/lifecycle"
)

// Product is a catalog item shared by all restaurants.
type Product struct {
	ID        int64
	Name      string
	BasePrice decimal.Decimal
	Available bool
	State     lifecycle.State
}

// RestaurantProduct overrides price and availability of a catalog product
// for one restaurant.
type RestaurantProduct struct {
	RestaurantID int64
	ProductID    int64
	Price        decimal.Decimal
	Available    bool
	Stock        int
	State        lifecycle.State
}

// Repository provides catalog lookups. Both methods return an error wrapping
// fault.ErrNotFound when the row is missing or archived.
type Repository interface {
	GetByID(ctx context.Context, id int64) (*Product, error)
	GetOverride(ctx context.Context, restaurantID, productID int64) (*RestaurantProduct, error)
}
