package restaurant

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/xenking/food-delivery-orders/internal/domain/lifecycle"
)

// Restaurant is a venue that accepts orders.
type Restaurant struct {
	ID                       int64
	Name                     string
	IsOpen                   bool
	DeliveryFee              decimal.Decimal
	EstimatedDeliveryMinutes int
	State                    lifecycle.State
}

// Repository looks up active restaurants. GetByID returns an error wrapping
// fault.ErrNotFound when the restaurant is missing or archived.
type Repository interface {
	GetByID(ctx context.Context, id int64) (*Restaurant, error)
}
