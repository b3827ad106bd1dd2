package order

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/xenking/food-delivery-orders/internal/domain/auth"
)

// Status is the lifecycle stage of an order.
type Status string

const (
	StatusPending        Status = "pending"
	StatusAccepted       Status = "accepted"
	StatusPreparing      Status = "preparing"
	StatusReadyForPickup Status = "ready_for_pickup"
	StatusOnTheWay       Status = "on_the_way"
	StatusDelivered      Status = "delivered"
	StatusCancelled      Status = "cancelled"
)

// progression lists the non-cancelled statuses in delivery order.
var progression = []Status{
	StatusPending,
	StatusAccepted,
	StatusPreparing,
	StatusReadyForPickup,
	StatusOnTheWay,
	StatusDelivered,
}

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	return s == StatusCancelled || s.rank() >= 0
}

// IsTerminal reports whether no further transitions are possible from s.
func (s Status) IsTerminal() bool {
	return s == StatusDelivered || s == StatusCancelled
}

// rank is the position of s in the delivery progression, or -1.
func (s Status) rank() int {
	for i, p := range progression {
		if p == s {
			return i
		}
	}
	return -1
}

// PaymentMethod is how the customer pays for the order.
type PaymentMethod string

const (
	PaymentCard   PaymentMethod = "card"
	PaymentCash   PaymentMethod = "cash"
	PaymentWallet PaymentMethod = "wallet"
)

// Valid reports whether m is a supported payment method.
func (m PaymentMethod) Valid() bool {
	switch m {
	case PaymentCard, PaymentCash, PaymentWallet:
		return true
	}
	return false
}

// PaymentStatus is the settlement state of a payment record.
type PaymentStatus string

const (
	PaymentCompleted PaymentStatus = "completed"
	PaymentPending   PaymentStatus = "pending"
)

// Order is the root aggregate of a placed order.
//
// Total always equals Subtotal + DeliveryFee and Subtotal always equals the
// sum of item subtotals.
type Order struct {
	ID                string
	CustomerID        int64
	RestaurantID      int64
	DeliveryAddressID int64
	Subtotal          decimal.Decimal
	DeliveryFee       decimal.Decimal
	Total             decimal.Decimal
	Status            Status
	DeliveryPersonID  *int64
	Notes             string
	Items             []Item
	Payment           *Payment
	AppliedOffers     []int64
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// Item is a single order line. UnitPrice is the charged, post-discount
// price and Subtotal is UnitPrice * Quantity.
type Item struct {
	ProductID         int64
	Quantity          int
	OriginalUnitPrice decimal.Decimal
	UnitPrice         decimal.Decimal
	Subtotal          decimal.Decimal
	OfferID           *int64
}

// Payment records how an order is paid. No gateway is contacted.
type Payment struct {
	ID             string
	Method         PaymentMethod
	Status         PaymentStatus
	TransactionRef string
	Amount         decimal.Decimal
	CreatedAt      time.Time
}

// StatusChange is a single persisted status transition.
type StatusChange struct {
	OrderID          string
	From             Status
	To               Status
	DeliveryPersonID *int64
	ActorID          int64
	ActorRole        auth.Role
	At               time.Time
}

// HistoryEntry is one row of an order's status history.
type HistoryEntry struct {
	From      Status
	To        Status
	ActorID   int64
	ActorRole auth.Role
	At        time.Time
}

// Repository persists orders.
//
// Create stores the order, its items, its payment and the initial history
// entry atomically. UpdateStatus applies the change only if the order is
// still in change.From and returns an error wrapping fault.ErrInvalidState
// otherwise.
type Repository interface {
	Create(ctx context.Context, o *Order) error
	GetByID(ctx context.Context, id string) (*Order, error)
	UpdateStatus(ctx context.Context, change StatusChange) error
	History(ctx context.Context, id string) ([]HistoryEntry, error)
}
