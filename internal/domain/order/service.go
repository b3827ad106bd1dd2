package order

import (
	"context"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/google/uuid"
	"github.com/microcosm-cc/bluemonday"
	"github.com/oklog/ulid/v2"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/xenking/food-delivery-orders/internal/domain/address"
	"github.com/xenking/food-delivery-orders/internal/domain/auth"
	"github.com/xenking/food-delivery-orders/internal/domain/fault"
	"github.com/xenking/food-delivery-orders/internal/domain/offer"
	"github.com/xenking/food-delivery-orders/internal/domain/restaurant"
)

const (
	// MaxNotesLength is the maximum length of sanitized order notes, in runes.
	MaxNotesLength = 500
	// MaxItemQuantity is the largest quantity accepted for a single line.
	MaxItemQuantity = 1000
)

// maxAmount is the largest value a NUMERIC(12,2) money column holds.
var maxAmount = decimal.RequireFromString("9999999999.99")

// Validation errors for order requests.
var (
	ErrEmptyItems           = fmt.Errorf("%w: items required", fault.ErrValidation)
	ErrInvalidPaymentMethod = fmt.Errorf("%w: unsupported payment method", fault.ErrValidation)
	ErrNotesTooLong         = fmt.Errorf("%w: notes exceed %d characters", fault.ErrValidation, MaxNotesLength)
	ErrAmountTooLarge       = fmt.Errorf("%w: order total exceeds %s", fault.ErrValidation, maxAmount)
)

// ProductNotFoundError indicates a requested product cannot be priced at the
// restaurant.
type ProductNotFoundError struct {
	ProductID int64
}

func (e *ProductNotFoundError) Error() string {
	return fmt.Sprintf("product %d not available", e.ProductID)
}

func (e *ProductNotFoundError) Unwrap() error { return fault.ErrNotFound }

// InvalidQuantityError indicates a line item quantity outside
// [1, MaxItemQuantity].
type InvalidQuantityError struct {
	ProductID int64
}

func (e *InvalidQuantityError) Error() string {
	return fmt.Sprintf("quantity must be between 1 and %d for product %d", MaxItemQuantity, e.ProductID)
}

func (e *InvalidQuantityError) Unwrap() error { return fault.ErrValidation }

// PriceResolver resolves the effective unit price of a product.
type PriceResolver interface {
	ResolveUnitPrice(ctx context.Context, restaurantID, productID int64) (decimal.Decimal, bool, error)
}

// ItemRequest is a requested order line.
type ItemRequest struct {
	ProductID int64
	Quantity  int
}

// CreateOrderRequest holds the input for placing an order.
type CreateOrderRequest struct {
	CustomerID        int64
	RestaurantID      int64
	DeliveryAddressID int64
	Items             []ItemRequest
	PaymentMethod     PaymentMethod
	Notes             string
}

// Result is a fully hydrated order together with its restaurant.
type Result struct {
	Order      *Order
	Restaurant *restaurant.Restaurant
}

// QuoteRequest holds the input for a pricing preview.
type QuoteRequest struct {
	RestaurantID int64
	Items        []ItemRequest
}

// Quote is a pricing preview. It is never persisted.
type Quote struct {
	Restaurant    *restaurant.Restaurant
	Totals        Totals
	Calculations  []offer.Calculation
	AppliedOffers []int64
}

// UpdateStatusRequest holds the input for a status transition.
type UpdateStatusRequest struct {
	OrderID string
	Actor   auth.Actor
	Status  Status
}

// Dependencies are the collaborators of a Service.
type Dependencies struct {
	Addresses   address.Repository
	Restaurants restaurant.Repository
	Prices      PriceResolver
	Pricing     offer.Strategy
	Usage       offer.UsageCounter
	Orders      Repository
}

// Service coordinates order creation and status changes.
type Service struct {
	addresses   address.Repository
	restaurants restaurant.Repository
	prices      PriceResolver
	pricing     offer.Strategy
	usage       offer.UsageCounter
	orders      Repository

	notes  *bluemonday.Policy
	now    func() time.Time
	newID  func() string
	newRef func() string

	tracer        trace.Tracer
	created       metric.Int64Counter
	degraded      metric.Int64Counter
	usageFailures metric.Int64Counter
	transitions   metric.Int64Counter
}

// NewService creates an order Service.
func NewService(deps Dependencies, tp trace.TracerProvider, mp metric.MeterProvider) (*Service, error) {
	meter := mp.Meter("orders")

	s := &Service{
		addresses:   deps.Addresses,
		restaurants: deps.Restaurants,
		prices:      deps.Prices,
		pricing:     deps.Pricing,
		usage:       deps.Usage,
		orders:      deps.Orders,
		notes:       bluemonday.StrictPolicy(),
		now:         time.Now,
		newID:       func() string { return uuid.New().String() },
		newRef:      func() string { return "txn_" + ulid.Make().String() },
		tracer:      tp.Tracer("orders"),
	}

	var err error
	if s.created, err = meter.Int64Counter("orders.created",
		metric.WithDescription("Orders committed"),
	); err != nil {
		return nil, errors.Wrap(err, "orders.created")
	}
	if s.degraded, err = meter.Int64Counter("orders.pricing.degraded",
		metric.WithDescription("Orders priced at full price because offer evaluation failed"),
	); err != nil {
		return nil, errors.Wrap(err, "orders.pricing.degraded")
	}
	if s.usageFailures, err = meter.Int64Counter("orders.offer_usage.failures",
		metric.WithDescription("Offer usage increments that failed after commit"),
	); err != nil {
		return nil, errors.Wrap(err, "orders.offer_usage.failures")
	}
	if s.transitions, err = meter.Int64Counter("orders.status.transitions",
		metric.WithDescription("Order status transitions"),
	); err != nil {
		return nil, errors.Wrap(err, "orders.status.transitions")
	}
	return s, nil
}

// CreateOrder validates the request, prices every line with the configured
// strategy, persists the order atomically and then records offer usage.
func (s *Service) CreateOrder(ctx context.Context, req CreateOrderRequest) (_ *Result, rerr error) {
	ctx, span := s.tracer.Start(ctx, "order.Create",
		trace.WithAttributes(
			attribute.Int64("restaurant.id", req.RestaurantID),
			attribute.Int("order.lines", len(req.Items)),
		),
	)
	defer func() {
		if rerr != nil {
			span.RecordError(rerr)
			span.SetStatus(codes.Error, rerr.Error())
		}
		span.End()
	}()

	if err := validateItems(req.Items); err != nil {
		return nil, err
	}
	if !req.PaymentMethod.Valid() {
		return nil, ErrInvalidPaymentMethod
	}
	notes, err := s.sanitizeNotes(req.Notes)
	if err != nil {
		return nil, err
	}

	addr, err := s.addresses.GetByID(ctx, req.DeliveryAddressID)
	if err != nil {
		return nil, errors.Wrap(err, "get delivery address")
	}
	if addr.OwnerUserID != req.CustomerID {
		return nil, fmt.Errorf("%w: delivery address belongs to another user", fault.ErrUnauthorized)
	}

	rest, err := s.openRestaurant(ctx, req.RestaurantID)
	if err != nil {
		return nil, err
	}

	pricing, totals, err := s.price(ctx, rest, req.Items)
	if err != nil {
		return nil, err
	}

	now := s.now().UTC()
	o := &Order{
		ID:                s.newID(),
		CustomerID:        req.CustomerID,
		RestaurantID:      rest.ID,
		DeliveryAddressID: addr.ID,
		Subtotal:          totals.Subtotal,
		DeliveryFee:       totals.DeliveryFee,
		Total:             totals.Total,
		Status:            StatusPending,
		Notes:             notes,
		Items:             totals.Items,
		AppliedOffers:     pricing.AppliedOfferIDs(),
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	o.Payment = &Payment{
		ID:             s.newID(),
		Method:         req.PaymentMethod,
		Status:         paymentStatus(req.PaymentMethod),
		TransactionRef: s.newRef(),
		Amount:         o.Total,
		CreatedAt:      now,
	}
	span.SetAttributes(attribute.String("order.id", o.ID))

	if err := s.orders.Create(ctx, o); err != nil {
		return nil, fmt.Errorf("%w: create order: %w", fault.ErrPersistence, err)
	}
	s.created.Add(ctx, 1)

	s.recordUsage(context.WithoutCancel(ctx), o)

	return &Result{Order: o, Restaurant: rest}, nil
}

// Quote prices a basket exactly as CreateOrder would, without persisting
// anything or touching offer usage.
func (s *Service) Quote(ctx context.Context, req QuoteRequest) (*Quote, error) {
	ctx, span := s.tracer.Start(ctx, "order.Quote",
		trace.WithAttributes(attribute.Int64("restaurant.id", req.RestaurantID)),
	)
	defer span.End()

	if err := validateItems(req.Items); err != nil {
		return nil, err
	}
	rest, err := s.restaurants.GetByID(ctx, req.RestaurantID)
	if err != nil {
		return nil, errors.Wrap(err, "get restaurant")
	}

	pricing, totals, err := s.price(ctx, rest, req.Items)
	if err != nil {
		return nil, err
	}
	return &Quote{
		Restaurant:    rest,
		Totals:        totals,
		Calculations:  pricing.Calculations,
		AppliedOffers: pricing.AppliedOfferIDs(),
	}, nil
}

// GetOrder returns an order visible to the actor.
func (s *Service) GetOrder(ctx context.Context, id string, actor auth.Actor) (*Order, error) {
	o, err := s.orders.GetByID(ctx, id)
	if err != nil {
		return nil, errors.Wrap(err, "get order")
	}
	if !CanView(o, actor) {
		return nil, fmt.Errorf("%w: order %s is not visible to %s", fault.ErrUnauthorized, id, actor.Role)
	}
	return o, nil
}

// History returns the status history of an order visible to the actor.
func (s *Service) History(ctx context.Context, id string, actor auth.Actor) ([]HistoryEntry, error) {
	if _, err := s.GetOrder(ctx, id, actor); err != nil {
		return nil, err
	}
	entries, err := s.orders.History(ctx, id)
	if err != nil {
		return nil, errors.Wrap(err, "get history")
	}
	return entries, nil
}

// UpdateStatus moves an order to a new status on behalf of the actor.
// A courier moving an order on its way becomes its delivery person.
func (s *Service) UpdateStatus(ctx context.Context, req UpdateStatusRequest) (_ *Order, rerr error) {
	ctx, span := s.tracer.Start(ctx, "order.UpdateStatus",
		trace.WithAttributes(
			attribute.String("order.id", req.OrderID),
			attribute.String("order.status", string(req.Status)),
			attribute.String("actor.role", string(req.Actor.Role)),
		),
	)
	defer func() {
		if rerr != nil {
			span.RecordError(rerr)
			span.SetStatus(codes.Error, rerr.Error())
		}
		span.End()
	}()

	o, err := s.orders.GetByID(ctx, req.OrderID)
	if err != nil {
		return nil, errors.Wrap(err, "get order")
	}
	if err := Authorize(o, req.Actor, req.Status); err != nil {
		return nil, err
	}

	change := StatusChange{
		OrderID:          o.ID,
		From:             o.Status,
		To:               req.Status,
		DeliveryPersonID: o.DeliveryPersonID,
		ActorID:          req.Actor.UserID,
		ActorRole:        req.Actor.Role,
		At:               s.now().UTC(),
	}
	if req.Actor.Role == auth.RoleCourier && req.Status == StatusOnTheWay {
		courier := req.Actor.UserID
		change.DeliveryPersonID = &courier
	}

	if err := s.orders.UpdateStatus(ctx, change); err != nil {
		if errors.Is(err, fault.ErrInvalidState) || errors.Is(err, fault.ErrNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: update order status: %w", fault.ErrPersistence, err)
	}
	s.transitions.Add(ctx, 1, metric.WithAttributes(
		attribute.String("from", string(change.From)),
		attribute.String("to", string(change.To)),
	))

	o.Status = change.To
	o.DeliveryPersonID = change.DeliveryPersonID
	o.UpdatedAt = change.At
	return o, nil
}

func (s *Service) openRestaurant(ctx context.Context, id int64) (*restaurant.Restaurant, error) {
	rest, err := s.restaurants.GetByID(ctx, id)
	if err != nil {
		return nil, errors.Wrap(err, "get restaurant")
	}
	if !rest.IsOpen {
		return nil, fmt.Errorf("%w: restaurant %d is closed", fault.ErrInvalidState, id)
	}
	return rest, nil
}

// price resolves unit prices, applies the pricing strategy against the
// pre-discount subtotal and computes totals. A strategy failure degrades to
// full prices.
func (s *Service) price(ctx context.Context, rest *restaurant.Restaurant, items []ItemRequest) (*offer.Pricing, Totals, error) {
	lines := make([]offer.Line, len(items))
	for i, item := range items {
		price, found, err := s.prices.ResolveUnitPrice(ctx, rest.ID, item.ProductID)
		if err != nil {
			return nil, Totals{}, errors.Wrapf(err, "resolve price of product %d", item.ProductID)
		}
		if !found {
			return nil, Totals{}, &ProductNotFoundError{ProductID: item.ProductID}
		}
		lines[i] = offer.Line{
			ProductID: item.ProductID,
			Quantity:  item.Quantity,
			UnitPrice: price,
		}
	}

	pricing, err := s.pricing.Price(ctx, rest.ID, lines, initialSubtotal(lines))
	if err != nil {
		zctx.From(ctx).Warn("Offer evaluation failed, charging full price",
			zap.Int64("restaurant_id", rest.ID),
			zap.Error(fmt.Errorf("%w: %w", fault.ErrDegradedPricing, err)),
		)
		s.degraded.Add(ctx, 1)
		pricing = offer.FullPrice(lines)
	}

	totals := CalculateTotals(pricing.Lines, rest.DeliveryFee)
	if totals.Total.GreaterThan(maxAmount) {
		return nil, Totals{}, ErrAmountTooLarge
	}
	return pricing, totals, nil
}

// recordUsage increments usage once per distinct applied offer. Failures are
// logged and counted, never returned.
func (s *Service) recordUsage(ctx context.Context, o *Order) {
	lg := zctx.From(ctx)
	for _, id := range o.AppliedOffers {
		ok, err := s.usage.IncrementUsage(ctx, id)
		if err == nil && ok {
			continue
		}
		s.usageFailures.Add(ctx, 1)
		fields := []zap.Field{
			zap.String("order_id", o.ID),
			zap.Int64("offer_id", id),
		}
		if err != nil {
			lg.Warn("Failed to increment offer usage", append(fields, zap.Error(err))...)
			continue
		}
		lg.Warn("Offer usage limit reached before increment", fields...)
	}
}

func (s *Service) sanitizeNotes(raw string) (string, error) {
	notes := strings.TrimSpace(s.notes.Sanitize(raw))
	if utf8.RuneCountInString(notes) > MaxNotesLength {
		return "", ErrNotesTooLong
	}
	return notes, nil
}

func validateItems(items []ItemRequest) error {
	if len(items) == 0 {
		return ErrEmptyItems
	}
	for _, item := range items {
		if item.Quantity <= 0 || item.Quantity > MaxItemQuantity {
			return &InvalidQuantityError{ProductID: item.ProductID}
		}
	}
	return nil
}

func paymentStatus(m PaymentMethod) PaymentStatus {
	if m == PaymentCash {
		return PaymentPending
	}
	return PaymentCompleted
}
