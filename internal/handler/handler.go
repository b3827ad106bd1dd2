// Package handler exposes the order service over HTTP.
package handler

import (
	"context"

	"github.com/go-chi/chi/v5"

	"github.com/xenking/food-delivery-orders/internal/domain/auth"
	"github.com/xenking/food-delivery-orders/internal/domain/order"
)

// OrderService is the subset of order.Service used by the handlers.
type OrderService interface {
	CreateOrder(ctx context.Context, req order.CreateOrderRequest) (*order.Result, error)
	Quote(ctx context.Context, req order.QuoteRequest) (*order.Quote, error)
	GetOrder(ctx context.Context, id string, actor auth.Actor) (*order.Order, error)
	History(ctx context.Context, id string, actor auth.Actor) ([]order.HistoryEntry, error)
	UpdateStatus(ctx context.Context, req order.UpdateStatusRequest) (*order.Order, error)
}

var _ OrderService = (*order.Service)(nil)

// maxBodyBytes bounds request bodies read by the handlers.
const maxBodyBytes = 1 << 20

// Handler serves the order API.
type Handler struct {
	orders OrderService
}

// NewHandler constructs a Handler delegating to the given order service.
func NewHandler(orders OrderService) *Handler {
	return &Handler{orders: orders}
}

// Routes registers the order API on r. All routes require an authenticated
// actor in the request context.
func (h *Handler) Routes(r chi.Router) {
	r.Route("/orders", func(r chi.Router) {
		r.Post("/", h.createOrder)
		r.Route("/{orderID}", func(r chi.Router) {
			r.Get("/", h.getOrder)
			r.Get("/history", h.orderHistory)
			r.Patch("/status", h.updateStatus)
		})
	})
	r.Post("/restaurants/{restaurantID}/quote", h.quote)
}
