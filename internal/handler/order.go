package handler

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-faster/jx"

	"github.com/xenking/food-delivery-orders/internal/domain/auth"
	"github.com/xenking/food-delivery-orders/internal/domain/fault"
	"github.com/xenking/food-delivery-orders/internal/domain/order"
)

func (h *Handler) createOrder(w http.ResponseWriter, r *http.Request) {
	actor, err := actorFrom(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if actor.Role != auth.RoleCustomer {
		writeError(w, r, fmt.Errorf("%w: only customers can place orders", fault.ErrUnauthorized))
		return
	}

	body, err := readBody(w, r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	in, err := decodeCreateOrder(body)
	if err != nil {
		writeError(w, r, err)
		return
	}

	result, err := h.orders.CreateOrder(r.Context(), order.CreateOrderRequest{
		CustomerID:        actor.UserID,
		RestaurantID:      in.RestaurantID,
		DeliveryAddressID: in.DeliveryAddressID,
		Items:             toItemRequests(in.Items),
		PaymentMethod:     order.PaymentMethod(in.PaymentMethod),
		Notes:             in.Notes,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}

	w.Header().Set("Location", "/api/orders/"+result.Order.ID)
	writeJSON(w, http.StatusCreated, func(e *jx.Encoder) {
		encodeOrder(e, result.Order, result.Restaurant.EstimatedDeliveryMinutes)
	})
}

func (h *Handler) getOrder(w http.ResponseWriter, r *http.Request) {
	actor, err := actorFrom(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	o, err := h.orders.GetOrder(r.Context(), orderID(r), actor)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) {
		encodeOrder(e, o, 0)
	})
}

func (h *Handler) orderHistory(w http.ResponseWriter, r *http.Request) {
	actor, err := actorFrom(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	entries, err := h.orders.History(r.Context(), orderID(r), actor)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) {
		encodeHistory(e, entries)
	})
}

func (h *Handler) updateStatus(w http.ResponseWriter, r *http.Request) {
	actor, err := actorFrom(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	body, err := readBody(w, r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	status, err := decodeStatus(body)
	if err != nil {
		writeError(w, r, err)
		return
	}

	o, err := h.orders.UpdateStatus(r.Context(), order.UpdateStatusRequest{
		OrderID: orderID(r),
		Actor:   actor,
		Status:  status,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) {
		encodeOrder(e, o, 0)
	})
}

func (h *Handler) quote(w http.ResponseWriter, r *http.Request) {
	if _, err := actorFrom(r); err != nil {
		writeError(w, r, err)
		return
	}

	restaurantID, err := strconv.ParseInt(chi.URLParam(r, "restaurantID"), 10, 64)
	if err != nil || restaurantID <= 0 {
		writeError(w, r, fmt.Errorf("restaurant %q: %w", chi.URLParam(r, "restaurantID"), fault.ErrNotFound))
		return
	}

	body, err := readBody(w, r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	items, err := decodeQuote(body)
	if err != nil {
		writeError(w, r, err)
		return
	}

	q, err := h.orders.Quote(r.Context(), order.QuoteRequest{
		RestaurantID: restaurantID,
		Items:        toItemRequests(items),
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) {
		encodeQuote(e, q)
	})
}

func orderID(r *http.Request) string {
	return strings.TrimSpace(chi.URLParam(r, "orderID"))
}
