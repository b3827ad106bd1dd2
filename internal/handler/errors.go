package handler

import (
	"net/http"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/xenking/food-delivery-orders/internal/domain/fault"
)

// statusOf maps a service error to an HTTP status code.
func statusOf(err error) int {
	switch {
	case errors.Is(err, errMalformed):
		return http.StatusBadRequest
	case errors.Is(err, fault.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, fault.ErrUnauthorized):
		return http.StatusForbidden
	case errors.Is(err, fault.ErrInvalidState):
		return http.StatusConflict
	case errors.Is(err, fault.ErrValidation):
		return http.StatusUnprocessableEntity
	case errors.Is(err, fault.ErrPersistence):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// writeError writes err as a JSON error body. Server-side failures are
// logged and answered with a generic message.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	code := statusOf(err)
	message := err.Error()

	switch code {
	case http.StatusServiceUnavailable:
		zctx.From(r.Context()).Error("Storage failure", zap.Error(err))
		message = "service temporarily unavailable"
	case http.StatusInternalServerError:
		zctx.From(r.Context()).Error("Request failed", zap.Error(err))
		message = http.StatusText(code)
	}

	writeStatus(w, code, message)
}
