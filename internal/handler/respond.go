package handler

import (
	"encoding/json"
	"net/http"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/dripmart/storefront/internal/domain/checkout"
	"github.com/dripmart/storefront/internal/domain/coupon"
	"github.com/dripmart/storefront/internal/domain/order"
	"github.com/dripmart/storefront/internal/domain/product"
)

// errorBody is the stable error envelope: every failure carries a message
// field the frontend can render as-is.
type errorBody struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, errorBody{Code: status, Message: message})
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return false
	}
	return true
}

// writeDomainError maps domain errors onto the HTTP taxonomy: validation
// failures 400, missing entities 404, coupon eligibility failures 422 with
// the verbatim reason, gateway status mismatches 402, stock conflicts 409.
// Anything else is a 500; the internal detail leaks only in debug mode.
func (h *Handler) writeDomainError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, checkout.ErrInvalidRequest):
		writeError(w, http.StatusBadRequest, checkout.ErrInvalidRequest.Error())
	case errors.Is(err, checkout.ErrAmountTooSmall):
		writeError(w, http.StatusBadRequest, checkout.ErrAmountTooSmall.Error())

	case errors.Is(err, coupon.ErrNotFound):
		writeError(w, http.StatusNotFound, "coupon not found")
	case errors.Is(err, product.ErrNotFound):
		writeError(w, http.StatusNotFound, "product not found")
	case errors.Is(err, order.ErrNotFound):
		writeError(w, http.StatusNotFound, "order not found")

	case coupon.IsInvalid(err):
		writeError(w, http.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, coupon.ErrRedemptionConflict):
		writeError(w, http.StatusConflict, "coupon is no longer available")

	case errors.Is(err, product.ErrSizeNotAvailable):
		writeError(w, http.StatusConflict, product.ErrSizeNotAvailable.Error())

	case errors.Is(err, order.ErrInvalidTransition):
		writeError(w, http.StatusConflict, err.Error())

	default:
		var pnsErr *checkout.PaymentNotSucceededError
		if errors.As(err, &pnsErr) {
			writeError(w, http.StatusPaymentRequired, pnsErr.Error())
			return
		}
		var stockErr *product.InsufficientStockError
		if errors.As(err, &stockErr) {
			writeError(w, http.StatusConflict, stockErr.Error())
			return
		}

		zctx.From(r.Context()).Error("request failed", zap.Error(err))
		msg := "internal server error"
		if h.debug {
			msg = err.Error()
		}
		writeError(w, http.StatusInternalServerError, msg)
	}
}
