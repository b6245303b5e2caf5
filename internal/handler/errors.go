package handler

import (
	"net/http"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/storekit/storefront/internal/domain/cart"
	"github.com/storekit/storefront/internal/domain/order"
	"github.com/storekit/storefront/internal/domain/payment"
	"github.com/storekit/storefront/internal/domain/product"
)

// errorResponse is the JSON error envelope for every API failure.
type errorResponse struct {
	Code    int    `json:"code"`
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

const (
	kindValidation        = "validation_error"
	kindNotFound          = "not_found"
	kindInsufficientStock = "insufficient_stock"
	kindUnavailable       = "product_unavailable"
	kindInvalidState      = "invalid_state"
	kindUnauthorized      = "unauthorized"
	kindForbidden         = "forbidden"
	kindInternal          = "internal"
)

func writeErrorKind(w http.ResponseWriter, status int, kind, message string) {
	writeJSON(w, status, errorResponse{Code: status, Kind: kind, Message: message})
}

// writeError maps a domain error onto the error envelope. Unknown errors are
// logged and reported as an opaque 500.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	var (
		stockErr       *cart.InsufficientStockError
		unavailableErr *cart.ProductUnavailableError
		stateErr       *order.InvalidStateError
		statusErr      *order.InvalidStatusError
	)
	// Not-found errors are 404; every other domain failure is a 400 whose
	// kind tells the client what went wrong.
	switch {
	case errors.As(err, &stockErr):
		writeErrorKind(w, http.StatusBadRequest, kindInsufficientStock, stockErr.Error())
	case errors.As(err, &unavailableErr):
		writeErrorKind(w, http.StatusBadRequest, kindUnavailable, unavailableErr.Error())
	case errors.As(err, &stateErr):
		writeErrorKind(w, http.StatusBadRequest, kindInvalidState, stateErr.Error())
	case errors.As(err, &statusErr):
		writeErrorKind(w, http.StatusBadRequest, kindValidation, statusErr.Error())

	case errors.Is(err, product.ErrNotFound),
		errors.Is(err, cart.ErrNotFound),
		errors.Is(err, cart.ErrItemNotFound),
		errors.Is(err, order.ErrNotFound):
		writeErrorKind(w, http.StatusNotFound, kindNotFound, err.Error())

	case errors.Is(err, product.ErrVariantNotFound),
		errors.Is(err, cart.ErrInvalidQuantity),
		errors.Is(err, cart.ErrInvalidOwner),
		errors.Is(err, order.ErrEmptyCart),
		errors.Is(err, order.ErrInvalidRefundAmount),
		errors.Is(err, payment.ErrUnknownMethod):
		writeErrorKind(w, http.StatusBadRequest, kindValidation, err.Error())

	default:
		zctx.From(r.Context()).Error("request failed", zap.Error(err))
		writeErrorKind(w, http.StatusInternalServerError, kindInternal, "internal server error")
	}
}

func badRequest(w http.ResponseWriter, message string) {
	writeErrorKind(w, http.StatusBadRequest, kindValidation, message)
}
