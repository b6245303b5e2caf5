// Package handler exposes the storefront API over HTTP. Handlers decode
// requests, delegate to the domain services, and map domain errors onto the
// JSON error envelope.
package handler

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/storekit/storefront/internal/domain/cart"
	"github.com/storekit/storefront/internal/domain/order"
	"github.com/storekit/storefront/internal/domain/product"
)

// Handler serves the storefront API, delegating business logic to the cart
// and order services and the product repository.
type Handler struct {
	products product.Repository
	carts    *cart.Service
	orders   *order.Service
}

// NewHandler constructs a Handler with the required domain dependencies.
func NewHandler(
	products product.Repository,
	carts *cart.Service,
	orders *order.Service,
) *Handler {
	return &Handler{
		products: products,
		carts:    carts,
		orders:   orders,
	}
}

// Routes builds the /api router. Catalog reads are public, cart and order
// operations need a user or guest identity, and fulfillment operations need
// an admin API key.
func (h *Handler) Routes(sec *Security) chi.Router {
	r := chi.NewRouter()

	r.Get("/products", h.listProducts)
	r.Get("/products/{id}", h.getProduct)

	r.Group(func(r chi.Router) {
		r.Use(sec.WithActor)

		r.Get("/cart", h.getCart)
		r.Post("/cart/items", h.addCartItem)
		r.Put("/cart/items/{itemID}", h.updateCartItem)
		r.Delete("/cart/items/{itemID}", h.removeCartItem)
		r.Delete("/cart", h.clearCart)
		r.Post("/cart/merge", h.mergeCart)

		r.Post("/orders", h.placeOrder)
		r.Get("/orders/my-orders", h.listMyOrders)
		r.Get("/orders/{id}", h.getOrder)
	})

	r.Group(func(r chi.Router) {
		r.Use(sec.RequireAdmin)

		r.Get("/orders", h.listOrders)
		r.Get("/orders/number/{number}", h.getOrderByNumber)
		r.Post("/orders/{id}/refund", h.refundOrder)
		r.Patch("/orders/{id}/status", h.updateOrderStatus)
	})

	return r
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func decodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}

// decodeJSONLenient ignores unknown fields. Checkout uses it so that
// client-supplied money fields are silently dropped in favor of the
// server-side recomputation instead of failing the request.
func decodeJSONLenient(r *http.Request, v any) error {
	return json.NewDecoder(r.Body).Decode(v)
}
