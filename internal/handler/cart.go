package handler

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/storekit/storefront/internal/domain/cart"
)

type cartItemResponse struct {
	ID        string          `json:"id"`
	ProductID string          `json:"product_id"`
	VariantID string          `json:"variant_id,omitempty"`
	Quantity  int             `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unit_price"`
	LineTotal decimal.Decimal `json:"line_total"`
	AddedAt   time.Time       `json:"added_at"`
}

type totalsResponse struct {
	Subtotal decimal.Decimal `json:"subtotal"`
	Discount decimal.Decimal `json:"discount"`
	Tax      decimal.Decimal `json:"tax"`
	Shipping decimal.Decimal `json:"shipping"`
	Total    decimal.Decimal `json:"total"`
}

type cartResponse struct {
	ID       string             `json:"id"`
	Currency string             `json:"currency"`
	Items    []cartItemResponse `json:"items"`
	Totals   totalsResponse     `json:"totals"`
}

func toCartResponse(c *cart.Cart) cartResponse {
	items := make([]cartItemResponse, len(c.Items))
	for i, it := range c.Items {
		items[i] = cartItemResponse{
			ID:        it.ID,
			ProductID: it.ProductID,
			VariantID: it.VariantID,
			Quantity:  it.Quantity,
			UnitPrice: it.UnitPrice,
			LineTotal: it.UnitPrice.Mul(decimal.NewFromInt(int64(it.Quantity))),
			AddedAt:   it.AddedAt,
		}
	}
	return cartResponse{
		ID:       c.ID,
		Currency: c.Currency,
		Items:    items,
		Totals: totalsResponse{
			Subtotal: c.Totals.Subtotal,
			Discount: c.Totals.Discount,
			Tax:      c.Totals.Tax,
			Shipping: c.Totals.Shipping,
			Total:    c.Totals.Total,
		},
	}
}

// actorCart resolves the request actor's cart, creating one lazily.
func (h *Handler) actorCart(w http.ResponseWriter, r *http.Request) (*cart.Cart, bool) {
	actor, ok := ActorFromContext(r.Context())
	if !ok {
		writeErrorKind(w, http.StatusUnauthorized, kindUnauthorized, "authentication required")
		return nil, false
	}

	c, err := h.carts.GetOrCreate(r.Context(), actor.Owner())
	if err != nil {
		writeError(w, r, err)
		return nil, false
	}
	return c, true
}

func (h *Handler) getCart(w http.ResponseWriter, r *http.Request) {
	c, ok := h.actorCart(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, toCartResponse(c))
}

type addCartItemRequest struct {
	ProductID string `json:"product_id"`
	VariantID string `json:"variant_id"`
	Quantity  int    `json:"quantity"`
}

func (h *Handler) addCartItem(w http.ResponseWriter, r *http.Request) {
	var req addCartItemRequest
	if err := decodeJSON(r, &req); err != nil {
		badRequest(w, "invalid request body")
		return
	}
	if req.ProductID == "" {
		badRequest(w, "product_id is required")
		return
	}

	c, ok := h.actorCart(w, r)
	if !ok {
		return
	}
	if err := h.carts.AddItem(r.Context(), c, req.ProductID, req.VariantID, req.Quantity); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toCartResponse(c))
}

type updateCartItemRequest struct {
	Quantity int `json:"quantity"`
}

func (h *Handler) updateCartItem(w http.ResponseWriter, r *http.Request) {
	var req updateCartItemRequest
	if err := decodeJSON(r, &req); err != nil {
		badRequest(w, "invalid request body")
		return
	}

	c, ok := h.actorCart(w, r)
	if !ok {
		return
	}
	if err := h.carts.UpdateItemQuantity(r.Context(), c, chi.URLParam(r, "itemID"), req.Quantity); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toCartResponse(c))
}

func (h *Handler) removeCartItem(w http.ResponseWriter, r *http.Request) {
	c, ok := h.actorCart(w, r)
	if !ok {
		return
	}
	if err := h.carts.RemoveItem(r.Context(), c, chi.URLParam(r, "itemID")); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toCartResponse(c))
}

func (h *Handler) clearCart(w http.ResponseWriter, r *http.Request) {
	c, ok := h.actorCart(w, r)
	if !ok {
		return
	}
	if err := h.carts.Clear(r.Context(), c); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toCartResponse(c))
}

type mergeCartRequest struct {
	GuestID string `json:"guest_id"`
}

// mergeCart folds a guest cart into the authenticated user's cart, typically
// right after login.
func (h *Handler) mergeCart(w http.ResponseWriter, r *http.Request) {
	actor, ok := ActorFromContext(r.Context())
	if !ok || actor.UserID == "" {
		writeErrorKind(w, http.StatusUnauthorized, kindUnauthorized, "user authentication required")
		return
	}

	var req mergeCartRequest
	if err := decodeJSON(r, &req); err != nil {
		badRequest(w, "invalid request body")
		return
	}
	if req.GuestID == "" {
		badRequest(w, "guest_id is required")
		return
	}

	c, err := h.carts.GetOrCreate(r.Context(), cart.Owner{UserID: actor.UserID})
	if err != nil {
		writeError(w, r, err)
		return
	}
	if err := h.carts.Merge(r.Context(), req.GuestID, c); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toCartResponse(c))
}
