package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/storekit/storefront/internal/domain/product"
)

type productResponse struct {
	ID          string            `json:"id"`
	SKU         string            `json:"sku"`
	Slug        string            `json:"slug"`
	Name        string            `json:"name"`
	Description string            `json:"description,omitempty"`
	Price       decimal.Decimal   `json:"price"`
	Currency    string            `json:"currency"`
	Stock       int               `json:"stock"`
	Status      string            `json:"status"`
	Variants    []product.Variant `json:"variants,omitempty"`
}

func toProductResponse(p *product.Product) productResponse {
	return productResponse{
		ID:          p.ID,
		SKU:         p.SKU,
		Slug:        p.Slug,
		Name:        p.Name,
		Description: p.Description,
		Price:       p.Price,
		Currency:    p.Currency,
		Stock:       p.Stock,
		Status:      string(p.Status),
		Variants:    p.Variants,
	}
}

// listProducts serves the public catalog. Only active products are listed;
// drafts and archived products stay hidden no matter what the query says.
func (h *Handler) listProducts(w http.ResponseWriter, r *http.Request) {
	products, err := h.products.List(r.Context(), product.ListFilter{Status: product.StatusActive})
	if err != nil {
		writeError(w, r, err)
		return
	}

	out := make([]productResponse, len(products))
	for i := range products {
		out[i] = toProductResponse(&products[i])
	}
	writeJSON(w, http.StatusOK, map[string]any{"products": out})
}

func (h *Handler) getProduct(w http.ResponseWriter, r *http.Request) {
	p, err := h.products.GetByID(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toProductResponse(p))
}
