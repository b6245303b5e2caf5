package product

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// Sentinel errors for catalog lookups and stock mutation.
var (
	// ErrNotFound is returned when a requested product does not exist.
	ErrNotFound = errors.New("product not found")
	// ErrVariantNotFound is returned when a variant option id does not match
	// any option on the product.
	ErrVariantNotFound = errors.New("product variant not found")
	// ErrInsufficientStock is returned by a conditional stock decrement when
	// the available stock is lower than the requested quantity.
	ErrInsufficientStock = errors.New("insufficient stock")
)

// Status describes the lifecycle state of a catalog product.
type Status string

const (
	StatusDraft    Status = "draft"
	StatusActive   Status = "active"
	StatusArchived Status = "archived"
)

// Product represents a catalog item available for purchase.
type Product struct {
	ID          string
	SKU         string
	Slug        string
	Name        string
	Description string
	Price       decimal.Decimal
	Currency    string
	Stock       int
	Status      Status
	Variants    []Variant
}

// Variant groups the selectable options for one product axis (e.g. "Size").
type Variant struct {
	Name    string          `json:"name"`
	Options []VariantOption `json:"options"`
}

// VariantOption is a single selectable value within a Variant. Selecting an
// option adjusts the base price and appends a suffix to the base SKU.
type VariantOption struct {
	ID              string          `json:"id"`
	Name            string          `json:"name"`
	PriceAdjustment decimal.Decimal `json:"price_adjustment"`
	SKUSuffix       string          `json:"sku_suffix"`
}

// Selection is a resolved variant choice on a product.
type Selection struct {
	VariantName string
	Option      VariantOption
}

// Available reports whether the product can be added to a cart.
func (p *Product) Available() bool {
	return p.Status == StatusActive
}

// ResolveVariant finds the option with the given id across all variant axes.
// An empty id means no variant was selected and yields a nil Selection.
func (p *Product) ResolveVariant(optionID string) (*Selection, error) {
	if optionID == "" {
		return nil, nil
	}
	for _, v := range p.Variants {
		for _, opt := range v.Options {
			if opt.ID == optionID {
				return &Selection{VariantName: v.Name, Option: opt}, nil
			}
		}
	}
	return nil, ErrVariantNotFound
}

// UnitPrice returns the base price adjusted for the given selection.
func (p *Product) UnitPrice(sel *Selection) decimal.Decimal {
	if sel == nil {
		return p.Price
	}
	return p.Price.Add(sel.Option.PriceAdjustment)
}

// EffectiveSKU returns the base SKU with the selection's suffix appended.
func (p *Product) EffectiveSKU(sel *Selection) string {
	if sel == nil {
		return p.SKU
	}
	return p.SKU + sel.Option.SKUSuffix
}

// ListFilter narrows catalog listings.
type ListFilter struct {
	// Status limits results to products in the given state. Empty means all.
	Status Status
}

// Repository defines catalog reads plus the two stock mutations the checkout
// workflow performs. Stock mutations must be conditional updates at the
// storage layer so concurrent checkouts cannot drive stock negative.
type Repository interface {
	List(ctx context.Context, filter ListFilter) ([]Product, error)
	GetByID(ctx context.Context, id string) (*Product, error)
	GetByIDs(ctx context.Context, ids []string) ([]Product, error)

	// DecrementStock subtracts qty from the product's stock only if the
	// remaining stock stays non-negative. Returns ErrInsufficientStock
	// otherwise, ErrNotFound when the product does not exist.
	DecrementStock(ctx context.Context, id string, qty int) error
	// IncrementStock adds qty back to the product's stock.
	IncrementStock(ctx context.Context, id string, qty int) error
}
