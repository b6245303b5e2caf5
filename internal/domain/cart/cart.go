package cart

import (
	"context"
	"fmt"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// Sentinel errors for cart operations.
var (
	// ErrNotFound is returned when no cart exists for the given owner.
	ErrNotFound = errors.New("cart not found")
	// ErrInvalidOwner is returned when neither a user nor a guest identifier
	// is supplied.
	ErrInvalidOwner = errors.New("cart owner requires a user or guest id")
	// ErrItemNotFound is returned when a cart line id does not exist.
	ErrItemNotFound = errors.New("cart item not found")
	// ErrInvalidQuantity is returned for non-positive quantities.
	ErrInvalidQuantity = errors.New("quantity must be greater than 0")
)

// ProductUnavailableError indicates the product exists but is not active.
type ProductUnavailableError struct {
	ProductName string
}

func (e *ProductUnavailableError) Error() string {
	return fmt.Sprintf("product %q is not available for purchase", e.ProductName)
}

// InsufficientStockError indicates the requested quantity exceeds the
// product's available stock.
type InsufficientStockError struct {
	ProductName string
	Available   int
	Requested   int
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock for %q: %d available, %d requested",
		e.ProductName, e.Available, e.Requested)
}

// Owner identifies who a cart belongs to: a user or an anonymous guest
// session, never both.
type Owner struct {
	UserID  string
	GuestID string
}

// Valid reports whether exactly one identifier is set.
func (o Owner) Valid() bool {
	return (o.UserID != "") != (o.GuestID != "")
}

// Item is one cart line: a product (optionally a variant option), quantity,
// and the unit price captured from the catalog at add time.
type Item struct {
	ID        string
	ProductID string
	VariantID string
	Quantity  int
	UnitPrice decimal.Decimal
	AddedAt   time.Time
}

// Totals holds the derived money amounts for a cart. They are recomputed
// from the item list and pricing configuration on every mutation and are
// never persisted independently of the items.
type Totals struct {
	Subtotal decimal.Decimal
	Discount decimal.Decimal
	Tax      decimal.Decimal
	Shipping decimal.Decimal
	Total    decimal.Decimal
}

// Cart is the mutable pre-purchase selection for one owner.
type Cart struct {
	ID        string
	UserID    string
	GuestID   string
	Currency  string
	Items     []Item
	Totals    Totals
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Owner returns the cart's owner reference.
func (c *Cart) Owner() Owner {
	return Owner{UserID: c.UserID, GuestID: c.GuestID}
}

// FindItem returns the cart line with the given id, or nil.
func (c *Cart) FindItem(itemID string) *Item {
	for i := range c.Items {
		if c.Items[i].ID == itemID {
			return &c.Items[i]
		}
	}
	return nil
}

// FindLine returns the cart line matching (productID, variantID), or nil.
func (c *Cart) FindLine(productID, variantID string) *Item {
	for i := range c.Items {
		if c.Items[i].ProductID == productID && c.Items[i].VariantID == variantID {
			return &c.Items[i]
		}
	}
	return nil
}

// Repository defines persistence for carts. Save replaces the cart's item
// list wholesale so the stored state always matches the in-memory cart.
type Repository interface {
	// FindByOwner returns the cart for the given owner, or ErrNotFound.
	FindByOwner(ctx context.Context, owner Owner) (*Cart, error)
	// Save upserts the cart row and replaces its items atomically.
	Save(ctx context.Context, c *Cart) error
	// Delete removes the cart and its items. Deleting an absent cart is not
	// an error.
	Delete(ctx context.Context, cartID string) error
}
