package order

import (
	"context"
	"fmt"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// Sentinel errors for order operations.
var (
	// ErrNotFound is returned when a requested order does not exist.
	ErrNotFound = errors.New("order not found")
	// ErrEmptyCart is returned when checkout resolves a cart with no items.
	ErrEmptyCart = errors.New("cart is empty")
	// ErrDuplicateNumber is returned by the store when the generated order
	// number collides with an existing one.
	ErrDuplicateNumber = errors.New("duplicate order number")
	// ErrInvalidRefundAmount is returned when a refund amount is not positive
	// or exceeds the order's grand total.
	ErrInvalidRefundAmount = errors.New("invalid refund amount")
)

// InvalidStateError indicates an operation that is not valid for the order's
// current status.
type InvalidStateError struct {
	Status Status
	Op     string
}

func (e *InvalidStateError) Error() string {
	return fmt.Sprintf("cannot %s: order status is %q", e.Op, e.Status)
}

// InvalidStatusError indicates a target status outside the fixed enum.
type InvalidStatusError struct {
	Status string
}

func (e *InvalidStatusError) Error() string {
	return fmt.Sprintf("invalid order status %q", e.Status)
}

// PaymentStatus tracks the payment lifecycle on an order.
type PaymentStatus string

const (
	PaymentPending   PaymentStatus = "pending"
	PaymentCompleted PaymentStatus = "completed"
	PaymentFailed    PaymentStatus = "failed"
	PaymentRefunded  PaymentStatus = "refunded"
)

// Item is a frozen snapshot of a purchased product line. Name, SKU and unit
// price are captured at order creation and never change, regardless of later
// catalog edits.
type Item struct {
	ProductID  string          `json:"product_id"`
	VariantID  string          `json:"variant_id,omitempty"`
	Name       string          `json:"name"`
	SKU        string          `json:"sku"`
	Quantity   int             `json:"quantity"`
	UnitPrice  decimal.Decimal `json:"unit_price"`
	TotalPrice decimal.Decimal `json:"total_price"`
}

// Totals holds the server-computed money amounts for an order.
type Totals struct {
	Subtotal   decimal.Decimal
	Shipping   decimal.Decimal
	Tax        decimal.Decimal
	Discount   decimal.Decimal
	GrandTotal decimal.Decimal
}

// Address is a shipping or billing address.
type Address struct {
	Name       string `json:"name"`
	Line1      string `json:"line1"`
	Line2      string `json:"line2,omitempty"`
	City       string `json:"city"`
	State      string `json:"state,omitempty"`
	PostalCode string `json:"postal_code"`
	Country    string `json:"country"`
	Phone      string `json:"phone,omitempty"`
}

// ContactInfo holds how to reach the customer about this order.
type ContactInfo struct {
	Email string `json:"email"`
	Phone string `json:"phone,omitempty"`
}

// Payment is the payment bookkeeping attached to an order.
type Payment struct {
	Provider      string
	Status        PaymentStatus
	IntentID      string
	ChargeID      string
	TransactionID string
	Amount        decimal.Decimal
	Currency      string
}

// Order is an immutable purchase record. Items and totals never change after
// creation; only status, payment bookkeeping, notes and the tracking number
// move afterwards.
type Order struct {
	ID              string
	Number          string
	UserID          string
	Items           []Item
	ShippingAddress Address
	BillingAddress  *Address
	Contact         ContactInfo
	Totals          Totals
	Currency        string
	Status          Status
	Payment         Payment
	ShippingMethod  string
	Notes           []string
	TrackingNumber  string
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// ListFilter narrows order listings.
type ListFilter struct {
	UserID string
	Status Status
}

// Page is an offset-based pagination request.
type Page struct {
	Page  int
	Limit int
}

// Normalize clamps the page request to sane bounds.
func (p Page) Normalize() Page {
	if p.Page < 1 {
		p.Page = 1
	}
	if p.Limit < 1 {
		p.Limit = 20
	}
	if p.Limit > 100 {
		p.Limit = 100
	}
	return p
}

// Offset returns the row offset for the normalized page.
func (p Page) Offset() int {
	return (p.Page - 1) * p.Limit
}

// Repository defines durable persistence and query of orders.
type Repository interface {
	// Create persists a new order. Returns ErrDuplicateNumber when the order
	// number is already taken.
	Create(ctx context.Context, o *Order) error
	FindByID(ctx context.Context, id string) (*Order, error)
	FindByNumber(ctx context.Context, number string) (*Order, error)
	// List returns a page of orders matching the filter, newest first, plus
	// the total match count.
	List(ctx context.Context, filter ListFilter, page Page) ([]Order, int, error)
	// UpdateStatus sets the order's status and, when non-empty, its tracking
	// number.
	UpdateStatus(ctx context.Context, id string, status Status, trackingNumber string) error
	// Update persists the order's mutable fields (status, payment, notes,
	// tracking number).
	Update(ctx context.Context, o *Order) error
}
