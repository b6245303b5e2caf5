package cart

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/google/uuid"

	"github.com/storekit/storefront/internal/domain/product"
)

// Service maintains the mutable pre-purchase selection and its derived
// totals. Every mutation recomputes totals before persisting.
type Service struct {
	carts    Repository
	products product.Repository
	pricing  PricingConfig
	currency string
	now      func() time.Time
}

// NewService creates a cart Service.
func NewService(carts Repository, products product.Repository, pricing PricingConfig, currency string) *Service {
	return &Service{
		carts:    carts,
		products: products,
		pricing:  pricing,
		currency: currency,
		now:      time.Now,
	}
}

// Pricing exposes the service's pricing configuration for callers that need
// to price outside a cart (checkout recomputes totals server-side).
func (s *Service) Pricing() PricingConfig {
	return s.pricing
}

// GetOrCreate returns the owner's cart, creating an empty one lazily on
// first access. Fails with ErrInvalidOwner unless exactly one of user or
// guest id is supplied.
func (s *Service) GetOrCreate(ctx context.Context, owner Owner) (*Cart, error) {
	if !owner.Valid() {
		return nil, ErrInvalidOwner
	}

	c, err := s.carts.FindByOwner(ctx, owner)
	if err == nil {
		c.Totals = s.pricing.ComputeTotals(c.Items)
		return c, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return nil, errors.Wrap(err, "find cart")
	}

	now := s.now()
	c = &Cart{
		ID:        uuid.New().String(),
		UserID:    owner.UserID,
		GuestID:   owner.GuestID,
		Currency:  s.currency,
		CreatedAt: now,
		UpdatedAt: now,
	}
	c.Totals = s.pricing.ComputeTotals(nil)
	if err := s.carts.Save(ctx, c); err != nil {
		return nil, errors.Wrap(err, "create cart")
	}
	return c, nil
}

// AddItem appends a line for (productID, variantID) or sums quantities into
// an existing line. The unit price is captured from the catalog at add time.
func (s *Service) AddItem(ctx context.Context, c *Cart, productID, variantID string, quantity int) error {
	if quantity <= 0 {
		return ErrInvalidQuantity
	}

	p, err := s.products.GetByID(ctx, productID)
	if err != nil {
		return err
	}
	if !p.Available() {
		return &ProductUnavailableError{ProductName: p.Name}
	}

	sel, err := p.ResolveVariant(variantID)
	if err != nil {
		return err
	}

	newQty := quantity
	line := c.FindLine(productID, variantID)
	if line != nil {
		newQty += line.Quantity
	}
	if newQty > p.Stock {
		return &InsufficientStockError{ProductName: p.Name, Available: p.Stock, Requested: newQty}
	}

	if line != nil {
		line.Quantity = newQty
	} else {
		c.Items = append(c.Items, Item{
			ID:        uuid.New().String(),
			ProductID: productID,
			VariantID: variantID,
			Quantity:  quantity,
			UnitPrice: p.UnitPrice(sel),
			AddedAt:   s.now(),
		})
	}

	return s.save(ctx, c)
}

// UpdateItemQuantity sets an existing line's quantity, re-validated against
// the product's current stock.
func (s *Service) UpdateItemQuantity(ctx context.Context, c *Cart, itemID string, quantity int) error {
	if quantity <= 0 {
		return ErrInvalidQuantity
	}

	line := c.FindItem(itemID)
	if line == nil {
		return ErrItemNotFound
	}

	p, err := s.products.GetByID(ctx, line.ProductID)
	if err != nil {
		return err
	}
	if quantity > p.Stock {
		return &InsufficientStockError{ProductName: p.Name, Available: p.Stock, Requested: quantity}
	}

	line.Quantity = quantity
	return s.save(ctx, c)
}

// RemoveItem deletes a line from the cart.
func (s *Service) RemoveItem(ctx context.Context, c *Cart, itemID string) error {
	for i := range c.Items {
		if c.Items[i].ID == itemID {
			c.Items = append(c.Items[:i], c.Items[i+1:]...)
			return s.save(ctx, c)
		}
	}
	return ErrItemNotFound
}

// Clear removes all lines from the cart.
func (s *Service) Clear(ctx context.Context, c *Cart) error {
	c.Items = nil
	return s.save(ctx, c)
}

// Merge folds the guest cart identified by guestID into the user cart:
// matching (product, variant) lines sum quantities, others are appended. The
// guest cart is deleted afterwards, which makes a retry of the same merge a
// no-op: an absent guest cart merges nothing.
func (s *Service) Merge(ctx context.Context, guestID string, userCart *Cart) error {
	if guestID == "" {
		return nil
	}

	guestCart, err := s.carts.FindByOwner(ctx, Owner{GuestID: guestID})
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil
		}
		return errors.Wrap(err, "find guest cart")
	}

	for _, gi := range guestCart.Items {
		if line := userCart.FindLine(gi.ProductID, gi.VariantID); line != nil {
			line.Quantity += gi.Quantity
			continue
		}
		gi.ID = uuid.New().String()
		userCart.Items = append(userCart.Items, gi)
	}

	if err := s.save(ctx, userCart); err != nil {
		return err
	}
	if err := s.carts.Delete(ctx, guestCart.ID); err != nil {
		return errors.Wrap(err, "delete guest cart")
	}
	return nil
}

// save recomputes totals from the item list and persists the cart.
func (s *Service) save(ctx context.Context, c *Cart) error {
	c.Totals = s.pricing.ComputeTotals(c.Items)
	c.UpdatedAt = s.now()
	if err := s.carts.Save(ctx, c); err != nil {
		return errors.Wrap(err, "save cart")
	}
	return nil
}
