package order

import (
	"context"
	"fmt"
	"time"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/storekit/storefront/internal/domain/cart"
	"github.com/storekit/storefront/internal/domain/payment"
	"github.com/storekit/storefront/internal/domain/product"
)

// TxRunner executes a function inside a single storage transaction. Every
// repository call made with the derived context joins that transaction, so a
// returned error rolls back all of them together.
type TxRunner interface {
	RunInTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// Service is the checkout orchestrator: it converts a cart into an order
// exactly once, consistently with live stock, as one atomic unit.
type Service struct {
	carts    *cart.Service
	products product.Repository
	orders   Repository
	payments *payment.Registry
	tx       TxRunner

	now    func() time.Time
	number NumberFunc
}

// NewService creates the checkout orchestrator with its collaborators.
func NewService(
	carts *cart.Service,
	products product.Repository,
	orders Repository,
	payments *payment.Registry,
	tx TxRunner,
) *Service {
	return &Service{
		carts:    carts,
		products: products,
		orders:   orders,
		payments: payments,
		tx:       tx,
		now:      time.Now,
		number:   GenerateNumber,
	}
}

// PlaceOrderRequest is the input for placing an order. Totals are always
// recomputed server-side; nothing money-related is accepted from the client.
type PlaceOrderRequest struct {
	UserID          string
	GuestID         string
	ShippingAddress Address
	BillingAddress  *Address
	Contact         ContactInfo
	ShippingMethod  string
	PaymentMethod   string
	Notes           string
}

// PlaceOrder runs the checkout workflow:
//
//  1. Resolve the user's cart, merging a guest cart first when present.
//  2. Re-validate every line against live catalog stock.
//  3. Snapshot lines into immutable order items and recompute totals.
//  4. Persist the order, reserve stock, and clear the cart inside one
//     transaction; a failure in any of the three rolls back all of them.
//  5. Process payment and apply the result onto the order.
//
// A declined payment leaves the order pending with payment status failed;
// the order itself is still returned.
func (s *Service) PlaceOrder(ctx context.Context, req PlaceOrderRequest) (*Order, error) {
	provider, err := s.payments.Get(req.PaymentMethod)
	if err != nil {
		return nil, err
	}

	// Cart resolution: the guest cart folds into the user cart before
	// anything else, so a login-time checkout sees every line.
	userCart, err := s.carts.GetOrCreate(ctx, cart.Owner{UserID: req.UserID})
	if err != nil {
		return nil, errors.Wrap(err, "resolve cart")
	}
	if req.GuestID != "" {
		if err := s.carts.Merge(ctx, req.GuestID, userCart); err != nil {
			return nil, errors.Wrap(err, "merge guest cart")
		}
	}
	if len(userCart.Items) == 0 {
		return nil, ErrEmptyCart
	}

	items, totals, err := s.snapshot(ctx, userCart)
	if err != nil {
		return nil, err
	}

	now := s.now()
	o := &Order{
		ID:              uuid.New().String(),
		UserID:          req.UserID,
		Items:           items,
		ShippingAddress: req.ShippingAddress,
		BillingAddress:  req.BillingAddress,
		Contact:         req.Contact,
		Totals:          totals,
		Currency:        userCart.Currency,
		Status:          StatusPending,
		Payment: Payment{
			Provider: req.PaymentMethod,
			Status:   PaymentPending,
			Amount:   totals.GrandTotal,
			Currency: userCart.Currency,
		},
		ShippingMethod: req.ShippingMethod,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if req.Notes != "" {
		o.Notes = []string{req.Notes}
	}

	// Order creation, stock reservation, and cart clear are one unit of
	// work. The date-based order number can collide, so the whole unit
	// retries with a fresh number on a duplicate key.
	for attempt := 0; ; attempt++ {
		o.Number = s.number(now)

		err = s.tx.RunInTx(ctx, func(ctx context.Context) error {
			if err := s.orders.Create(ctx, o); err != nil {
				return err
			}
			for _, it := range o.Items {
				if err := s.products.DecrementStock(ctx, it.ProductID, it.Quantity); err != nil {
					if errors.Is(err, product.ErrInsufficientStock) {
						return &cart.InsufficientStockError{ProductName: it.Name, Requested: it.Quantity}
					}
					return errors.Wrapf(err, "reserve stock for %s", it.ProductID)
				}
			}
			return s.carts.Clear(ctx, userCart)
		})
		if err == nil {
			break
		}
		if errors.Is(err, ErrDuplicateNumber) && attempt < numberRetries {
			continue
		}
		return nil, err
	}

	s.processPayment(ctx, provider, o)

	if err := s.orders.Update(ctx, o); err != nil {
		return nil, errors.Wrap(err, "apply payment result")
	}
	return o, nil
}

// snapshot re-fetches every cart line's product, confirms availability and
// stock, and freezes name/sku/price into order items with recomputed totals.
func (s *Service) snapshot(ctx context.Context, c *cart.Cart) ([]Item, Totals, error) {
	ids := make([]string, len(c.Items))
	for i, it := range c.Items {
		ids[i] = it.ProductID
	}

	fetched, err := s.products.GetByIDs(ctx, ids)
	if err != nil {
		return nil, Totals{}, errors.Wrap(err, "get products")
	}
	byID := make(map[string]*product.Product, len(fetched))
	for i := range fetched {
		byID[fetched[i].ID] = &fetched[i]
	}

	items := make([]Item, 0, len(c.Items))
	subtotal := decimal.Zero
	for _, line := range c.Items {
		p, ok := byID[line.ProductID]
		if !ok {
			return nil, Totals{}, fmt.Errorf("%s: %w", line.ProductID, product.ErrNotFound)
		}
		if !p.Available() {
			return nil, Totals{}, &cart.ProductUnavailableError{ProductName: p.Name}
		}
		// Cart lines can be stale relative to concurrent purchases; the
		// conditional decrement inside the transaction is the final word.
		if line.Quantity > p.Stock {
			return nil, Totals{}, &cart.InsufficientStockError{
				ProductName: p.Name,
				Available:   p.Stock,
				Requested:   line.Quantity,
			}
		}

		sel, err := p.ResolveVariant(line.VariantID)
		if err != nil {
			return nil, Totals{}, err
		}

		lineTotal := line.UnitPrice.Mul(decimal.NewFromInt(int64(line.Quantity)))
		items = append(items, Item{
			ProductID:  line.ProductID,
			VariantID:  line.VariantID,
			Name:       p.Name,
			SKU:        p.EffectiveSKU(sel),
			Quantity:   line.Quantity,
			UnitPrice:  line.UnitPrice,
			TotalPrice: lineTotal,
		})
		subtotal = subtotal.Add(lineTotal)
	}

	pricing := s.carts.Pricing()
	shipping := pricing.ShippingCost(subtotal)
	tax := subtotal.Mul(pricing.TaxRate).Round(2)

	return items, Totals{
		Subtotal:   subtotal,
		Shipping:   shipping,
		Tax:        tax,
		Discount:   decimal.Zero,
		GrandTotal: subtotal.Add(shipping).Add(tax),
	}, nil
}

// processPayment charges the order and records the outcome on it. Declines
// and gateway failures both land as payment status failed.
func (s *Service) processPayment(ctx context.Context, provider payment.Provider, o *Order) {
	result, err := provider.ProcessPayment(ctx, o.ID, o.Totals.GrandTotal, o.Currency)
	switch {
	case err != nil:
		o.Payment.Status = PaymentFailed
		o.Notes = append(o.Notes, "payment error: "+err.Error())
	case !result.Success:
		o.Payment.Status = PaymentFailed
		if result.Message != "" {
			o.Notes = append(o.Notes, "payment declined: "+result.Message)
		}
	default:
		o.Status = StatusProcessing
		o.Payment.Status = PaymentCompleted
		o.Payment.TransactionID = result.TransactionID
	}
	o.UpdatedAt = s.now()
}

// GetOrder returns a single order by id.
func (s *Service) GetOrder(ctx context.Context, orderID string) (*Order, error) {
	return s.orders.FindByID(ctx, orderID)
}

// GetOrderByNumber returns a single order by its customer-facing number.
func (s *Service) GetOrderByNumber(ctx context.Context, number string) (*Order, error) {
	return s.orders.FindByNumber(ctx, number)
}

// ListOrders returns a page of orders matching the filter, newest first, plus
// the total match count.
func (s *Service) ListOrders(ctx context.Context, filter ListFilter, page Page) ([]Order, int, error) {
	return s.orders.List(ctx, filter, page.Normalize())
}

// RefundOrder refunds a delivered order: status and payment flip to
// refunded, a note records the reason, every item's stock is restored, and
// the payment adapter's refund runs inside the same transaction so a failed
// gateway call aborts the whole refund.
func (s *Service) RefundOrder(ctx context.Context, orderID string, amount *decimal.Decimal, reason string) (*Order, error) {
	o, err := s.orders.FindByID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if o.Status != StatusDelivered {
		return nil, &InvalidStateError{Status: o.Status, Op: "refund order"}
	}

	refundAmount := o.Totals.GrandTotal
	if amount != nil {
		refundAmount = *amount
	}
	if refundAmount.LessThanOrEqual(decimal.Zero) || refundAmount.GreaterThan(o.Totals.GrandTotal) {
		return nil, ErrInvalidRefundAmount
	}

	provider, err := s.payments.Get(o.Payment.Provider)
	if err != nil {
		return nil, err
	}

	now := s.now()
	o.Status = StatusRefunded
	o.Payment.Status = PaymentRefunded
	o.Notes = append(o.Notes, fmt.Sprintf("refunded %s on %s: %s",
		refundAmount.StringFixed(2), now.Format(time.RFC3339), reason))
	o.UpdatedAt = now

	err = s.tx.RunInTx(ctx, func(ctx context.Context) error {
		if err := s.orders.Update(ctx, o); err != nil {
			return err
		}
		for _, it := range o.Items {
			if err := s.products.IncrementStock(ctx, it.ProductID, it.Quantity); err != nil {
				return errors.Wrapf(err, "restock %s", it.ProductID)
			}
		}
		return provider.CreateRefund(ctx, o.ID, refundAmount)
	})
	if err != nil {
		return nil, err
	}
	return o, nil
}

// UpdateStatus moves an order along the fulfillment state machine, setting
// the tracking number when one is supplied.
func (s *Service) UpdateStatus(ctx context.Context, orderID string, status Status, trackingNumber string) (*Order, error) {
	if !status.Valid() {
		return nil, &InvalidStatusError{Status: string(status)}
	}

	o, err := s.orders.FindByID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if !CanTransition(o.Status, status) {
		return nil, &InvalidStateError{Status: o.Status, Op: "move order to " + string(status)}
	}

	if err := s.orders.UpdateStatus(ctx, orderID, status, trackingNumber); err != nil {
		return nil, err
	}

	o.Status = status
	if trackingNumber != "" {
		o.TrackingNumber = trackingNumber
	}
	o.UpdatedAt = s.now()
	return o, nil
}
