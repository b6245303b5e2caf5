package order

import (
	"context"
	"testing"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/storekit/storefront/internal/domain/cart"
	"github.com/storekit/storefront/internal/domain/payment"
	"github.com/storekit/storefront/internal/domain/product"
)

// --- Mock implementations ---

type mockProductRepo struct {
	byID map[string]*product.Product
	// decrementFails simulates a concurrent purchase: the conditional
	// decrement for these ids fails even though the earlier read looked fine.
	decrementFails map[string]bool
}

func newMockProductRepo(products ...*product.Product) *mockProductRepo {
	byID := make(map[string]*product.Product, len(products))
	for _, p := range products {
		byID[p.ID] = p
	}
	return &mockProductRepo{byID: byID, decrementFails: make(map[string]bool)}
}

func (m *mockProductRepo) List(_ context.Context, _ product.ListFilter) ([]product.Product, error) {
	return nil, nil
}

func (m *mockProductRepo) GetByID(_ context.Context, id string) (*product.Product, error) {
	p, ok := m.byID[id]
	if !ok {
		return nil, product.ErrNotFound
	}
	return p, nil
}

func (m *mockProductRepo) GetByIDs(_ context.Context, ids []string) ([]product.Product, error) {
	var out []product.Product
	for _, id := range ids {
		if p, ok := m.byID[id]; ok {
			out = append(out, *p)
		}
	}
	return out, nil
}

func (m *mockProductRepo) DecrementStock(_ context.Context, id string, qty int) error {
	p, ok := m.byID[id]
	if !ok {
		return product.ErrNotFound
	}
	if m.decrementFails[id] || p.Stock < qty {
		return product.ErrInsufficientStock
	}
	p.Stock -= qty
	return nil
}

func (m *mockProductRepo) IncrementStock(_ context.Context, id string, qty int) error {
	p, ok := m.byID[id]
	if !ok {
		return product.ErrNotFound
	}
	p.Stock += qty
	return nil
}

func (m *mockProductRepo) stocks() map[string]int {
	s := make(map[string]int, len(m.byID))
	for id, p := range m.byID {
		s[id] = p.Stock
	}
	return s
}

func (m *mockProductRepo) restoreStocks(s map[string]int) {
	for id, stock := range s {
		m.byID[id].Stock = stock
	}
}

type mockCartRepo struct {
	byOwner map[cart.Owner]*cart.Cart
}

func newMockCartRepo() *mockCartRepo {
	return &mockCartRepo{byOwner: make(map[cart.Owner]*cart.Cart)}
}

func copyCart(c *cart.Cart) *cart.Cart {
	cp := *c
	cp.Items = append([]cart.Item(nil), c.Items...)
	return &cp
}

func (m *mockCartRepo) FindByOwner(_ context.Context, owner cart.Owner) (*cart.Cart, error) {
	if c, ok := m.byOwner[owner]; ok {
		return copyCart(c), nil
	}
	return nil, cart.ErrNotFound
}

func (m *mockCartRepo) Save(_ context.Context, c *cart.Cart) error {
	m.byOwner[c.Owner()] = copyCart(c)
	return nil
}

func (m *mockCartRepo) Delete(_ context.Context, cartID string) error {
	for owner, c := range m.byOwner {
		if c.ID == cartID {
			delete(m.byOwner, owner)
		}
	}
	return nil
}

func (m *mockCartRepo) snapshot() map[cart.Owner]*cart.Cart {
	s := make(map[cart.Owner]*cart.Cart, len(m.byOwner))
	for owner, c := range m.byOwner {
		s[owner] = copyCart(c)
	}
	return s
}

type mockOrderRepo struct {
	byID      map[string]*Order
	dupLeft   int // Create fails with ErrDuplicateNumber while > 0
	numbers   []string
	createErr error
}

func newMockOrderRepo() *mockOrderRepo {
	return &mockOrderRepo{byID: make(map[string]*Order)}
}

func copyOrder(o *Order) *Order {
	cp := *o
	cp.Items = append([]Item(nil), o.Items...)
	cp.Notes = append([]string(nil), o.Notes...)
	return &cp
}

func (m *mockOrderRepo) Create(_ context.Context, o *Order) error {
	m.numbers = append(m.numbers, o.Number)
	if m.createErr != nil {
		return m.createErr
	}
	if m.dupLeft > 0 {
		m.dupLeft--
		return ErrDuplicateNumber
	}
	m.byID[o.ID] = copyOrder(o)
	return nil
}

func (m *mockOrderRepo) FindByID(_ context.Context, id string) (*Order, error) {
	o, ok := m.byID[id]
	if !ok {
		return nil, ErrNotFound
	}
	return copyOrder(o), nil
}

func (m *mockOrderRepo) FindByNumber(_ context.Context, number string) (*Order, error) {
	for _, o := range m.byID {
		if o.Number == number {
			return copyOrder(o), nil
		}
	}
	return nil, ErrNotFound
}

func (m *mockOrderRepo) List(_ context.Context, _ ListFilter, _ Page) ([]Order, int, error) {
	return nil, 0, nil
}

func (m *mockOrderRepo) UpdateStatus(_ context.Context, id string, status Status, trackingNumber string) error {
	o, ok := m.byID[id]
	if !ok {
		return ErrNotFound
	}
	o.Status = status
	if trackingNumber != "" {
		o.TrackingNumber = trackingNumber
	}
	return nil
}

func (m *mockOrderRepo) Update(_ context.Context, o *Order) error {
	if _, ok := m.byID[o.ID]; !ok {
		return ErrNotFound
	}
	m.byID[o.ID] = copyOrder(o)
	return nil
}

func (m *mockOrderRepo) snapshot() map[string]*Order {
	s := make(map[string]*Order, len(m.byID))
	for id, o := range m.byID {
		s[id] = copyOrder(o)
	}
	return s
}

// fakeTx emulates transactional rollback over the in-memory mocks: state is
// snapshotted before fn and restored when fn fails.
type fakeTx struct {
	orders   *mockOrderRepo
	products *mockProductRepo
	carts    *mockCartRepo
}

func (f *fakeTx) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	orders := f.orders.snapshot()
	stocks := f.products.stocks()
	carts := f.carts.snapshot()

	if err := fn(ctx); err != nil {
		f.orders.byID = orders
		f.products.restoreStocks(stocks)
		f.carts.byOwner = carts
		return err
	}
	return nil
}

type mockProvider struct {
	result       payment.Result
	processErr   error
	refundErr    error
	refundCalls  int
	processCalls int
}

func (m *mockProvider) ProcessPayment(_ context.Context, _ string, _ decimal.Decimal, _ string) (payment.Result, error) {
	m.processCalls++
	return m.result, m.processErr
}

func (m *mockProvider) CreateRefund(_ context.Context, _ string, _ decimal.Decimal) error {
	m.refundCalls++
	return m.refundErr
}

// --- Helpers ---

func d(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func activeProduct(id, name, price string, stock int) *product.Product {
	return &product.Product{
		ID:       id,
		SKU:      "SKU-" + id,
		Name:     name,
		Price:    d(price),
		Currency: "USD",
		Stock:    stock,
		Status:   product.StatusActive,
	}
}

type fixture struct {
	svc      *Service
	carts    *cart.Service
	cartRepo *mockCartRepo
	products *mockProductRepo
	orders   *mockOrderRepo
	provider *mockProvider
}

func newFixture(t *testing.T, products ...*product.Product) *fixture {
	t.Helper()

	cartRepo := newMockCartRepo()
	productRepo := newMockProductRepo(products...)
	orderRepo := newMockOrderRepo()
	provider := &mockProvider{result: payment.Result{Success: true, TransactionID: "txn-1"}}

	registry := payment.NewRegistry()
	registry.Register("demo", provider)

	carts := cart.NewService(cartRepo, productRepo, cart.DefaultPricing(), "USD")
	svc := NewService(carts, productRepo, orderRepo, registry, &fakeTx{
		orders:   orderRepo,
		products: productRepo,
		carts:    cartRepo,
	})

	return &fixture{
		svc:      svc,
		carts:    carts,
		cartRepo: cartRepo,
		products: productRepo,
		orders:   orderRepo,
		provider: provider,
	}
}

func (f *fixture) fillUserCart(t *testing.T, userID string, lines map[string]int) {
	t.Helper()
	c, err := f.carts.GetOrCreate(context.Background(), cart.Owner{UserID: userID})
	require.NoError(t, err)
	for id, qty := range lines {
		require.NoError(t, f.carts.AddItem(context.Background(), c, id, "", qty))
	}
}

func placeReq(userID string) PlaceOrderRequest {
	return PlaceOrderRequest{
		UserID: userID,
		ShippingAddress: Address{
			Name:       "Ada Lovelace",
			Line1:      "1 Analytical Way",
			City:       "London",
			PostalCode: "EC1",
			Country:    "GB",
		},
		Contact:        ContactInfo{Email: "ada@example.com"},
		ShippingMethod: "standard",
		PaymentMethod:  "demo",
	}
}

// --- Tests ---

func TestPlaceOrder_EmptyCart(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.PlaceOrder(context.Background(), placeReq("u1"))
	require.ErrorIs(t, err, ErrEmptyCart)
}

func TestPlaceOrder_UnknownPaymentMethod(t *testing.T) {
	f := newFixture(t, activeProduct("p1", "Widget", "20.00", 10))
	f.fillUserCart(t, "u1", map[string]int{"p1": 1})

	req := placeReq("u1")
	req.PaymentMethod = "telepathy"

	_, err := f.svc.PlaceOrder(context.Background(), req)
	require.ErrorIs(t, err, payment.ErrUnknownMethod)
}

func TestPlaceOrder_InsufficientStock(t *testing.T) {
	// Stock 1, cart wants 2: no order document, stock untouched.
	f := newFixture(t, activeProduct("p1", "Widget", "20.00", 2))
	f.fillUserCart(t, "u1", map[string]int{"p1": 2})
	f.products.byID["p1"].Stock = 1 // concurrent purchase since the add

	_, err := f.svc.PlaceOrder(context.Background(), placeReq("u1"))

	var stockErr *cart.InsufficientStockError
	require.ErrorAs(t, err, &stockErr)
	assert.Equal(t, "Widget", stockErr.ProductName)
	assert.Equal(t, 1, f.products.byID["p1"].Stock)
	assert.Empty(t, f.orders.byID)
}

func TestPlaceOrder_Succeeds(t *testing.T) {
	f := newFixture(t, activeProduct("p1", "Widget", "20.00", 10))
	f.fillUserCart(t, "u1", map[string]int{"p1": 3})

	o, err := f.svc.PlaceOrder(context.Background(), placeReq("u1"))
	require.NoError(t, err)

	// Stock reserved.
	assert.Equal(t, 7, f.products.byID["p1"].Stock)

	// Totals recomputed server-side: 60 + tax 6 + free shipping.
	assert.True(t, o.Totals.Subtotal.Equal(d("60.00")), "subtotal %s", o.Totals.Subtotal)
	assert.True(t, o.Totals.Tax.Equal(d("6.00")))
	assert.True(t, o.Totals.Shipping.Equal(decimal.Zero))
	assert.True(t, o.Totals.GrandTotal.Equal(d("66.00")), "grand total %s", o.Totals.GrandTotal)

	// Payment applied, order moved to processing.
	assert.Equal(t, StatusProcessing, o.Status)
	assert.Equal(t, PaymentCompleted, o.Payment.Status)
	assert.Equal(t, "txn-1", o.Payment.TransactionID)
	assert.Regexp(t, numberPattern, o.Number)

	// Cart emptied.
	c, err := f.carts.GetOrCreate(context.Background(), cart.Owner{UserID: "u1"})
	require.NoError(t, err)
	assert.Empty(t, c.Items)

	// Persisted copy matches.
	stored, err := f.orders.FindByID(context.Background(), o.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusProcessing, stored.Status)
}

func TestPlaceOrder_SnapshotFreezesCatalogData(t *testing.T) {
	f := newFixture(t, activeProduct("p1", "Widget", "20.00", 10))
	f.fillUserCart(t, "u1", map[string]int{"p1": 2})

	o, err := f.svc.PlaceOrder(context.Background(), placeReq("u1"))
	require.NoError(t, err)

	// Later catalog edits must not touch the snapshot.
	f.products.byID["p1"].Name = "Renamed Widget"
	f.products.byID["p1"].Price = d("99.00")
	f.products.byID["p1"].Status = product.StatusArchived

	stored, err := f.orders.FindByID(context.Background(), o.ID)
	require.NoError(t, err)
	require.Len(t, stored.Items, 1)
	assert.Equal(t, "Widget", stored.Items[0].Name)
	assert.Equal(t, "SKU-p1", stored.Items[0].SKU)
	assert.True(t, stored.Items[0].UnitPrice.Equal(d("20.00")))
	assert.True(t, stored.Totals.GrandTotal.Equal(d("49.99")))
}

func TestPlaceOrder_RollsBackOnReservationFailure(t *testing.T) {
	// Two lines; the second decrement fails as if another checkout raced us.
	f := newFixture(t,
		activeProduct("p1", "Widget", "20.00", 10),
		activeProduct("p2", "Gadget", "5.00", 10),
	)
	f.fillUserCart(t, "u1", map[string]int{"p1": 2, "p2": 1})
	f.products.decrementFails["p2"] = true

	_, err := f.svc.PlaceOrder(context.Background(), placeReq("u1"))

	var stockErr *cart.InsufficientStockError
	require.ErrorAs(t, err, &stockErr)
	assert.Equal(t, "Gadget", stockErr.ProductName)

	// Everything the transaction touched is back where it started.
	assert.Empty(t, f.orders.byID)
	assert.Equal(t, 10, f.products.byID["p1"].Stock)
	assert.Equal(t, 10, f.products.byID["p2"].Stock)

	c, err := f.carts.GetOrCreate(context.Background(), cart.Owner{UserID: "u1"})
	require.NoError(t, err)
	assert.Len(t, c.Items, 2)
}

func TestPlaceOrder_RetriesDuplicateNumber(t *testing.T) {
	f := newFixture(t, activeProduct("p1", "Widget", "20.00", 10))
	f.fillUserCart(t, "u1", map[string]int{"p1": 1})
	f.orders.dupLeft = 2

	o, err := f.svc.PlaceOrder(context.Background(), placeReq("u1"))
	require.NoError(t, err)
	assert.Len(t, f.orders.numbers, 3)
	assert.Equal(t, 9, f.products.byID["p1"].Stock)
	assert.NotEmpty(t, o.Number)
}

func TestPlaceOrder_GivesUpAfterRepeatedCollisions(t *testing.T) {
	f := newFixture(t, activeProduct("p1", "Widget", "20.00", 10))
	f.fillUserCart(t, "u1", map[string]int{"p1": 1})
	f.orders.dupLeft = numberRetries + 1

	_, err := f.svc.PlaceOrder(context.Background(), placeReq("u1"))
	require.ErrorIs(t, err, ErrDuplicateNumber)
	assert.Equal(t, 10, f.products.byID["p1"].Stock)
}

func TestPlaceOrder_PaymentDeclineKeepsOrderPending(t *testing.T) {
	f := newFixture(t, activeProduct("p1", "Widget", "20.00", 10))
	f.fillUserCart(t, "u1", map[string]int{"p1": 1})
	f.provider.result = payment.Result{Success: false, Message: "card declined"}

	o, err := f.svc.PlaceOrder(context.Background(), placeReq("u1"))
	require.NoError(t, err)

	assert.Equal(t, StatusPending, o.Status)
	assert.Equal(t, PaymentFailed, o.Payment.Status)
	assert.Contains(t, o.Notes, "payment declined: card declined")
	// Stock stays reserved against the pending order.
	assert.Equal(t, 9, f.products.byID["p1"].Stock)
}

func TestPlaceOrder_MergesGuestCart(t *testing.T) {
	f := newFixture(t,
		activeProduct("p1", "Widget", "20.00", 10),
		activeProduct("p2", "Gadget", "5.00", 10),
	)

	guest, err := f.carts.GetOrCreate(context.Background(), cart.Owner{GuestID: "g1"})
	require.NoError(t, err)
	require.NoError(t, f.carts.AddItem(context.Background(), guest, "p2", "", 2))

	f.fillUserCart(t, "u1", map[string]int{"p1": 1})

	req := placeReq("u1")
	req.GuestID = "g1"

	o, err := f.svc.PlaceOrder(context.Background(), req)
	require.NoError(t, err)
	assert.Len(t, o.Items, 2)

	// Guest cart is gone after the merge.
	_, err = f.cartRepo.FindByOwner(context.Background(), cart.Owner{GuestID: "g1"})
	require.ErrorIs(t, err, cart.ErrNotFound)
}

func TestRefundOrder_NotFound(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.RefundOrder(context.Background(), "missing", nil, "damaged")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestRefundOrder_RequiresDelivered(t *testing.T) {
	f := newFixture(t, activeProduct("p1", "Widget", "20.00", 10))
	f.fillUserCart(t, "u1", map[string]int{"p1": 1})

	o, err := f.svc.PlaceOrder(context.Background(), placeReq("u1"))
	require.NoError(t, err)
	require.Equal(t, StatusProcessing, o.Status)

	_, err = f.svc.RefundOrder(context.Background(), o.ID, nil, "changed mind")

	var stateErr *InvalidStateError
	require.ErrorAs(t, err, &stateErr)
	assert.Equal(t, StatusProcessing, stateErr.Status)

	// No status or stock change.
	stored, _ := f.orders.FindByID(context.Background(), o.ID)
	assert.Equal(t, StatusProcessing, stored.Status)
	assert.Equal(t, 9, f.products.byID["p1"].Stock)
	assert.Equal(t, 0, f.provider.refundCalls)
}

func deliver(t *testing.T, f *fixture, orderID string) {
	t.Helper()
	_, err := f.svc.UpdateStatus(context.Background(), orderID, StatusShipped, "TRK-1")
	require.NoError(t, err)
	_, err = f.svc.UpdateStatus(context.Background(), orderID, StatusDelivered, "")
	require.NoError(t, err)
}

func TestRefundOrder_RestoresStockForEveryItem(t *testing.T) {
	f := newFixture(t,
		activeProduct("p1", "Widget", "20.00", 10),
		activeProduct("p2", "Gadget", "5.00", 10),
	)
	f.fillUserCart(t, "u1", map[string]int{"p1": 2, "p2": 1})

	o, err := f.svc.PlaceOrder(context.Background(), placeReq("u1"))
	require.NoError(t, err)
	require.Equal(t, 8, f.products.byID["p1"].Stock)
	require.Equal(t, 9, f.products.byID["p2"].Stock)

	deliver(t, f, o.ID)

	refunded, err := f.svc.RefundOrder(context.Background(), o.ID, nil, "damaged in transit")
	require.NoError(t, err)

	assert.Equal(t, StatusRefunded, refunded.Status)
	assert.Equal(t, PaymentRefunded, refunded.Payment.Status)
	assert.Equal(t, 10, f.products.byID["p1"].Stock)
	assert.Equal(t, 10, f.products.byID["p2"].Stock)
	assert.Equal(t, 1, f.provider.refundCalls)

	stored, _ := f.orders.FindByID(context.Background(), o.ID)
	assert.Equal(t, StatusRefunded, stored.Status)
	require.NotEmpty(t, stored.Notes)
	assert.Contains(t, stored.Notes[len(stored.Notes)-1], "damaged in transit")
}

func TestRefundOrder_AdapterFailureRollsBack(t *testing.T) {
	f := newFixture(t, activeProduct("p1", "Widget", "20.00", 10))
	f.fillUserCart(t, "u1", map[string]int{"p1": 2})

	o, err := f.svc.PlaceOrder(context.Background(), placeReq("u1"))
	require.NoError(t, err)
	deliver(t, f, o.ID)

	f.provider.refundErr = errors.New("gateway timeout")

	_, err = f.svc.RefundOrder(context.Background(), o.ID, nil, "damaged")
	require.Error(t, err)

	// The status change and restock must not stick.
	stored, _ := f.orders.FindByID(context.Background(), o.ID)
	assert.Equal(t, StatusDelivered, stored.Status)
	assert.Equal(t, 8, f.products.byID["p1"].Stock)
}

func TestRefundOrder_InvalidAmount(t *testing.T) {
	f := newFixture(t, activeProduct("p1", "Widget", "20.00", 10))
	f.fillUserCart(t, "u1", map[string]int{"p1": 2})

	o, err := f.svc.PlaceOrder(context.Background(), placeReq("u1"))
	require.NoError(t, err)
	deliver(t, f, o.ID)

	tooMuch := o.Totals.GrandTotal.Add(d("0.01"))
	_, err = f.svc.RefundOrder(context.Background(), o.ID, &tooMuch, "overreach")
	require.ErrorIs(t, err, ErrInvalidRefundAmount)

	zero := decimal.Zero
	_, err = f.svc.RefundOrder(context.Background(), o.ID, &zero, "nothing")
	require.ErrorIs(t, err, ErrInvalidRefundAmount)
}

func TestUpdateStatus_RejectsUnknownStatus(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.UpdateStatus(context.Background(), "any", Status("lost"), "")

	var statusErr *InvalidStatusError
	require.ErrorAs(t, err, &statusErr)
	assert.Equal(t, "lost", statusErr.Status)
}

func TestUpdateStatus_EnforcesTransitions(t *testing.T) {
	f := newFixture(t, activeProduct("p1", "Widget", "20.00", 10))
	f.fillUserCart(t, "u1", map[string]int{"p1": 1})

	o, err := f.svc.PlaceOrder(context.Background(), placeReq("u1"))
	require.NoError(t, err)

	// processing -> delivered skips shipped.
	_, err = f.svc.UpdateStatus(context.Background(), o.ID, StatusDelivered, "")
	var stateErr *InvalidStateError
	require.ErrorAs(t, err, &stateErr)

	updated, err := f.svc.UpdateStatus(context.Background(), o.ID, StatusShipped, "TRK-9")
	require.NoError(t, err)
	assert.Equal(t, StatusShipped, updated.Status)
	assert.Equal(t, "TRK-9", updated.TrackingNumber)

	stored, _ := f.orders.FindByID(context.Background(), o.ID)
	assert.Equal(t, StatusShipped, stored.Status)
	assert.Equal(t, "TRK-9", stored.TrackingNumber)
}

func TestUpdateStatus_CancelBeforeDelivery(t *testing.T) {
	f := newFixture(t, activeProduct("p1", "Widget", "20.00", 10))
	f.fillUserCart(t, "u1", map[string]int{"p1": 1})

	o, err := f.svc.PlaceOrder(context.Background(), placeReq("u1"))
	require.NoError(t, err)

	cancelled, err := f.svc.UpdateStatus(context.Background(), o.ID, StatusCancelled, "")
	require.NoError(t, err)
	assert.Equal(t, StatusCancelled, cancelled.Status)

	// Terminal: nothing moves out of cancelled.
	_, err = f.svc.UpdateStatus(context.Background(), o.ID, StatusProcessing, "")
	require.Error(t, err)
}
