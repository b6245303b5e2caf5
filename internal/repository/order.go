package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/storekit/storefront/internal/domain/order"
)

const (
	orderColumns = `id, order_number, user_id, items, shipping_address, billing_address, contact,
		subtotal, shipping, tax, discount, grand_total, currency, status,
		payment_provider, payment_status, payment_intent_id, payment_charge_id,
		payment_transaction_id, payment_amount, payment_currency,
		shipping_method, notes, tracking_number, created_at, updated_at`

	createOrderSQL = `INSERT INTO orders (` + orderColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14,
			$15, $16, $17, $18, $19, $20, $21, $22, $23, $24, $25, $26)`

	getOrderByIDSQL = `SELECT ` + orderColumns + ` FROM orders WHERE id = $1`

	getOrderByNumberSQL = `SELECT ` + orderColumns + ` FROM orders WHERE order_number = $1`

	updateOrderStatusSQL = `UPDATE orders SET status = $2,
		tracking_number = CASE WHEN $3 <> '' THEN $3 ELSE tracking_number END,
		updated_at = now()
		WHERE id = $1`

	updateOrderSQL = `UPDATE orders SET status = $2, payment_status = $3,
		payment_intent_id = $4, payment_charge_id = $5, payment_transaction_id = $6,
		notes = $7, tracking_number = $8, updated_at = $9
		WHERE id = $1`
)

var _ order.Repository = (*OrderRepository)(nil)

// OrderRepository implements order.Repository backed by PostgreSQL. Item
// snapshots, addresses, contact info and notes live in JSONB columns; the
// money and status fields are real columns so they can be filtered on.
type OrderRepository struct {
	pool *pgxpool.Pool
}

// NewOrderRepository returns an OrderRepository that uses the given pool.
func NewOrderRepository(pool *pgxpool.Pool) *OrderRepository {
	return &OrderRepository{pool: pool}
}

// Create persists a new order. A unique violation on the order number maps to
// order.ErrDuplicateNumber so the caller can retry with a fresh one.
func (r *OrderRepository) Create(ctx context.Context, o *order.Order) error {
	items, err := json.Marshal(o.Items)
	if err != nil {
		return fmt.Errorf("marshaling order items: %w", err)
	}
	shipping, err := json.Marshal(o.ShippingAddress)
	if err != nil {
		return fmt.Errorf("marshaling shipping address: %w", err)
	}
	var billing []byte
	if o.BillingAddress != nil {
		if billing, err = json.Marshal(o.BillingAddress); err != nil {
			return fmt.Errorf("marshaling billing address: %w", err)
		}
	}
	contact, err := json.Marshal(o.Contact)
	if err != nil {
		return fmt.Errorf("marshaling contact: %w", err)
	}
	notes, err := marshalNotes(o.Notes)
	if err != nil {
		return err
	}

	_, err = queryerFrom(ctx, r.pool).Exec(ctx, createOrderSQL,
		o.ID, o.Number, o.UserID, items, shipping, billing, contact,
		o.Totals.Subtotal, o.Totals.Shipping, o.Totals.Tax, o.Totals.Discount,
		o.Totals.GrandTotal, o.Currency, string(o.Status),
		o.Payment.Provider, string(o.Payment.Status), o.Payment.IntentID,
		o.Payment.ChargeID, o.Payment.TransactionID, o.Payment.Amount,
		o.Payment.Currency, o.ShippingMethod, notes, o.TrackingNumber,
		o.CreatedAt, o.UpdatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" &&
			strings.Contains(pgErr.ConstraintName, "order_number") {
			return order.ErrDuplicateNumber
		}
		return fmt.Errorf("creating order %q: %w", o.ID, err)
	}
	return nil
}

// FindByID returns a single order by its identifier.
func (r *OrderRepository) FindByID(ctx context.Context, id string) (*order.Order, error) {
	return r.findOne(ctx, getOrderByIDSQL, id)
}

// FindByNumber returns a single order by its customer-facing number.
func (r *OrderRepository) FindByNumber(ctx context.Context, number string) (*order.Order, error) {
	return r.findOne(ctx, getOrderByNumberSQL, number)
}

func (r *OrderRepository) findOne(ctx context.Context, query, arg string) (*order.Order, error) {
	rows, err := queryerFrom(ctx, r.pool).Query(ctx, query, arg)
	if err != nil {
		return nil, fmt.Errorf("getting order: %w", err)
	}

	o, err := pgx.CollectExactlyOneRow(rows, scanOrder)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, order.ErrNotFound
		}
		return nil, fmt.Errorf("getting order: %w", err)
	}
	return &o, nil
}

// List returns a page of orders matching the filter, newest first, plus the
// total match count.
func (r *OrderRepository) List(ctx context.Context, filter order.ListFilter, page order.Page) ([]order.Order, int, error) {
	q := queryerFrom(ctx, r.pool)
	page = page.Normalize()

	where, args := buildOrderFilter(filter)

	var total int
	countSQL := `SELECT count(*) FROM orders` + where
	if err := q.QueryRow(ctx, countSQL, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("counting orders: %w", err)
	}

	listSQL := fmt.Sprintf(`SELECT %s FROM orders%s ORDER BY created_at DESC, id LIMIT $%d OFFSET $%d`,
		orderColumns, where, len(args)+1, len(args)+2)
	args = append(args, page.Limit, page.Offset())

	rows, err := q.Query(ctx, listSQL, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("listing orders: %w", err)
	}
	out, err := pgx.CollectRows(rows, scanOrder)
	if err != nil {
		return nil, 0, fmt.Errorf("listing orders: %w", err)
	}
	return out, total, nil
}

func buildOrderFilter(filter order.ListFilter) (string, []any) {
	var (
		conds []string
		args  []any
	)
	if filter.UserID != "" {
		args = append(args, filter.UserID)
		conds = append(conds, fmt.Sprintf("user_id = $%d", len(args)))
	}
	if filter.Status != "" {
		args = append(args, string(filter.Status))
		conds = append(conds, fmt.Sprintf("status = $%d", len(args)))
	}
	if len(conds) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

// UpdateStatus sets the order's status and, when non-empty, its tracking
// number.
func (r *OrderRepository) UpdateStatus(ctx context.Context, id string, status order.Status, trackingNumber string) error {
	tag, err := queryerFrom(ctx, r.pool).Exec(ctx, updateOrderStatusSQL, id, string(status), trackingNumber)
	if err != nil {
		return fmt.Errorf("updating order %q status: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return order.ErrNotFound
	}
	return nil
}

// Update persists the order's mutable fields.
func (r *OrderRepository) Update(ctx context.Context, o *order.Order) error {
	notes, err := marshalNotes(o.Notes)
	if err != nil {
		return err
	}

	tag, err := queryerFrom(ctx, r.pool).Exec(ctx, updateOrderSQL,
		o.ID, string(o.Status), string(o.Payment.Status),
		o.Payment.IntentID, o.Payment.ChargeID, o.Payment.TransactionID,
		notes, o.TrackingNumber, o.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("updating order %q: %w", o.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return order.ErrNotFound
	}
	return nil
}

func marshalNotes(notes []string) ([]byte, error) {
	if notes == nil {
		notes = []string{}
	}
	b, err := json.Marshal(notes)
	if err != nil {
		return nil, fmt.Errorf("marshaling order notes: %w", err)
	}
	return b, nil
}

func scanOrder(row pgx.CollectableRow) (order.Order, error) {
	var (
		o        order.Order
		items    []byte
		shipping []byte
		billing  []byte
		contact  []byte
		notes    []byte
		status   string
		payState string
	)
	err := row.Scan(
		&o.ID, &o.Number, &o.UserID, &items, &shipping, &billing, &contact,
		&o.Totals.Subtotal, &o.Totals.Shipping, &o.Totals.Tax,
		&o.Totals.Discount, &o.Totals.GrandTotal, &o.Currency, &status,
		&o.Payment.Provider, &payState, &o.Payment.IntentID,
		&o.Payment.ChargeID, &o.Payment.TransactionID, &o.Payment.Amount,
		&o.Payment.Currency, &o.ShippingMethod, &notes, &o.TrackingNumber,
		&o.CreatedAt, &o.UpdatedAt,
	)
	if err != nil {
		return o, err
	}

	o.Status = order.Status(status)
	o.Payment.Status = order.PaymentStatus(payState)

	if err := json.Unmarshal(items, &o.Items); err != nil {
		return o, fmt.Errorf("unmarshaling order items: %w", err)
	}
	if err := json.Unmarshal(shipping, &o.ShippingAddress); err != nil {
		return o, fmt.Errorf("unmarshaling shipping address: %w", err)
	}
	if len(billing) > 0 {
		o.BillingAddress = &order.Address{}
		if err := json.Unmarshal(billing, o.BillingAddress); err != nil {
			return o, fmt.Errorf("unmarshaling billing address: %w", err)
		}
	}
	if err := json.Unmarshal(contact, &o.Contact); err != nil {
		return o, fmt.Errorf("unmarshaling contact: %w", err)
	}
	if len(notes) > 0 {
		if err := json.Unmarshal(notes, &o.Notes); err != nil {
			return o, fmt.Errorf("unmarshaling order notes: %w", err)
		}
	}
	return o, nil
}
