package repository

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/storekit/storefront/internal/domain/cart"
)

const (
	getCartByUserSQL = `SELECT id, user_id, guest_id, currency, created_at, updated_at
		FROM carts WHERE user_id = $1`

	getCartByGuestSQL = `SELECT id, user_id, guest_id, currency, created_at, updated_at
		FROM carts WHERE guest_id = $1`

	getCartItemsSQL = `SELECT id, product_id, variant_id, quantity, unit_price, added_at
		FROM cart_items WHERE cart_id = $1 ORDER BY added_at, id`

	upsertCartSQL = `INSERT INTO carts (id, user_id, guest_id, currency, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (id) DO UPDATE SET updated_at = EXCLUDED.updated_at`

	deleteCartItemsSQL = `DELETE FROM cart_items WHERE cart_id = $1`

	insertCartItemSQL = `INSERT INTO cart_items (id, cart_id, product_id, variant_id, quantity, unit_price, added_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`

	deleteCartSQL = `DELETE FROM carts WHERE id = $1`
)

var _ cart.Repository = (*CartRepository)(nil)

// CartRepository implements cart.Repository backed by PostgreSQL. A cart is a
// row in carts plus its lines in cart_items; Save replaces the lines
// wholesale inside one transaction.
type CartRepository struct {
	pool *pgxpool.Pool
}

// NewCartRepository returns a CartRepository that uses the given pool.
func NewCartRepository(pool *pgxpool.Pool) *CartRepository {
	return &CartRepository{pool: pool}
}

// FindByOwner returns the cart for the given owner with its items loaded.
func (r *CartRepository) FindByOwner(ctx context.Context, owner cart.Owner) (*cart.Cart, error) {
	q := queryerFrom(ctx, r.pool)

	query, arg := getCartByUserSQL, owner.UserID
	if owner.GuestID != "" {
		query, arg = getCartByGuestSQL, owner.GuestID
	}

	var (
		c       cart.Cart
		userID  *string
		guestID *string
	)
	err := q.QueryRow(ctx, query, arg).Scan(
		&c.ID, &userID, &guestID, &c.Currency, &c.CreatedAt, &c.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, cart.ErrNotFound
		}
		return nil, fmt.Errorf("finding cart: %w", err)
	}
	if userID != nil {
		c.UserID = *userID
	}
	if guestID != nil {
		c.GuestID = *guestID
	}

	rows, err := q.Query(ctx, getCartItemsSQL, c.ID)
	if err != nil {
		return nil, fmt.Errorf("loading cart items: %w", err)
	}
	c.Items, err = pgx.CollectRows(rows, func(row pgx.CollectableRow) (cart.Item, error) {
		var it cart.Item
		err := row.Scan(&it.ID, &it.ProductID, &it.VariantID, &it.Quantity, &it.UnitPrice, &it.AddedAt)
		return it, err
	})
	if err != nil {
		return nil, fmt.Errorf("loading cart items: %w", err)
	}
	return &c, nil
}

// Save upserts the cart row and replaces its items. It joins an ambient
// transaction when one is active, otherwise it opens its own so the row and
// its lines always change together.
func (r *CartRepository) Save(ctx context.Context, c *cart.Cart) error {
	if tx, ok := txFrom(ctx); ok {
		return r.save(ctx, tx, c)
	}
	return pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		return r.save(ctx, tx, c)
	})
}

func (r *CartRepository) save(ctx context.Context, q queryer, c *cart.Cart) error {
	_, err := q.Exec(ctx, upsertCartSQL,
		c.ID, nullIfEmpty(c.UserID), nullIfEmpty(c.GuestID),
		c.Currency, c.CreatedAt, c.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("upserting cart %q: %w", c.ID, err)
	}

	if _, err := q.Exec(ctx, deleteCartItemsSQL, c.ID); err != nil {
		return fmt.Errorf("clearing cart items for %q: %w", c.ID, err)
	}
	for _, it := range c.Items {
		_, err := q.Exec(ctx, insertCartItemSQL,
			it.ID, c.ID, it.ProductID, it.VariantID, it.Quantity, it.UnitPrice, it.AddedAt,
		)
		if err != nil {
			return fmt.Errorf("inserting cart item %q: %w", it.ID, err)
		}
	}
	return nil
}

// Delete removes the cart and, via cascade, its items. Deleting an absent
// cart is not an error.
func (r *CartRepository) Delete(ctx context.Context, cartID string) error {
	if _, err := queryerFrom(ctx, r.pool).Exec(ctx, deleteCartSQL, cartID); err != nil {
		return fmt.Errorf("deleting cart %q: %w", cartID, err)
	}
	return nil
}

func nullIfEmpty(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
