package repository

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/storekit/storefront/internal/domain/product"
)

const (
	productColumns = `id, sku, slug, name, description, price, currency, stock, status, variants`

	listProductsSQL = `SELECT ` + productColumns + `
		FROM products ORDER BY name, id`

	listProductsByStatusSQL = `SELECT ` + productColumns + `
		FROM products WHERE status = $1 ORDER BY name, id`

	getProductByIDSQL = `SELECT ` + productColumns + `
		FROM products WHERE id = $1`

	getProductsByIDsSQL = `SELECT ` + productColumns + `
		FROM products WHERE id = ANY($1)`

	// The stock check is part of the UPDATE predicate so concurrent checkouts
	// can never drive stock negative.
	decrementStockSQL = `UPDATE products SET stock = stock - $2, updated_at = now()
		WHERE id = $1 AND stock >= $2`

	incrementStockSQL = `UPDATE products SET stock = stock + $2, updated_at = now()
		WHERE id = $1`

	productExistsSQL = `SELECT EXISTS (SELECT 1 FROM products WHERE id = $1)`
)

var _ product.Repository = (*ProductRepository)(nil)

// ProductRepository implements product.Repository backed by PostgreSQL.
type ProductRepository struct {
	pool *pgxpool.Pool
}

// NewProductRepository returns a ProductRepository that uses the given pool.
func NewProductRepository(pool *pgxpool.Pool) *ProductRepository {
	return &ProductRepository{pool: pool}
}

// List returns catalog products matching the filter, ordered by name.
func (r *ProductRepository) List(ctx context.Context, filter product.ListFilter) ([]product.Product, error) {
	q := queryerFrom(ctx, r.pool)

	var (
		rows pgx.Rows
		err  error
	)
	if filter.Status != "" {
		rows, err = q.Query(ctx, listProductsByStatusSQL, string(filter.Status))
	} else {
		rows, err = q.Query(ctx, listProductsSQL)
	}
	if err != nil {
		return nil, fmt.Errorf("listing products: %w", err)
	}
	return pgx.CollectRows(rows, scanProduct)
}

// GetByID returns a single product by its identifier.
func (r *ProductRepository) GetByID(ctx context.Context, id string) (*product.Product, error) {
	rows, err := queryerFrom(ctx, r.pool).Query(ctx, getProductByIDSQL, id)
	if err != nil {
		return nil, fmt.Errorf("getting product %q: %w", id, err)
	}

	p, err := pgx.CollectExactlyOneRow(rows, scanProduct)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, product.ErrNotFound
		}
		return nil, fmt.Errorf("getting product %q: %w", id, err)
	}
	return &p, nil
}

// GetByIDs returns products matching any of the given IDs.
func (r *ProductRepository) GetByIDs(ctx context.Context, ids []string) ([]product.Product, error) {
	rows, err := queryerFrom(ctx, r.pool).Query(ctx, getProductsByIDsSQL, ids)
	if err != nil {
		return nil, fmt.Errorf("getting products by ids: %w", err)
	}
	return pgx.CollectRows(rows, scanProduct)
}

// DecrementStock conditionally subtracts qty from the product's stock. The
// update only matches when enough stock remains, so a zero row count means
// either a missing product or insufficient stock.
func (r *ProductRepository) DecrementStock(ctx context.Context, id string, qty int) error {
	q := queryerFrom(ctx, r.pool)

	tag, err := q.Exec(ctx, decrementStockSQL, id, qty)
	if err != nil {
		return fmt.Errorf("decrementing stock for %q: %w", id, err)
	}
	if tag.RowsAffected() > 0 {
		return nil
	}

	var exists bool
	if err := q.QueryRow(ctx, productExistsSQL, id).Scan(&exists); err != nil {
		return fmt.Errorf("checking product %q: %w", id, err)
	}
	if !exists {
		return product.ErrNotFound
	}
	return product.ErrInsufficientStock
}

// IncrementStock adds qty back to the product's stock.
func (r *ProductRepository) IncrementStock(ctx context.Context, id string, qty int) error {
	tag, err := queryerFrom(ctx, r.pool).Exec(ctx, incrementStockSQL, id, qty)
	if err != nil {
		return fmt.Errorf("incrementing stock for %q: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return product.ErrNotFound
	}
	return nil
}

func scanProduct(row pgx.CollectableRow) (product.Product, error) {
	var (
		p        product.Product
		variants []byte
	)
	err := row.Scan(
		&p.ID, &p.SKU, &p.Slug, &p.Name, &p.Description,
		&p.Price, &p.Currency, &p.Stock, &p.Status, &variants,
	)
	if err != nil {
		return p, err
	}
	if len(variants) > 0 {
		if err := json.Unmarshal(variants, &p.Variants); err != nil {
			return p, fmt.Errorf("unmarshaling variants for %q: %w", p.ID, err)
		}
	}
	return p, nil
}
