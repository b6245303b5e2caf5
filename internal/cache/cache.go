package cache

import (
	"context"

	"github.com/go-faster/errors"

	"github.com/storekit/storefront/internal/domain/product"
)

// ErrCacheMiss is returned when the requested key is not cached.
var ErrCacheMiss = errors.New("cache miss")

// ProductCache stores product detail snapshots keyed by id.
type ProductCache interface {
	Get(ctx context.Context, id string) (*product.Product, error)
	Set(ctx context.Context, p *product.Product) error
	Delete(ctx context.Context, id string) error
}
