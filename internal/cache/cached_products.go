package cache

import (
	"context"

	"github.com/go-faster/errors"
	"go.uber.org/zap"

	"github.com/storekit/storefront/internal/domain/product"
)

var _ product.Repository = (*CachedProductRepository)(nil)

// CachedProductRepository decorates a product.Repository with a read-through
// cache on single-product reads. Batch reads and listings go straight to the
// store: checkout re-validates stock against them and must see live values.
type CachedProductRepository struct {
	inner product.Repository
	cache ProductCache
	lg    *zap.Logger
}

// NewCachedProductRepository wraps inner with the given cache.
func NewCachedProductRepository(inner product.Repository, cache ProductCache, lg *zap.Logger) *CachedProductRepository {
	return &CachedProductRepository{
		inner: inner,
		cache: cache,
		lg:    lg,
	}
}

func (r *CachedProductRepository) List(ctx context.Context, filter product.ListFilter) ([]product.Product, error) {
	return r.inner.List(ctx, filter)
}

// GetByID serves from cache when possible and fills the cache on a miss.
// Cache failures degrade to the store, they never fail the read.
func (r *CachedProductRepository) GetByID(ctx context.Context, id string) (*product.Product, error) {
	p, err := r.cache.Get(ctx, id)
	if err == nil {
		return p, nil
	}
	if !errors.Is(err, ErrCacheMiss) {
		r.lg.Warn("product cache read failed", zap.String("id", id), zap.Error(err))
	}

	p, err = r.inner.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := r.cache.Set(ctx, p); err != nil {
		r.lg.Warn("product cache write failed", zap.String("id", id), zap.Error(err))
	}
	return p, nil
}

func (r *CachedProductRepository) GetByIDs(ctx context.Context, ids []string) ([]product.Product, error) {
	return r.inner.GetByIDs(ctx, ids)
}

// DecrementStock mutates the store and drops the cached entry so the next
// detail read sees the new stock.
func (r *CachedProductRepository) DecrementStock(ctx context.Context, id string, qty int) error {
	if err := r.inner.DecrementStock(ctx, id, qty); err != nil {
		return err
	}
	r.invalidate(ctx, id)
	return nil
}

func (r *CachedProductRepository) IncrementStock(ctx context.Context, id string, qty int) error {
	if err := r.inner.IncrementStock(ctx, id, qty); err != nil {
		return err
	}
	r.invalidate(ctx, id)
	return nil
}

func (r *CachedProductRepository) invalidate(ctx context.Context, id string) {
	if err := r.cache.Delete(ctx, id); err != nil {
		r.lg.Warn("product cache invalidation failed", zap.String("id", id), zap.Error(err))
	}
}
