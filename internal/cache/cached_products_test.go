package cache

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/storekit/storefront/internal/domain/product"
)

// --- Mocks ---

type fakeCache struct {
	entries map[string]*product.Product
	gets    int
	sets    int
	deletes []string
}

func newFakeCache() *fakeCache {
	return &fakeCache{entries: make(map[string]*product.Product)}
}

func (f *fakeCache) Get(_ context.Context, id string) (*product.Product, error) {
	f.gets++
	if p, ok := f.entries[id]; ok {
		cp := *p
		return &cp, nil
	}
	return nil, ErrCacheMiss
}

func (f *fakeCache) Set(_ context.Context, p *product.Product) error {
	cp := *p
	f.entries[p.ID] = &cp
	f.sets++
	return nil
}

func (f *fakeCache) Delete(_ context.Context, id string) error {
	delete(f.entries, id)
	f.deletes = append(f.deletes, id)
	return nil
}

type stubRepo struct {
	byID       map[string]*product.Product
	getCalls   int
	batchCalls int
}

func (s *stubRepo) List(_ context.Context, _ product.ListFilter) ([]product.Product, error) {
	return nil, nil
}

func (s *stubRepo) GetByID(_ context.Context, id string) (*product.Product, error) {
	s.getCalls++
	p, ok := s.byID[id]
	if !ok {
		return nil, product.ErrNotFound
	}
	cp := *p
	return &cp, nil
}

func (s *stubRepo) GetByIDs(_ context.Context, ids []string) ([]product.Product, error) {
	s.batchCalls++
	var out []product.Product
	for _, id := range ids {
		if p, ok := s.byID[id]; ok {
			out = append(out, *p)
		}
	}
	return out, nil
}

func (s *stubRepo) DecrementStock(_ context.Context, id string, qty int) error {
	s.byID[id].Stock -= qty
	return nil
}

func (s *stubRepo) IncrementStock(_ context.Context, id string, qty int) error {
	s.byID[id].Stock += qty
	return nil
}

// --- Tests ---

func testProduct() *product.Product {
	return &product.Product{
		ID:     "p1",
		SKU:    "SKU-1",
		Name:   "Widget",
		Price:  decimal.RequireFromString("9.99"),
		Stock:  5,
		Status: product.StatusActive,
	}
}

func newCached(t *testing.T) (*CachedProductRepository, *stubRepo, *fakeCache) {
	t.Helper()
	repo := &stubRepo{byID: map[string]*product.Product{"p1": testProduct()}}
	fc := newFakeCache()
	return NewCachedProductRepository(repo, fc, zaptest.NewLogger(t)), repo, fc
}

func TestGetByID_FillsCacheOnMiss(t *testing.T) {
	cached, repo, fc := newCached(t)

	p, err := cached.GetByID(context.Background(), "p1")
	require.NoError(t, err)
	assert.Equal(t, "Widget", p.Name)
	assert.Equal(t, 1, repo.getCalls)
	assert.Equal(t, 1, fc.sets)

	// Second read is served from cache.
	_, err = cached.GetByID(context.Background(), "p1")
	require.NoError(t, err)
	assert.Equal(t, 1, repo.getCalls)
}

func TestGetByID_MissingProduct(t *testing.T) {
	cached, _, fc := newCached(t)

	_, err := cached.GetByID(context.Background(), "nope")
	require.ErrorIs(t, err, product.ErrNotFound)
	assert.Zero(t, fc.sets)
}

func TestGetByIDs_BypassesCache(t *testing.T) {
	cached, repo, fc := newCached(t)

	// Warm the cache, then mutate the store underneath it.
	_, err := cached.GetByID(context.Background(), "p1")
	require.NoError(t, err)
	repo.byID["p1"].Stock = 1

	out, err := cached.GetByIDs(context.Background(), []string{"p1"})
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, 1, out[0].Stock, "batch reads must see live stock")
	assert.Equal(t, 1, repo.batchCalls)
	assert.Equal(t, 1, fc.gets, "batch read must not consult the cache")
}

func TestStockMutationsInvalidate(t *testing.T) {
	cached, _, fc := newCached(t)

	_, err := cached.GetByID(context.Background(), "p1")
	require.NoError(t, err)

	require.NoError(t, cached.DecrementStock(context.Background(), "p1", 2))
	assert.Equal(t, []string{"p1"}, fc.deletes)

	// Next detail read refetches and sees the decrement.
	p, err := cached.GetByID(context.Background(), "p1")
	require.NoError(t, err)
	assert.Equal(t, 3, p.Stock)

	require.NoError(t, cached.IncrementStock(context.Background(), "p1", 2))
	assert.Equal(t, []string{"p1", "p1"}, fc.deletes)
}
