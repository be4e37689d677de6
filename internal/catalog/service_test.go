package catalog

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

type memoryCatalogRepo struct {
	products map[int64]*Product
	history  map[int64]bool
	deleted  map[int64]bool
}

func newMemoryCatalogRepo() *memoryCatalogRepo {
	return &memoryCatalogRepo{
		products: make(map[int64]*Product),
		history:  make(map[int64]bool),
		deleted:  make(map[int64]bool),
	}
}

func (r *memoryCatalogRepo) Get(ctx context.Context, id int64) (*Product, error) {
	p, ok := r.products[id]
	if !ok || r.deleted[id] {
		return nil, ErrNotFound
	}
	out := *p
	return &out, nil
}

func (r *memoryCatalogRepo) GetByBarcode(ctx context.Context, barcode string) (*Product, error) {
	for id, p := range r.products {
		if p.Barcode == barcode && p.Active && p.Stock > 0 && !r.deleted[id] {
			out := *p
			return &out, nil
		}
	}
	return nil, ErrNotFound
}

func (r *memoryCatalogRepo) Search(ctx context.Context, filter SearchFilter) ([]Product, error) {
	var out []Product
	for id, p := range r.products {
		if r.deleted[id] {
			continue
		}
		if filter.Query != "" && !strings.Contains(strings.ToLower(p.Name), strings.ToLower(filter.Query)) {
			continue
		}
		out = append(out, *p)
	}
	return out, nil
}

func (r *memoryCatalogRepo) LowStock(ctx context.Context, limit int) ([]Product, error) {
	var out []Product
	for id, p := range r.products {
		if !r.deleted[id] && p.LowStock() {
			out = append(out, *p)
		}
	}
	return out, nil
}

func (r *memoryCatalogRepo) HasSaleHistory(ctx context.Context, id int64) (bool, error) {
	return r.history[id], nil
}

func (r *memoryCatalogRepo) SoftDelete(ctx context.Context, id int64) error {
	if _, ok := r.products[id]; !ok {
		return ErrNotFound
	}
	r.deleted[id] = true
	return nil
}

func TestGetByBarcode(t *testing.T) {
	repo := newMemoryCatalogRepo()
	repo.products[1] = &Product{ID: 1, Name: "Kopi Sachet", Barcode: "8991234567890", Stock: 10, Active: true}
	svc := NewService(repo)
	ctx := context.Background()

	p, err := svc.GetByBarcode(ctx, " 8991234567890 ")
	require.NoError(t, err)
	require.Equal(t, int64(1), p.ID)

	_, err = svc.GetByBarcode(ctx, "")
	require.ErrorIs(t, err, ErrNotFound)

	_, err = svc.GetByBarcode(ctx, "0000000000000")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestDeleteRefusesProductsWithSaleHistory(t *testing.T) {
	repo := newMemoryCatalogRepo()
	repo.products[1] = &Product{ID: 1, Name: "Kopi Sachet", Active: true}
	repo.history[1] = true
	svc := NewService(repo)

	err := svc.Delete(context.Background(), 1)
	require.ErrorIs(t, err, ErrHasSaleHistory)
	require.False(t, repo.deleted[1])
}

func TestDeleteSoftDeletesUnsoldProduct(t *testing.T) {
	repo := newMemoryCatalogRepo()
	repo.products[1] = &Product{ID: 1, Name: "Kopi Sachet", Active: true}
	svc := NewService(repo)
	ctx := context.Background()

	require.NoError(t, svc.Delete(ctx, 1))
	require.True(t, repo.deleted[1])

	_, err := svc.Get(ctx, 1)
	require.ErrorIs(t, err, ErrNotFound)
}

func TestDeleteUnknownProduct(t *testing.T) {
	repo := newMemoryCatalogRepo()
	svc := NewService(repo)

	err := svc.Delete(context.Background(), 42)
	require.ErrorIs(t, err, ErrNotFound)
}

func TestLowStockHelper(t *testing.T) {
	require.True(t, Product{Stock: 3, MinStock: 5}.LowStock())
	require.True(t, Product{Stock: 5, MinStock: 5}.LowStock())
	require.False(t, Product{Stock: 6, MinStock: 5}.LowStock())
}
