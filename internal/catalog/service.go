package catalog

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// RepositoryPort abstracts repository usage for the service.
type RepositoryPort interface {
	Get(ctx context.Context, id int64) (*Product, error)
	GetByBarcode(ctx context.Context, barcode string) (*Product, error)
	Search(ctx context.Context, filter SearchFilter) ([]Product, error)
	LowStock(ctx context.Context, limit int) ([]Product, error)
	HasSaleHistory(ctx context.Context, id int64) (bool, error)
	SoftDelete(ctx context.Context, id int64) error
}

// Service exposes the product lookup surface the POS terminals use.
type Service struct {
	repo RepositoryPort
}

// NewService builds Service.
func NewService(repo RepositoryPort) *Service {
	return &Service{repo: repo}
}

// Get returns one product by ID.
func (s *Service) Get(ctx context.Context, id int64) (*Product, error) {
	if id <= 0 {
		return nil, ErrNotFound
	}
	return s.repo.Get(ctx, id)
}

// GetByBarcode resolves a scanned barcode to an active, in-stock product.
func (s *Service) GetByBarcode(ctx context.Context, barcode string) (*Product, error) {
	barcode = strings.TrimSpace(barcode)
	if barcode == "" {
		return nil, ErrNotFound
	}
	return s.repo.GetByBarcode(ctx, barcode)
}

// Search lists sellable products matching a terminal's query.
func (s *Service) Search(ctx context.Context, filter SearchFilter) ([]Product, error) {
	return s.repo.Search(ctx, filter)
}

// LowStock lists products needing restock.
func (s *Service) LowStock(ctx context.Context, limit int) ([]Product, error) {
	return s.repo.LowStock(ctx, limit)
}

// Delete soft-deletes a product. Products referenced by sale history are
// refused: receipts snapshot name and SKU, but the foreign keys must keep
// resolving.
func (s *Service) Delete(ctx context.Context, id int64) error {
	if _, err := s.repo.Get(ctx, id); err != nil {
		return err
	}
	hasHistory, err := s.repo.HasSaleHistory(ctx, id)
	if err != nil {
		return fmt.Errorf("catalog: delete product %d: %w", id, err)
	}
	if hasHistory {
		return ErrHasSaleHistory
	}
	if err := s.repo.SoftDelete(ctx, id); err != nil && !errors.Is(err, ErrNotFound) {
		return fmt.Errorf("catalog: delete product %d: %w", id, err)
	}
	return nil
}
