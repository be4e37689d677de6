package catalog

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

// Product is a sellable item. Stock is owned by the inventory ledger and is
// read-only here.
type Product struct {
	ID        int64           `json:"id"`
	Name      string          `json:"name"`
	SKU       string          `json:"sku"`
	Barcode   string          `json:"barcode,omitempty"`
	Cost      decimal.Decimal `json:"cost"`
	Price     decimal.Decimal `json:"price"`
	Stock     int             `json:"stock"`
	MinStock  int             `json:"min_stock"`
	Unit      string          `json:"unit"`
	Active    bool            `json:"is_active"`
	CreatedAt time.Time       `json:"created_at"`
}

// LowStock reports whether the product sits at or below its minimum.
func (p Product) LowStock() bool {
	return p.Stock <= p.MinStock
}

// SearchFilter narrows product listings.
type SearchFilter struct {
	Query      string
	ActiveOnly bool
	InStock    bool
	Limit      int
}

var (
	// ErrNotFound indicates a missing or soft-deleted product.
	ErrNotFound = errors.New("catalog: product not found")
	// ErrHasSaleHistory refuses deletion of a product referenced by sales.
	ErrHasSaleHistory = errors.New("catalog: product has sale history and cannot be deleted")
)
