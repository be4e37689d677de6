package catalog

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

// Repository provides PostgreSQL backed product reads.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const productColumns = `
	id, name, sku, COALESCE(barcode, ''), cost::text, price::text,
	stock, min_stock, unit, is_active, created_at`

// Get returns one product by ID.
func (r *Repository) Get(ctx context.Context, id int64) (*Product, error) {
	query := `SELECT` + productColumns + ` FROM products WHERE id = $1 AND deleted_at IS NULL`
	return r.scanOne(r.pool.QueryRow(ctx, query, id))
}

// GetByBarcode returns one active, in-stock product by barcode.
func (r *Repository) GetByBarcode(ctx context.Context, barcode string) (*Product, error) {
	query := `SELECT` + productColumns + `
		FROM products
		WHERE barcode = $1 AND deleted_at IS NULL AND is_active AND stock > 0`
	return r.scanOne(r.pool.QueryRow(ctx, query, barcode))
}

// Search lists products matching the filter by name, SKU or exact barcode.
func (r *Repository) Search(ctx context.Context, filter SearchFilter) ([]Product, error) {
	query := `SELECT` + productColumns + ` FROM products WHERE deleted_at IS NULL`
	var args []any

	if filter.Query != "" {
		args = append(args, "%"+filter.Query+"%", filter.Query)
		query += fmt.Sprintf(" AND (name ILIKE $%d OR sku ILIKE $%d OR barcode = $%d)", len(args)-1, len(args)-1, len(args))
	}
	if filter.ActiveOnly {
		query += " AND is_active"
	}
	if filter.InStock {
		query += " AND stock > 0"
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = 20
	}
	args = append(args, limit)
	query += fmt.Sprintf(" ORDER BY name LIMIT $%d", len(args))

	return r.scanMany(ctx, query, args...)
}

// LowStock lists active products at or below their minimum threshold.
func (r *Repository) LowStock(ctx context.Context, limit int) ([]Product, error) {
	if limit <= 0 {
		limit = 50
	}
	query := `SELECT` + productColumns + `
		FROM products
		WHERE deleted_at IS NULL AND is_active AND stock <= min_stock
		ORDER BY stock ASC
		LIMIT $1`
	return r.scanMany(ctx, query, limit)
}

// HasSaleHistory reports whether any sale item references the product.
func (r *Repository) HasSaleHistory(ctx context.Context, id int64) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM sale_items WHERE product_id = $1)`, id).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("catalog: sale history check: %w", err)
	}
	return exists, nil
}

// SoftDelete marks the product deleted. Rows with sale history must be
// refused by the service before this is called.
func (r *Repository) SoftDelete(ctx context.Context, id int64) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE products SET deleted_at = now(), is_active = FALSE WHERE id = $1 AND deleted_at IS NULL`, id)
	if err != nil {
		return fmt.Errorf("catalog: delete product: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *Repository) scanOne(row pgx.Row) (*Product, error) {
	var (
		p                 Product
		costStr, priceStr string
	)
	err := row.Scan(&p.ID, &p.Name, &p.SKU, &p.Barcode, &costStr, &priceStr,
		&p.Stock, &p.MinStock, &p.Unit, &p.Active, &p.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("catalog: scan product: %w", err)
	}
	if p.Cost, err = decimal.NewFromString(costStr); err != nil {
		return nil, fmt.Errorf("catalog: parse cost: %w", err)
	}
	if p.Price, err = decimal.NewFromString(priceStr); err != nil {
		return nil, fmt.Errorf("catalog: parse price: %w", err)
	}
	return &p, nil
}

func (r *Repository) scanMany(ctx context.Context, query string, args ...any) ([]Product, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("catalog: query products: %w", err)
	}
	defer rows.Close()

	var products []Product
	for rows.Next() {
		var (
			p                 Product
			costStr, priceStr string
		)
		if err := rows.Scan(&p.ID, &p.Name, &p.SKU, &p.Barcode, &costStr, &priceStr,
			&p.Stock, &p.MinStock, &p.Unit, &p.Active, &p.CreatedAt); err != nil {
			return nil, fmt.Errorf("catalog: scan product: %w", err)
		}
		if p.Cost, err = decimal.NewFromString(costStr); err != nil {
			return nil, fmt.Errorf("catalog: parse cost: %w", err)
		}
		if p.Price, err = decimal.NewFromString(priceStr); err != nil {
			return nil, fmt.Errorf("catalog: parse price: %w", err)
		}
		products = append(products, p)
	}
	return products, rows.Err()
}
