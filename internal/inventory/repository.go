package inventory

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/kasirpos/kasirpos/internal/platform/db"
)

// Repository persists ledger data in PostgreSQL.
type Repository struct {
	pool        *pgxpool.Pool
	lockTimeout time.Duration
}

// NewRepository constructs Repository. lockTimeout bounds FOR UPDATE waits
// inside ledger transactions.
func NewRepository(pool *pgxpool.Pool, lockTimeout time.Duration) *Repository {
	return &Repository{pool: pool, lockTimeout: lockTimeout}
}

// LedgerTx exposes the transactional ledger operations. Product stock is
// mutated exclusively through ApplyDelta.
type LedgerTx interface {
	LockProduct(ctx context.Context, id int64) (LockedProduct, error)
	ApplyDelta(ctx context.Context, productID int64, delta int) (before, after int, err error)
	Append(ctx context.Context, entry LedgerEntry) error
}

// WithTx executes the callback inside a repeatable-read transaction with the
// configured lock timeout applied.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, LedgerTx) error) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		if err := ApplyLockTimeout(ctx, tx, r.lockTimeout); err != nil {
			return err
		}
		return fn(ctx, NewTxLedger(tx))
	})
}

// ApplyLockTimeout sets a transaction-local bound on lock waits so a commit
// blocked behind another terminal turns into a retryable conflict instead of
// waiting indefinitely.
func ApplyLockTimeout(ctx context.Context, tx pgx.Tx, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	_, err := tx.Exec(ctx, fmt.Sprintf("SET LOCAL lock_timeout = '%dms'", d.Milliseconds()))
	if err != nil {
		return fmt.Errorf("inventory: set lock timeout: %w", err)
	}
	return nil
}

// TxLedger is the pgx-backed LedgerTx. It is exported so the sale-commit
// engine can reuse it inside its own transaction scope.
type TxLedger struct {
	tx pgx.Tx
}

// NewTxLedger wraps an open transaction.
func NewTxLedger(tx pgx.Tx) *TxLedger {
	return &TxLedger{tx: tx}
}

// LockProduct acquires an exclusive row lock and returns the fresh values.
func (l *TxLedger) LockProduct(ctx context.Context, id int64) (LockedProduct, error) {
	const query = `
		SELECT id, name, sku, stock, min_stock, price::text, cost::text, is_active
		FROM products
		WHERE id = $1 AND deleted_at IS NULL
		FOR UPDATE`

	var (
		p                 LockedProduct
		priceStr, costStr string
	)
	err := l.tx.QueryRow(ctx, query, id).Scan(
		&p.ID, &p.Name, &p.SKU, &p.Stock, &p.MinStock, &priceStr, &costStr, &p.Active,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return LockedProduct{}, ErrProductNotFound
		}
		return LockedProduct{}, fmt.Errorf("inventory: lock product %d: %w", id, err)
	}
	if p.Price, err = decimal.NewFromString(priceStr); err != nil {
		return LockedProduct{}, fmt.Errorf("inventory: parse price: %w", err)
	}
	if p.Cost, err = decimal.NewFromString(costStr); err != nil {
		return LockedProduct{}, fmt.Errorf("inventory: parse cost: %w", err)
	}
	return p, nil
}

// ApplyDelta mutates the locked product's stock. The caller must hold the row
// lock via LockProduct in the same transaction.
func (l *TxLedger) ApplyDelta(ctx context.Context, productID int64, delta int) (int, int, error) {
	if delta == 0 {
		return 0, 0, ErrInvalidQuantity
	}

	var before int
	err := l.tx.QueryRow(ctx, `SELECT stock FROM products WHERE id = $1 FOR UPDATE`, productID).Scan(&before)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, 0, ErrProductNotFound
		}
		return 0, 0, fmt.Errorf("inventory: read stock %d: %w", productID, err)
	}

	after := before + delta
	if after < 0 {
		return before, before, ErrNegativeStock
	}

	_, err = l.tx.Exec(ctx, `UPDATE products SET stock = $2, updated_at = now() WHERE id = $1`, productID, after)
	if err != nil {
		return before, before, fmt.Errorf("inventory: apply delta %d: %w", productID, err)
	}
	return before, after, nil
}

// Append writes one immutable ledger entry.
func (l *TxLedger) Append(ctx context.Context, entry LedgerEntry) error {
	const query = `
		INSERT INTO stock_ledger (
			product_id, user_id, type, qty, stock_before, stock_after,
			reference_type, reference_id, note, logged_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`

	var refID any
	if entry.ReferenceID != 0 {
		refID = entry.ReferenceID
	}
	_, err := l.tx.Exec(ctx, query,
		entry.ProductID,
		entry.OperatorID,
		string(entry.Type),
		entry.Qty,
		entry.StockBefore,
		entry.StockAfter,
		entry.ReferenceType,
		refID,
		entry.Note,
		entry.LoggedAt,
	)
	if err != nil {
		return fmt.Errorf("inventory: append ledger entry: %w", err)
	}
	return nil
}

// ListEntries returns ledger entries matching the filter, oldest first.
func (r *Repository) ListEntries(ctx context.Context, filter LedgerFilter) ([]LedgerEntry, error) {
	query := `
		SELECT id, product_id, user_id, type, qty, stock_before, stock_after,
		       COALESCE(reference_type, ''), COALESCE(reference_id, 0), COALESCE(note, ''), logged_at
		FROM stock_ledger
		WHERE product_id = $1`
	args := []any{filter.ProductID}

	if filter.Type != "" {
		args = append(args, string(filter.Type))
		query += fmt.Sprintf(" AND type = $%d", len(args))
	}
	if !filter.From.IsZero() {
		args = append(args, filter.From)
		query += fmt.Sprintf(" AND logged_at >= $%d", len(args))
	}
	if !filter.To.IsZero() {
		args = append(args, filter.To)
		query += fmt.Sprintf(" AND logged_at <= $%d", len(args))
	}
	query += " ORDER BY id ASC"
	limit := filter.Limit
	if limit <= 0 {
		limit = 200
	}
	args = append(args, limit)
	query += fmt.Sprintf(" LIMIT $%d", len(args))

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("inventory: list entries: %w", err)
	}
	defer rows.Close()

	var entries []LedgerEntry
	for rows.Next() {
		var e LedgerEntry
		var movementType string
		if err := rows.Scan(&e.ID, &e.ProductID, &e.OperatorID, &movementType, &e.Qty,
			&e.StockBefore, &e.StockAfter, &e.ReferenceType, &e.ReferenceID, &e.Note, &e.LoggedAt); err != nil {
			return nil, fmt.Errorf("inventory: scan entry: %w", err)
		}
		e.Type = MovementType(movementType)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// CurrentStock reads the live stock counter without locking.
func (r *Repository) CurrentStock(ctx context.Context, productID int64) (int, error) {
	var stock int
	err := r.pool.QueryRow(ctx, `SELECT stock FROM products WHERE id = $1 AND deleted_at IS NULL`, productID).Scan(&stock)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, ErrProductNotFound
		}
		return 0, fmt.Errorf("inventory: current stock: %w", err)
	}
	return stock, nil
}
