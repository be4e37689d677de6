package pos

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/kasirpos/kasirpos/internal/inventory"
	"github.com/kasirpos/kasirpos/internal/platform/db"
)

// Repository provides PostgreSQL backed persistence for the engine.
type Repository struct {
	pool        *pgxpool.Pool
	lockTimeout time.Duration
}

// NewRepository constructs a repository. lockTimeout bounds how long a commit
// waits for product or counter row locks before the attempt fails as a
// conflict.
func NewRepository(pool *pgxpool.Pool, lockTimeout time.Duration) *Repository {
	return &Repository{pool: pool, lockTimeout: lockTimeout}
}

type saleTx struct {
	tx     pgx.Tx
	ledger *inventory.TxLedger
}

// WithSaleTx wraps the callback in a repeatable-read transaction with the
// configured lock timeout applied.
func (r *Repository) WithSaleTx(ctx context.Context, fn func(context.Context, SaleTx) error) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		if err := inventory.ApplyLockTimeout(ctx, tx, r.lockTimeout); err != nil {
			return err
		}
		return fn(ctx, &saleTx{tx: tx, ledger: inventory.NewTxLedger(tx)})
	})
}

// LockProducts acquires exclusive locks on the product rows one by one in
// ascending identifier order. Missing or soft-deleted products are simply
// absent from the result; the engine decides what that means.
func (t *saleTx) LockProducts(ctx context.Context, ids []int64) (map[int64]inventory.LockedProduct, error) {
	sorted := make([]int64, len(ids))
	copy(sorted, ids)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

	products := make(map[int64]inventory.LockedProduct, len(sorted))
	for _, id := range sorted {
		product, err := t.ledger.LockProduct(ctx, id)
		if err != nil {
			if errors.Is(err, inventory.ErrProductNotFound) {
				continue
			}
			return nil, err
		}
		products[id] = product
	}
	return products, nil
}

// NextInvoiceSequence increments the day's counter row, creating it lazily.
// The upsert takes the row's exclusive lock, which is held until the
// transaction ends; that lock is what serializes invoice allocation.
func (t *saleTx) NextInvoiceSequence(ctx context.Context, prefix string, day time.Time) (int, error) {
	const query = `
		INSERT INTO invoice_counters (prefix, day, last_seq)
		VALUES ($1, $2::date, 1)
		ON CONFLICT (prefix, day)
		DO UPDATE SET last_seq = invoice_counters.last_seq + 1
		RETURNING last_seq`

	var seq int
	if err := t.tx.QueryRow(ctx, query, prefix, day).Scan(&seq); err != nil {
		return 0, fmt.Errorf("pos: bump invoice counter: %w", err)
	}
	return seq, nil
}

func (t *saleTx) InvoiceExists(ctx context.Context, invoice string) (bool, error) {
	var exists bool
	err := t.tx.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM sales WHERE invoice = $1)`, invoice).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("pos: invoice exists: %w", err)
	}
	return exists, nil
}

func (t *saleTx) InsertSale(ctx context.Context, sale *Sale) (int64, error) {
	const query = `
		INSERT INTO sales (
			invoice, user_id, customer_id, sale_date,
			subtotal, tax, discount, total,
			payment_method, cash_received, change, payment_reference,
			status, note, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, now())
		RETURNING id`

	var customerID any
	if sale.CustomerID != nil {
		customerID = *sale.CustomerID
	}
	var reference any
	if sale.PaymentReference != "" {
		reference = sale.PaymentReference
	}

	var id int64
	err := t.tx.QueryRow(ctx, query,
		sale.Invoice,
		sale.OperatorID,
		customerID,
		sale.SaleDate,
		sale.Subtotal.StringFixed(2),
		sale.Tax.StringFixed(2),
		sale.Discount.StringFixed(2),
		sale.Total.StringFixed(2),
		string(sale.PaymentMethod),
		sale.CashReceived.StringFixed(2),
		sale.Change.StringFixed(2),
		reference,
		string(sale.Status),
		sale.Note,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("pos: insert sale: %w", err)
	}
	return id, nil
}

func (t *saleTx) InsertSaleItem(ctx context.Context, item *SaleItem) error {
	const query = `
		INSERT INTO sale_items (
			sale_id, product_id, product_name, product_sku,
			qty, price, discount, subtotal
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id`

	err := t.tx.QueryRow(ctx, query,
		item.SaleID,
		item.ProductID,
		item.ProductName,
		item.ProductSKU,
		item.Qty,
		item.Price.StringFixed(2),
		item.Discount.StringFixed(2),
		item.Subtotal.StringFixed(2),
	).Scan(&item.ID)
	if err != nil {
		return fmt.Errorf("pos: insert sale item: %w", err)
	}
	return nil
}

func (t *saleTx) ApplyStockDelta(ctx context.Context, productID int64, delta int) (int, int, error) {
	return t.ledger.ApplyDelta(ctx, productID, delta)
}

func (t *saleTx) AppendLedgerEntry(ctx context.Context, entry inventory.LedgerEntry) error {
	return t.ledger.Append(ctx, entry)
}

// GetSale loads a sale with its items.
func (r *Repository) GetSale(ctx context.Context, id int64) (*Sale, error) {
	const query = `
		SELECT id, invoice, user_id, customer_id, sale_date,
		       subtotal::text, tax::text, discount::text, total::text,
		       payment_method, cash_received::text, change::text,
		       COALESCE(payment_reference, ''), status, COALESCE(note, ''), print_count
		FROM sales
		WHERE id = $1`

	var (
		sale       Sale
		customerID *int64
		method     string
		status     string
		amounts    [6]string
	)
	err := r.pool.QueryRow(ctx, query, id).Scan(
		&sale.ID, &sale.Invoice, &sale.OperatorID, &customerID, &sale.SaleDate,
		&amounts[0], &amounts[1], &amounts[2], &amounts[3],
		&method, &amounts[4], &amounts[5],
		&sale.PaymentReference, &status, &sale.Note, &sale.PrintCount,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrSaleNotFound
		}
		return nil, fmt.Errorf("pos: get sale: %w", err)
	}

	sale.CustomerID = customerID
	sale.PaymentMethod = PaymentMethod(method)
	sale.Status = SaleStatus(status)
	fields := []*decimal.Decimal{&sale.Subtotal, &sale.Tax, &sale.Discount, &sale.Total, &sale.CashReceived, &sale.Change}
	for i, raw := range amounts {
		d, err := decimal.NewFromString(raw)
		if err != nil {
			return nil, fmt.Errorf("pos: parse sale amount: %w", err)
		}
		*fields[i] = d
	}

	items, err := r.saleItems(ctx, id)
	if err != nil {
		return nil, err
	}
	sale.Items = items
	return &sale, nil
}

func (r *Repository) saleItems(ctx context.Context, saleID int64) ([]SaleItem, error) {
	const query = `
		SELECT id, sale_id, product_id, product_name, product_sku,
		       qty, price::text, discount::text, subtotal::text
		FROM sale_items
		WHERE sale_id = $1
		ORDER BY id`

	rows, err := r.pool.Query(ctx, query, saleID)
	if err != nil {
		return nil, fmt.Errorf("pos: list sale items: %w", err)
	}
	defer rows.Close()

	var items []SaleItem
	for rows.Next() {
		var (
			item    SaleItem
			amounts [3]string
		)
		if err := rows.Scan(&item.ID, &item.SaleID, &item.ProductID, &item.ProductName,
			&item.ProductSKU, &item.Qty, &amounts[0], &amounts[1], &amounts[2]); err != nil {
			return nil, fmt.Errorf("pos: scan sale item: %w", err)
		}
		fields := []*decimal.Decimal{&item.Price, &item.Discount, &item.Subtotal}
		for i, raw := range amounts {
			d, err := decimal.NewFromString(raw)
			if err != nil {
				return nil, fmt.Errorf("pos: parse item amount: %w", err)
			}
			*fields[i] = d
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

// CreateCustomer inserts a quick-registration customer. A duplicate phone
// surfaces as ErrPhoneTaken.
func (r *Repository) CreateCustomer(ctx context.Context, name, phone string) (*Customer, error) {
	const query = `
		INSERT INTO customers (name, phone, created_at)
		VALUES ($1, $2, now())
		RETURNING id, created_at`

	var phoneArg any
	if phone != "" {
		phoneArg = phone
	}

	customer := &Customer{Name: name, Phone: phone}
	err := r.pool.QueryRow(ctx, query, name, phoneArg).Scan(&customer.ID, &customer.CreatedAt)
	if err != nil {
		if db.IsUniqueViolation(err) {
			return nil, ErrPhoneTaken
		}
		return nil, fmt.Errorf("pos: create customer: %w", err)
	}
	return customer, nil
}

// TodaySummary aggregates the day's completed sales.
func (r *Repository) TodaySummary(ctx context.Context, day time.Time) (Summary, error) {
	const query = `
		SELECT COUNT(*), COALESCE(SUM(total), 0)::text
		FROM sales
		WHERE sale_date::date = $1::date AND status = 'completed'`

	var (
		summary Summary
		total   string
	)
	if err := r.pool.QueryRow(ctx, query, day).Scan(&summary.Transactions, &total); err != nil {
		return Summary{}, fmt.Errorf("pos: today summary: %w", err)
	}
	d, err := decimal.NewFromString(total)
	if err != nil {
		return Summary{}, fmt.Errorf("pos: parse summary total: %w", err)
	}
	summary.TotalSales = d
	return summary, nil
}

// IncrementPrintCount bumps and returns the sale's print counter.
func (r *Repository) IncrementPrintCount(ctx context.Context, saleID int64) (int, error) {
	var count int
	err := r.pool.QueryRow(ctx,
		`UPDATE sales SET print_count = print_count + 1 WHERE id = $1 RETURNING print_count`,
		saleID,
	).Scan(&count)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, ErrSaleNotFound
		}
		return 0, fmt.Errorf("pos: increment print count: %w", err)
	}
	return count, nil
}
