package purchasing

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/kasirpos/kasirpos/internal/inventory"
	"github.com/kasirpos/kasirpos/internal/platform/db"
)

// Repository persists purchase orders with pgx.
type Repository struct {
	pool        *pgxpool.Pool
	lockTimeout time.Duration
}

func NewRepository(pool *pgxpool.Pool, lockTimeout time.Duration) *Repository {
	return &Repository{pool: pool, lockTimeout: lockTimeout}
}

// PurchaseTx is the transactional surface used while receiving an order.
type PurchaseTx interface {
	NextInvoiceSequence(ctx context.Context, prefix string, day time.Time) (int, error)
	InvoiceExists(ctx context.Context, invoice string) (bool, error)
	InsertPurchase(ctx context.Context, p *Purchase) (int64, error)
	InsertPurchaseItem(ctx context.Context, item *PurchaseItem) error
	GetForUpdate(ctx context.Context, id int64) (*Purchase, error)
	MarkReceived(ctx context.Context, id int64, receivedAt time.Time) error
	LockProduct(ctx context.Context, productID int64) (inventory.LockedProduct, error)
	ApplyStockDelta(ctx context.Context, productID int64, delta int) (before, after int, err error)
	AppendLedgerEntry(ctx context.Context, entry inventory.LedgerEntry) error
}

type purchaseTx struct {
	tx     pgx.Tx
	ledger *inventory.TxLedger
}

// WithPurchaseTx runs fn inside a repeatable-read transaction with the
// configured lock timeout applied.
func (r *Repository) WithPurchaseTx(ctx context.Context, fn func(PurchaseTx) error) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		if err := inventory.ApplyLockTimeout(ctx, tx, r.lockTimeout); err != nil {
			return err
		}
		return fn(&purchaseTx{tx: tx, ledger: inventory.NewTxLedger(tx)})
	})
}

func (t *purchaseTx) NextInvoiceSequence(ctx context.Context, prefix string, day time.Time) (int, error) {
	const q = `
		INSERT INTO invoice_counters (prefix, day, last_seq)
		VALUES ($1, $2::date, 1)
		ON CONFLICT (prefix, day)
		DO UPDATE SET last_seq = invoice_counters.last_seq + 1
		RETURNING last_seq`

	var seq int
	if err := t.tx.QueryRow(ctx, q, prefix, day).Scan(&seq); err != nil {
		return 0, fmt.Errorf("next invoice sequence: %w", err)
	}
	return seq, nil
}

func (t *purchaseTx) InvoiceExists(ctx context.Context, invoice string) (bool, error) {
	var exists bool
	err := t.tx.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM purchases WHERE invoice = $1)`, invoice,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("invoice exists: %w", err)
	}
	return exists, nil
}

func (t *purchaseTx) InsertPurchase(ctx context.Context, p *Purchase) (int64, error) {
	const q = `
		INSERT INTO purchases (invoice, supplier_id, user_id, purchase_date, total, status, note)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id`

	var id int64
	err := t.tx.QueryRow(ctx, q,
		p.Invoice, p.SupplierID, p.OperatorID, p.PurchaseDate,
		p.Total.StringFixed(2), string(p.Status), p.Note,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("insert purchase: %w", err)
	}
	return id, nil
}

func (t *purchaseTx) InsertPurchaseItem(ctx context.Context, item *PurchaseItem) error {
	const q = `
		INSERT INTO purchase_items (purchase_id, product_id, qty, cost, subtotal)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id`

	err := t.tx.QueryRow(ctx, q,
		item.PurchaseID, item.ProductID, item.Qty,
		item.Cost.StringFixed(2), item.Subtotal.StringFixed(2),
	).Scan(&item.ID)
	if err != nil {
		return fmt.Errorf("insert purchase item: %w", err)
	}
	return nil
}

func (t *purchaseTx) GetForUpdate(ctx context.Context, id int64) (*Purchase, error) {
	const q = `
		SELECT id, invoice, supplier_id, user_id, purchase_date, total::text, status, note, received_at
		FROM purchases
		WHERE id = $1
		FOR UPDATE`

	p, err := scanPurchase(t.tx.QueryRow(ctx, q, id))
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get purchase for update: %w", err)
	}
	p.Items, err = loadItems(ctx, t.tx, id)
	if err != nil {
		return nil, err
	}
	return p, nil
}

func (t *purchaseTx) MarkReceived(ctx context.Context, id int64, receivedAt time.Time) error {
	tag, err := t.tx.Exec(ctx,
		`UPDATE purchases SET status = $1, received_at = $2 WHERE id = $3`,
		string(StatusReceived), receivedAt, id,
	)
	if err != nil {
		return fmt.Errorf("mark purchase received: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (t *purchaseTx) LockProduct(ctx context.Context, productID int64) (inventory.LockedProduct, error) {
	return t.ledger.LockProduct(ctx, productID)
}

func (t *purchaseTx) ApplyStockDelta(ctx context.Context, productID int64, delta int) (int, int, error) {
	return t.ledger.ApplyDelta(ctx, productID, delta)
}

func (t *purchaseTx) AppendLedgerEntry(ctx context.Context, entry inventory.LedgerEntry) error {
	return t.ledger.Append(ctx, entry)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanPurchase(row rowScanner) (*Purchase, error) {
	var (
		p        Purchase
		totalRaw string
		status   string
	)
	if err := row.Scan(
		&p.ID, &p.Invoice, &p.SupplierID, &p.OperatorID, &p.PurchaseDate,
		&totalRaw, &status, &p.Note, &p.ReceivedAt,
	); err != nil {
		return nil, err
	}
	total, err := decimal.NewFromString(totalRaw)
	if err != nil {
		return nil, fmt.Errorf("parse purchase total: %w", err)
	}
	p.Total = total
	p.Status = PurchaseStatus(status)
	return &p, nil
}

type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

func loadItems(ctx context.Context, q querier, purchaseID int64) ([]PurchaseItem, error) {
	rows, err := q.Query(ctx, `
		SELECT id, purchase_id, product_id, qty, cost::text, subtotal::text
		FROM purchase_items
		WHERE purchase_id = $1
		ORDER BY id ASC`, purchaseID)
	if err != nil {
		return nil, fmt.Errorf("load purchase items: %w", err)
	}
	defer rows.Close()

	var items []PurchaseItem
	for rows.Next() {
		var (
			item              PurchaseItem
			costRaw, subtotal string
		)
		if err := rows.Scan(&item.ID, &item.PurchaseID, &item.ProductID, &item.Qty, &costRaw, &subtotal); err != nil {
			return nil, fmt.Errorf("scan purchase item: %w", err)
		}
		if item.Cost, err = decimal.NewFromString(costRaw); err != nil {
			return nil, fmt.Errorf("parse item cost: %w", err)
		}
		if item.Subtotal, err = decimal.NewFromString(subtotal); err != nil {
			return nil, fmt.Errorf("parse item subtotal: %w", err)
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

// Get loads a purchase with its items outside any transaction.
func (r *Repository) Get(ctx context.Context, id int64) (*Purchase, error) {
	const q = `
		SELECT id, invoice, supplier_id, user_id, purchase_date, total::text, status, note, received_at
		FROM purchases
		WHERE id = $1`

	p, err := scanPurchase(r.pool.QueryRow(ctx, q, id))
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get purchase: %w", err)
	}
	p.Items, err = loadItems(ctx, r.pool, id)
	if err != nil {
		return nil, err
	}
	return p, nil
}

// ListPending returns pending purchases oldest first.
func (r *Repository) ListPending(ctx context.Context, limit int) ([]Purchase, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	rows, err := r.pool.Query(ctx, `
		SELECT id, invoice, supplier_id, user_id, purchase_date, total::text, status, note, received_at
		FROM purchases
		WHERE status = $1
		ORDER BY purchase_date ASC, id ASC
		LIMIT $2`, string(StatusPending), limit)
	if err != nil {
		return nil, fmt.Errorf("list pending purchases: %w", err)
	}
	defer rows.Close()

	var out []Purchase
	for rows.Next() {
		p, err := scanPurchase(rows)
		if err != nil {
			return nil, fmt.Errorf("scan purchase: %w", err)
		}
		out = append(out, *p)
	}
	return out, rows.Err()
}
