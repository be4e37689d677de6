package purchasing

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/kasirpos/kasirpos/internal/inventory"
	"github.com/kasirpos/kasirpos/internal/pos"
)

const poPrefix = "PO"

// RepositoryPort abstracts persistence for tests.
type RepositoryPort interface {
	WithPurchaseTx(ctx context.Context, fn func(PurchaseTx) error) error
	Get(ctx context.Context, id int64) (*Purchase, error)
	ListPending(ctx context.Context, limit int) ([]Purchase, error)
}

// Service covers the supplier side of stock: creating orders and receiving
// them into inventory.
type Service struct {
	repo   RepositoryPort
	logger *slog.Logger
	now    func() time.Time
}

func NewService(repo RepositoryPort, logger *slog.Logger) *Service {
	return &Service{repo: repo, logger: logger, now: time.Now}
}

// Create records a pending purchase order. No stock moves here; quantities
// land on products only when the order is received.
func (s *Service) Create(ctx context.Context, in CreateInput) (*Purchase, error) {
	if err := validateCreate(in); err != nil {
		return nil, err
	}

	day := in.PurchaseDate
	if day.IsZero() {
		day = s.now()
	}

	total := decimal.Zero
	for _, item := range in.Items {
		total = total.Add(item.Cost.Mul(decimal.NewFromInt(int64(item.Qty))))
	}

	var purchaseID int64
	err := s.repo.WithPurchaseTx(ctx, func(tx PurchaseTx) error {
		invoice, err := allocatePONumber(ctx, tx, day)
		if err != nil {
			return err
		}

		p := &Purchase{
			Invoice:      invoice,
			SupplierID:   in.SupplierID,
			OperatorID:   in.OperatorID,
			PurchaseDate: day,
			Total:        total,
			Status:       StatusPending,
			Note:         in.Note,
		}
		purchaseID, err = tx.InsertPurchase(ctx, p)
		if err != nil {
			return err
		}

		for _, line := range in.Items {
			item := &PurchaseItem{
				PurchaseID: purchaseID,
				ProductID:  line.ProductID,
				Qty:        line.Qty,
				Cost:       line.Cost,
				Subtotal:   line.Cost.Mul(decimal.NewFromInt(int64(line.Qty))),
			}
			if err := tx.InsertPurchaseItem(ctx, item); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("purchase order created", "purchase_id", purchaseID, "supplier_id", in.SupplierID)
	return s.repo.Get(ctx, purchaseID)
}

// Receive moves a pending order to received and books every line into stock.
// Product rows are locked in ascending ID order inside one transaction, so a
// receipt either lands completely or not at all.
func (s *Service) Receive(ctx context.Context, purchaseID, operatorID int64) (*Purchase, error) {
	receivedAt := s.now()

	err := s.repo.WithPurchaseTx(ctx, func(tx PurchaseTx) error {
		p, err := tx.GetForUpdate(ctx, purchaseID)
		if err != nil {
			return err
		}
		if p.Status != StatusPending {
			return ErrNotPending
		}

		items := make([]PurchaseItem, len(p.Items))
		copy(items, p.Items)
		sort.Slice(items, func(i, j int) bool { return items[i].ProductID < items[j].ProductID })

		for _, item := range items {
			if _, err := tx.LockProduct(ctx, item.ProductID); err != nil {
				return fmt.Errorf("receive purchase %s: %w", p.Invoice, err)
			}
			before, after, err := tx.ApplyStockDelta(ctx, item.ProductID, item.Qty)
			if err != nil {
				return fmt.Errorf("receive purchase %s: %w", p.Invoice, err)
			}
			entry := inventory.LedgerEntry{
				ProductID:     item.ProductID,
				OperatorID:    operatorID,
				Type:          inventory.MovementIn,
				Qty:           item.Qty,
				StockBefore:   before,
				StockAfter:    after,
				ReferenceType: "purchase",
				ReferenceID:   p.ID,
				Note:          inventory.EntryNote("Purchase", p.Invoice),
				LoggedAt:      receivedAt,
			}
			if err := tx.AppendLedgerEntry(ctx, entry); err != nil {
				return fmt.Errorf("receive purchase %s: %w", p.Invoice, err)
			}
		}

		return tx.MarkReceived(ctx, purchaseID, receivedAt)
	})
	if err != nil {
		if errors.Is(err, ErrNotFound) || errors.Is(err, ErrNotPending) {
			return nil, err
		}
		s.logger.Error("receive purchase failed", "purchase_id", purchaseID, "error", err)
		return nil, err
	}

	s.logger.Info("purchase received", "purchase_id", purchaseID, "operator_id", operatorID)
	return s.repo.Get(ctx, purchaseID)
}

// Get returns a purchase with its items.
func (s *Service) Get(ctx context.Context, id int64) (*Purchase, error) {
	return s.repo.Get(ctx, id)
}

// ListPending returns orders awaiting receipt.
func (s *Service) ListPending(ctx context.Context, limit int) ([]Purchase, error) {
	return s.repo.ListPending(ctx, limit)
}

func validateCreate(in CreateInput) error {
	if in.SupplierID <= 0 {
		return fmt.Errorf("%w: supplier is required", ErrInvalidInput)
	}
	if len(in.Items) == 0 {
		return fmt.Errorf("%w: at least one item is required", ErrInvalidInput)
	}
	for _, item := range in.Items {
		if item.ProductID <= 0 {
			return fmt.Errorf("%w: item product is required", ErrInvalidInput)
		}
		if item.Qty <= 0 {
			return fmt.Errorf("%w: item quantity must be positive", ErrInvalidInput)
		}
		if item.Cost.IsNegative() {
			return fmt.Errorf("%w: item cost must not be negative", ErrInvalidInput)
		}
	}
	return nil
}

// allocatePONumber issues the next PO-YYYYMMDD-NNNN identifier using the
// same locked counter row mechanism sales invoices use.
func allocatePONumber(ctx context.Context, tx PurchaseTx, day time.Time) (string, error) {
	for attempt := 0; attempt < 5; attempt++ {
		seq, err := tx.NextInvoiceSequence(ctx, poPrefix, day)
		if err != nil {
			return "", fmt.Errorf("purchasing: next sequence: %w", err)
		}
		invoice := pos.FormatInvoice(poPrefix, day, seq)
		exists, err := tx.InvoiceExists(ctx, invoice)
		if err != nil {
			return "", fmt.Errorf("purchasing: uniqueness check: %w", err)
		}
		if !exists {
			return invoice, nil
		}
	}
	return "", errors.New("purchasing: could not allocate a unique purchase number")
}
