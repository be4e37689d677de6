package inventory

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

// RepositoryPort abstracts repository usage for the service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, LedgerTx) error) error
	ListEntries(ctx context.Context, filter LedgerFilter) ([]LedgerEntry, error)
	CurrentStock(ctx context.Context, productID int64) (int, error)
}

// Service coordinates ledger operations outside the sale-commit path.
type Service struct {
	repo   RepositoryPort
	logger *slog.Logger
	now    func() time.Time
}

// NewService builds Service.
func NewService(repo RepositoryPort, logger *slog.Logger) *Service {
	return &Service{repo: repo, logger: logger, now: func() time.Time { return time.Now().UTC() }}
}

// PostAdjustment applies a manual stock correction and records it in the
// ledger. The correction may be positive or negative but can never drive
// stock below zero.
func (s *Service) PostAdjustment(ctx context.Context, input AdjustmentInput) (LedgerEntry, error) {
	if input.ProductID == 0 {
		return LedgerEntry{}, errors.New("inventory: product required")
	}
	if input.Delta == 0 {
		return LedgerEntry{}, ErrInvalidQuantity
	}
	if input.OperatorID == 0 {
		return LedgerEntry{}, errors.New("inventory: operator required")
	}

	var entry LedgerEntry
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx LedgerTx) error {
		if _, err := tx.LockProduct(ctx, input.ProductID); err != nil {
			return err
		}
		before, after, err := tx.ApplyDelta(ctx, input.ProductID, input.Delta)
		if err != nil {
			return err
		}
		entry = LedgerEntry{
			ProductID:     input.ProductID,
			OperatorID:    input.OperatorID,
			Type:          MovementAdjustment,
			Qty:           input.Delta,
			StockBefore:   before,
			StockAfter:    after,
			ReferenceType: "adjustment",
			Note:          input.Note,
			LoggedAt:      s.now(),
		}
		return tx.Append(ctx, entry)
	})
	if err != nil {
		return LedgerEntry{}, err
	}

	s.logger.Info("stock adjustment posted",
		slog.Int64("product_id", input.ProductID),
		slog.Int("delta", input.Delta),
		slog.Int("stock_after", entry.StockAfter),
	)
	return entry, nil
}

// ListEntries lists ledger entries for a product.
func (s *Service) ListEntries(ctx context.Context, filter LedgerFilter) ([]LedgerEntry, error) {
	if filter.ProductID == 0 {
		return nil, errors.New("inventory: product required")
	}
	return s.repo.ListEntries(ctx, filter)
}

// Reconcile replays a product's ledger chain against the live counter.
// For a healthy product: implied start + sum of deltas == current stock, and
// every entry's stock_after equals its stock_before plus its delta.
func (s *Service) Reconcile(ctx context.Context, productID int64) (Reconciliation, error) {
	if productID == 0 {
		return Reconciliation{}, errors.New("inventory: product required")
	}

	current, err := s.repo.CurrentStock(ctx, productID)
	if err != nil {
		return Reconciliation{}, err
	}

	entries, err := s.repo.ListEntries(ctx, LedgerFilter{ProductID: productID, Limit: 10000})
	if err != nil {
		return Reconciliation{}, err
	}

	rec := Reconciliation{ProductID: productID, CurrentStock: current, Consistent: true}
	prevAfter := -1
	for _, e := range entries {
		rec.DeltaSum += e.Qty
		if e.StockAfter != e.StockBefore+e.Qty {
			rec.Consistent = false
		}
		if prevAfter >= 0 && e.StockBefore != prevAfter {
			rec.Consistent = false
		}
		prevAfter = e.StockAfter
	}

	rec.ImpliedStart = current - rec.DeltaSum
	if len(entries) > 0 {
		if entries[0].StockBefore != rec.ImpliedStart {
			rec.Consistent = false
		}
		if entries[len(entries)-1].StockAfter != current {
			rec.Consistent = false
		}
	}
	if rec.ImpliedStart < 0 {
		rec.Consistent = false
	}
	if !rec.Consistent {
		s.logger.Warn("ledger reconciliation mismatch",
			slog.Int64("product_id", productID),
			slog.Int("current", current),
			slog.Int("delta_sum", rec.DeltaSum),
		)
	}
	return rec, nil
}

// EntryNote builds the conventional note for a movement caused by a document.
func EntryNote(kind, document string) string {
	return fmt.Sprintf("%s %s", kind, document)
}
