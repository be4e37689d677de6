package inventory

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type memoryLedgerRepo struct {
	stocks  map[int64]int
	entries []LedgerEntry
}

func newMemoryLedgerRepo() *memoryLedgerRepo {
	return &memoryLedgerRepo{stocks: make(map[int64]int)}
}

func (r *memoryLedgerRepo) WithTx(ctx context.Context, fn func(context.Context, LedgerTx) error) error {
	staged := &memoryLedgerTx{repo: r, deltas: make(map[int64]int)}
	if err := fn(ctx, staged); err != nil {
		return err
	}
	for id, delta := range staged.deltas {
		r.stocks[id] += delta
	}
	r.entries = append(r.entries, staged.appended...)
	return nil
}

func (r *memoryLedgerRepo) ListEntries(ctx context.Context, filter LedgerFilter) ([]LedgerEntry, error) {
	var out []LedgerEntry
	for _, e := range r.entries {
		if e.ProductID == filter.ProductID {
			out = append(out, e)
		}
	}
	return out, nil
}

func (r *memoryLedgerRepo) CurrentStock(ctx context.Context, productID int64) (int, error) {
	stock, ok := r.stocks[productID]
	if !ok {
		return 0, ErrProductNotFound
	}
	return stock, nil
}

type memoryLedgerTx struct {
	repo     *memoryLedgerRepo
	deltas   map[int64]int
	appended []LedgerEntry
}

func (t *memoryLedgerTx) LockProduct(ctx context.Context, id int64) (LockedProduct, error) {
	stock, ok := t.repo.stocks[id]
	if !ok {
		return LockedProduct{}, ErrProductNotFound
	}
	return LockedProduct{ID: id, Stock: stock, Active: true}, nil
}

func (t *memoryLedgerTx) ApplyDelta(ctx context.Context, productID int64, delta int) (int, int, error) {
	if delta == 0 {
		return 0, 0, ErrInvalidQuantity
	}
	stock, ok := t.repo.stocks[productID]
	if !ok {
		return 0, 0, ErrProductNotFound
	}
	before := stock + t.deltas[productID]
	after := before + delta
	if after < 0 {
		return before, before, ErrNegativeStock
	}
	t.deltas[productID] += delta
	return before, after, nil
}

func (t *memoryLedgerTx) Append(ctx context.Context, entry LedgerEntry) error {
	t.appended = append(t.appended, entry)
	return nil
}

func newTestService(repo RepositoryPort) *Service {
	svc := NewService(repo, slog.New(slog.NewTextHandler(io.Discard, nil)))
	svc.now = func() time.Time { return time.Date(2026, 10, 4, 10, 0, 0, 0, time.UTC) }
	return svc
}

func TestPostAdjustment(t *testing.T) {
	repo := newMemoryLedgerRepo()
	repo.stocks[1] = 20
	svc := newTestService(repo)

	entry, err := svc.PostAdjustment(context.Background(), AdjustmentInput{
		ProductID:  1,
		Delta:      -5,
		Note:       "Stock opname correction",
		OperatorID: 7,
	})
	require.NoError(t, err)

	require.Equal(t, MovementAdjustment, entry.Type)
	require.Equal(t, -5, entry.Qty)
	require.Equal(t, 20, entry.StockBefore)
	require.Equal(t, 15, entry.StockAfter)
	require.Equal(t, "adjustment", entry.ReferenceType)
	require.Equal(t, 15, repo.stocks[1])
	require.Len(t, repo.entries, 1)
}

func TestPostAdjustmentRejectsNegativeStock(t *testing.T) {
	repo := newMemoryLedgerRepo()
	repo.stocks[1] = 3
	svc := newTestService(repo)

	_, err := svc.PostAdjustment(context.Background(), AdjustmentInput{
		ProductID:  1,
		Delta:      -5,
		OperatorID: 7,
	})
	require.ErrorIs(t, err, ErrNegativeStock)
	require.Equal(t, 3, repo.stocks[1])
	require.Empty(t, repo.entries)
}

func TestPostAdjustmentValidation(t *testing.T) {
	repo := newMemoryLedgerRepo()
	svc := newTestService(repo)
	ctx := context.Background()

	_, err := svc.PostAdjustment(ctx, AdjustmentInput{Delta: 1, OperatorID: 7})
	require.Error(t, err)

	_, err = svc.PostAdjustment(ctx, AdjustmentInput{ProductID: 1, OperatorID: 7})
	require.ErrorIs(t, err, ErrInvalidQuantity)

	_, err = svc.PostAdjustment(ctx, AdjustmentInput{ProductID: 1, Delta: 1})
	require.Error(t, err)
}

func TestReconcileConsistentChain(t *testing.T) {
	repo := newMemoryLedgerRepo()
	repo.stocks[1] = 7
	repo.entries = []LedgerEntry{
		{ProductID: 1, Type: MovementIn, Qty: 10, StockBefore: 0, StockAfter: 10},
		{ProductID: 1, Type: MovementOut, Qty: -5, StockBefore: 10, StockAfter: 5},
		{ProductID: 1, Type: MovementAdjustment, Qty: 2, StockBefore: 5, StockAfter: 7},
	}
	svc := newTestService(repo)

	rec, err := svc.Reconcile(context.Background(), 1)
	require.NoError(t, err)
	require.True(t, rec.Consistent)
	require.Equal(t, 7, rec.CurrentStock)
	require.Equal(t, 7, rec.DeltaSum)
	require.Equal(t, 0, rec.ImpliedStart)
}

func TestReconcileDetectsBrokenChain(t *testing.T) {
	repo := newMemoryLedgerRepo()
	repo.stocks[1] = 7
	// The second entry's before does not match the first entry's after.
	repo.entries = []LedgerEntry{
		{ProductID: 1, Type: MovementIn, Qty: 10, StockBefore: 0, StockAfter: 10},
		{ProductID: 1, Type: MovementOut, Qty: -3, StockBefore: 12, StockAfter: 9},
	}
	svc := newTestService(repo)

	rec, err := svc.Reconcile(context.Background(), 1)
	require.NoError(t, err)
	require.False(t, rec.Consistent)
}

func TestReconcileDetectsCounterDrift(t *testing.T) {
	repo := newMemoryLedgerRepo()
	// Counter says 9 but the chain ends at 7.
	repo.stocks[1] = 9
	repo.entries = []LedgerEntry{
		{ProductID: 1, Type: MovementIn, Qty: 7, StockBefore: 0, StockAfter: 7},
	}
	svc := newTestService(repo)

	rec, err := svc.Reconcile(context.Background(), 1)
	require.NoError(t, err)
	require.False(t, rec.Consistent)
}

func TestEntryNote(t *testing.T) {
	require.Equal(t, "POS Sale INV-20261004-0001", EntryNote("POS Sale", "INV-20261004-0001"))
	require.Equal(t, "Purchase PO-20261004-0002", EntryNote("Purchase", "PO-20261004-0002"))
}
