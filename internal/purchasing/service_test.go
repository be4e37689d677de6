package purchasing

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/kasirpos/kasirpos/internal/inventory"
)

func d(s string) decimal.Decimal {
	v, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return v
}

type memoryPurchaseRepo struct {
	purchases map[int64]*Purchase
	stocks    map[int64]*inventory.LockedProduct
	ledger    []inventory.LedgerEntry
	counters  map[string]int
	invoices  map[string]bool
	nextID    int64
}

func newMemoryPurchaseRepo() *memoryPurchaseRepo {
	return &memoryPurchaseRepo{
		purchases: make(map[int64]*Purchase),
		stocks:    make(map[int64]*inventory.LockedProduct),
		counters:  make(map[string]int),
		invoices:  make(map[string]bool),
	}
}

func (r *memoryPurchaseRepo) addProduct(id int64, name string, stock int) {
	r.stocks[id] = &inventory.LockedProduct{ID: id, Name: name, Stock: stock, Active: true}
}

type memoryPurchaseTx struct {
	repo *memoryPurchaseRepo

	stagedPurchase *Purchase
	stagedItems    []PurchaseItem
	stagedLedger   []inventory.LedgerEntry
	stagedDeltas   map[int64]int
	stagedBumps    map[string]int
	receivedID     int64
	receivedAt     time.Time
}

func (r *memoryPurchaseRepo) WithPurchaseTx(ctx context.Context, fn func(PurchaseTx) error) error {
	tx := &memoryPurchaseTx{
		repo:         r,
		stagedDeltas: make(map[int64]int),
		stagedBumps:  make(map[string]int),
	}
	if err := fn(tx); err != nil {
		return err
	}

	for key, bump := range tx.stagedBumps {
		r.counters[key] += bump
	}
	for id, delta := range tx.stagedDeltas {
		r.stocks[id].Stock += delta
	}
	if tx.stagedPurchase != nil {
		p := *tx.stagedPurchase
		p.Items = append([]PurchaseItem(nil), tx.stagedItems...)
		r.purchases[p.ID] = &p
		r.invoices[p.Invoice] = true
	}
	if tx.receivedID != 0 {
		p := r.purchases[tx.receivedID]
		p.Status = StatusReceived
		at := tx.receivedAt
		p.ReceivedAt = &at
	}
	r.ledger = append(r.ledger, tx.stagedLedger...)
	return nil
}

func (t *memoryPurchaseTx) NextInvoiceSequence(ctx context.Context, prefix string, day time.Time) (int, error) {
	key := prefix + day.Format("20060102")
	t.stagedBumps[key]++
	return t.repo.counters[key] + t.stagedBumps[key], nil
}

func (t *memoryPurchaseTx) InvoiceExists(ctx context.Context, invoice string) (bool, error) {
	return t.repo.invoices[invoice], nil
}

func (t *memoryPurchaseTx) InsertPurchase(ctx context.Context, p *Purchase) (int64, error) {
	t.repo.nextID++
	staged := *p
	staged.ID = t.repo.nextID
	t.stagedPurchase = &staged
	return staged.ID, nil
}

func (t *memoryPurchaseTx) InsertPurchaseItem(ctx context.Context, item *PurchaseItem) error {
	t.stagedItems = append(t.stagedItems, *item)
	return nil
}

func (t *memoryPurchaseTx) GetForUpdate(ctx context.Context, id int64) (*Purchase, error) {
	p, ok := t.repo.purchases[id]
	if !ok {
		return nil, ErrNotFound
	}
	out := *p
	out.Items = append([]PurchaseItem(nil), p.Items...)
	return &out, nil
}

func (t *memoryPurchaseTx) MarkReceived(ctx context.Context, id int64, receivedAt time.Time) error {
	if _, ok := t.repo.purchases[id]; !ok {
		return ErrNotFound
	}
	t.receivedID = id
	t.receivedAt = receivedAt
	return nil
}

func (t *memoryPurchaseTx) LockProduct(ctx context.Context, productID int64) (inventory.LockedProduct, error) {
	p, ok := t.repo.stocks[productID]
	if !ok {
		return inventory.LockedProduct{}, inventory.ErrProductNotFound
	}
	return *p, nil
}

func (t *memoryPurchaseTx) ApplyStockDelta(ctx context.Context, productID int64, delta int) (int, int, error) {
	p, ok := t.repo.stocks[productID]
	if !ok {
		return 0, 0, inventory.ErrProductNotFound
	}
	before := p.Stock + t.stagedDeltas[productID]
	after := before + delta
	if after < 0 {
		return before, before, inventory.ErrNegativeStock
	}
	t.stagedDeltas[productID] += delta
	return before, after, nil
}

func (t *memoryPurchaseTx) AppendLedgerEntry(ctx context.Context, entry inventory.LedgerEntry) error {
	t.stagedLedger = append(t.stagedLedger, entry)
	return nil
}

func (r *memoryPurchaseRepo) Get(ctx context.Context, id int64) (*Purchase, error) {
	p, ok := r.purchases[id]
	if !ok {
		return nil, ErrNotFound
	}
	out := *p
	out.Items = append([]PurchaseItem(nil), p.Items...)
	return &out, nil
}

func (r *memoryPurchaseRepo) ListPending(ctx context.Context, limit int) ([]Purchase, error) {
	var out []Purchase
	for _, p := range r.purchases {
		if p.Status == StatusPending {
			out = append(out, *p)
		}
	}
	return out, nil
}

func newTestService(repo RepositoryPort) *Service {
	svc := NewService(repo, slog.New(slog.NewTextHandler(io.Discard, nil)))
	svc.now = func() time.Time { return time.Date(2026, 10, 4, 8, 0, 0, 0, time.UTC) }
	return svc
}

func createInput() CreateInput {
	return CreateInput{
		SupplierID: 3,
		OperatorID: 7,
		Items: []CreateItemInput{
			{ProductID: 1, Qty: 20, Cost: d("2500")},
			{ProductID: 2, Qty: 10, Cost: d("4000")},
		},
	}
}

func TestCreatePurchase(t *testing.T) {
	repo := newMemoryPurchaseRepo()
	repo.addProduct(1, "Kopi Sachet", 5)
	repo.addProduct(2, "Teh Botol", 8)
	svc := newTestService(repo)

	p, err := svc.Create(context.Background(), createInput())
	require.NoError(t, err)

	require.Equal(t, "PO-20261004-0001", p.Invoice)
	require.Equal(t, StatusPending, p.Status)
	require.True(t, p.Total.Equal(d("90000")), "total %s", p.Total)
	require.Len(t, p.Items, 2)
	require.True(t, p.Items[0].Subtotal.Equal(d("50000")))

	// Creating never moves stock.
	require.Equal(t, 5, repo.stocks[1].Stock)
	require.Equal(t, 8, repo.stocks[2].Stock)
	require.Empty(t, repo.ledger)
}

func TestCreatePurchaseValidation(t *testing.T) {
	repo := newMemoryPurchaseRepo()
	svc := newTestService(repo)
	ctx := context.Background()

	_, err := svc.Create(ctx, CreateInput{OperatorID: 7})
	require.ErrorIs(t, err, ErrInvalidInput)

	_, err = svc.Create(ctx, CreateInput{SupplierID: 3, OperatorID: 7})
	require.ErrorIs(t, err, ErrInvalidInput)

	_, err = svc.Create(ctx, CreateInput{
		SupplierID: 3,
		OperatorID: 7,
		Items:      []CreateItemInput{{ProductID: 1, Qty: 0, Cost: d("100")}},
	})
	require.ErrorIs(t, err, ErrInvalidInput)
}

func TestReceivePurchaseBooksStock(t *testing.T) {
	repo := newMemoryPurchaseRepo()
	repo.addProduct(1, "Kopi Sachet", 5)
	repo.addProduct(2, "Teh Botol", 8)
	svc := newTestService(repo)
	ctx := context.Background()

	created, err := svc.Create(ctx, createInput())
	require.NoError(t, err)

	received, err := svc.Receive(ctx, created.ID, 7)
	require.NoError(t, err)

	require.Equal(t, StatusReceived, received.Status)
	require.NotNil(t, received.ReceivedAt)

	require.Equal(t, 25, repo.stocks[1].Stock)
	require.Equal(t, 18, repo.stocks[2].Stock)

	require.Len(t, repo.ledger, 2)
	// Items are booked in ascending product ID order.
	first := repo.ledger[0]
	require.Equal(t, int64(1), first.ProductID)
	require.Equal(t, inventory.MovementIn, first.Type)
	require.Equal(t, 20, first.Qty)
	require.Equal(t, 5, first.StockBefore)
	require.Equal(t, 25, first.StockAfter)
	require.Equal(t, "purchase", first.ReferenceType)
	require.Equal(t, created.ID, first.ReferenceID)
	require.Equal(t, "Purchase PO-20261004-0001", first.Note)
}

func TestReceivePurchaseTwiceIsRefused(t *testing.T) {
	repo := newMemoryPurchaseRepo()
	repo.addProduct(1, "Kopi Sachet", 5)
	repo.addProduct(2, "Teh Botol", 8)
	svc := newTestService(repo)
	ctx := context.Background()

	created, err := svc.Create(ctx, createInput())
	require.NoError(t, err)

	_, err = svc.Receive(ctx, created.ID, 7)
	require.NoError(t, err)

	_, err = svc.Receive(ctx, created.ID, 7)
	require.ErrorIs(t, err, ErrNotPending)

	// Stock moved exactly once.
	require.Equal(t, 25, repo.stocks[1].Stock)
	require.Len(t, repo.ledger, 2)
}

func TestReceiveUnknownPurchase(t *testing.T) {
	repo := newMemoryPurchaseRepo()
	svc := newTestService(repo)

	_, err := svc.Receive(context.Background(), 99, 7)
	require.ErrorIs(t, err, ErrNotFound)
}
