package pos

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/singleflight"

	"github.com/kasirpos/kasirpos/internal/inventory"
	"github.com/kasirpos/kasirpos/internal/platform/db"
)

// SaleTx exposes the operations available inside one commit transaction.
// Everything it does is rolled back as a unit when the callback errors.
type SaleTx interface {
	sequencerStore

	// LockProducts acquires exclusive row locks for the given IDs in
	// ascending identifier order. Missing products are absent from the map.
	LockProducts(ctx context.Context, ids []int64) (map[int64]inventory.LockedProduct, error)
	InsertSale(ctx context.Context, sale *Sale) (int64, error)
	InsertSaleItem(ctx context.Context, item *SaleItem) error
	ApplyStockDelta(ctx context.Context, productID int64, delta int) (before, after int, err error)
	AppendLedgerEntry(ctx context.Context, entry inventory.LedgerEntry) error
}

// RepositoryPort abstracts persistence for the engine.
type RepositoryPort interface {
	WithSaleTx(ctx context.Context, fn func(context.Context, SaleTx) error) error
	GetSale(ctx context.Context, id int64) (*Sale, error)
	CreateCustomer(ctx context.Context, name, phone string) (*Customer, error)
	TodaySummary(ctx context.Context, day time.Time) (Summary, error)
	IncrementPrintCount(ctx context.Context, saleID int64) (int, error)
}

// LowStockAlert describes a product left at or below its minimum threshold.
type LowStockAlert struct {
	ProductID int64  `json:"product_id"`
	Name      string `json:"name"`
	SKU       string `json:"sku"`
	Stock     int    `json:"stock"`
	MinStock  int    `json:"min_stock"`
}

// AlertPort dispatches low-stock notifications out of band.
type AlertPort interface {
	LowStock(ctx context.Context, alert LowStockAlert) error
}

// ServiceConfig groups tunables for the engine.
type ServiceConfig struct {
	DefaultTaxRate  decimal.Decimal
	CommitRetries   int
	RetryBackoff    time.Duration
	SummaryCacheTTL time.Duration
}

// Service is the sale-commit engine.
type Service struct {
	repo    RepositoryPort
	alerts  AlertPort
	cache   *redis.Client
	logger  *slog.Logger
	cfg     ServiceConfig
	group   singleflight.Group
	now     func() time.Time
	backoff func(context.Context, time.Duration) error
}

// NewService builds Service. alerts and cache may be nil; the engine then
// skips low-stock dispatch and summary caching.
func NewService(repo RepositoryPort, alerts AlertPort, cache *redis.Client, logger *slog.Logger, cfg ServiceConfig) *Service {
	if cfg.DefaultTaxRate.IsZero() {
		cfg.DefaultTaxRate = DefaultTaxRate
	}
	if cfg.CommitRetries <= 0 {
		cfg.CommitRetries = 5
	}
	if cfg.RetryBackoff <= 0 {
		cfg.RetryBackoff = 25 * time.Millisecond
	}
	if cfg.SummaryCacheTTL <= 0 {
		cfg.SummaryCacheTTL = 30 * time.Second
	}
	return &Service{
		repo:    repo,
		alerts:  alerts,
		cache:   cache,
		logger:  logger,
		cfg:     cfg,
		now:     func() time.Time { return time.Now().UTC() },
		backoff: sleepBackoff,
	}
}

// CommitSale turns a cart into a durably recorded sale. The transactional
// body locks product rows in ascending ID order, validates stock under those
// locks, prices the cart, allocates an invoice number and writes the sale,
// its items and the ledger entries atomically. On serialization conflicts the
// whole body is retried from scratch; it is pure given the same input, so a
// retry can never double-apply stock changes.
func (s *Service) CommitSale(ctx context.Context, in CommitSaleInput) (*Sale, error) {
	if err := validateCommitInput(in); err != nil {
		return nil, err
	}

	if in.Method != PaymentCash && in.PaymentReference == "" {
		// Synthesized once, before the retry loop, so every attempt writes
		// the same reference.
		in.PaymentReference = synthesizeReference(in.Method)
	}

	taxRate := s.cfg.DefaultTaxRate
	if in.TaxRate != nil {
		taxRate = *in.TaxRate
	}

	lines := dedupeLines(in.Lines)

	var (
		saleID    int64
		lowStocks []LowStockAlert
	)
	for attempt := 1; ; attempt++ {
		saleID = 0
		lowStocks = lowStocks[:0]

		err := s.repo.WithSaleTx(ctx, func(ctx context.Context, tx SaleTx) error {
			id, low, err := s.commitOnce(ctx, tx, in, lines, taxRate)
			if err != nil {
				return err
			}
			saleID = id
			lowStocks = low
			return nil
		})
		if err == nil {
			break
		}
		if !db.IsSerializationFailure(err) {
			return nil, s.classify(err)
		}
		if attempt >= s.cfg.CommitRetries {
			s.logger.Warn("sale commit retries exhausted",
				slog.Int("attempts", attempt),
				slog.Any("error", err),
			)
			return nil, fmt.Errorf("%w: retries exhausted", ErrConflict)
		}
		// First retry is immediate; later ones back off briefly.
		if attempt > 1 {
			if err := s.backoff(ctx, s.cfg.RetryBackoff); err != nil {
				return nil, fmt.Errorf("%w: %v", ErrConflict, err)
			}
		}
	}

	s.invalidateSummary(ctx)
	s.dispatchLowStock(ctx, lowStocks)

	sale, err := s.repo.GetSale(ctx, saleID)
	if err != nil {
		return nil, s.classify(err)
	}
	return sale, nil
}

// commitOnce runs one attempt of the transactional body: lock products,
// validate stock, price the cart, allocate the invoice, and persist the sale
// with its ledger entries. The caller owns the transaction and the retry loop.
func (s *Service) commitOnce(ctx context.Context, tx SaleTx, in CommitSaleInput, lines []CartLine, taxRate decimal.Decimal) (int64, []LowStockAlert, error) {
	ids := make([]int64, 0, len(lines))
	for _, line := range lines {
		ids = append(ids, line.ProductID)
	}

	products, err := tx.LockProducts(ctx, ids)
	if err != nil {
		return 0, nil, err
	}

	for _, line := range lines {
		product, ok := products[line.ProductID]
		if !ok {
			return 0, nil, &NotFoundError{ProductID: line.ProductID}
		}
		if product.Stock < line.Qty {
			return 0, nil, &InsufficientStockError{
				ProductID:   product.ID,
				ProductName: product.Name,
				Available:   product.Stock,
				Requested:   line.Qty,
			}
		}
	}

	priced, err := PriceCart(PriceInput{
		Lines:        lines,
		Discount:     in.Discount,
		TaxRate:      taxRate,
		Method:       in.Method,
		CashReceived: in.CashReceived,
	})
	if err != nil {
		return 0, nil, err
	}

	now := s.now()
	invoice, err := allocateInvoice(ctx, tx, now)
	if err != nil {
		return 0, nil, err
	}

	sale := &Sale{
		Invoice:          invoice,
		OperatorID:       in.OperatorID,
		CustomerID:       in.CustomerID,
		SaleDate:         now,
		Subtotal:         priced.Subtotal,
		Tax:              priced.Tax,
		Discount:         priced.Discount,
		Total:            priced.Total,
		PaymentMethod:    in.Method,
		CashReceived:     priced.CashReceived,
		Change:           priced.Change,
		PaymentReference: in.PaymentReference,
		Status:           SaleCompleted,
		Note:             in.Note,
	}
	saleID, err := tx.InsertSale(ctx, sale)
	if err != nil {
		return 0, nil, err
	}
	sale.ID = saleID

	var lowStocks []LowStockAlert
	for i, line := range lines {
		product := products[line.ProductID]

		item := &SaleItem{
			SaleID:      saleID,
			ProductID:   product.ID,
			ProductName: product.Name,
			ProductSKU:  product.SKU,
			Qty:         line.Qty,
			Price:       line.Price,
			Discount:    line.Discount,
			Subtotal:    priced.LineSubtotals[i],
		}
		if err := tx.InsertSaleItem(ctx, item); err != nil {
			return 0, nil, err
		}

		// Guaranteed non-negative: the stock check above ran under the same
		// lock, so no other writer can have intervened.
		before, after, err := tx.ApplyStockDelta(ctx, product.ID, -line.Qty)
		if err != nil {
			return 0, nil, err
		}

		err = tx.AppendLedgerEntry(ctx, inventory.LedgerEntry{
			ProductID:     product.ID,
			OperatorID:    in.OperatorID,
			Type:          inventory.MovementOut,
			Qty:           -line.Qty,
			StockBefore:   before,
			StockAfter:    after,
			ReferenceType: "sale",
			ReferenceID:   saleID,
			Note:          inventory.EntryNote("POS Sale", invoice),
			LoggedAt:      now,
		})
		if err != nil {
			return 0, nil, err
		}

		if after <= product.MinStock {
			lowStocks = append(lowStocks, LowStockAlert{
				ProductID: product.ID,
				Name:      product.Name,
				SKU:       product.SKU,
				Stock:     after,
				MinStock:  product.MinStock,
			})
		}
	}

	return saleID, lowStocks, nil
}

// QuickAddCustomer registers a walk-in customer before a cart is built. Not
// transactionally coupled to sale commit.
func (s *Service) QuickAddCustomer(ctx context.Context, name, phone string) (*Customer, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, &ValidationError{Reason: "customer name is required"}
	}
	if len(name) > 255 {
		return nil, &ValidationError{Reason: "customer name too long"}
	}
	if len(phone) > 15 {
		return nil, &ValidationError{Reason: "phone number too long"}
	}

	customer, err := s.repo.CreateCustomer(ctx, name, strings.TrimSpace(phone))
	if err != nil {
		if errors.Is(err, ErrPhoneTaken) {
			return nil, err
		}
		return nil, s.classify(err)
	}
	return customer, nil
}

// TodaySummary returns the day's completed transaction count and revenue,
// served from cache when fresh.
func (s *Service) TodaySummary(ctx context.Context) (Summary, error) {
	day := s.now()
	key := "pos:summary:" + day.Format("20060102")

	if s.cache != nil {
		if data, err := s.cache.Get(ctx, key).Bytes(); err == nil {
			var cached Summary
			if err := json.Unmarshal(data, &cached); err == nil {
				return cached, nil
			}
		}
	}

	v, err, _ := s.group.Do(key, func() (any, error) {
		summary, err := s.repo.TodaySummary(ctx, day)
		if err != nil {
			return Summary{}, err
		}
		if s.cache != nil {
			if data, err := json.Marshal(summary); err == nil {
				if err := s.cache.Set(ctx, key, data, s.cfg.SummaryCacheTTL).Err(); err != nil {
					s.logger.Warn("cache summary", slog.Any("error", err))
				}
			}
		}
		return summary, nil
	})
	if err != nil {
		return Summary{}, s.classify(err)
	}
	return v.(Summary), nil
}

// PrintReceipt returns the sale for receipt rendering and bumps its print
// counter.
func (s *Service) PrintReceipt(ctx context.Context, saleID int64) (*Sale, error) {
	sale, err := s.repo.GetSale(ctx, saleID)
	if err != nil {
		return nil, s.classify(err)
	}
	count, err := s.repo.IncrementPrintCount(ctx, saleID)
	if err != nil {
		return nil, s.classify(err)
	}
	sale.PrintCount = count
	return sale, nil
}

// GetSale loads one committed sale with its items.
func (s *Service) GetSale(ctx context.Context, saleID int64) (*Sale, error) {
	sale, err := s.repo.GetSale(ctx, saleID)
	if err != nil {
		return nil, s.classify(err)
	}
	return sale, nil
}

// classify separates expected business outcomes from store-level failures.
// The former pass through untouched; the latter are logged with context and
// wrapped so no internals leak to the terminal.
func (s *Service) classify(err error) error {
	var (
		validationErr *ValidationError
		notFoundErr   *NotFoundError
		stockErr      *InsufficientStockError
		paymentErr    *InsufficientPaymentError
	)
	switch {
	case errors.As(err, &validationErr),
		errors.As(err, &notFoundErr),
		errors.As(err, &stockErr),
		errors.As(err, &paymentErr),
		errors.Is(err, ErrConflict),
		errors.Is(err, ErrPhoneTaken),
		errors.Is(err, ErrSaleNotFound),
		errors.Is(err, inventory.ErrNegativeStock):
		return err
	}
	s.logger.Error("pos persistence failure", slog.Any("error", err))
	return &PersistenceError{Err: err}
}

func (s *Service) invalidateSummary(ctx context.Context) {
	if s.cache == nil {
		return
	}
	key := "pos:summary:" + s.now().Format("20060102")
	if err := s.cache.Del(ctx, key).Err(); err != nil {
		s.logger.Warn("invalidate summary cache", slog.Any("error", err))
	}
}

func (s *Service) dispatchLowStock(ctx context.Context, alerts []LowStockAlert) {
	if s.alerts == nil {
		return
	}
	for _, alert := range alerts {
		if err := s.alerts.LowStock(ctx, alert); err != nil {
			// Best effort: a failed alert never fails a committed sale.
			s.logger.Warn("enqueue low stock alert",
				slog.Int64("product_id", alert.ProductID),
				slog.Any("error", err),
			)
		}
	}
}

// validateCommitInput runs the cheap precondition checks. No locks are taken
// and no transaction is opened before these pass.
func validateCommitInput(in CommitSaleInput) error {
	if in.OperatorID == 0 {
		return &ValidationError{Reason: "operator is required"}
	}
	if len(in.Lines) == 0 {
		return &ValidationError{Reason: "cart is empty"}
	}
	if !in.Method.Valid() {
		return &ValidationError{Reason: fmt.Sprintf("unsupported payment method %q", in.Method)}
	}
	for i, line := range in.Lines {
		if line.ProductID <= 0 {
			return &ValidationError{Reason: fmt.Sprintf("line %d: product is required", i+1)}
		}
		if line.Qty < 1 {
			return &ValidationError{Reason: fmt.Sprintf("line %d: quantity must be at least 1", i+1)}
		}
		if line.Price.IsNegative() {
			return &ValidationError{Reason: fmt.Sprintf("line %d: price must not be negative", i+1)}
		}
		if line.Discount.IsNegative() {
			return &ValidationError{Reason: fmt.Sprintf("line %d: discount must not be negative", i+1)}
		}
	}
	if in.Discount.IsNegative() {
		return &ValidationError{Reason: "discount must not be negative"}
	}
	if in.TaxRate != nil && (in.TaxRate.IsNegative() || in.TaxRate.GreaterThan(oneHundred)) {
		return &ValidationError{Reason: "tax rate must be between 0 and 100"}
	}
	if in.Method == PaymentCash && in.CashReceived != nil && in.CashReceived.IsNegative() {
		return &ValidationError{Reason: "cash received must not be negative"}
	}
	if len(in.Note) > 500 {
		return &ValidationError{Reason: "note too long"}
	}
	return nil
}

// dedupeLines merges duplicate product lines, summing quantities and
// discounts, and orders the result by ascending product ID. The ordering is
// the deadlock-avoidance mechanism: every commit acquires its row locks in
// the same global order, so no lock cycle can form.
func dedupeLines(lines []CartLine) []CartLine {
	merged := make(map[int64]CartLine, len(lines))
	for _, line := range lines {
		if existing, ok := merged[line.ProductID]; ok {
			existing.Qty += line.Qty
			existing.Discount = existing.Discount.Add(line.Discount)
			merged[line.ProductID] = existing
			continue
		}
		merged[line.ProductID] = line
	}

	out := make([]CartLine, 0, len(merged))
	for _, line := range merged {
		out = append(out, line)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ProductID < out[j].ProductID })
	return out
}

func synthesizeReference(method PaymentMethod) string {
	return fmt.Sprintf("%s-%s", strings.ToUpper(string(method)), uuid.NewString()[:8])
}

func sleepBackoff(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
