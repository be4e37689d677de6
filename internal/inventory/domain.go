package inventory

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

// MovementType enumerates supported stock movements.
type MovementType string

const (
	// MovementIn represents an inbound movement (purchase receipt).
	MovementIn MovementType = "in"
	// MovementOut represents an outbound movement (sale).
	MovementOut MovementType = "out"
	// MovementAdjustment indicates a manual correction.
	MovementAdjustment MovementType = "adjustment"
)

// LedgerEntry is one immutable record of a stock quantity change.
// Entries are append-only: corrections are new adjustment entries, never
// edits, so the chain for a product always replays to its current stock.
type LedgerEntry struct {
	ID            int64
	ProductID     int64
	OperatorID    int64
	Type          MovementType
	Qty           int // signed delta
	StockBefore   int
	StockAfter    int
	ReferenceType string
	ReferenceID   int64
	Note          string
	LoggedAt      time.Time
}

// LockedProduct is the view of a product row read under an exclusive lock.
// Stock decisions are only valid against this view, never a cached one.
type LockedProduct struct {
	ID       int64
	Name     string
	SKU      string
	Stock    int
	MinStock int
	Price    decimal.Decimal
	Cost     decimal.Decimal
	Active   bool
}

// LowStock reports whether the product sits at or below its minimum.
func (p LockedProduct) LowStock() bool {
	return p.Stock <= p.MinStock
}

// AdjustmentInput describes a manual stock correction.
type AdjustmentInput struct {
	ProductID  int64
	Delta      int
	Note       string
	OperatorID int64
}

// LedgerFilter narrows ledger listings.
type LedgerFilter struct {
	ProductID int64
	Type      MovementType
	From      time.Time
	To        time.Time
	Limit     int
}

// Reconciliation summarises the replay of a product's ledger chain.
type Reconciliation struct {
	ProductID    int64
	CurrentStock int
	DeltaSum     int
	ImpliedStart int
	Consistent   bool
}

var (
	// ErrNegativeStock is returned when a movement would drive stock below zero.
	ErrNegativeStock = errors.New("inventory: negative stock not allowed")
	// ErrInvalidQuantity indicates a zero delta.
	ErrInvalidQuantity = errors.New("inventory: quantity must be non zero")
	// ErrProductNotFound indicates the product row does not exist.
	ErrProductNotFound = errors.New("inventory: product not found")
)
