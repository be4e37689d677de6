package purchasing

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

// PurchaseStatus enumerates the purchase order lifecycle.
type PurchaseStatus string

const (
	StatusPending   PurchaseStatus = "pending"
	StatusReceived  PurchaseStatus = "received"
	StatusCancelled PurchaseStatus = "cancelled"
)

// Purchase is an order placed with a supplier. Stock moves only when the
// order is received, never when it is created.
type Purchase struct {
	ID           int64
	Invoice      string
	SupplierID   int64
	OperatorID   int64
	PurchaseDate time.Time
	Total        decimal.Decimal
	Status       PurchaseStatus
	Note         string
	ReceivedAt   *time.Time
	Items        []PurchaseItem
}

// PurchaseItem is one ordered product line.
type PurchaseItem struct {
	ID         int64
	PurchaseID int64
	ProductID  int64
	Qty        int
	Cost       decimal.Decimal
	Subtotal   decimal.Decimal
}

// CreateInput describes a new purchase order.
type CreateInput struct {
	SupplierID   int64
	OperatorID   int64
	PurchaseDate time.Time
	Note         string
	Items        []CreateItemInput
}

// CreateItemInput is one requested line.
type CreateItemInput struct {
	ProductID int64
	Qty       int
	Cost      decimal.Decimal
}

var (
	// ErrNotFound indicates an unknown purchase.
	ErrNotFound = errors.New("purchasing: purchase not found")
	// ErrNotPending refuses receiving an order twice or after cancellation.
	ErrNotPending = errors.New("purchasing: purchase already received or cancelled")
	// ErrInvalidInput indicates a malformed create request.
	ErrInvalidInput = errors.New("purchasing: invalid input")
)
