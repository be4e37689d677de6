package pos

import (
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// PaymentMethod enumerates the accepted tender types.
type PaymentMethod string

const (
	PaymentCash     PaymentMethod = "cash"
	PaymentDebit    PaymentMethod = "debit"
	PaymentCredit   PaymentMethod = "credit"
	PaymentQRIS     PaymentMethod = "qris"
	PaymentTransfer PaymentMethod = "transfer"
)

// Valid reports whether the method is one of the supported enum values.
func (m PaymentMethod) Valid() bool {
	switch m {
	case PaymentCash, PaymentDebit, PaymentCredit, PaymentQRIS, PaymentTransfer:
		return true
	}
	return false
}

// SaleStatus enumerates sale lifecycle states.
type SaleStatus string

const (
	SaleCompleted SaleStatus = "completed"
	SaleCancelled SaleStatus = "cancelled"
)

// CartLine is one product+quantity entry submitted for sale, not yet persisted.
type CartLine struct {
	ProductID int64
	Qty       int
	Price     decimal.Decimal
	Discount  decimal.Decimal
}

// CommitSaleInput is the full request for one cart-to-sale commit.
// OperatorID comes from the session, never from the client payload.
type CommitSaleInput struct {
	OperatorID       int64
	CustomerID       *int64
	Method           PaymentMethod
	PaymentReference string
	CashReceived     *decimal.Decimal
	Discount         decimal.Decimal
	TaxRate          *decimal.Decimal
	Lines            []CartLine
	Note             string
}

// Sale is a committed transaction. Immutable after creation except for the
// print counter.
type Sale struct {
	ID               int64
	Invoice          string
	OperatorID       int64
	CustomerID       *int64
	SaleDate         time.Time
	Subtotal         decimal.Decimal
	Tax              decimal.Decimal
	Discount         decimal.Decimal
	Total            decimal.Decimal
	PaymentMethod    PaymentMethod
	CashReceived     decimal.Decimal
	Change           decimal.Decimal
	PaymentReference string
	Status           SaleStatus
	Note             string
	PrintCount       int
	Items            []SaleItem
}

// SaleItem snapshots the product name and SKU at sale time so later product
// edits never rewrite history.
type SaleItem struct {
	ID          int64
	SaleID      int64
	ProductID   int64
	ProductName string
	ProductSKU  string
	Qty         int
	Price       decimal.Decimal
	Discount    decimal.Decimal
	Subtotal    decimal.Decimal
}

// Customer is the minimal record created by quick registration.
type Customer struct {
	ID        int64
	Name      string
	Phone     string
	CreatedAt time.Time
}

// Summary aggregates completed sales for one calendar day.
type Summary struct {
	Transactions int             `json:"transactions"`
	TotalSales   decimal.Decimal `json:"total_sales"`
}

// --- Error taxonomy ---

// ValidationError reports a malformed request, caught before any transaction
// opens.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string {
	return "pos: invalid request: " + e.Reason
}

// NotFoundError reports a referenced product that no longer exists.
type NotFoundError struct {
	ProductID int64
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("pos: product %d not found", e.ProductID)
}

// InsufficientStockError reports a quantity exceeding the locked stock.
type InsufficientStockError struct {
	ProductID   int64
	ProductName string
	Available   int
	Requested   int
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("pos: insufficient stock for %s: available %d, requested %d",
		e.ProductName, e.Available, e.Requested)
}

// InsufficientPaymentError reports cash tendered below the total.
type InsufficientPaymentError struct {
	Required decimal.Decimal
	Tendered decimal.Decimal
}

func (e *InsufficientPaymentError) Error() string {
	return fmt.Sprintf("pos: insufficient cash: required %s, tendered %s",
		e.Required.StringFixed(2), e.Tendered.StringFixed(2))
}

// PersistenceError wraps an unexpected store-level failure. The underlying
// cause is logged server-side and never leaks to the terminal.
type PersistenceError struct {
	Err error
}

func (e *PersistenceError) Error() string { return "pos: persistence failure" }

func (e *PersistenceError) Unwrap() error { return e.Err }

var (
	// ErrConflict is returned once commit retries are exhausted; the caller
	// should resubmit the same cart.
	ErrConflict = errors.New("pos: transaction conflict, please retry")
	// ErrPhoneTaken is returned when quick registration hits an existing phone.
	ErrPhoneTaken = errors.New("pos: phone number already registered")
	// ErrSaleNotFound indicates an unknown sale ID.
	ErrSaleNotFound = errors.New("pos: sale not found")
)
