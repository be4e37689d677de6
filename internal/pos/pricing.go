package pos

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// DefaultTaxRate is the VAT percentage applied when the request carries no
// override (PPN).
var DefaultTaxRate = decimal.NewFromInt(11)

var oneHundred = decimal.NewFromInt(100)

// PriceInput feeds the cart pricing calculation.
type PriceInput struct {
	Lines        []CartLine
	Discount     decimal.Decimal
	TaxRate      decimal.Decimal
	Method       PaymentMethod
	CashReceived *decimal.Decimal
}

// PriceResult carries the computed amounts for one cart.
type PriceResult struct {
	LineSubtotals []decimal.Decimal
	Subtotal      decimal.Decimal
	Discount      decimal.Decimal
	Tax           decimal.Decimal
	Total         decimal.Decimal
	CashReceived  decimal.Decimal
	Change        decimal.Decimal
}

// PriceCart computes subtotal, tax, total and change for a cart. It is a pure
// function: no I/O, no clock, identical input always yields identical output.
// The commit engine relies on this determinism to retry a whole transaction
// without re-deciding anything.
func PriceCart(in PriceInput) (PriceResult, error) {
	res := PriceResult{
		LineSubtotals: make([]decimal.Decimal, 0, len(in.Lines)),
		Discount:      in.Discount,
	}

	for i, line := range in.Lines {
		lineSubtotal := line.Price.Mul(decimal.NewFromInt(int64(line.Qty))).Sub(line.Discount)
		if lineSubtotal.IsNegative() {
			return PriceResult{}, &ValidationError{
				Reason: fmt.Sprintf("line %d: discount exceeds line amount", i+1),
			}
		}
		res.LineSubtotals = append(res.LineSubtotals, lineSubtotal)
		res.Subtotal = res.Subtotal.Add(lineSubtotal)
	}

	if in.Discount.GreaterThan(res.Subtotal) {
		return PriceResult{}, &ValidationError{Reason: "discount exceeds subtotal"}
	}

	// tax = (subtotal - discount) * rate/100, currency precision, half-up.
	res.Tax = res.Subtotal.Sub(in.Discount).Mul(in.TaxRate).Div(oneHundred).Round(2)
	res.Total = res.Subtotal.Sub(in.Discount).Add(res.Tax)

	if in.Method == PaymentCash {
		cash := res.Total
		if in.CashReceived != nil {
			cash = *in.CashReceived
		}
		if cash.LessThan(res.Total) {
			return PriceResult{}, &InsufficientPaymentError{Required: res.Total, Tendered: cash}
		}
		res.CashReceived = cash
		res.Change = cash.Sub(res.Total)
		return res, nil
	}

	// Non-cash tenders settle exactly.
	res.CashReceived = res.Total
	res.Change = decimal.Zero
	return res, nil
}
