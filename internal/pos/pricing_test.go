package pos

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func d(s string) decimal.Decimal {
	v, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return v
}

func TestPriceCartCashSale(t *testing.T) {
	cash := d("40000")
	res, err := PriceCart(PriceInput{
		Lines: []CartLine{
			{ProductID: 1, Qty: 2, Price: d("15000")},
		},
		TaxRate:      d("11"),
		Method:       PaymentCash,
		CashReceived: &cash,
	})
	require.NoError(t, err)

	require.True(t, res.Subtotal.Equal(d("30000")), "subtotal %s", res.Subtotal)
	require.True(t, res.Tax.Equal(d("3300")), "tax %s", res.Tax)
	require.True(t, res.Total.Equal(d("33300")), "total %s", res.Total)
	require.True(t, res.CashReceived.Equal(d("40000")))
	require.True(t, res.Change.Equal(d("6700")), "change %s", res.Change)
}

func TestPriceCartCashDefaultsToExactTender(t *testing.T) {
	res, err := PriceCart(PriceInput{
		Lines:   []CartLine{{ProductID: 1, Qty: 1, Price: d("10000")}},
		TaxRate: d("11"),
		Method:  PaymentCash,
	})
	require.NoError(t, err)
	require.True(t, res.CashReceived.Equal(res.Total))
	require.True(t, res.Change.IsZero())
}

func TestPriceCartInsufficientCash(t *testing.T) {
	cash := d("30000")
	_, err := PriceCart(PriceInput{
		Lines:        []CartLine{{ProductID: 1, Qty: 2, Price: d("15000")}},
		TaxRate:      d("11"),
		Method:       PaymentCash,
		CashReceived: &cash,
	})
	var paymentErr *InsufficientPaymentError
	require.ErrorAs(t, err, &paymentErr)
	require.True(t, paymentErr.Required.Equal(d("33300")))
	require.True(t, paymentErr.Tendered.Equal(d("30000")))
}

func TestPriceCartNonCashSettlesExactly(t *testing.T) {
	res, err := PriceCart(PriceInput{
		Lines:   []CartLine{{ProductID: 1, Qty: 3, Price: d("5000")}},
		TaxRate: d("11"),
		Method:  PaymentQRIS,
	})
	require.NoError(t, err)
	require.True(t, res.CashReceived.Equal(res.Total))
	require.True(t, res.Change.IsZero())
}

func TestPriceCartLineDiscount(t *testing.T) {
	res, err := PriceCart(PriceInput{
		Lines: []CartLine{
			{ProductID: 1, Qty: 2, Price: d("15000"), Discount: d("5000")},
		},
		TaxRate: d("11"),
		Method:  PaymentQRIS,
	})
	require.NoError(t, err)
	require.True(t, res.Subtotal.Equal(d("25000")))
	require.True(t, res.Tax.Equal(d("2750")))
	require.True(t, res.Total.Equal(d("27750")))
}

func TestPriceCartGlobalDiscountReducesTaxBase(t *testing.T) {
	res, err := PriceCart(PriceInput{
		Lines:    []CartLine{{ProductID: 1, Qty: 2, Price: d("15000")}},
		Discount: d("10000"),
		TaxRate:  d("11"),
		Method:   PaymentQRIS,
	})
	require.NoError(t, err)
	require.True(t, res.Subtotal.Equal(d("30000")))
	require.True(t, res.Tax.Equal(d("2200")), "tax %s", res.Tax)
	require.True(t, res.Total.Equal(d("22200")))
}

func TestPriceCartTaxRoundsHalfUp(t *testing.T) {
	// 10.5% of 333 = 34.965, which must round to 34.97.
	res, err := PriceCart(PriceInput{
		Lines:   []CartLine{{ProductID: 1, Qty: 1, Price: d("333")}},
		TaxRate: d("10.5"),
		Method:  PaymentQRIS,
	})
	require.NoError(t, err)
	require.True(t, res.Tax.Equal(d("34.97")), "tax %s", res.Tax)
	require.True(t, res.Total.Equal(d("367.97")))
}

func TestPriceCartZeroTaxRate(t *testing.T) {
	res, err := PriceCart(PriceInput{
		Lines:   []CartLine{{ProductID: 1, Qty: 1, Price: d("10000")}},
		TaxRate: decimal.Zero,
		Method:  PaymentQRIS,
	})
	require.NoError(t, err)
	require.True(t, res.Tax.IsZero())
	require.True(t, res.Total.Equal(d("10000")))
}

func TestPriceCartNegativeLineSubtotal(t *testing.T) {
	_, err := PriceCart(PriceInput{
		Lines: []CartLine{
			{ProductID: 1, Qty: 1, Price: d("1000"), Discount: d("2000")},
		},
		TaxRate: d("11"),
		Method:  PaymentCash,
	})
	var validationErr *ValidationError
	require.ErrorAs(t, err, &validationErr)
}

func TestPriceCartDiscountExceedsSubtotal(t *testing.T) {
	_, err := PriceCart(PriceInput{
		Lines:    []CartLine{{ProductID: 1, Qty: 1, Price: d("1000")}},
		Discount: d("1500"),
		TaxRate:  d("11"),
		Method:   PaymentCash,
	})
	var validationErr *ValidationError
	require.ErrorAs(t, err, &validationErr)
}

func TestPriceCartDeterministic(t *testing.T) {
	in := PriceInput{
		Lines: []CartLine{
			{ProductID: 1, Qty: 3, Price: d("1999.99")},
			{ProductID: 2, Qty: 1, Price: d("250.50"), Discount: d("0.50")},
		},
		Discount: d("100"),
		TaxRate:  d("11"),
		Method:   PaymentQRIS,
	}
	first, err := PriceCart(in)
	require.NoError(t, err)
	for i := 0; i < 10; i++ {
		again, err := PriceCart(in)
		require.NoError(t, err)
		require.True(t, first.Total.Equal(again.Total))
		require.True(t, first.Tax.Equal(again.Tax))
	}
}
