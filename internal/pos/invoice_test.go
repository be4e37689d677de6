package pos

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type fakeSequencer struct {
	seq      int
	existing map[string]bool
	calls    int
}

func (f *fakeSequencer) NextInvoiceSequence(ctx context.Context, prefix string, day time.Time) (int, error) {
	f.calls++
	f.seq++
	return f.seq, nil
}

func (f *fakeSequencer) InvoiceExists(ctx context.Context, invoice string) (bool, error) {
	return f.existing[invoice], nil
}

func TestFormatInvoice(t *testing.T) {
	day := time.Date(2026, 10, 4, 15, 30, 0, 0, time.UTC)
	require.Equal(t, "INV-20261004-0001", FormatInvoice("INV", day, 1))
	require.Equal(t, "INV-20261004-0042", FormatInvoice("INV", day, 42))
	require.Equal(t, "PO-20261004-9999", FormatInvoice("PO", day, 9999))
	// Sequences past four digits widen instead of wrapping.
	require.Equal(t, "INV-20261004-10000", FormatInvoice("INV", day, 10000))
}

func TestAllocateInvoiceFirstOfDay(t *testing.T) {
	day := time.Date(2026, 10, 4, 9, 0, 0, 0, time.UTC)
	store := &fakeSequencer{}

	invoice, err := allocateInvoice(context.Background(), store, day)
	require.NoError(t, err)
	require.Equal(t, "INV-20261004-0001", invoice)
	require.Equal(t, 1, store.calls)
}

func TestAllocateInvoiceSkipsExistingNumbers(t *testing.T) {
	day := time.Date(2026, 10, 4, 9, 0, 0, 0, time.UTC)
	store := &fakeSequencer{existing: map[string]bool{
		"INV-20261004-0001": true,
		"INV-20261004-0002": true,
	}}

	invoice, err := allocateInvoice(context.Background(), store, day)
	require.NoError(t, err)
	require.Equal(t, "INV-20261004-0003", invoice)
	require.Equal(t, 3, store.calls)
}

func TestAllocateInvoiceExhaustionIsConflict(t *testing.T) {
	day := time.Date(2026, 10, 4, 9, 0, 0, 0, time.UTC)
	store := &fakeSequencer{existing: map[string]bool{}}
	for seq := 1; seq <= invoiceAttempts; seq++ {
		store.existing[FormatInvoice(invoicePrefix, day, seq)] = true
	}

	_, err := allocateInvoice(context.Background(), store, day)
	require.ErrorIs(t, err, ErrConflict)
	require.Equal(t, invoiceAttempts, store.calls)
}
