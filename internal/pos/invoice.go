package pos

import (
	"context"
	"fmt"
	"time"
)

const (
	invoicePrefix = "INV"
	// invoiceAttempts bounds the uniqueness double-check loop. The exclusive
	// counter-row lock is the primary uniqueness mechanism; the check only
	// guards against pre-existing rows not created through the counter.
	invoiceAttempts = 5
)

// sequencerStore is the slice of the transaction the sequencer needs.
type sequencerStore interface {
	// NextInvoiceSequence increments the day's counter under an exclusive
	// row lock, creating it at zero first when the day is new. The lock is
	// held until the surrounding transaction ends.
	NextInvoiceSequence(ctx context.Context, prefix string, day time.Time) (int, error)
	InvoiceExists(ctx context.Context, invoice string) (bool, error)
}

// FormatInvoice renders the date-scoped invoice identifier, e.g.
// INV-20261004-0001. Sequences beyond 9999 widen rather than wrap.
func FormatInvoice(prefix string, day time.Time, seq int) string {
	return fmt.Sprintf("%s-%s-%04d", prefix, day.Format("20060102"), seq)
}

// allocateInvoice issues the next unique invoice identifier for the day
// within the caller's transaction scope.
func allocateInvoice(ctx context.Context, store sequencerStore, day time.Time) (string, error) {
	for attempt := 0; attempt < invoiceAttempts; attempt++ {
		seq, err := store.NextInvoiceSequence(ctx, invoicePrefix, day)
		if err != nil {
			return "", fmt.Errorf("pos: next invoice sequence: %w", err)
		}

		invoice := FormatInvoice(invoicePrefix, day, seq)
		exists, err := store.InvoiceExists(ctx, invoice)
		if err != nil {
			return "", fmt.Errorf("pos: invoice uniqueness check: %w", err)
		}
		if !exists {
			return invoice, nil
		}
	}
	return "", fmt.Errorf("%w: could not allocate a unique invoice", ErrConflict)
}
