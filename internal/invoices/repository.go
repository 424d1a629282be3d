// Package invoices stores the local record of each invoice and its KSeF lifecycle.
package invoices

import (
	"context"
	"errors"

	"github.com/rezonia/ksef-connector/internal/model"
)

var (
	// ErrNotFound is returned when no invoice has the requested ID
	ErrNotFound = errors.New("invoice not found")

	// ErrStoreOperationFailed is returned when the backing storage fails
	ErrStoreOperationFailed = errors.New("invoice store operation failed")
)

// Repository persists invoices
type Repository interface {
	Get(ctx context.Context, id string) (model.Invoice, error)
	Put(ctx context.Context, inv model.Invoice) error
	List(ctx context.Context) ([]model.Invoice, error)

	// MarkSent records a submission. The status moves to SENT unless it is already terminal.
	MarkSent(ctx context.Context, id, referenceNumber string) error

	// UpdateStatus sets the status and, when non-empty, the KSeF number.
	// It reports false when the record already had that status.
	UpdateStatus(ctx context.Context, id string, status model.InvoiceStatus, ksefNumber string) (bool, error)
}

func applySent(inv model.Invoice, ref string) model.Invoice {
	inv.ReferenceNumber = ref
	if !inv.Status.IsTerminal() {
		inv.Status = model.StatusSent
	}
	return inv
}

func applyStatus(inv model.Invoice, status model.InvoiceStatus, ksefNumber string) (model.Invoice, bool) {
	if inv.Status == status && (ksefNumber == "" || inv.KSeFNumber == ksefNumber) {
		return inv, false
	}
	inv.Status = status
	if ksefNumber != "" {
		inv.KSeFNumber = ksefNumber
	}
	return inv, true
}
