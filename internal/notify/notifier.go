// Package notify delivers terminal invoice status changes to interested parties.
package notify

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/rezonia/ksef-connector/internal/model"
)

// Event announces that the Service reached a final decision on an invoice
type Event struct {
	InvoiceID       string              `json:"invoice_id"`
	ReferenceNumber string              `json:"reference_number"`
	KSeFNumber      string              `json:"ksef_number,omitempty"`
	Status          model.InvoiceStatus `json:"status"`
	ProcessingCode  int                 `json:"processing_code"`
	Description     string              `json:"description,omitempty"`
	OccurredAt      time.Time           `json:"occurred_at"`
}

// Message is a short human readable summary of the event
func (e Event) Message() string {
	switch e.Status {
	case model.StatusAccepted:
		return fmt.Sprintf("Invoice %s accepted by KSeF (%s)", e.InvoiceID, e.KSeFNumber)
	case model.StatusRejected:
		return fmt.Sprintf("Invoice %s rejected by KSeF: %d %s", e.InvoiceID, e.ProcessingCode, e.Description)
	default:
		return fmt.Sprintf("Invoice %s status %s", e.InvoiceID, e.Status)
	}
}

// Notifier is the notification collaborator
type Notifier interface {
	Notify(ctx context.Context, event Event) error
}

// LogNotifier writes events to a logger
type LogNotifier struct {
	logger zerolog.Logger
}

// NewLogNotifier creates a LogNotifier
func NewLogNotifier(logger zerolog.Logger) *LogNotifier {
	return &LogNotifier{logger: logger}
}

func (n *LogNotifier) Notify(ctx context.Context, event Event) error {
	n.logger.Info().
		Str("invoice_id", event.InvoiceID).
		Str("reference", event.ReferenceNumber).
		Str("status", string(event.Status)).
		Int("code", event.ProcessingCode).
		Msg(event.Message())
	return nil
}

// Multi fans an event out to every notifier and joins their errors
type Multi []Notifier

func (m Multi) Notify(ctx context.Context, event Event) error {
	var errs []error
	for _, n := range m {
		if err := n.Notify(ctx, event); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

var (
	_ Notifier = (*LogNotifier)(nil)
	_ Notifier = Multi(nil)
)
