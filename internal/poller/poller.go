// Package poller tracks submitted invoices until the Service decides on them.
//
// Check performs one status query and reports whether the caller should
// schedule another. It holds no state between calls, so re-running it for the
// same invoice after a crash is safe.
package poller

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"github.com/rezonia/ksef-connector/internal/credentials"
	"github.com/rezonia/ksef-connector/internal/invoices"
	"github.com/rezonia/ksef-connector/internal/model"
	"github.com/rezonia/ksef-connector/internal/notify"
)

// Result tells the scheduler what to do next
type Result int

const (
	// Done means the invoice reached a terminal status
	Done Result = iota
	// Retry means the check should run again later
	Retry
)

func (r Result) String() string {
	if r == Done {
		return "done"
	}
	return "retry"
}

// StatusClient queries submission status
type StatusClient interface {
	InvoiceStatus(ctx context.Context, session, referenceNumber string) (model.StatusSnapshot, error)
}

// Poller maps Service processing codes onto the local invoice record
type Poller struct {
	client   StatusClient
	store    credentials.Store
	repo     invoices.Repository
	notifier notify.Notifier
	logger   zerolog.Logger
	now      func() time.Time

	production bool
}

// Option configures a Poller
type Option func(*Poller)

// WithLogger sets the logger
func WithLogger(logger zerolog.Logger) Option {
	return func(p *Poller) {
		p.logger = logger
	}
}

// WithClock overrides the event timestamp source
func WithClock(now func() time.Time) Option {
	return func(p *Poller) {
		p.now = now
	}
}

// WithProduction marks the client as bound to the production environment.
// A session issued by the other kind of environment counts as missing.
func WithProduction(production bool) Option {
	return func(p *Poller) {
		p.production = production
	}
}

// New creates a Poller
func New(client StatusClient, store credentials.Store, repo invoices.Repository, notifier notify.Notifier, opts ...Option) *Poller {
	p := &Poller{
		client:   client,
		store:    store,
		repo:     repo,
		notifier: notifier,
		logger:   zerolog.Nop(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Check queries the status of referenceNumber once.
// Missing sessions, transport failures and HTTP errors all yield Retry and
// leave the invoice record untouched.
func (p *Poller) Check(ctx context.Context, invoiceID, referenceNumber string) Result {
	log := p.logger.With().Str("invoice_id", invoiceID).Str("reference", referenceNumber).Logger()

	creds, err := p.store.Get(ctx)
	if err != nil {
		log.Warn().Err(err).Msg("reading credentials failed")
		return Retry
	}
	if !creds.SessionFor(p.production) {
		log.Debug().Msg("no session for this environment, retrying later")
		return Retry
	}

	snap, err := p.client.InvoiceStatus(ctx, creds.SessionToken, referenceNumber)
	if err != nil {
		log.Warn().Err(err).Msg("status query failed")
		return Retry
	}

	status := snap.Decision()
	if !status.IsTerminal() {
		log.Debug().Int("code", snap.ProcessingCode).Msg("still processing")
		return Retry
	}

	_, err = p.repo.UpdateStatus(ctx, invoiceID, status, snap.KSeFReferenceNumber)
	switch {
	case errors.Is(err, invoices.ErrNotFound):
		log.Warn().Msg("invoice record missing, notifying only")
	case err != nil:
		log.Error().Err(err).Msg("updating invoice failed")
		return Retry
	}

	event := notify.Event{
		InvoiceID:       invoiceID,
		ReferenceNumber: referenceNumber,
		KSeFNumber:      snap.KSeFReferenceNumber,
		Status:          status,
		ProcessingCode:  snap.ProcessingCode,
		Description:     snap.Description,
		OccurredAt:      p.now(),
	}
	if err := p.notifier.Notify(ctx, event); err != nil {
		log.Warn().Err(err).Msg("notification failed")
		return Retry
	}

	log.Info().Str("status", string(status)).Int("code", snap.ProcessingCode).Msg("invoice decided")
	return Done
}
