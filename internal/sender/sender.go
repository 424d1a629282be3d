// Package sender submits invoices to KSeF and records the submission locally.
package sender

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/rezonia/ksef-connector/internal/credentials"
	"github.com/rezonia/ksef-connector/internal/encryption"
	"github.com/rezonia/ksef-connector/internal/invoices"
	"github.com/rezonia/ksef-connector/internal/ksef"
	"github.com/rezonia/ksef-connector/internal/model"
	"github.com/rezonia/ksef-connector/internal/xmlenc"
)

// ErrNotConnected is returned when no session token for the client's environment is stored
var ErrNotConnected = errors.New("not connected to KSeF, authorize first")

// Client is the subset of the protocol client used for submission
type Client interface {
	PublicKey(ctx context.Context) (string, error)
	SendInvoice(ctx context.Context, session string, payload ksef.InvoicePayload) (model.SubmissionResult, error)
}

// Sender encodes, optionally encrypts and submits invoices
type Sender struct {
	client     Client
	store      credentials.Store
	repo       invoices.Repository
	logger     zerolog.Logger
	encrypt    bool
	production bool
}

// Option configures a Sender
type Option func(*Sender)

// WithLogger sets the logger
func WithLogger(logger zerolog.Logger) Option {
	return func(s *Sender) {
		s.logger = logger
	}
}

// WithPlainPayload submits documents unencrypted (base64 only)
func WithPlainPayload() Option {
	return func(s *Sender) {
		s.encrypt = false
	}
}

// WithProduction marks the client as bound to the production environment.
// Only sessions issued by the same kind of environment are used.
func WithProduction(production bool) Option {
	return func(s *Sender) {
		s.production = production
	}
}

// New creates a Sender. Documents are encrypted by default.
func New(client Client, store credentials.Store, repo invoices.Repository, opts ...Option) *Sender {
	s := &Sender{
		client:  client,
		store:   store,
		repo:    repo,
		logger:  zerolog.Nop(),
		encrypt: true,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Send submits inv and marks it SENT. An invoice without ID gets a fresh UUID.
// The returned invoice carries the ID and reference number to poll with.
func (s *Sender) Send(ctx context.Context, inv model.Invoice) (model.Invoice, model.SubmissionResult, error) {
	creds, err := s.store.Get(ctx)
	if err != nil {
		return inv, model.SubmissionResult{}, err
	}
	if !creds.SessionFor(s.production) {
		return inv, model.SubmissionResult{}, ErrNotConnected
	}

	if inv.ID == "" {
		inv.ID = uuid.NewString()
	}
	if err := s.ensureRecord(ctx, inv); err != nil {
		return inv, model.SubmissionResult{}, err
	}

	doc, err := xmlenc.Encode(inv, creds.NIP, creds.CompanyName)
	if err != nil {
		return inv, model.SubmissionResult{}, fmt.Errorf("encoding invoice: %w", err)
	}

	payload, err := s.payload(ctx, []byte(doc))
	if err != nil {
		return inv, model.SubmissionResult{}, err
	}

	res, err := s.client.SendInvoice(ctx, creds.SessionToken, payload)
	if err != nil {
		return inv, model.SubmissionResult{}, err
	}

	if err := s.repo.MarkSent(ctx, inv.ID, res.ReferenceNumber); err != nil {
		return inv, res, fmt.Errorf("recording submission %s: %w", res.ReferenceNumber, err)
	}
	inv.ReferenceNumber = res.ReferenceNumber
	if !inv.Status.IsTerminal() {
		inv.Status = model.StatusSent
	}

	s.logger.Info().
		Str("invoice_id", inv.ID).
		Str("reference", res.ReferenceNumber).
		Int("code", res.ProcessingCode).
		Bool("encrypted", s.encrypt).
		Msg("invoice submitted")
	return inv, res, nil
}

func (s *Sender) ensureRecord(ctx context.Context, inv model.Invoice) error {
	_, err := s.repo.Get(ctx, inv.ID)
	if err == nil {
		return nil
	}
	if !errors.Is(err, invoices.ErrNotFound) {
		return err
	}
	if inv.Status == "" {
		inv.Status = model.StatusDraft
	}
	return s.repo.Put(ctx, inv)
}

func (s *Sender) payload(ctx context.Context, doc []byte) (ksef.InvoicePayload, error) {
	if !s.encrypt {
		return ksef.InvoicePayload{
			Type:        ksef.PayloadPlain,
			InvoiceBody: base64.StdEncoding.EncodeToString(doc),
		}, nil
	}

	key, err := s.client.PublicKey(ctx)
	if err != nil {
		return ksef.InvoicePayload{}, fmt.Errorf("fetching public key: %w", err)
	}
	env, err := encryption.EncryptDocument(doc, []byte(key))
	if err != nil {
		return ksef.InvoicePayload{}, err
	}
	return ksef.InvoicePayload{
		Type:                                   ksef.PayloadEncrypted,
		InvoiceBody:                            env.CipherText,
		EncryptedCredentialsKeyForSessionToken: env.WrappedKey,
		IV:                                     env.IV,
	}, nil
}
