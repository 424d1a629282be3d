package ksef

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/rezonia/ksef-connector/internal/auth"
	"github.com/rezonia/ksef-connector/internal/credentials"
	"github.com/rezonia/ksef-connector/internal/invoices"
	protocol "github.com/rezonia/ksef-connector/internal/ksef"
	"github.com/rezonia/ksef-connector/internal/model"
	"github.com/rezonia/ksef-connector/internal/notify"
	"github.com/rezonia/ksef-connector/internal/poller"
	"github.com/rezonia/ksef-connector/internal/sender"
	"github.com/rezonia/ksef-connector/internal/xmlenc"
)

// PollOptions configures the status polling schedule
type PollOptions struct {
	InitialInterval time.Duration
	MaxInterval     time.Duration
	MaxAttempts     int
}

// Options configures a Connector
type Options struct {
	Environment Environment
	Timeout     time.Duration

	Store      credentials.Store   // required
	Repository invoices.Repository // defaults to in-memory
	Notifier   notify.Notifier     // defaults to logging

	PlainPayload bool
	Poll         PollOptions
	Logger       zerolog.Logger
}

// Connector wires the protocol client, handshake, encoder, sender and poller
// for one environment
type Connector struct {
	opts   Options
	client *protocol.Client
	auth   *auth.Orchestrator
	sender *sender.Sender
	poller *poller.Poller
	runner *poller.Runner
}

// New creates a Connector
func New(opts Options) (*Connector, error) {
	if opts.Store == nil {
		return nil, model.NewInvalidInputError("store", "must not be nil")
	}
	if opts.Environment.BaseURL == "" {
		opts.Environment = protocol.Test
	}
	if opts.Repository == nil {
		opts.Repository = invoices.NewMemoryRepository()
	}
	if opts.Notifier == nil {
		opts.Notifier = notify.NewLogNotifier(opts.Logger)
	}

	clientOpts := []protocol.Option{protocol.WithLogger(opts.Logger)}
	if opts.Timeout > 0 {
		clientOpts = append(clientOpts, protocol.WithTimeout(opts.Timeout))
	}
	client := protocol.NewClient(opts.Environment, clientOpts...)

	production := opts.Environment.IsProduction()
	senderOpts := []sender.Option{
		sender.WithLogger(opts.Logger),
		sender.WithProduction(production),
	}
	if opts.PlainPayload {
		senderOpts = append(senderOpts, sender.WithPlainPayload())
	}

	p := poller.New(client, opts.Store, opts.Repository, opts.Notifier,
		poller.WithLogger(opts.Logger),
		poller.WithProduction(production),
	)
	runner := poller.NewRunner(p, opts.Logger)
	if opts.Poll.InitialInterval > 0 {
		runner.InitialInterval = opts.Poll.InitialInterval
	}
	if opts.Poll.MaxInterval > 0 {
		runner.MaxInterval = opts.Poll.MaxInterval
	}
	if opts.Poll.MaxAttempts > 0 {
		runner.MaxAttempts = opts.Poll.MaxAttempts
	}

	return &Connector{
		opts:   opts,
		client: client,
		auth: auth.NewOrchestrator(client, opts.Store,
			auth.WithLogger(opts.Logger),
			auth.WithProduction(production),
		),
		sender: sender.New(client, opts.Store, opts.Repository, senderOpts...),
		poller: p,
		runner: runner,
	}, nil
}

// Environment returns the environment the connector talks to
func (c *Connector) Environment() Environment {
	return c.opts.Environment
}

// Health checks that the Service is reachable
func (c *Connector) Health(ctx context.Context) error {
	return c.client.Health(ctx)
}

// Connect runs the authorization handshake
func (c *Connector) Connect(ctx context.Context, nip, token, companyName string) Outcome {
	return c.auth.Authorize(ctx, nip, token, companyName)
}

// ConnectObserved is Connect with a state transition callback
func (c *Connector) ConnectObserved(ctx context.Context, nip, token, companyName string, observer auth.Observer) Outcome {
	o := auth.NewOrchestrator(c.client, c.opts.Store,
		auth.WithLogger(c.opts.Logger),
		auth.WithProduction(c.opts.Environment.IsProduction()),
		auth.WithObserver(observer),
	)
	return o.Authorize(ctx, nip, token, companyName)
}

// Disconnect drops the session, keeping NIP and token for reconnecting
func (c *Connector) Disconnect(ctx context.Context) error {
	return c.auth.Disconnect(ctx)
}

// ClearAll wipes all stored credentials
func (c *Connector) ClearAll(ctx context.Context) error {
	return c.auth.ClearAll(ctx)
}

// Credentials returns the stored record
func (c *Connector) Credentials(ctx context.Context) (Credentials, error) {
	return c.opts.Store.Get(ctx)
}

// SwitchEnvironment drops the current session and returns a connector bound to env.
// The returned connector must Connect again before sending.
func (c *Connector) SwitchEnvironment(ctx context.Context, env Environment) (*Connector, error) {
	if err := auth.SwitchEnvironment(ctx, c.opts.Store, env); err != nil {
		return nil, err
	}
	opts := c.opts
	opts.Environment = env
	return New(opts)
}

// Encode renders inv as XML with the stored taxpayer as seller
func (c *Connector) Encode(ctx context.Context, inv Invoice) (string, error) {
	creds, err := c.opts.Store.Get(ctx)
	if err != nil {
		return "", err
	}
	return xmlenc.Encode(inv, creds.NIP, creds.CompanyName)
}

// Send submits inv and records it as SENT
func (c *Connector) Send(ctx context.Context, inv Invoice) (Invoice, SubmissionResult, error) {
	return c.sender.Send(ctx, inv)
}

// Status queries a submission once without touching local records
func (c *Connector) Status(ctx context.Context, referenceNumber string) (StatusSnapshot, error) {
	creds, err := c.opts.Store.Get(ctx)
	if err != nil {
		return StatusSnapshot{}, err
	}
	if !creds.SessionFor(c.opts.Environment.IsProduction()) {
		return StatusSnapshot{}, sender.ErrNotConnected
	}
	return c.client.InvoiceStatus(ctx, creds.SessionToken, referenceNumber)
}

// Check runs one poll of a submitted invoice
func (c *Connector) Check(ctx context.Context, invoiceID, referenceNumber string) PollResult {
	return c.poller.Check(ctx, invoiceID, referenceNumber)
}

// Wait polls with backoff until the invoice is decided
func (c *Connector) Wait(ctx context.Context, invoiceID, referenceNumber string) error {
	return c.runner.Run(ctx, invoiceID, referenceNumber)
}

// Resume polls every invoice still awaiting a decision
func (c *Connector) Resume(ctx context.Context) error {
	return c.runner.Resume(ctx, c.opts.Repository)
}

// Invoice returns a locally recorded invoice
func (c *Connector) Invoice(ctx context.Context, id string) (Invoice, error) {
	return c.opts.Repository.Get(ctx, id)
}

// RequestDownload starts a batch download of invoices issued between from and to
func (c *Connector) RequestDownload(ctx context.Context, from, to string) (DownloadResponse, error) {
	creds, err := c.opts.Store.Get(ctx)
	if err != nil {
		return DownloadResponse{}, err
	}
	if !creds.SessionFor(c.opts.Environment.IsProduction()) {
		return DownloadResponse{}, sender.ErrNotConnected
	}
	return c.client.RequestDownload(ctx, creds.SessionToken, protocol.QueryCriteria{
		SubjectType:   "subject1",
		Type:          "range",
		InvoicingDate: &protocol.DateRange{From: from, To: to},
	})
}
