// Package auth drives the KSeF authorization handshake.
//
// A run walks through public key retrieval, challenge, token encryption and
// session exchange before writing the credential record in one Save. Nothing
// is persisted unless every earlier step succeeded.
package auth

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"github.com/rezonia/ksef-connector/internal/credentials"
	"github.com/rezonia/ksef-connector/internal/encryption"
	"github.com/rezonia/ksef-connector/internal/ksef"
	"github.com/rezonia/ksef-connector/internal/model"
)

// Failure messages of the first two steps
const (
	MsgPublicKeyUnavailable = "public key unavailable"
	MsgChallengeUnavailable = "challenge unavailable"
)

// ServiceClient is the subset of the protocol client used by the handshake
type ServiceClient interface {
	PublicKey(ctx context.Context) (string, error)
	Challenge(ctx context.Context, nip string) (model.Challenge, error)
	GenerateToken(ctx context.Context, req ksef.TokenRequest) (ksef.SessionToken, error)
}

// Orchestrator composes the protocol client, encryption engine and credential store
type Orchestrator struct {
	client     ServiceClient
	store      credentials.Store
	production bool
	observer   Observer
	logger     zerolog.Logger
}

// Option configures an Orchestrator
type Option func(*Orchestrator)

// WithObserver registers a state transition callback
func WithObserver(fn Observer) Option {
	return func(o *Orchestrator) {
		o.observer = fn
	}
}

// WithLogger sets the logger
func WithLogger(logger zerolog.Logger) Option {
	return func(o *Orchestrator) {
		o.logger = logger
	}
}

// WithProduction marks sessions obtained by this orchestrator as production sessions
func WithProduction(production bool) Option {
	return func(o *Orchestrator) {
		o.production = production
	}
}

// NewOrchestrator creates an orchestrator
func NewOrchestrator(client ServiceClient, store credentials.Store, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		client: client,
		store:  store,
		logger: zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// attempt carries the intermediate values of one run. It never leaves Authorize.
type attempt struct {
	nip       string
	token     string
	company   string
	publicKey string
	challenge model.Challenge
	encrypted string
	session   string
}

// Authorize runs the handshake and returns Success with the session token,
// or Failure describing the first step that failed.
func (o *Orchestrator) Authorize(ctx context.Context, nip, longLivedToken, companyName string) model.Outcome {
	o.enter(Idle)

	if err := credentials.ValidateNIP(nip); err != nil {
		return o.fail(err.Error(), nil)
	}
	if strings.TrimSpace(longLivedToken) == "" {
		err := model.NewPreconditionError("token", nil, "non-empty", "long-lived token must not be empty")
		return o.fail(err.Error(), nil)
	}

	a := &attempt{nip: nip, token: longLivedToken, company: companyName}
	log := o.logger.With().Str("nip", nip).Logger()

	state := FetchingPublicKey
	for {
		o.enter(state)

		switch state {
		case FetchingPublicKey:
			key, err := o.client.PublicKey(ctx)
			if err != nil {
				log.Warn().Err(err).Msg("fetching public key failed")
				return o.fail(MsgPublicKeyUnavailable, httpCode(err))
			}
			a.publicKey = key
			state = FetchingChallenge

		case FetchingChallenge:
			ch, err := o.client.Challenge(ctx, a.nip)
			if err != nil {
				log.Warn().Err(err).Msg("fetching challenge failed")
				return o.fail(MsgChallengeUnavailable, httpCode(err))
			}
			a.challenge = ch
			state = EncryptingSecret

		case EncryptingSecret:
			wrapped, err := encryption.WrapSecret([]byte(a.token), []byte(a.publicKey))
			if err != nil {
				return o.fail(err.Error(), nil)
			}
			a.encrypted = base64.StdEncoding.EncodeToString(wrapped)
			state = ExchangingSession

		case ExchangingSession:
			tok, err := o.client.GenerateToken(ctx, ksef.TokenRequest{
				ContextIdentifier: ksef.NIPIdentifier(a.nip),
				EncryptedToken:    a.encrypted,
				Challenge:         a.challenge.Value,
			})
			if err != nil {
				log.Warn().Err(err).Msg("session exchange failed")
				return o.fail(exchangeMessage(err), httpCode(err))
			}
			a.session = tok.Token
			state = Persisting

		case Persisting:
			if err := ctx.Err(); err != nil {
				return o.fail(fmt.Sprintf("authorization cancelled: %v", err), nil)
			}
			if err := o.store.Save(ctx, o.patch(a)); err != nil {
				log.Error().Err(err).Msg("persisting credentials failed")
				return o.fail(fmt.Sprintf("saving credentials: %v", err), nil)
			}
			state = Connected

		case Connected:
			log.Info().Int("session_len", len(a.session)).Msg("authorized")
			return model.Success{SessionToken: a.session}
		}
	}
}

// Disconnect drops the session but keeps the NIP, token and company name
func (o *Orchestrator) Disconnect(ctx context.Context) error {
	return o.store.Save(ctx, model.CredentialsPatch{
		SessionToken: model.String(""),
		IsConnected:  model.Bool(false),
	})
}

// Logout is Disconnect; the Service exposes no session termination endpoint
func (o *Orchestrator) Logout(ctx context.Context) error {
	return o.Disconnect(ctx)
}

// ClearAll wipes every stored field
func (o *Orchestrator) ClearAll(ctx context.Context) error {
	return o.store.Clear(ctx)
}

// SwitchEnvironment records the target environment and drops the current session.
// The caller must build a new client for env and authorize again.
func SwitchEnvironment(ctx context.Context, store credentials.Store, env ksef.Environment) error {
	return store.Save(ctx, model.CredentialsPatch{
		SessionToken: model.String(""),
		IsConnected:  model.Bool(false),
		IsProduction: model.Bool(env.IsProduction()),
	})
}

func (o *Orchestrator) patch(a *attempt) model.CredentialsPatch {
	return model.CredentialsPatch{
		NIP:            model.String(a.nip),
		LongLivedToken: model.String(a.token),
		SessionToken:   model.String(a.session),
		CompanyName:    model.String(a.company),
		IsConnected:    model.Bool(true),
		IsProduction:   model.Bool(o.production),
	}
}

func (o *Orchestrator) enter(s State) {
	o.logger.Debug().Stringer("state", s).Msg("auth state")
	if o.observer != nil {
		o.observer(s)
	}
}

func (o *Orchestrator) fail(message string, code *int) model.Outcome {
	o.enter(Failed)
	return model.Failure{Message: message, Code: code}
}

func httpCode(err error) *int {
	if code, ok := ksef.StatusCode(err); ok {
		return &code
	}
	return nil
}

func exchangeMessage(err error) string {
	var he *ksef.HTTPError
	if errors.As(err, &he) {
		return he.Message
	}
	return err.Error()
}
