package sender_test

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"errors"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rezonia/ksef-connector/internal/auth"
	"github.com/rezonia/ksef-connector/internal/credentials"
	"github.com/rezonia/ksef-connector/internal/invoices"
	"github.com/rezonia/ksef-connector/internal/ksef"
	"github.com/rezonia/ksef-connector/internal/model"
	"github.com/rezonia/ksef-connector/internal/notify"
	"github.com/rezonia/ksef-connector/internal/poller"
	"github.com/rezonia/ksef-connector/internal/sender"
	"github.com/rezonia/ksef-connector/internal/server"
)

type env struct {
	client *ksef.Client
	store  *credentials.MemoryStore
	repo   *invoices.MemoryRepository
}

func sandbox(t *testing.T) env {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	srv, err := server.NewServer(&server.Config{PrivateKey: key, PendingPolls: 1})
	require.NoError(t, err)
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)

	return env{
		client: ksef.NewClient(ksef.Custom(ts.URL)),
		store:  credentials.NewMemoryStore(),
		repo:   invoices.NewMemoryRepository(),
	}
}

func (e env) connect(t *testing.T) {
	t.Helper()
	out := auth.NewOrchestrator(e.client, e.store).
		Authorize(context.Background(), "1234567890", "secretTok", "ACME")
	require.IsType(t, model.Success{}, out)
}

func invoice() model.Invoice {
	return model.Invoice{
		Number:    "FV/1/2024",
		IssueDate: "2024-03-15",
		Buyer:     model.Party{NIP: "5260250274", Name: "Buyer"},
		Items:     []model.LineItem{{Description: "Service", NetAmount: "100", VATRate: "23"}},
	}
}

func TestSend_RequiresSession(t *testing.T) {
	e := sandbox(t)

	_, _, err := sender.New(e.client, e.store, e.repo).Send(context.Background(), invoice())
	assert.ErrorIs(t, err, sender.ErrNotConnected)

	list, err := e.repo.List(context.Background())
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestSend_RefusesSessionFromOtherEnvironment(t *testing.T) {
	e := sandbox(t)
	e.connect(t)

	_, _, err := sender.New(e.client, e.store, e.repo, sender.WithProduction(true)).
		Send(context.Background(), invoice())
	assert.ErrorIs(t, err, sender.ErrNotConnected)

	list, err := e.repo.List(context.Background())
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestSend_ThroughPollerToAccepted(t *testing.T) {
	for _, plain := range []bool{false, true} {
		e := sandbox(t)
		e.connect(t)
		ctx := context.Background()

		var opts []sender.Option
		if plain {
			opts = append(opts, sender.WithPlainPayload())
		}
		inv, res, err := sender.New(e.client, e.store, e.repo, opts...).Send(ctx, invoice())
		require.NoError(t, err)
		require.NotEmpty(t, inv.ID)
		assert.Equal(t, res.ReferenceNumber, inv.ReferenceNumber)

		stored, err := e.repo.Get(ctx, inv.ID)
		require.NoError(t, err)
		assert.Equal(t, model.StatusSent, stored.Status)

		pubsub := notify.NewGoChannel(zerolog.Nop())
		defer pubsub.Close()
		p := poller.New(e.client, e.store, e.repo, notify.NewWatermillNotifier(pubsub, ""))

		assert.Equal(t, poller.Retry, p.Check(ctx, inv.ID, inv.ReferenceNumber))
		assert.Equal(t, poller.Done, p.Check(ctx, inv.ID, inv.ReferenceNumber))

		stored, err = e.repo.Get(ctx, inv.ID)
		require.NoError(t, err)
		assert.Equal(t, model.StatusAccepted, stored.Status)
		assert.Contains(t, stored.KSeFNumber, "1234567890-")
	}
}

type failingClient struct{}

func (failingClient) PublicKey(context.Context) (string, error) {
	return "", &ksef.TransportError{Operation: "public key", Cause: errors.New("down")}
}

func (failingClient) SendInvoice(context.Context, string, ksef.InvoicePayload) (model.SubmissionResult, error) {
	return model.SubmissionResult{}, errors.New("unreachable")
}

func TestSend_FailureLeavesDraft(t *testing.T) {
	ctx := context.Background()
	store := credentials.NewMemoryStore()
	require.NoError(t, store.Save(ctx, model.CredentialsPatch{
		NIP:          model.String("1234567890"),
		SessionToken: model.String("sess"),
		IsConnected:  model.Bool(true),
	}))
	repo := invoices.NewMemoryRepository()

	inv := invoice()
	inv.ID = "inv-1"
	_, _, err := sender.New(failingClient{}, store, repo).Send(ctx, inv)
	require.Error(t, err)
	assert.True(t, ksef.IsRetryable(err))

	stored, err := repo.Get(ctx, "inv-1")
	require.NoError(t, err)
	assert.Equal(t, model.StatusDraft, stored.Status)
	assert.Empty(t, stored.ReferenceNumber)
}
