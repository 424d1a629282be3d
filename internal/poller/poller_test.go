package poller_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rezonia/ksef-connector/internal/credentials"
	"github.com/rezonia/ksef-connector/internal/invoices"
	"github.com/rezonia/ksef-connector/internal/ksef"
	"github.com/rezonia/ksef-connector/internal/model"
	"github.com/rezonia/ksef-connector/internal/notify"
	"github.com/rezonia/ksef-connector/internal/poller"
)

type fakeStatus struct {
	snap    model.StatusSnapshot
	err     error
	session string
	calls   int
}

func (f *fakeStatus) InvoiceStatus(ctx context.Context, session, ref string) (model.StatusSnapshot, error) {
	f.calls++
	f.session = session
	return f.snap, f.err
}

type recorder struct {
	mu     sync.Mutex
	events []notify.Event
	err    error
}

func (r *recorder) Notify(ctx context.Context, e notify.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	r.events = append(r.events, e)
	return nil
}

type fixture struct {
	client   *fakeStatus
	store    *credentials.MemoryStore
	repo     *invoices.MemoryRepository
	notifier *recorder
	poller   *poller.Poller
}

func newFixture(t *testing.T, connected bool) *fixture {
	t.Helper()
	ctx := context.Background()

	f := &fixture{
		client:   &fakeStatus{},
		store:    credentials.NewMemoryStore(),
		repo:     invoices.NewMemoryRepository(),
		notifier: &recorder{},
	}
	if connected {
		require.NoError(t, f.store.Save(ctx, model.CredentialsPatch{
			SessionToken: model.String("sess-99"),
			IsConnected:  model.Bool(true),
		}))
	}
	require.NoError(t, f.repo.Put(ctx, model.Invoice{ID: "inv-1", Number: "FV/1", Status: model.StatusDraft}))
	require.NoError(t, f.repo.MarkSent(ctx, "inv-1", "REF-1"))

	clock := func() time.Time { return time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC) }
	f.poller = poller.New(f.client, f.store, f.repo, f.notifier, poller.WithClock(clock))
	return f
}

func (f *fixture) status(t *testing.T) model.InvoiceStatus {
	t.Helper()
	inv, err := f.repo.Get(context.Background(), "inv-1")
	require.NoError(t, err)
	return inv.Status
}

func TestCheck_Accepted(t *testing.T) {
	f := newFixture(t, true)
	f.client.snap = model.StatusSnapshot{ProcessingCode: 200, KSeFReferenceNumber: "KSEF-1"}

	res := f.poller.Check(context.Background(), "inv-1", "REF-1")

	assert.Equal(t, poller.Done, res)
	assert.Equal(t, "sess-99", f.client.session)
	assert.Equal(t, model.StatusAccepted, f.status(t))

	inv, err := f.repo.Get(context.Background(), "inv-1")
	require.NoError(t, err)
	assert.Equal(t, "KSEF-1", inv.KSeFNumber)

	require.Len(t, f.notifier.events, 1)
	assert.Equal(t, model.StatusAccepted, f.notifier.events[0].Status)
	assert.Equal(t, "REF-1", f.notifier.events[0].ReferenceNumber)
}

func TestCheck_Rejected(t *testing.T) {
	f := newFixture(t, true)
	f.client.snap = model.StatusSnapshot{ProcessingCode: 404, Description: "Not found"}

	res := f.poller.Check(context.Background(), "inv-1", "REF-1")

	assert.Equal(t, poller.Done, res)
	assert.Equal(t, model.StatusRejected, f.status(t))
	require.Len(t, f.notifier.events, 1)
	assert.Equal(t, model.StatusRejected, f.notifier.events[0].Status)
	assert.Equal(t, 404, f.notifier.events[0].ProcessingCode)
}

func TestCheck_StillProcessing(t *testing.T) {
	for _, code := range []int{100, 150, 310, 399} {
		f := newFixture(t, true)
		f.client.snap = model.StatusSnapshot{ProcessingCode: code}

		res := f.poller.Check(context.Background(), "inv-1", "REF-1")

		assert.Equal(t, poller.Retry, res, "code %d", code)
		assert.Equal(t, model.StatusSent, f.status(t))
		assert.Empty(t, f.notifier.events)
	}
}

func TestCheck_NoSession(t *testing.T) {
	f := newFixture(t, false)
	f.client.snap = model.StatusSnapshot{ProcessingCode: 200}

	res := f.poller.Check(context.Background(), "inv-1", "REF-1")

	assert.Equal(t, poller.Retry, res)
	assert.Zero(t, f.client.calls)
	assert.Equal(t, model.StatusSent, f.status(t))
}

func TestCheck_SessionFromOtherEnvironment(t *testing.T) {
	f := newFixture(t, true)
	f.client.snap = model.StatusSnapshot{ProcessingCode: 200}
	p := poller.New(f.client, f.store, f.repo, f.notifier, poller.WithProduction(true))

	res := p.Check(context.Background(), "inv-1", "REF-1")

	assert.Equal(t, poller.Retry, res)
	assert.Zero(t, f.client.calls, "a test session must never reach production")
	assert.Equal(t, model.StatusSent, f.status(t))
	assert.Empty(t, f.notifier.events)
}

func TestCheck_QueryErrorsRetry(t *testing.T) {
	errs := []error{
		&ksef.TransportError{Operation: "invoice status", Cause: errors.New("connection reset")},
		&ksef.HTTPError{Operation: "invoice status", StatusCode: 500, Message: "Internal Server Error"},
		&ksef.HTTPError{Operation: "invoice status", StatusCode: 401, Message: "expired"},
	}
	for _, err := range errs {
		f := newFixture(t, true)
		f.client.err = err

		assert.Equal(t, poller.Retry, f.poller.Check(context.Background(), "inv-1", "REF-1"))
		assert.Equal(t, model.StatusSent, f.status(t))
		assert.Empty(t, f.notifier.events)
	}
}

func TestCheck_RepeatIsSafe(t *testing.T) {
	f := newFixture(t, true)
	f.client.snap = model.StatusSnapshot{ProcessingCode: 200, KSeFReferenceNumber: "KSEF-1"}

	assert.Equal(t, poller.Done, f.poller.Check(context.Background(), "inv-1", "REF-1"))
	assert.Equal(t, poller.Done, f.poller.Check(context.Background(), "inv-1", "REF-1"))

	assert.Equal(t, model.StatusAccepted, f.status(t))
	assert.Len(t, f.notifier.events, 2)
}

func TestCheck_NotificationFailureRetries(t *testing.T) {
	f := newFixture(t, true)
	f.client.snap = model.StatusSnapshot{ProcessingCode: 200}
	f.notifier.err = errors.New("broker down")

	assert.Equal(t, poller.Retry, f.poller.Check(context.Background(), "inv-1", "REF-1"))
	assert.Equal(t, model.StatusAccepted, f.status(t))

	f.notifier.err = nil
	assert.Equal(t, poller.Done, f.poller.Check(context.Background(), "inv-1", "REF-1"))
	assert.Len(t, f.notifier.events, 1)
}

func TestCheck_MissingRecordStillNotifies(t *testing.T) {
	f := newFixture(t, true)
	f.client.snap = model.StatusSnapshot{ProcessingCode: 200}

	assert.Equal(t, poller.Done, f.poller.Check(context.Background(), "unknown", "REF-9"))
	require.Len(t, f.notifier.events, 1)
	assert.Equal(t, "unknown", f.notifier.events[0].InvoiceID)
}

func TestResult_String(t *testing.T) {
	assert.Equal(t, "done", poller.Done.String())
	assert.Equal(t, "retry", poller.Retry.String())
}
