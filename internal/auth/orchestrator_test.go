package auth_test

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rezonia/ksef-connector/internal/auth"
	"github.com/rezonia/ksef-connector/internal/credentials"
	"github.com/rezonia/ksef-connector/internal/encryption"
	"github.com/rezonia/ksef-connector/internal/ksef"
	"github.com/rezonia/ksef-connector/internal/model"
)

var (
	keyOnce sync.Once
	testKey *rsa.PrivateKey
)

func serverKey(t *testing.T) (*rsa.PrivateKey, string) {
	t.Helper()
	keyOnce.Do(func() {
		k, err := rsa.GenerateKey(rand.Reader, 2048)
		if err != nil {
			panic(err)
		}
		testKey = k
	})
	der, err := x509.MarshalPKIXPublicKey(&testKey.PublicKey)
	require.NoError(t, err)
	return testKey, base64.StdEncoding.EncodeToString(der)
}

// countingStore records how many writes reached the wrapped store
type countingStore struct {
	credentials.Store
	mu    sync.Mutex
	saves int
}

func (s *countingStore) Save(ctx context.Context, p model.CredentialsPatch) error {
	s.mu.Lock()
	s.saves++
	s.mu.Unlock()
	return s.Store.Save(ctx, p)
}

func seededStore(t *testing.T) *countingStore {
	t.Helper()
	inner := credentials.NewMemoryStore()
	require.NoError(t, inner.Save(context.Background(), model.CredentialsPatch{
		NIP:            model.String("9999999999"),
		LongLivedToken: model.String("old-token"),
		SessionToken:   model.String("old-session"),
		CompanyName:    model.String("Old Co"),
	}))
	return &countingStore{Store: inner}
}

// stubService emulates the three handshake endpoints
func stubService(t *testing.T, publicKey string, challengeStatus int, gotRequest *ksef.TokenRequest) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/security/public-key-certificates", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]string{"publicKey": publicKey})
	})
	mux.HandleFunc("/auth/challenge/nip/", func(w http.ResponseWriter, r *http.Request) {
		if challengeStatus != http.StatusOK {
			w.WriteHeader(challengeStatus)
			_, _ = w.Write([]byte(`{"error":"challenge backend down"}`))
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]string{"challenge": "chal-1", "timestamp": "2024-03-01T10:00:00Z"})
	})
	mux.HandleFunc("/auth/token/generate", func(w http.ResponseWriter, r *http.Request) {
		if gotRequest != nil {
			_ = json.NewDecoder(r.Body).Decode(gotRequest)
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"sessionToken": map[string]any{"token": "sess-99"},
		})
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestAuthorize_Success(t *testing.T) {
	priv, pub := serverKey(t)
	var req ksef.TokenRequest
	srv := stubService(t, pub, http.StatusOK, &req)

	store := credentials.NewMemoryStore()
	var states []auth.State
	o := auth.NewOrchestrator(
		ksef.NewClient(ksef.Custom(srv.URL)),
		store,
		auth.WithObserver(func(s auth.State) { states = append(states, s) }),
	)

	out := o.Authorize(context.Background(), "1234567890", "secretTok", "ACME")

	require.IsType(t, model.Success{}, out)
	assert.Equal(t, "sess-99", out.(model.Success).SessionToken)

	creds, err := store.Get(context.Background())
	require.NoError(t, err)
	assert.True(t, creds.IsConnected)
	assert.Equal(t, "sess-99", creds.SessionToken)
	assert.Equal(t, "1234567890", creds.NIP)
	assert.Equal(t, "ACME", creds.CompanyName)
	assert.Equal(t, "secretTok", creds.LongLivedToken)
	assert.False(t, creds.IsProduction)

	assert.Equal(t, []auth.State{
		auth.Idle,
		auth.FetchingPublicKey,
		auth.FetchingChallenge,
		auth.EncryptingSecret,
		auth.ExchangingSession,
		auth.Persisting,
		auth.Connected,
	}, states)

	assert.Equal(t, ksef.NIPIdentifier("1234567890"), req.ContextIdentifier)
	assert.Equal(t, "chal-1", req.Challenge)
	wrapped, err := base64.StdEncoding.DecodeString(req.EncryptedToken)
	require.NoError(t, err)
	plain, err := encryption.UnwrapSecret(wrapped, priv)
	require.NoError(t, err)
	assert.Equal(t, "secretTok", string(plain))
}

func TestAuthorize_ChallengeServerError(t *testing.T) {
	_, pub := serverKey(t)
	srv := stubService(t, pub, http.StatusInternalServerError, nil)

	store := seededStore(t)
	before, err := store.Get(context.Background())
	require.NoError(t, err)

	o := auth.NewOrchestrator(ksef.NewClient(ksef.Custom(srv.URL)), store)
	out := o.Authorize(context.Background(), "1234567890", "secretTok", "ACME")

	failure, ok := out.(model.Failure)
	require.True(t, ok, "expected Failure, got %T", out)
	assert.Equal(t, auth.MsgChallengeUnavailable, failure.Message)
	require.NotNil(t, failure.Code)
	assert.Equal(t, 500, *failure.Code)

	after, err := store.Get(context.Background())
	require.NoError(t, err)
	assert.Equal(t, before, after)
	assert.False(t, after.IsConnected)
	assert.Zero(t, store.saves)
}

// fakeClient fails at a configurable step
type fakeClient struct {
	publicKey    string
	publicKeyErr error
	challengeErr error
	exchangeErr  error
	onExchange   func()
	calls        int
}

func (f *fakeClient) PublicKey(ctx context.Context) (string, error) {
	f.calls++
	return f.publicKey, f.publicKeyErr
}

func (f *fakeClient) Challenge(ctx context.Context, nip string) (model.Challenge, error) {
	f.calls++
	if f.challengeErr != nil {
		return model.Challenge{}, f.challengeErr
	}
	return model.Challenge{Value: "chal"}, nil
}

func (f *fakeClient) GenerateToken(ctx context.Context, req ksef.TokenRequest) (ksef.SessionToken, error) {
	f.calls++
	if f.onExchange != nil {
		f.onExchange()
	}
	if f.exchangeErr != nil {
		return ksef.SessionToken{}, f.exchangeErr
	}
	return ksef.SessionToken{Token: "sess"}, nil
}

func TestAuthorize_FailuresNeverWrite(t *testing.T) {
	_, pub := serverKey(t)

	tests := []struct {
		name     string
		client   *fakeClient
		wantMsg  string
		wantCode *int
	}{
		{
			name:    "public key transport error",
			client:  &fakeClient{publicKeyErr: &ksef.TransportError{Operation: "public key", Cause: errors.New("refused")}},
			wantMsg: auth.MsgPublicKeyUnavailable,
		},
		{
			name:    "public key missing",
			client:  &fakeClient{publicKeyErr: &ksef.ProtocolError{Operation: "public key", Field: "publicKey"}},
			wantMsg: auth.MsgPublicKeyUnavailable,
		},
		{
			name:    "challenge transport error",
			client:  &fakeClient{publicKey: pub, challengeErr: &ksef.TransportError{Operation: "challenge", Cause: errors.New("timeout")}},
			wantMsg: auth.MsgChallengeUnavailable,
		},
		{
			name:    "malformed public key",
			client:  &fakeClient{publicKey: "bm90IGEga2V5"},
			wantMsg: "encryption failed",
		},
		{
			name:     "session exchange rejected",
			client:   &fakeClient{publicKey: pub, exchangeErr: &ksef.HTTPError{Operation: "token exchange", StatusCode: 401, Message: "invalid token"}},
			wantMsg:  "invalid token",
			wantCode: intPtr(401),
		},
		{
			name:    "session exchange missing token",
			client:  &fakeClient{publicKey: pub, exchangeErr: &ksef.ProtocolError{Operation: "token exchange", Field: "sessionToken.token"}},
			wantMsg: "sessionToken.token",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := seededStore(t)
			before, err := store.Get(context.Background())
			require.NoError(t, err)

			var last auth.State
			o := auth.NewOrchestrator(tt.client, store, auth.WithObserver(func(s auth.State) { last = s }))
			out := o.Authorize(context.Background(), "1234567890", "secretTok", "ACME")

			failure, ok := out.(model.Failure)
			require.True(t, ok, "expected Failure, got %T", out)
			assert.Contains(t, failure.Message, tt.wantMsg)
			assert.Equal(t, tt.wantCode, failure.Code)
			assert.Equal(t, auth.Failed, last)

			after, err := store.Get(context.Background())
			require.NoError(t, err)
			assert.Equal(t, before, after)
			assert.Zero(t, store.saves)
		})
	}
}

func TestAuthorize_Preconditions(t *testing.T) {
	tests := []struct {
		name  string
		nip   string
		token string
	}{
		{"short nip", "12345", "tok"},
		{"letters in nip", "12345678ab", "tok"},
		{"empty token", "1234567890", "  "},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := &fakeClient{}
			store := seededStore(t)

			out := auth.NewOrchestrator(client, store).Authorize(context.Background(), tt.nip, tt.token, "ACME")

			assert.IsType(t, model.Failure{}, out)
			assert.Zero(t, client.calls, "no network call may happen")
			assert.Zero(t, store.saves)
		})
	}
}

func TestAuthorize_CancelledBeforePersisting(t *testing.T) {
	_, pub := serverKey(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	client := &fakeClient{publicKey: pub, onExchange: cancel}
	store := seededStore(t)

	out := auth.NewOrchestrator(client, store).Authorize(ctx, "1234567890", "secretTok", "ACME")

	failure, ok := out.(model.Failure)
	require.True(t, ok)
	assert.Contains(t, failure.Message, "cancelled")
	assert.Zero(t, store.saves)
}

func TestAuthorize_ProductionFlag(t *testing.T) {
	_, pub := serverKey(t)
	store := credentials.NewMemoryStore()

	out := auth.NewOrchestrator(&fakeClient{publicKey: pub}, store, auth.WithProduction(true)).
		Authorize(context.Background(), "1234567890", "secretTok", "ACME")
	require.IsType(t, model.Success{}, out)

	creds, err := store.Get(context.Background())
	require.NoError(t, err)
	assert.True(t, creds.IsProduction)
}

func TestDisconnect_KeepsSecrets(t *testing.T) {
	_, pub := serverKey(t)
	store := credentials.NewMemoryStore()
	o := auth.NewOrchestrator(&fakeClient{publicKey: pub}, store)
	require.IsType(t, model.Success{}, o.Authorize(context.Background(), "1234567890", "secretTok", "ACME"))

	require.NoError(t, o.Disconnect(context.Background()))

	creds, err := store.Get(context.Background())
	require.NoError(t, err)
	assert.False(t, creds.IsConnected)
	assert.Empty(t, creds.SessionToken)
	assert.Equal(t, "1234567890", creds.NIP)
	assert.Equal(t, "secretTok", creds.LongLivedToken)
	assert.Equal(t, "ACME", creds.CompanyName)
}

func TestClearAll(t *testing.T) {
	store := seededStore(t)
	o := auth.NewOrchestrator(&fakeClient{}, store)

	require.NoError(t, o.ClearAll(context.Background()))

	creds, err := store.Get(context.Background())
	require.NoError(t, err)
	assert.Equal(t, model.Credentials{}, creds)
}

func TestSwitchEnvironment(t *testing.T) {
	store := credentials.NewMemoryStore()
	require.NoError(t, store.Save(context.Background(), model.CredentialsPatch{
		NIP:          model.String("1234567890"),
		SessionToken: model.String("sess"),
		IsConnected:  model.Bool(true),
	}))

	require.NoError(t, auth.SwitchEnvironment(context.Background(), store, ksef.Production))

	creds, err := store.Get(context.Background())
	require.NoError(t, err)
	assert.False(t, creds.HasSession())
	assert.True(t, creds.IsProduction)
	assert.Equal(t, "1234567890", creds.NIP)
}

func TestState_String(t *testing.T) {
	assert.Equal(t, "exchanging_session", auth.ExchangingSession.String())
	assert.Equal(t, "unknown", auth.State(99).String())
	assert.True(t, auth.Connected.IsTerminal())
	assert.False(t, auth.Persisting.IsTerminal())
}

func intPtr(i int) *int { return &i }
