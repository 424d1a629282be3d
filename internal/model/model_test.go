package model_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rezonia/ksef-connector/internal/model"
)

func TestCredentialsPatch_Apply(t *testing.T) {
	base := model.Credentials{
		NIP:            "1234567890",
		LongLivedToken: "long",
		SessionToken:   "sess",
		CompanyName:    "ACME",
		IsConnected:    true,
	}

	patch := model.CredentialsPatch{
		SessionToken: model.String(""),
		IsConnected:  model.Bool(false),
	}
	got := patch.Apply(base)

	assert.Equal(t, "1234567890", got.NIP)
	assert.Equal(t, "long", got.LongLivedToken)
	assert.Equal(t, "ACME", got.CompanyName)
	assert.Empty(t, got.SessionToken)
	assert.False(t, got.IsConnected)

	// base is a value and must not change
	assert.Equal(t, "sess", base.SessionToken)
}

func TestCredentialsPatch_IsEmpty(t *testing.T) {
	assert.True(t, model.CredentialsPatch{}.IsEmpty())
	assert.False(t, model.CredentialsPatch{IsProduction: model.Bool(false)}.IsEmpty())
}

func TestCredentials_HasSession(t *testing.T) {
	assert.False(t, model.Credentials{}.HasSession())
	assert.False(t, model.Credentials{SessionToken: "x"}.HasSession())
	assert.True(t, model.Credentials{SessionToken: "x", IsConnected: true}.HasSession())
}

func TestCredentials_SessionFor(t *testing.T) {
	tests := []struct {
		name       string
		creds      model.Credentials
		production bool
		want       bool
	}{
		{"test session on test", model.Credentials{SessionToken: "x", IsConnected: true}, false, true},
		{"test session on production", model.Credentials{SessionToken: "x", IsConnected: true}, true, false},
		{"production session on production", model.Credentials{SessionToken: "x", IsConnected: true, IsProduction: true}, true, true},
		{"production session on test", model.Credentials{SessionToken: "x", IsConnected: true, IsProduction: true}, false, false},
		{"no session", model.Credentials{IsProduction: true}, true, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.creds.SessionFor(tt.production))
		})
	}
}

func TestOutcome_Variants(t *testing.T) {
	outcomes := []model.Outcome{
		model.Success{SessionToken: "tok"},
		model.NewHTTPFailure("session rejected", 401),
		model.Pending{},
	}

	var kinds []string
	for _, o := range outcomes {
		switch v := o.(type) {
		case model.Success:
			kinds = append(kinds, "success:"+v.SessionToken)
		case model.Failure:
			require.NotNil(t, v.Code)
			kinds = append(kinds, "failure:"+v.String())
		case model.Pending:
			kinds = append(kinds, "pending")
		}
	}

	assert.Equal(t, []string{"success:tok", "failure:session rejected (HTTP 401)", "pending"}, kinds)
}

func TestFailure_WithoutCode(t *testing.T) {
	f := model.NewFailure("public key unavailable")
	assert.Nil(t, f.Code)
	assert.Equal(t, "public key unavailable", f.String())
}

func TestStatusSnapshot_Decision(t *testing.T) {
	tests := []struct {
		code     int
		expected model.InvoiceStatus
	}{
		{200, model.StatusAccepted},
		{400, model.StatusRejected},
		{404, model.StatusRejected},
		{500, model.StatusRejected},
		{100, model.StatusSent},
		{150, model.StatusSent},
		{310, model.StatusSent},
	}

	for _, tt := range tests {
		got := model.StatusSnapshot{ProcessingCode: tt.code}.Decision()
		assert.Equal(t, tt.expected, got, "code %d", tt.code)
	}
}

func TestInvoiceStatus_IsTerminal(t *testing.T) {
	assert.False(t, model.StatusDraft.IsTerminal())
	assert.False(t, model.StatusSent.IsTerminal())
	assert.True(t, model.StatusAccepted.IsTerminal())
	assert.True(t, model.StatusRejected.IsTerminal())
}

func TestEncryptionError_WithCause(t *testing.T) {
	cause := assert.AnError
	err := model.NewEncryptionError("wrap", "cannot parse public key", cause)

	require.Contains(t, err.Error(), "wrap")
	require.Contains(t, err.Error(), "cannot parse public key")
	require.ErrorIs(t, err, cause)

	var encErr *model.EncryptionError
	require.True(t, errors.As(err, &encErr))
}

func TestPreconditionError(t *testing.T) {
	err := model.NewPreconditionError("nip", "12345", "length", "must be 10 digits")

	require.Contains(t, err.Error(), "nip")
	require.Contains(t, err.Error(), "12345")
	require.Contains(t, err.Error(), "10 digits")
}

func TestInvalidInputError(t *testing.T) {
	err := model.NewInvalidInputError("plaintext", "must not be empty")
	assert.Equal(t, "invalid input plaintext: must not be empty", err.Error())
}
