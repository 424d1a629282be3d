// Package credentials persists the taxpayer's authorization state.
//
// A Store holds exactly one Credentials record. Writes are merges of a
// CredentialsPatch and are all-or-nothing: a reader sees either the record
// before a Save or the record after it, never a mix.
package credentials

import (
	"context"
	"errors"

	"github.com/rezonia/ksef-connector/internal/model"
)

var (
	// ErrStoreOperationFailed is returned when the backing storage fails
	ErrStoreOperationFailed = errors.New("credential store operation failed")

	// ErrWrongPassphrase is returned when a sealed store cannot be opened
	ErrWrongPassphrase = errors.New("wrong passphrase or corrupted credential file")
)

// Store is the single-writer, multiple-reader credential record
type Store interface {
	// Get returns the latest committed record, or an empty record
	Get(ctx context.Context) (model.Credentials, error)

	// Save atomically merges patch into the stored record
	Save(ctx context.Context, patch model.CredentialsPatch) error

	// Clear wipes every field
	Clear(ctx context.Context) error
}

// Field names of the persisted record
const (
	KeyNIP            = "nip"
	KeyLongLivedToken = "long_lived_token"
	KeySessionToken   = "session_token"
	KeyIsConnected    = "is_connected"
	KeyIsProduction   = "is_production"
	KeyCompanyName    = "company_name"
)
