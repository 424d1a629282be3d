package credentials

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/rezonia/ksef-connector/internal/fsutil"
	"github.com/rezonia/ksef-connector/internal/model"
)

const credentialsFile = "credentials.enc"

// FileStore keeps the record in a passphrase-sealed file.
// Every write replaces the file through a temp file and rename, so a crash
// leaves either the old or the new record on disk.
type FileStore struct {
	dir        string
	passphrase string
	kdf        kdfParams
	mu         sync.RWMutex
}

// FileStoreOption configures a FileStore
type FileStoreOption func(*FileStore)

// WithKDFCost overrides the scrypt cost parameter N (must be a power of two)
func WithKDFCost(n int) FileStoreOption {
	return func(s *FileStore) {
		s.kdf.N = n
	}
}

// NewFileStore creates a FileStore rooted at dir
func NewFileStore(dir, passphrase string, opts ...FileStoreOption) (*FileStore, error) {
	if passphrase == "" {
		return nil, model.NewInvalidInputError("passphrase", "must not be empty")
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("creating state directory: %w", err)
	}

	s := &FileStore{
		dir:        dir,
		passphrase: passphrase,
		kdf:        defaultKDF,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Path returns the location of the sealed file
func (s *FileStore) Path() string {
	return filepath.Join(s.dir, credentialsFile)
}

// Get reads and opens the sealed file. A missing file is an empty record.
func (s *FileStore) Get(ctx context.Context) (model.Credentials, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.load()
}

// Save merges patch into the record on disk
func (s *FileStore) Save(ctx context.Context, patch model.CredentialsPatch) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, err := s.load()
	if err != nil {
		return err
	}
	return s.store(patch.Apply(current))
}

// Clear removes the sealed file
func (s *FileStore) Clear(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.Remove(s.Path()); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("%w: %v", ErrStoreOperationFailed, err)
	}
	return nil
}

func (s *FileStore) load() (model.Credentials, error) {
	var creds model.Credentials

	blob, err := os.ReadFile(s.Path())
	if errors.Is(err, os.ErrNotExist) {
		return creds, nil
	}
	if err != nil {
		return creds, fmt.Errorf("%w: %v", ErrStoreOperationFailed, err)
	}

	raw, err := open(s.passphrase, blob)
	if err != nil {
		return creds, err
	}
	if err := json.Unmarshal(raw, &creds); err != nil {
		return creds, fmt.Errorf("parsing credential record: %w", err)
	}
	return creds, nil
}

func (s *FileStore) store(creds model.Credentials) error {
	raw, err := json.Marshal(creds)
	if err != nil {
		return err
	}
	blob, err := seal(s.passphrase, raw, s.kdf)
	if err != nil {
		return fmt.Errorf("sealing credential record: %w", err)
	}
	if err := fsutil.WriteFile(s.Path(), blob, 0o600); err != nil {
		return fmt.Errorf("%w: %v", ErrStoreOperationFailed, err)
	}
	return nil
}

var _ Store = (*FileStore)(nil)
