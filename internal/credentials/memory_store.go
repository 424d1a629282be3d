package credentials

import (
	"context"
	"sync"

	"github.com/rezonia/ksef-connector/internal/model"
)

// MemoryStore implements Store in process memory.
// Used by tests and by the sandbox.
type MemoryStore struct {
	creds model.Credentials
	mu    sync.RWMutex
}

// NewMemoryStore creates an empty MemoryStore
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

// Get returns a copy of the current record
func (s *MemoryStore) Get(ctx context.Context) (model.Credentials, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.creds, nil
}

// Save merges patch under the write lock
func (s *MemoryStore) Save(ctx context.Context, patch model.CredentialsPatch) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.creds = patch.Apply(s.creds)
	return nil
}

// Clear resets the record
func (s *MemoryStore) Clear(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.creds = model.Credentials{}
	return nil
}

var _ Store = (*MemoryStore)(nil)
