package invoices

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/rezonia/ksef-connector/internal/fsutil"
	"github.com/rezonia/ksef-connector/internal/model"
)

const invoicesFile = "invoices.json"

// FileRepository keeps all invoices in one JSON file so submissions survive
// between CLI runs. Writes go through a temp file and rename.
type FileRepository struct {
	path string
	mu   sync.RWMutex
}

// NewFileRepository creates a FileRepository in dir
func NewFileRepository(dir string) (*FileRepository, error) {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("creating state directory: %w", err)
	}
	return &FileRepository{path: filepath.Join(dir, invoicesFile)}, nil
}

func (r *FileRepository) Get(ctx context.Context, id string) (model.Invoice, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	all, err := r.load()
	if err != nil {
		return model.Invoice{}, err
	}
	inv, ok := all[id]
	if !ok {
		return model.Invoice{}, ErrNotFound
	}
	return inv, nil
}

func (r *FileRepository) Put(ctx context.Context, inv model.Invoice) error {
	if inv.ID == "" {
		return model.NewInvalidInputError("id", "must not be empty")
	}
	_, err := r.update(func(all map[string]model.Invoice) (bool, error) {
		all[inv.ID] = inv
		return true, nil
	})
	return err
}

func (r *FileRepository) List(ctx context.Context) ([]model.Invoice, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	all, err := r.load()
	if err != nil {
		return nil, err
	}
	out := make([]model.Invoice, 0, len(all))
	for _, inv := range all {
		out = append(out, inv)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r *FileRepository) MarkSent(ctx context.Context, id, referenceNumber string) error {
	_, err := r.update(func(all map[string]model.Invoice) (bool, error) {
		inv, ok := all[id]
		if !ok {
			return false, ErrNotFound
		}
		all[id] = applySent(inv, referenceNumber)
		return true, nil
	})
	return err
}

func (r *FileRepository) UpdateStatus(ctx context.Context, id string, status model.InvoiceStatus, ksefNumber string) (bool, error) {
	return r.update(func(all map[string]model.Invoice) (bool, error) {
		inv, ok := all[id]
		if !ok {
			return false, ErrNotFound
		}
		updated, changed := applyStatus(inv, status, ksefNumber)
		all[id] = updated
		return changed, nil
	})
}

// update applies fn to the loaded set and writes it back when fn reports a change
func (r *FileRepository) update(fn func(map[string]model.Invoice) (bool, error)) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	all, err := r.load()
	if err != nil {
		return false, err
	}
	changed, err := fn(all)
	if err != nil || !changed {
		return false, err
	}
	data, err := json.MarshalIndent(all, "", "  ")
	if err != nil {
		return false, err
	}
	if err := fsutil.WriteFile(r.path, data, 0o600); err != nil {
		return false, fmt.Errorf("%w: %v", ErrStoreOperationFailed, err)
	}
	return true, nil
}

func (r *FileRepository) load() (map[string]model.Invoice, error) {
	all := make(map[string]model.Invoice)

	data, err := os.ReadFile(r.path)
	if errors.Is(err, os.ErrNotExist) {
		return all, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreOperationFailed, err)
	}
	if err := json.Unmarshal(data, &all); err != nil {
		return nil, fmt.Errorf("parsing invoice file: %w", err)
	}
	if all == nil {
		all = make(map[string]model.Invoice)
	}
	return all, nil
}

var _ Repository = (*FileRepository)(nil)
