package invoices

import (
	"context"
	"sort"
	"sync"

	"github.com/rezonia/ksef-connector/internal/model"
)

// MemoryRepository is an in-memory Repository
type MemoryRepository struct {
	invoices map[string]model.Invoice
	mu       sync.RWMutex
}

// NewMemoryRepository creates an empty repository
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		invoices: make(map[string]model.Invoice),
	}
}

func (r *MemoryRepository) Get(ctx context.Context, id string) (model.Invoice, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	inv, ok := r.invoices[id]
	if !ok {
		return model.Invoice{}, ErrNotFound
	}
	return clone(inv), nil
}

func (r *MemoryRepository) Put(ctx context.Context, inv model.Invoice) error {
	if inv.ID == "" {
		return model.NewInvalidInputError("id", "must not be empty")
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	r.invoices[inv.ID] = clone(inv)
	return nil
}

func (r *MemoryRepository) List(ctx context.Context) ([]model.Invoice, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]model.Invoice, 0, len(r.invoices))
	for _, inv := range r.invoices {
		out = append(out, clone(inv))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r *MemoryRepository) MarkSent(ctx context.Context, id, referenceNumber string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	inv, ok := r.invoices[id]
	if !ok {
		return ErrNotFound
	}
	r.invoices[id] = applySent(inv, referenceNumber)
	return nil
}

func (r *MemoryRepository) UpdateStatus(ctx context.Context, id string, status model.InvoiceStatus, ksefNumber string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	inv, ok := r.invoices[id]
	if !ok {
		return false, ErrNotFound
	}
	updated, changed := applyStatus(inv, status, ksefNumber)
	r.invoices[id] = updated
	return changed, nil
}

func clone(inv model.Invoice) model.Invoice {
	inv.Items = append([]model.LineItem(nil), inv.Items...)
	return inv
}

var _ Repository = (*MemoryRepository)(nil)
