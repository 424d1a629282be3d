package invoices

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"

	"github.com/redis/go-redis/v9"

	"github.com/rezonia/ksef-connector/internal/model"
)

const maxTxRetries = 10

// getter is satisfied by both *redis.Client and *redis.Tx
type getter interface {
	Get(ctx context.Context, key string) *redis.StringCmd
}

// RedisRepository stores each invoice as a JSON value plus an ID index set
type RedisRepository struct {
	client *redis.Client
	prefix string
}

// NewRedisRepository creates a Redis repository. Keys are "<prefix>invoice:<id>".
func NewRedisRepository(client *redis.Client, prefix string) *RedisRepository {
	if prefix == "" {
		prefix = "ksef:"
	}
	return &RedisRepository{
		client: client,
		prefix: prefix,
	}
}

func (r *RedisRepository) key(id string) string {
	return r.prefix + "invoice:" + id
}

func (r *RedisRepository) indexKey() string {
	return r.prefix + "invoices"
}

func (r *RedisRepository) Get(ctx context.Context, id string) (model.Invoice, error) {
	return r.get(ctx, r.client, id)
}

func (r *RedisRepository) get(ctx context.Context, c getter, id string) (model.Invoice, error) {
	raw, err := c.Get(ctx, r.key(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return model.Invoice{}, ErrNotFound
	}
	if err != nil {
		return model.Invoice{}, fmt.Errorf("%w: %v", ErrStoreOperationFailed, err)
	}
	var inv model.Invoice
	if err := json.Unmarshal(raw, &inv); err != nil {
		return model.Invoice{}, fmt.Errorf("decoding invoice %s: %w", id, err)
	}
	return inv, nil
}

func (r *RedisRepository) Put(ctx context.Context, inv model.Invoice) error {
	if inv.ID == "" {
		return model.NewInvalidInputError("id", "must not be empty")
	}
	raw, err := json.Marshal(inv)
	if err != nil {
		return err
	}
	_, err = r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, r.key(inv.ID), raw, 0)
		pipe.SAdd(ctx, r.indexKey(), inv.ID)
		return nil
	})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrStoreOperationFailed, err)
	}
	return nil
}

func (r *RedisRepository) List(ctx context.Context) ([]model.Invoice, error) {
	ids, err := r.client.SMembers(ctx, r.indexKey()).Result()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreOperationFailed, err)
	}
	sort.Strings(ids)

	out := make([]model.Invoice, 0, len(ids))
	for _, id := range ids {
		inv, err := r.Get(ctx, id)
		if errors.Is(err, ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		out = append(out, inv)
	}
	return out, nil
}

func (r *RedisRepository) MarkSent(ctx context.Context, id, referenceNumber string) error {
	_, err := r.update(ctx, id, func(inv model.Invoice) (model.Invoice, bool) {
		return applySent(inv, referenceNumber), true
	})
	return err
}

func (r *RedisRepository) UpdateStatus(ctx context.Context, id string, status model.InvoiceStatus, ksefNumber string) (bool, error) {
	return r.update(ctx, id, func(inv model.Invoice) (model.Invoice, bool) {
		return applyStatus(inv, status, ksefNumber)
	})
}

// update runs fn as a read-modify-write under WATCH
func (r *RedisRepository) update(ctx context.Context, id string, fn func(model.Invoice) (model.Invoice, bool)) (bool, error) {
	var changed bool
	txf := func(tx *redis.Tx) error {
		inv, err := r.get(ctx, tx, id)
		if err != nil {
			return err
		}
		updated, ok := fn(inv)
		changed = ok
		if !ok {
			return nil
		}
		raw, err := json.Marshal(updated)
		if err != nil {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, r.key(id), raw, 0)
			return nil
		})
		return err
	}

	for i := 0; i < maxTxRetries; i++ {
		err := r.client.Watch(ctx, txf, r.key(id))
		switch {
		case err == nil:
			return changed, nil
		case errors.Is(err, redis.TxFailedErr):
			continue
		case errors.Is(err, ErrNotFound):
			return false, err
		default:
			return false, fmt.Errorf("%w: %v", ErrStoreOperationFailed, err)
		}
	}
	return false, fmt.Errorf("%w: too many concurrent writers", ErrStoreOperationFailed)
}

var _ Repository = (*RedisRepository)(nil)
