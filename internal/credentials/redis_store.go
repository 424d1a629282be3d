package credentials

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/redis/go-redis/v9"

	"github.com/rezonia/ksef-connector/internal/model"
)

const maxTxRetries = 10

// RedisStore keeps the record in a single Redis hash.
// Save runs under WATCH/MULTI so concurrent writers from any process never interleave.
type RedisStore struct {
	client *redis.Client
	key    string
}

// NewRedisStore creates a RedisStore using client. The hash is stored under
// "<prefix>credentials".
func NewRedisStore(client *redis.Client, prefix string) *RedisStore {
	if prefix == "" {
		prefix = "ksef:"
	}
	return &RedisStore{
		client: client,
		key:    prefix + "credentials",
	}
}

// Get reads the whole hash in one round trip
func (s *RedisStore) Get(ctx context.Context) (model.Credentials, error) {
	vals, err := s.client.HGetAll(ctx, s.key).Result()
	if err != nil {
		return model.Credentials{}, fmt.Errorf("%w: %v", ErrStoreOperationFailed, err)
	}
	return decodeHash(vals), nil
}

// Save merges patch inside an optimistic transaction, retrying on conflict
func (s *RedisStore) Save(ctx context.Context, patch model.CredentialsPatch) error {
	txf := func(tx *redis.Tx) error {
		vals, err := tx.HGetAll(ctx, s.key).Result()
		if err != nil && err != redis.Nil {
			return err
		}
		merged := patch.Apply(decodeHash(vals))

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.HSet(ctx, s.key, encodeHash(merged))
			return nil
		})
		return err
	}

	for i := 0; i < maxTxRetries; i++ {
		err := s.client.Watch(ctx, txf, s.key)
		if err == nil {
			return nil
		}
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		return fmt.Errorf("%w: %v", ErrStoreOperationFailed, err)
	}
	return fmt.Errorf("%w: too many concurrent writers", ErrStoreOperationFailed)
}

// Clear deletes the hash
func (s *RedisStore) Clear(ctx context.Context) error {
	if err := s.client.Del(ctx, s.key).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrStoreOperationFailed, err)
	}
	return nil
}

func encodeHash(c model.Credentials) map[string]interface{} {
	return map[string]interface{}{
		KeyNIP:            c.NIP,
		KeyLongLivedToken: c.LongLivedToken,
		KeySessionToken:   c.SessionToken,
		KeyCompanyName:    c.CompanyName,
		KeyIsConnected:    strconv.FormatBool(c.IsConnected),
		KeyIsProduction:   strconv.FormatBool(c.IsProduction),
	}
}

func decodeHash(vals map[string]string) model.Credentials {
	connected, _ := strconv.ParseBool(vals[KeyIsConnected])
	production, _ := strconv.ParseBool(vals[KeyIsProduction])
	return model.Credentials{
		NIP:            vals[KeyNIP],
		LongLivedToken: vals[KeyLongLivedToken],
		SessionToken:   vals[KeySessionToken],
		CompanyName:    vals[KeyCompanyName],
		IsConnected:    connected,
		IsProduction:   production,
	}
}

var _ Store = (*RedisStore)(nil)
