package ksef

import (
	"errors"
	"fmt"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/rezonia/ksef-connector/internal/config"
	"github.com/rezonia/ksef-connector/internal/credentials"
	"github.com/rezonia/ksef-connector/internal/invoices"
	"github.com/rezonia/ksef-connector/internal/notify"
)

// Stack is a Connector together with the resources opened for it
type Stack struct {
	*Connector

	closers []func() error
}

// Close releases the publisher and redis connections opened by Open
func (s *Stack) Close() error {
	var errs []error
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// OpenOption adjusts Options before the Connector is built
type OpenOption func(*Options)

// WithPlainPayload submits documents base64-encoded instead of encrypted
func WithPlainPayload() OpenOption {
	return func(o *Options) {
		o.PlainPayload = true
	}
}

// Open builds a Connector from resolved configuration.
// passphrase unlocks the file store and is ignored by other backends.
func Open(cfg *config.Parsed, passphrase string, logger zerolog.Logger, extra ...OpenOption) (*Stack, error) {
	stack := &Stack{}
	opts := Options{
		Environment: cfg.Env,
		Timeout:     cfg.RequestTimeout,
		Logger:      logger,
		Poll: PollOptions{
			InitialInterval: cfg.PollInitialInterval,
			MaxInterval:     cfg.PollMaxInterval,
			MaxAttempts:     cfg.Poller.MaxAttempts,
		},
	}

	var rdb *redis.Client
	if cfg.Store.Backend == config.BackendRedis || cfg.Notify.Backend == config.NotifyRedis {
		redisOpts, err := redis.ParseURL(cfg.Store.RedisURL)
		if err != nil {
			return nil, fmt.Errorf("invalid redis url: %w", err)
		}
		rdb = redis.NewClient(redisOpts)
		stack.closers = append(stack.closers, rdb.Close)
	}

	switch cfg.Store.Backend {
	case config.BackendMemory:
		opts.Store = credentials.NewMemoryStore()
	case config.BackendFile:
		store, err := credentials.NewFileStore(cfg.Store.StateDir, passphrase)
		if err != nil {
			_ = stack.Close()
			return nil, err
		}
		opts.Store = store
		repo, err := invoices.NewFileRepository(cfg.Store.StateDir)
		if err != nil {
			_ = stack.Close()
			return nil, err
		}
		opts.Repository = repo
	case config.BackendRedis:
		opts.Store = credentials.NewRedisStore(rdb, cfg.Store.KeyPrefix)
		opts.Repository = invoices.NewRedisRepository(rdb, cfg.Store.KeyPrefix)
	}

	var publisher message.Publisher
	switch cfg.Notify.Backend {
	case config.NotifyGoChannel:
		publisher = notify.NewGoChannel(logger)
	case config.NotifyRedis:
		p, err := notify.NewRedisStreamPublisher(rdb, logger)
		if err != nil {
			_ = stack.Close()
			return nil, err
		}
		publisher = p
	}
	if publisher != nil {
		stack.closers = append(stack.closers, publisher.Close)
		opts.Notifier = notify.Multi{
			notify.NewLogNotifier(logger),
			notify.NewWatermillNotifier(publisher, cfg.Notify.Topic),
		}
	}

	for _, o := range extra {
		o(&opts)
	}
	conn, err := New(opts)
	if err != nil {
		_ = stack.Close()
		return nil, err
	}
	stack.Connector = conn
	return stack, nil
}
