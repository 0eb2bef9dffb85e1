package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/layer-3/credex/core"
	"github.com/layer-3/credex/ports"
	"github.com/redis/go-redis/v9"
)

const maxWatchRetries = 16

// RedisStore is a Redis implementation of the LedgerStore interface.
// Mutations use WATCH/MULTI so concurrent writers never overwrite each other.
type RedisStore struct {
	client *redis.Client
	key    string
}

// NewRedisStore creates a new Redis store
func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{
		client: client,
		key:    "credex:" + ports.LedgerKey,
	}
}

// Load reads the request list from Redis
func (s *RedisStore) Load(ctx context.Context) ([]core.CredentialRequest, error) {
	raw, err := s.client.Get(ctx, s.key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return []core.CredentialRequest{}, nil
		}
		return nil, fmt.Errorf("failed to load ledger: %v: %w", err, core.ErrStore)
	}

	return decodeRequests(raw)
}

// Mutate runs fn inside an optimistic transaction, retrying when the key
// changed between read and write.
func (s *RedisStore) Mutate(ctx context.Context, fn ports.MutateFunc) error {
	var fnErr error

	txf := func(tx *redis.Tx) error {
		raw, err := tx.Get(ctx, s.key).Bytes()
		if err != nil && !errors.Is(err, redis.Nil) {
			return err
		}

		current, err := decodeRequests(raw)
		if err != nil {
			return err
		}

		next, err := fn(current)
		if err != nil {
			fnErr = err
			return err
		}

		encoded, err := encodeRequests(next)
		if err != nil {
			return err
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, s.key, encoded, 0)
			return nil
		})
		return err
	}

	for i := 0; i < maxWatchRetries; i++ {
		fnErr = nil
		err := s.client.Watch(ctx, txf, s.key)
		switch {
		case err == nil:
			return nil
		case fnErr != nil:
			return fnErr
		case errors.Is(err, redis.TxFailedErr):
			continue
		case errors.Is(err, core.ErrStore):
			return err
		default:
			return fmt.Errorf("failed to update ledger: %v: %w", err, core.ErrStore)
		}
	}

	return fmt.Errorf("ledger update contended %d times: %w", maxWatchRetries, core.ErrStore)
}

// GetClient returns the Redis client so it can be shared with the event publisher
func (s *RedisStore) GetClient() *redis.Client {
	return s.client
}

// Close closes the Redis connection
func (s *RedisStore) Close() error {
	return s.client.Close()
}

var _ ports.LedgerStore = (*RedisStore)(nil)
