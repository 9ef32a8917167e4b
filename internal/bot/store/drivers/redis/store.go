package redis

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/aussiebroadwan/signinbot/internal/bot/store"
)

// DefaultPrefix namespaces registry keys inside a shared redis.
const DefaultPrefix = "signinbot:login"

// Store is a LoginRegistry kept in redis. Expiry is left to redis itself, so
// several bot replicas can share one registry.
type Store struct {
	client redis.UniversalClient
	prefix string
	opts   store.Options
}

var _ store.LoginRegistry = (*Store)(nil)

// NewStore takes ownership of client; Close closes it.
func NewStore(client redis.UniversalClient, prefix string, opts store.Options) *Store {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	return &Store{client: client, prefix: prefix, opts: opts}
}

func (s *Store) key(k string) string {
	return s.prefix + ":" + k
}

func (s *Store) Add(ctx context.Context, key string) error {
	if key == "" {
		return store.ErrEmptyKey
	}
	// A zero TTL leaves the key without expiry.
	if err := s.client.Set(ctx, s.key(key), 1, s.opts.TTL).Err(); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}

func (s *Store) Contains(ctx context.Context, key string) (bool, error) {
	n, err := s.client.Exists(ctx, s.key(key)).Result()
	if err != nil {
		return false, fmt.Errorf("redis exists: %w", err)
	}
	return n > 0, nil
}

func (s *Store) Remove(ctx context.Context, key string) error {
	if err := s.client.Del(ctx, s.key(key)).Err(); err != nil {
		return fmt.Errorf("redis del: %w", err)
	}
	return nil
}

// DeleteExpired is a no-op: redis evicts expired keys on its own.
func (s *Store) DeleteExpired(context.Context) (int, error) { return 0, nil }

func (s *Store) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

func (s *Store) Close() error { return s.client.Close() }
