// AngelaMos | 2026
// store.go

// Package ephemeral is a single-use, expiring key/value relay. A value can be
// read exactly once; absent, expired and already-consumed keys all report
// ErrNotFound.
package ephemeral

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

var (
	ErrNotFound = errors.New("ephemeral value not found")
	ErrExists   = errors.New("ephemeral key already exists")
)

type Store interface {
	Put(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Consume(ctx context.Context, key string) ([]byte, error)
}

type RedisStore struct {
	client redis.Cmdable
	prefix string
}

func NewRedisStore(client redis.Cmdable, prefix string) *RedisStore {
	return &RedisStore{client: client, prefix: prefix}
}

func (s *RedisStore) Put(
	ctx context.Context,
	key string,
	value []byte,
	ttl time.Duration,
) error {
	ok, err := s.client.SetNX(ctx, s.prefix+key, value, ttl).Result()
	if err != nil {
		return fmt.Errorf("put ephemeral value: %w", err)
	}
	if !ok {
		return fmt.Errorf("put ephemeral value: %w", ErrExists)
	}
	return nil
}

// Consume uses GETDEL so two concurrent callers can never both observe the
// value.
func (s *RedisStore) Consume(ctx context.Context, key string) ([]byte, error) {
	val, err := s.client.GetDel(ctx, s.prefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("consume ephemeral value: %w", ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("consume ephemeral value: %w", err)
	}
	return val, nil
}
