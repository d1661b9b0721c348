// AngelaMos | 2026
// redis_test.go

package core

import (
	"context"
	"errors"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/assocly/memberaccess/internal/config"
)

func TestNewRedis(t *testing.T) {
	mr := miniredis.RunT(t)
	ctx := context.Background()

	r, err := NewRedis(ctx, config.RedisConfig{
		URL:       "redis://" + mr.Addr() + "/0",
		PoolSize:  4,
		KeyPrefix: "memberaccess",
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = r.Close() })

	assert.NoError(t, r.Ping(ctx))
	assert.Equal(t, "memberaccess:bridge:", r.Namespace("bridge"))
	assert.NotNil(t, r.PoolStats())

	mr.Close()
	assert.Error(t, r.Ping(ctx))
}

func TestRedis_NamespaceWithoutPrefix(t *testing.T) {
	r := &Redis{}
	assert.Equal(t, "ratelimit:", r.Namespace("ratelimit"))
	assert.NoError(t, r.Close())
}

func TestNewRedis_BadURL(t *testing.T) {
	_, err := NewRedis(context.Background(), config.RedisConfig{URL: "mysql://nope"})
	assert.Error(t, err)
}

func TestDialWithRetry(t *testing.T) {
	ctx := context.Background()

	calls := 0
	err := dialWithRetry(ctx, "flaky", func(context.Context) error {
		calls++
		if calls < 3 {
			return context.DeadlineExceeded
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, calls)

	calls = 0
	denied := errors.New("password authentication failed")
	err = dialWithRetry(ctx, "strict", func(context.Context) error {
		calls++
		return denied
	})
	assert.ErrorIs(t, err, denied)
	assert.Equal(t, 1, calls)
}
