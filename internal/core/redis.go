// AngelaMos | 2026
// redis.go

package core

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/assocly/memberaccess/internal/config"
)

// Redis wraps the shared client. Every subsystem keys its data under
// Namespace so one instance can serve several deployments.
type Redis struct {
	Client *redis.Client
	prefix string
}

func NewRedis(ctx context.Context, cfg config.RedisConfig) (*Redis, error) {
	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	opts.PoolSize = cfg.PoolSize
	opts.MinIdleConns = cfg.MinIdleConns
	opts.ConnMaxIdleTime = 5 * time.Minute

	r := &Redis{Client: redis.NewClient(opts), prefix: cfg.KeyPrefix}
	if err := dialWithRetry(ctx, "redis", r.ping); err != nil {
		_ = r.Client.Close()
		return nil, err
	}
	return r, nil
}

func (r *Redis) ping(ctx context.Context) error {
	return r.Client.Ping(ctx).Err()
}

func (r *Redis) Close() error {
	if r.Client == nil {
		return nil
	}
	return r.Client.Close()
}

// Ping satisfies health.Checker.
func (r *Redis) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	if err := r.ping(ctx); err != nil {
		return fmt.Errorf("redis: %w", err)
	}
	return nil
}

func (r *Redis) PoolStats() *redis.PoolStats {
	return r.Client.PoolStats()
}

// Namespace returns the key prefix for one subsystem, e.g. "memberaccess:otp:".
func (r *Redis) Namespace(name string) string {
	if r.prefix == "" {
		return name + ":"
	}
	return r.prefix + ":" + name + ":"
}
