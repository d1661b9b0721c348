// AngelaMos | 2026
// limiter.go

package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	PurposeOTP       = "otp"
	PurposeOTPVerify = "otp_verify"
)

// Key identifies one counter: who is asking and for what.
type Key struct {
	Subject string
	Purpose string
}

func (k Key) String() string {
	return k.Purpose + ":" + k.Subject
}

// Policy is a fixed window: at most Limit hits per Window, counted from the
// first hit of the window.
type Policy struct {
	Limit  int
	Window time.Duration
}

type Decision struct {
	Allowed    bool
	Count      int
	Limit      int
	Remaining  int
	ResetAt    time.Time
	RetryAfter time.Duration
}

type Limiter interface {
	Hit(ctx context.Context, key Key) (Decision, error)
}

var errUnexpectedReply = errors.New("unexpected redis rate limit reply")

// INCR creates the key at 1 when absent, so the expiry is set exactly once
// per window by the hit that opened it.
var fixedWindowScript = redis.NewScript(`
local current = redis.call("INCR", KEYS[1])
if current == 1 then
  redis.call("PEXPIRE", KEYS[1], ARGV[1])
end
local ttl = redis.call("PTTL", KEYS[1])
return {current, ttl}
`)

type RedisLimiter struct {
	client redis.Scripter
	prefix string
	policy Policy
	now    func() time.Time
}

func NewRedisLimiter(
	client redis.Scripter,
	prefix string,
	policy Policy,
) *RedisLimiter {
	return &RedisLimiter{
		client: client,
		prefix: prefix,
		policy: policy,
		now:    time.Now,
	}
}

func (l *RedisLimiter) Hit(ctx context.Context, key Key) (Decision, error) {
	windowMillis := l.policy.Window.Milliseconds()
	if windowMillis <= 0 {
		windowMillis = 1000
	}

	res, err := fixedWindowScript.Run(
		ctx,
		l.client,
		[]string{l.prefix + key.String()},
		windowMillis,
	).Result()
	if err != nil {
		return Decision{}, fmt.Errorf("rate limit hit: %w", err)
	}

	values, ok := res.([]any)
	if !ok || len(values) < 2 {
		return Decision{}, fmt.Errorf("rate limit hit: %w", errUnexpectedReply)
	}

	count, ok := values[0].(int64)
	if !ok {
		return Decision{}, fmt.Errorf("rate limit hit: %w", errUnexpectedReply)
	}

	//nolint:errcheck // missing ttl falls back to now
	ttlMillis, _ := values[1].(int64)
	resetAt := l.now()
	if ttlMillis > 0 {
		resetAt = resetAt.Add(time.Duration(ttlMillis) * time.Millisecond)
	}

	return l.policy.decide(int(count), resetAt), nil
}

func (p Policy) decide(count int, resetAt time.Time) Decision {
	remaining := p.Limit - count
	if remaining < 0 {
		remaining = 0
	}

	d := Decision{
		Allowed:   count <= p.Limit,
		Count:     count,
		Limit:     p.Limit,
		Remaining: remaining,
		ResetAt:   resetAt,
	}
	if !d.Allowed {
		d.RetryAfter = p.Window
	}

	return d
}
