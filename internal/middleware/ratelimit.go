// AngelaMos | 2026
// ratelimit.go

package middleware

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	redis_rate "github.com/go-redis/redis_rate/v10"
	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/redis/go-redis/v9"
	"golang.org/x/time/rate"

	"github.com/assocly/memberaccess/internal/core"
)

type RateLimitConfig struct {
	Limit   redis_rate.Limit
	Prefix  string
	KeyFunc func(*http.Request) string
}

// RateLimiter is the global per-client HTTP throttle. Redis (GCRA via
// redis_rate) is authoritative; when Redis errors each process falls back to
// a local token bucket so a Redis outage degrades to per-instance limits.
type RateLimiter struct {
	limiter  *redis_rate.Limiter
	fallback *localLimiter
	config   RateLimitConfig
}

func NewRateLimiter(rdb redis.UniversalClient, cfg RateLimitConfig) *RateLimiter {
	if cfg.KeyFunc == nil {
		cfg.KeyFunc = KeyByIP
	}

	return &RateLimiter{
		limiter:  redis_rate.NewLimiter(rdb),
		fallback: newLocalLimiter(localLimiterSize, localEntryTTL),
		config:   cfg,
	}
}

func (rl *RateLimiter) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := rl.config.Prefix + rl.config.KeyFunc(r)

		res := rl.allow(r.Context(), key)
		setRateLimitHeaders(w, res, rl.config.Limit)

		if res.Allowed == 0 {
			retryAfter := int(res.RetryAfter.Seconds())
			if retryAfter < 1 {
				retryAfter = 1
			}
			core.JSONError(w, core.RateLimitedError(retryAfter))
			return
		}

		next.ServeHTTP(w, r)
	})
}

func (rl *RateLimiter) allow(
	ctx context.Context,
	key string,
) *redis_rate.Result {
	res, err := rl.limiter.Allow(ctx, key, rl.config.Limit)
	if err != nil {
		slog.Warn("redis rate limit unavailable, using local bucket",
			"error", err,
			"key", key,
		)
		return rl.fallback.allow(key, rl.config.Limit)
	}
	return res
}

// ClientIP trusts the right-most X-Forwarded-For hop, which is the one
// added by our own proxy.
func ClientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		ips := strings.Split(xff, ",")
		return strings.TrimSpace(ips[len(ips)-1])
	}

	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return xri
	}

	ip, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}

	return ip
}

func KeyByIP(r *http.Request) string {
	return "ip:" + ClientIP(r)
}

func setRateLimitHeaders(
	w http.ResponseWriter,
	res *redis_rate.Result,
	limit redis_rate.Limit,
) {
	h := w.Header()

	h.Set("X-RateLimit-Limit", strconv.Itoa(limit.Rate))
	h.Set("X-RateLimit-Remaining", strconv.Itoa(res.Remaining))
	h.Set("X-RateLimit-Reset", strconv.FormatInt(
		time.Now().Add(res.ResetAfter).Unix(), 10))
	h.Set("RateLimit-Policy", fmt.Sprintf(
		`%d;w=%d`, limit.Rate, int(limit.Period.Seconds())))
}

const (
	localLimiterSize = 10_000
	localEntryTTL    = 10 * time.Minute
)

type localLimiter struct {
	buckets *expirable.LRU[string, *rate.Limiter]
}

func newLocalLimiter(size int, ttl time.Duration) *localLimiter {
	return &localLimiter{
		buckets: expirable.NewLRU[string, *rate.Limiter](size, nil, ttl),
	}
}

func (l *localLimiter) allow(
	key string,
	limit redis_rate.Limit,
) *redis_rate.Result {
	perSec := float64(limit.Rate) / limit.Period.Seconds()

	bucket, ok := l.buckets.Get(key)
	if !ok {
		bucket = rate.NewLimiter(rate.Limit(perSec), limit.Burst)
		l.buckets.Add(key, bucket)
	}

	interval := time.Duration(float64(time.Second) / perSec)
	res := &redis_rate.Result{
		Limit:      limit,
		Remaining:  max(int(bucket.Tokens()), 0),
		RetryAfter: -1,
		ResetAfter: interval,
	}

	if bucket.Allow() {
		res.Allowed = 1
		res.Remaining = max(res.Remaining-1, 0)
	} else {
		res.RetryAfter = interval
	}

	return res
}

func PerWindow(rate, burst int, window time.Duration) redis_rate.Limit {
	return redis_rate.Limit{
		Rate:   rate,
		Burst:  burst,
		Period: window,
	}
}
