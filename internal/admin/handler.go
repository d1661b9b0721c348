// AngelaMos | 2026
// handler.go

package admin

import (
	"context"
	"database/sql"
	"log/slog"
	"net/http"
	"runtime"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/redis/go-redis/v9"

	"github.com/assocly/memberaccess/internal/core"
)

// DefaultRetention keeps spent challenges around this long for support
// lookups before a purge removes them.
const DefaultRetention = 24 * time.Hour

type ChallengeMaintainer interface {
	PurgeStale(ctx context.Context, before time.Time) (int64, error)
	UsableChallenges(ctx context.Context) (int, error)
}

type TokenPurger interface {
	PurgeExpiredTokens(ctx context.Context, cutoff time.Time) (int64, error)
}

type PrincipalCounter interface {
	CountByKind(ctx context.Context) (map[string]int, error)
}

type HandlerConfig struct {
	DBStats    func() sql.DBStats
	RedisStats func() *redis.PoolStats
	Challenges ChallengeMaintainer
	Tokens     TokenPurger
	Principals PrincipalCounter
	Retention  time.Duration
	Now        func() time.Time
}

type Handler struct {
	dbStats    func() sql.DBStats
	redisStats func() *redis.PoolStats
	challenges ChallengeMaintainer
	tokens     TokenPurger
	principals PrincipalCounter
	retention  time.Duration
	now        func() time.Time
}

func NewHandler(cfg HandlerConfig) *Handler {
	h := &Handler{
		dbStats:    cfg.DBStats,
		redisStats: cfg.RedisStats,
		challenges: cfg.Challenges,
		tokens:     cfg.Tokens,
		principals: cfg.Principals,
		retention:  cfg.Retention,
		now:        cfg.Now,
	}
	if h.retention <= 0 {
		h.retention = DefaultRetention
	}
	if h.now == nil {
		h.now = time.Now
	}
	return h
}

func (h *Handler) RegisterRoutes(
	r chi.Router,
	authenticator, superAdminOnly func(http.Handler) http.Handler,
) {
	r.Route("/admin", func(r chi.Router) {
		r.Use(authenticator)
		r.Use(superAdminOnly)

		r.Get("/stats", h.GetStats)
		r.Post("/otp/purge", h.Purge)
	})
}

func (h *Handler) Purge(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	now := h.now()

	var resp PurgeResponse

	if h.challenges != nil {
		n, err := h.challenges.PurgeStale(ctx, now.Add(-h.retention))
		if err != nil {
			core.InternalServerError(w, err)
			return
		}
		resp.Challenges = n
	}

	if h.tokens != nil {
		n, err := h.tokens.PurgeExpiredTokens(ctx, now)
		if err != nil {
			core.InternalServerError(w, err)
			return
		}
		resp.RefreshTokens = n
	}

	slog.InfoContext(ctx, "maintenance purge",
		"challenges", resp.Challenges,
		"refresh_tokens", resp.RefreshTokens,
	)

	core.OK(w, resp)
}

func (h *Handler) GetStats(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	resp := StatsResponse{
		Database: h.getDBStats(),
		Redis:    h.getRedisStats(),
		Runtime:  runtimeStats(),
	}

	if h.challenges != nil {
		n, err := h.challenges.UsableChallenges(ctx)
		if err != nil {
			core.InternalServerError(w, err)
			return
		}
		resp.UsableChallenges = n
	}

	if h.principals != nil {
		counts, err := h.principals.CountByKind(ctx)
		if err != nil {
			core.InternalServerError(w, err)
			return
		}
		resp.Principals = counts
	}

	core.OK(w, resp)
}

func runtimeStats() RuntimeStats {
	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	return RuntimeStats{
		GoVersion:    runtime.Version(),
		NumGoroutine: runtime.NumGoroutine(),
		MemAlloc:     memStats.Alloc,
		NumGC:        memStats.NumGC,
	}
}

func (h *Handler) getDBStats() *DBPoolStats {
	if h.dbStats == nil {
		return nil
	}

	stats := h.dbStats()
	return &DBPoolStats{
		MaxOpenConnections: stats.MaxOpenConnections,
		OpenConnections:    stats.OpenConnections,
		InUse:              stats.InUse,
		Idle:               stats.Idle,
		WaitCount:          stats.WaitCount,
		WaitDuration:       stats.WaitDuration.String(),
	}
}

func (h *Handler) getRedisStats() *RedisPoolStats {
	if h.redisStats == nil {
		return nil
	}

	stats := h.redisStats()
	return &RedisPoolStats{
		Hits:       stats.Hits,
		Misses:     stats.Misses,
		Timeouts:   stats.Timeouts,
		TotalConns: stats.TotalConns,
		IdleConns:  stats.IdleConns,
	}
}

type PurgeResponse struct {
	Challenges    int64 `json:"challenges"`
	RefreshTokens int64 `json:"refresh_tokens"`
}

type StatsResponse struct {
	Database         *DBPoolStats    `json:"database,omitempty"`
	Redis            *RedisPoolStats `json:"redis,omitempty"`
	Runtime          RuntimeStats    `json:"runtime"`
	UsableChallenges int             `json:"usable_challenges"`
	Principals       map[string]int  `json:"principals,omitempty"`
}

type DBPoolStats struct {
	MaxOpenConnections int    `json:"max_open_connections"`
	OpenConnections    int    `json:"open_connections"`
	InUse              int    `json:"in_use"`
	Idle               int    `json:"idle"`
	WaitCount          int64  `json:"wait_count"`
	WaitDuration       string `json:"wait_duration"`
}

type RedisPoolStats struct {
	Hits       uint32 `json:"hits"`
	Misses     uint32 `json:"misses"`
	Timeouts   uint32 `json:"timeouts"`
	TotalConns uint32 `json:"total_conns"`
	IdleConns  uint32 `json:"idle_conns"`
}

type RuntimeStats struct {
	GoVersion    string `json:"go_version"`
	NumGoroutine int    `json:"num_goroutine"`
	MemAlloc     uint64 `json:"mem_alloc"`
	NumGC        uint32 `json:"num_gc"`
}
