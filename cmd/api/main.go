// AngelaMos | 2026
// main.go

package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/assocly/memberaccess/internal/admin"
	"github.com/assocly/memberaccess/internal/auth"
	"github.com/assocly/memberaccess/internal/config"
	"github.com/assocly/memberaccess/internal/core"
	"github.com/assocly/memberaccess/internal/ephemeral"
	"github.com/assocly/memberaccess/internal/health"
	"github.com/assocly/memberaccess/internal/member"
	"github.com/assocly/memberaccess/internal/middleware"
	"github.com/assocly/memberaccess/internal/otp"
	"github.com/assocly/memberaccess/internal/ratelimit"
	"github.com/assocly/memberaccess/internal/server"
	"github.com/assocly/memberaccess/internal/tenant"
	"github.com/assocly/memberaccess/internal/user"
	"github.com/assocly/memberaccess/internal/vault"
)

const (
	drainDelay    = 5 * time.Second
	memoryMaxKeys = 10_000
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to config file")
	genKeys := flag.Bool("genkeys", false, "write a new ES256 key pair to the jwt key paths and exit")
	genVault := flag.Bool("genvault", false, "print a new vault identity and exit")
	flag.Parse()

	var err error
	switch {
	case *genVault:
		err = printVaultIdentity()
	case *genKeys:
		err = writeKeyPair(*configPath)
	default:
		err = run(*configPath)
	}

	if err != nil {
		slog.Error("application error", "error", err)
		os.Exit(1)
	}
}

func printVaultIdentity() error {
	identity, err := vault.GenerateIdentity()
	if err != nil {
		return err
	}
	fmt.Println(identity)
	return nil
}

func writeKeyPair(configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	return auth.GenerateKeyPair(cfg.JWT.PrivateKeyPath, cfg.JWT.PublicKeyPath)
}

//nolint:funlen // bootstrap code is inherently verbose
func run(configPath string) error {
	ctx, stop := signal.NotifyContext(
		context.Background(),
		syscall.SIGINT,
		syscall.SIGTERM,
	)
	defer stop()

	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	logger := setupLogger(cfg.Log)
	slog.SetDefault(logger)

	logger.Info("starting application",
		"name", cfg.App.Name,
		"version", cfg.App.Version,
		"environment", cfg.App.Environment,
	)

	var telemetry *core.Telemetry
	if cfg.Otel.Enabled {
		tel, telErr := core.NewTelemetry(ctx, cfg.Otel, cfg.App)
		if telErr != nil {
			logger.Warn("failed to initialize telemetry", "error", telErr)
		} else {
			telemetry = tel
			logger.Info("OpenTelemetry tracer initialized",
				"endpoint", cfg.Otel.Endpoint,
			)
		}
	}

	db, err := core.NewDatabase(ctx, cfg.Database)
	if err != nil {
		return err
	}
	logger.Info("database connected",
		"max_open_conns", cfg.Database.MaxOpenConns,
		"max_idle_conns", cfg.Database.MaxIdleConns,
	)

	redis, err := core.NewRedis(ctx, cfg.Redis)
	if err != nil {
		return err
	}
	logger.Info("redis connected",
		"pool_size", cfg.Redis.PoolSize,
	)

	jwtManager, err := auth.NewJWTManager(cfg.JWT)
	if err != nil {
		return err
	}
	logger.Info("JWT manager initialized", "algorithm", "ES256")

	sealer, err := vault.NewSealer(cfg.Vault.Identity)
	if err != nil {
		return err
	}

	sender, err := otp.NewSender(cfg.Delivery)
	if err != nil {
		return err
	}
	if cfg.OTP.ExposeCode {
		logger.Warn("otp codes are echoed in responses; never enable outside development")
	}

	stores := otpBackend(cfg, redis)
	logger.Info("otp backend selected", "backend", cfg.OTP.Backend)

	tenantSvc := tenant.NewService(tenant.NewRepository(db.DB))
	tenantHandler := tenant.NewHandler(tenantSvc)

	userSvc := user.NewService(user.NewRepository(db.DB), tenantSvc)

	authSvc := auth.NewService(
		auth.NewRepository(db.DB),
		jwtManager,
		userSvc,
		redis.Client,
		redis.Namespace("blacklist"),
	)
	authHandler := auth.NewHandler(authSvc)

	otpSvc := otp.NewService(otp.Deps{
		Members:       member.NewRepository(db.DB),
		Tenants:       tenantSvc,
		Principals:    userSvc,
		SignIn:        authSvc,
		Challenges:    otp.NewChallengeRepository(db.DB),
		Limiter:       stores.requests,
		VerifyLimiter: stores.verifies,
		Bridge:        stores.bridge,
		Sender:        sender,
		Sealer:        sealer,
		Metrics:       otp.NewMetrics(prometheus.DefaultRegisterer),
	}, cfg.OTP, cfg.Phone)
	otpHandler := otp.NewHandler(otpSvc)

	healthHandler := health.NewHandler().
		Register("database", health.CheckerFunc(db.Ping)).
		Register("redis", health.CheckerFunc(redis.Ping))

	adminHandler := admin.NewHandler(admin.HandlerConfig{
		DBStats:    db.Stats,
		RedisStats: redis.PoolStats,
		Challenges: otpSvc,
		Tokens:     authSvc,
		Principals: userSvc,
	})

	srv := server.New(server.Config{
		ServerConfig:  cfg.Server,
		HealthHandler: healthHandler,
		Logger:        logger,
	})

	router := srv.Router()

	router.Use(middleware.RequestID)
	router.Use(middleware.Recoverer)
	router.Use(middleware.Logger)
	router.Use(
		middleware.NewRateLimiter(redis.Client, middleware.RateLimitConfig{
			Limit: middleware.PerWindow(
				cfg.RateLimit.Requests,
				cfg.RateLimit.Burst,
				cfg.RateLimit.Window,
			),
			Prefix: redis.Namespace("ratelimit"),
		}).Handler,
	)
	router.Use(middleware.SecurityHeaders)
	router.Use(middleware.CORS(cfg.CORS))

	healthHandler.RegisterRoutes(router)

	router.Handle("/metrics", promhttp.Handler())
	router.Get("/.well-known/jwks.json", jwtManager.JWKSHandler())

	authenticator := middleware.Authenticator(authSvc)

	router.Route("/v1", func(r chi.Router) {
		authHandler.RegisterRoutes(r, authenticator)
		otpHandler.RegisterRoutes(r)
		tenantHandler.RegisterRoutes(r, authenticator)
		adminHandler.RegisterRoutes(r, authenticator, middleware.RequireSuperAdmin)
	})

	errChan := make(chan error, 1)
	go func() {
		errChan <- srv.Start()
	}()

	select {
	case err := <-errChan:
		return err
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	}

	shutdownCtx, cancel := context.WithTimeout(
		context.Background(),
		cfg.Server.ShutdownTimeout+drainDelay+5*time.Second,
	)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx, drainDelay); err != nil {
		logger.Error("server shutdown error", "error", err)
	}

	if telemetry != nil {
		if err := telemetry.Shutdown(shutdownCtx); err != nil {
			logger.Error("telemetry shutdown error", "error", err)
		}
	}

	if err := redis.Close(); err != nil {
		logger.Error("redis close error", "error", err)
	}

	if err := db.Close(); err != nil {
		logger.Error("database close error", "error", err)
	}

	logger.Info("application stopped")
	return nil
}

// otpStores are the OTP flow's shared counters and bridge tokens.
type otpStores struct {
	requests ratelimit.Limiter
	verifies ratelimit.Limiter
	bridge   ephemeral.Store
}

// otpBackend builds the OTP stores. The memory backend only works for a
// single instance.
func otpBackend(cfg *config.Config, redis *core.Redis) otpStores {
	requests := ratelimit.Policy{Limit: cfg.OTP.MaxRequests, Window: cfg.OTP.Window}
	verifies := ratelimit.Policy{Limit: cfg.OTP.VerifyAttempts, Window: cfg.OTP.VerifyWindow}

	if cfg.OTP.Backend == config.OTPBackendMemory {
		return otpStores{
			requests: ratelimit.NewMemoryLimiter(requests, ratelimit.WithMaxKeys(memoryMaxKeys)),
			verifies: ratelimit.NewMemoryLimiter(verifies, ratelimit.WithMaxKeys(memoryMaxKeys)),
			bridge:   ephemeral.NewMemoryStore(memoryMaxKeys, cfg.OTP.BridgeTokenTTL),
		}
	}

	prefix := redis.Namespace("otp:rl")
	return otpStores{
		requests: ratelimit.NewRedisLimiter(redis.Client, prefix, requests),
		verifies: ratelimit.NewRedisLimiter(redis.Client, prefix, verifies),
		bridge:   ephemeral.NewRedisStore(redis.Client, redis.Namespace("bridge")),
	}
}

func setupLogger(cfg config.LogConfig) *slog.Logger {
	var handler slog.Handler

	level := slog.LevelInfo
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}

	opts := &slog.HandlerOptions{Level: level}

	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}

	return slog.New(handler)
}
