// AngelaMos | 2026
// config.go

package config

import (
	"fmt"
	"sync"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

type Config struct {
	App       AppConfig       `koanf:"app"`
	Server    ServerConfig    `koanf:"server"`
	Database  DatabaseConfig  `koanf:"database"`
	Redis     RedisConfig     `koanf:"redis"`
	JWT       JWTConfig       `koanf:"jwt"`
	RateLimit RateLimitConfig `koanf:"rate_limit"`
	CORS      CORSConfig      `koanf:"cors"`
	Log       LogConfig       `koanf:"log"`
	Otel      OtelConfig      `koanf:"otel"`
	OTP       OTPConfig       `koanf:"otp"`
	Phone     PhoneConfig     `koanf:"phone"`
	Delivery  DeliveryConfig  `koanf:"delivery"`
	Vault     VaultConfig     `koanf:"vault"`
}

type AppConfig struct {
	Name        string `koanf:"name"`
	Version     string `koanf:"version"`
	Environment string `koanf:"environment"`
}

type ServerConfig struct {
	Host            string        `koanf:"host"`
	Port            int           `koanf:"port"`
	ReadTimeout     time.Duration `koanf:"read_timeout"`
	WriteTimeout    time.Duration `koanf:"write_timeout"`
	IdleTimeout     time.Duration `koanf:"idle_timeout"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`
}

type DatabaseConfig struct {
	URL             string        `koanf:"url"`
	MaxOpenConns    int           `koanf:"max_open_conns"`
	MaxIdleConns    int           `koanf:"max_idle_conns"`
	ConnMaxLifetime time.Duration `koanf:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `koanf:"conn_max_idle_time"`
}

type RedisConfig struct {
	URL          string `koanf:"url"`
	PoolSize     int    `koanf:"pool_size"`
	MinIdleConns int    `koanf:"min_idle_conns"`
	KeyPrefix    string `koanf:"key_prefix"`
}

type JWTConfig struct {
	PrivateKeyPath     string        `koanf:"private_key_path"`
	PublicKeyPath      string        `koanf:"public_key_path"`
	AccessTokenExpire  time.Duration `koanf:"access_token_expire"`
	RefreshTokenExpire time.Duration `koanf:"refresh_token_expire"`
	Issuer             string        `koanf:"issuer"`
	Audience           string        `koanf:"audience"`
}

type RateLimitConfig struct {
	Requests int           `koanf:"requests"`
	Window   time.Duration `koanf:"window"`
	Burst    int           `koanf:"burst"`
}

type CORSConfig struct {
	AllowedOrigins   []string `koanf:"allowed_origins"`
	AllowedMethods   []string `koanf:"allowed_methods"`
	AllowedHeaders   []string `koanf:"allowed_headers"`
	AllowCredentials bool     `koanf:"allow_credentials"`
	MaxAge           int      `koanf:"max_age"`
}

type LogConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
}

type OtelConfig struct {
	Endpoint    string  `koanf:"endpoint"`
	ServiceName string  `koanf:"service_name"`
	Enabled     bool    `koanf:"enabled"`
	Insecure    bool    `koanf:"insecure"`
	SampleRate  float64 `koanf:"sample_rate"`
}

// OTPConfig tunes the passwordless member sign-in flow.
type OTPConfig struct {
	CodeLength      int           `koanf:"code_length"`
	CodeTTL         time.Duration `koanf:"code_ttl"`
	BridgeTokenTTL  time.Duration `koanf:"bridge_token_ttl"`
	MaxRequests     int           `koanf:"max_requests"`
	Window          time.Duration `koanf:"window"`
	VerifyAttempts  int           `koanf:"verify_attempts"`
	VerifyWindow    time.Duration `koanf:"verify_window"`
	ExposeCode      bool          `koanf:"expose_code"`
	MessageTemplate string        `koanf:"message_template"`
	DeliveryTimeout time.Duration `koanf:"delivery_timeout"`
	StoreTimeout    time.Duration `koanf:"store_timeout"`
	PrincipalDomain string        `koanf:"principal_domain"`
	// Backend selects where rate limit windows and bridge tokens live.
	Backend string `koanf:"backend"`
}

type PhoneConfig struct {
	CountryCode string `koanf:"country_code"`
	TrunkPrefix string `koanf:"trunk_prefix"`
}

type DeliveryConfig struct {
	Mode       string `koanf:"mode"`
	GatewayURL string `koanf:"gateway_url"`
	APIKey     string `koanf:"api_key"`
	SenderID   string `koanf:"sender_id"`
}

type VaultConfig struct {
	Identity string `koanf:"identity"`
}

const (
	DeliveryModeLog  = "log"
	DeliveryModeHTTP = "http"

	OTPBackendRedis  = "redis"
	OTPBackendMemory = "memory"
)

var (
	cfg  *Config
	once sync.Once
)

// Load reads configuration once per process: defaults, then the optional
// YAML file, then environment overrides.
func Load(configPath string) (*Config, error) {
	var loadErr error

	once.Do(func() {
		cfg, loadErr = load(configPath)
	})

	if loadErr != nil {
		return nil, loadErr
	}

	return cfg, nil
}

func load(configPath string) (*Config, error) {
	k := koanf.New(".")

	if err := loadDefaults(k); err != nil {
		return nil, fmt.Errorf("load defaults: %w", err)
	}

	if configPath != "" {
		if err := k.Load(file.Provider(configPath), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("load config file: %w", err)
		}
	}

	if err := k.Load(env.Provider("", ".", envKeyReplacer), nil); err != nil {
		return nil, fmt.Errorf("load env vars: %w", err)
	}

	c := &Config{}
	if err := k.Unmarshal("", c); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := validate(c); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return c, nil
}

func loadDefaults(k *koanf.Koanf) error {
	defaults := map[string]any{
		"app.name":        "Member Access",
		"app.version":     "1.0.0",
		"app.environment": "development",

		"server.host":             "0.0.0.0",
		"server.port":             8080,
		"server.read_timeout":     "30s",
		"server.write_timeout":    "30s",
		"server.idle_timeout":     "120s",
		"server.shutdown_timeout": "15s",

		"database.max_open_conns":     25,
		"database.max_idle_conns":     5,
		"database.conn_max_lifetime":  "1h",
		"database.conn_max_idle_time": "30m",

		"redis.pool_size":      10,
		"redis.min_idle_conns": 5,
		"redis.key_prefix":     "memberaccess",

		"jwt.access_token_expire":  "15m",
		"jwt.refresh_token_expire": "168h",
		"jwt.issuer":               "memberaccess",
		"jwt.audience":             "memberaccess-api",
		"jwt.private_key_path":     "keys/private.pem",
		"jwt.public_key_path":      "keys/public.pem",

		"rate_limit.requests": 100,
		"rate_limit.window":   "1m",
		"rate_limit.burst":    20,

		"cors.allowed_origins": []string{"http://localhost:3000"},
		"cors.allowed_methods": []string{
			"GET",
			"POST",
			"PUT",
			"PATCH",
			"DELETE",
			"OPTIONS",
		},
		"cors.allowed_headers": []string{
			"Accept",
			"Authorization",
			"Content-Type",
			"X-Request-ID",
		},
		"cors.allow_credentials": true,
		"cors.max_age":           300,

		"log.level":  "info",
		"log.format": "json",

		"otel.enabled":      false,
		"otel.insecure":     true,
		"otel.sample_rate":  0.1,
		"otel.service_name": "memberaccess",

		"otp.code_length":      6,
		"otp.code_ttl":         "5m",
		"otp.bridge_token_ttl": "5m",
		"otp.max_requests":     3,
		"otp.window":           "60s",
		"otp.verify_attempts":  5,
		"otp.verify_window":    "5m",
		"otp.expose_code":      false,
		"otp.message_template": "Your sign-in code is %s. It expires in %d minutes.",
		"otp.delivery_timeout": "10s",
		"otp.store_timeout":    "5s",
		"otp.principal_domain": "members.invalid",
		"otp.backend":          OTPBackendRedis,

		"phone.country_code": "880",
		"phone.trunk_prefix": "0",

		"delivery.mode": DeliveryModeLog,
	}

	for key, value := range defaults {
		if err := k.Set(key, value); err != nil {
			return fmt.Errorf("set default %s: %w", key, err)
		}
	}

	return nil
}

var envKeyMap = map[string]string{
	"DATABASE_URL":                "database.url",
	"REDIS_URL":                   "redis.url",
	"ENVIRONMENT":                 "app.environment",
	"HOST":                        "server.host",
	"PORT":                        "server.port",
	"LOG_LEVEL":                   "log.level",
	"LOG_FORMAT":                  "log.format",
	"JWT_PRIVATE_KEY_PATH":        "jwt.private_key_path",
	"JWT_PUBLIC_KEY_PATH":         "jwt.public_key_path",
	"JWT_ACCESS_TOKEN_EXPIRE":     "jwt.access_token_expire",
	"JWT_REFRESH_TOKEN_EXPIRE":    "jwt.refresh_token_expire",
	"JWT_ISSUER":                  "jwt.issuer",
	"JWT_AUDIENCE":                "jwt.audience",
	"RATE_LIMIT_REQUESTS":         "rate_limit.requests",
	"RATE_LIMIT_WINDOW":           "rate_limit.window",
	"RATE_LIMIT_BURST":            "rate_limit.burst",
	"OTEL_ENDPOINT":               "otel.endpoint",
	"OTEL_EXPORTER_OTLP_ENDPOINT": "otel.endpoint",
	"OTEL_SERVICE_NAME":           "otel.service_name",
	"OTEL_ENABLED":                "otel.enabled",
	"OTEL_INSECURE":               "otel.insecure",
	"OTEL_SAMPLE_RATE":            "otel.sample_rate",
	"REDIS_KEY_PREFIX":            "redis.key_prefix",
	"OTP_CODE_LENGTH":             "otp.code_length",
	"OTP_CODE_TTL":                "otp.code_ttl",
	"OTP_BRIDGE_TOKEN_TTL":        "otp.bridge_token_ttl",
	"OTP_MAX_REQUESTS":            "otp.max_requests",
	"OTP_WINDOW":                  "otp.window",
	"OTP_VERIFY_ATTEMPTS":         "otp.verify_attempts",
	"OTP_VERIFY_WINDOW":           "otp.verify_window",
	"OTP_EXPOSE_CODE":             "otp.expose_code",
	"OTP_DELIVERY_TIMEOUT":        "otp.delivery_timeout",
	"OTP_BACKEND":                 "otp.backend",
	"PHONE_COUNTRY_CODE":          "phone.country_code",
	"PHONE_TRUNK_PREFIX":          "phone.trunk_prefix",
	"DELIVERY_MODE":               "delivery.mode",
	"SMS_GATEWAY_URL":             "delivery.gateway_url",
	"SMS_GATEWAY_API_KEY":         "delivery.api_key",
	"SMS_SENDER_ID":               "delivery.sender_id",
	"VAULT_IDENTITY":              "vault.identity",
}

func envKeyReplacer(s string) string {
	if mapped, ok := envKeyMap[s]; ok {
		return mapped
	}
	return ""
}

func validate(c *Config) error {
	if c.Database.URL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}

	if c.Redis.URL == "" {
		return fmt.Errorf("REDIS_URL is required")
	}

	if c.JWT.PrivateKeyPath == "" {
		return fmt.Errorf("JWT_PRIVATE_KEY_PATH is required")
	}

	if c.JWT.PublicKeyPath == "" {
		return fmt.Errorf("JWT_PUBLIC_KEY_PATH is required")
	}

	if c.CORS.AllowCredentials {
		for _, origin := range c.CORS.AllowedOrigins {
			if origin == "*" {
				return fmt.Errorf(
					"CORS wildcard '*' cannot be used with AllowCredentials",
				)
			}
		}
	}

	if c.App.Environment == "production" {
		if c.Otel.Enabled && c.Otel.Insecure {
			return fmt.Errorf("OTEL_INSECURE must be false in production")
		}
	}

	if c.Server.ReadTimeout <= 0 {
		return fmt.Errorf("server.read_timeout must be positive")
	}

	if c.Server.WriteTimeout <= 0 {
		return fmt.Errorf("server.write_timeout must be positive")
	}

	if c.Vault.Identity == "" {
		return fmt.Errorf("VAULT_IDENTITY is required")
	}

	return validateOTP(c)
}

func validateOTP(c *Config) error {
	o := c.OTP

	if o.CodeLength < 4 || o.CodeLength > 10 {
		return fmt.Errorf("otp.code_length must be between 4 and 10")
	}

	if o.CodeTTL <= 0 || o.BridgeTokenTTL <= 0 {
		return fmt.Errorf("otp.code_ttl and otp.bridge_token_ttl must be positive")
	}

	if o.MaxRequests <= 0 || o.Window <= 0 {
		return fmt.Errorf("otp.max_requests and otp.window must be positive")
	}

	if o.VerifyAttempts <= 0 || o.VerifyWindow <= 0 {
		return fmt.Errorf("otp.verify_attempts and otp.verify_window must be positive")
	}

	if o.DeliveryTimeout <= 0 || o.StoreTimeout <= 0 {
		return fmt.Errorf("otp.delivery_timeout and otp.store_timeout must be positive")
	}

	if o.ExposeCode && c.IsProduction() {
		return fmt.Errorf("OTP_EXPOSE_CODE must be false in production")
	}

	switch o.Backend {
	case OTPBackendRedis:
	case OTPBackendMemory:
		if c.IsProduction() {
			return fmt.Errorf("otp.backend %q is not allowed in production", OTPBackendMemory)
		}
	default:
		return fmt.Errorf("unknown otp.backend %q", o.Backend)
	}

	if c.Phone.CountryCode == "" {
		return fmt.Errorf("phone.country_code is required")
	}

	switch c.Delivery.Mode {
	case DeliveryModeLog:
		if c.IsProduction() {
			return fmt.Errorf("delivery.mode %q is not allowed in production", DeliveryModeLog)
		}
	case DeliveryModeHTTP:
		if c.Delivery.GatewayURL == "" {
			return fmt.Errorf("SMS_GATEWAY_URL is required for http delivery")
		}
	default:
		return fmt.Errorf("unknown delivery.mode %q", c.Delivery.Mode)
	}

	return nil
}

func (c *Config) IsProduction() bool {
	return c.App.Environment == "production"
}

func (s *ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}
