package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all lake configuration values.
type Config struct {
	// Server (REST adapter)
	Addr            string
	Env             string
	GracefulTimeout time.Duration

	// Storage
	DataRoot    string
	ManifestDB  string
	ExportDir   string
	FeatureRoot string

	// Redis (optional query result cache)
	RedisURL     string
	CacheEnabled bool
	CacheTTL     time.Duration

	// Authentication (optional; empty APIKey disables the check)
	APIKeyHeader string
	APIKey       string

	// Rate limiting (REST inbound)
	RateLimitEnabled bool
	RateLimitRPM     int

	// Timeouts
	DefaultTimeout    time.Duration
	ExchangeTimeouts  map[string]time.Duration
	HTTPClientTimeout time.Duration

	// Body limits
	MaxBodyBytes int64

	// Task supervisor
	WorkerPoolSize int

	// Alerting
	PagerDutyRoutingKey string
	PagerDutyEnabled    bool

	// Logging
	LogLevel string
}

// Load reads configuration from environment variables and an optional
// .env file in the working directory.
func Load() *Config {
	_ = godotenv.Load()

	gracefulSec := getEnvInt("LAKE_GRACEFUL_TIMEOUT_SEC", 15)
	defaultTimeoutSec := getEnvInt("LAKE_DEFAULT_TIMEOUT_SEC", 30)
	cacheTTLSec := getEnvInt("LAKE_CACHE_TTL_SEC", 30)

	cfg := &Config{
		Addr:            getEnv("LAKE_ADDR", ":8080"),
		Env:             getEnv("ENV", "development"),
		GracefulTimeout: time.Duration(gracefulSec) * time.Second,

		DataRoot:    getEnv("LAKE_DATA_ROOT", "./data"),
		ManifestDB:  getEnv("LAKE_MANIFEST_DB", ""), // defaults to <DataRoot>/manifest.db if empty
		ExportDir:   getEnv("LAKE_EXPORT_DIR", ""),  // defaults to <DataRoot>/exports if empty
		FeatureRoot: getEnv("LAKE_FEATURE_ROOT", ""),

		RedisURL:     getEnv("REDIS_URL", ""),
		CacheEnabled: getEnvBool("LAKE_CACHE_ENABLED", true),
		CacheTTL:     time.Duration(cacheTTLSec) * time.Second,

		APIKeyHeader: getEnv("API_KEY_HEADER", "Authorization"),
		APIKey:       getEnv("LAKE_API_KEY", ""),

		RateLimitEnabled: getEnvBool("RATE_LIMIT_ENABLED", true),
		RateLimitRPM:     getEnvInt("RATE_LIMIT_RPM", 120),

		DefaultTimeout:    time.Duration(defaultTimeoutSec) * time.Second,
		HTTPClientTimeout: 30 * time.Second,
		ExchangeTimeouts: map[string]time.Duration{
			"binance": time.Duration(getEnvInt("EXCHANGE_TIMEOUT_BINANCE_SEC", 30)) * time.Second,
			"bybit":   time.Duration(getEnvInt("EXCHANGE_TIMEOUT_BYBIT_SEC", 30)) * time.Second,
			"okx":     time.Duration(getEnvInt("EXCHANGE_TIMEOUT_OKX_SEC", 30)) * time.Second,
		},

		MaxBodyBytes: int64(getEnvInt("LAKE_MAX_BODY_BYTES", 1*1024*1024)),

		WorkerPoolSize: getEnvInt("LAKE_WORKER_POOL_SIZE", 4),

		PagerDutyRoutingKey: getEnv("PAGERDUTY_ROUTING_KEY", ""),
		PagerDutyEnabled:    getEnvBool("PAGERDUTY_ENABLED", false),

		LogLevel: getEnv("LOG_LEVEL", "info"),
	}
	if cfg.ManifestDB == "" {
		cfg.ManifestDB = cfg.DataRoot + "/manifest.db"
	}
	if cfg.ExportDir == "" {
		cfg.ExportDir = cfg.DataRoot + "/exports"
	}
	if cfg.FeatureRoot == "" {
		cfg.FeatureRoot = cfg.DataRoot + "/features"
	}
	return cfg
}

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool {
	return c.Env == "development"
}

// ExchangeTimeout returns the configured HTTP timeout for a given exchange.
func (c *Config) ExchangeTimeout(exchange string) time.Duration {
	if t, ok := c.ExchangeTimeouts[exchange]; ok {
		return t
	}
	return c.HTTPClientTimeout
}

func getEnv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v, ok := os.LookupEnv(key); ok {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if v, ok := os.LookupEnv(key); ok {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}
