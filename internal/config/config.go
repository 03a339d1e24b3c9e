// Package config loads the engine's runtime configuration from the
// environment, generalizing the teacher's getEnv/getEnvInt pattern to the
// full set of options the delivery engine exposes.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/hookrelay/engine/internal/domain"
)

// Config holds all configuration for the application.
type Config struct {
	Port string

	// DatabaseURL and RedisURL are optional. Leaving both empty runs the
	// engine on the in-memory store and in-process scheduler, suitable for
	// local development and tests; setting either opts into the durable
	// Postgres/Redis backends.
	DatabaseURL string
	RedisURL    string

	WorkerConcurrency int

	SignatureHeader  string
	TimestampHeader  string
	DeliveryIDHeader string
	UserAgent        string

	Timeout            time.Duration
	MaxPayloadSize     int64
	AllowRedirects     bool
	SignatureTolerance time.Duration

	DefaultRetryConfig domain.RetryConfig

	// BackpressureThreshold caps pending queue depth before Dispatch
	// refuses new events. Zero disables the check.
	BackpressureThreshold int64

	EnableCircuitBreaker bool
	EnableRateLimiter    bool
	RateLimitPerSecond   int
}

// Load reads configuration from environment variables, applying the
// engine's defaults for anything left unset.
func Load() (*Config, error) {
	timeout, err := getEnvDuration("DELIVERY_TIMEOUT", 30*time.Second)
	if err != nil {
		return nil, err
	}
	tolerance, err := getEnvDuration("SIGNATURE_TOLERANCE", 5*time.Minute)
	if err != nil {
		return nil, err
	}
	initialDelay, err := getEnvDuration("RETRY_INITIAL_DELAY", time.Second)
	if err != nil {
		return nil, err
	}
	maxDelay, err := getEnvDuration("RETRY_MAX_DELAY", time.Hour)
	if err != nil {
		return nil, err
	}

	retryCfg := domain.DefaultRetryConfig()
	retryCfg.MaxRetries = getEnvInt("RETRY_MAX_ATTEMPTS", retryCfg.MaxRetries)
	retryCfg.InitialDelay = initialDelay
	retryCfg.MaxDelay = maxDelay
	if mult := getEnvFloat("RETRY_BACKOFF_MULTIPLIER", retryCfg.BackoffMultiplier); mult > 0 {
		retryCfg.BackoffMultiplier = mult
	}

	cfg := &Config{
		Port:        getEnv("PORT", "8080"),
		DatabaseURL: getEnv("DATABASE_URL", ""),
		RedisURL:    getEnv("REDIS_URL", ""),

		WorkerConcurrency: getEnvInt("NUM_WORKERS", 8),

		SignatureHeader:  getEnv("SIGNATURE_HEADER", "X-Webhook-Signature"),
		TimestampHeader:  getEnv("TIMESTAMP_HEADER", "X-Webhook-Timestamp"),
		DeliveryIDHeader: getEnv("DELIVERY_ID_HEADER", "X-Webhook-Delivery-Id"),
		UserAgent:        getEnv("USER_AGENT", "Webhook-Service/1.0"),

		Timeout:            timeout,
		MaxPayloadSize:     int64(getEnvInt("MAX_PAYLOAD_SIZE", 1024*1024)),
		AllowRedirects:     getEnvBool("ALLOW_REDIRECTS", false),
		SignatureTolerance: tolerance,

		DefaultRetryConfig: retryCfg,

		BackpressureThreshold: int64(getEnvInt("BACKPRESSURE_THRESHOLD", 10000)),

		EnableCircuitBreaker: getEnvBool("ENABLE_CIRCUIT_BREAKER", false),
		EnableRateLimiter:    getEnvBool("ENABLE_RATE_LIMITER", false),
		RateLimitPerSecond:   getEnvInt("RATE_LIMIT_PER_SECOND", 0),
	}

	if cfg.EnableCircuitBreaker && cfg.RedisURL == "" {
		return nil, fmt.Errorf("ENABLE_CIRCUIT_BREAKER requires REDIS_URL to be set")
	}
	if cfg.EnableRateLimiter && cfg.RedisURL == "" {
		return nil, fmt.Errorf("ENABLE_RATE_LIMITER requires REDIS_URL to be set")
	}

	return cfg, nil
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if val := os.Getenv(key); val != "" {
		n, err := strconv.Atoi(val)
		if err == nil {
			return n
		}
	}
	return fallback
}

func getEnvFloat(key string, fallback float64) float64 {
	if val := os.Getenv(key); val != "" {
		f, err := strconv.ParseFloat(val, 64)
		if err == nil {
			return f
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if val := os.Getenv(key); val != "" {
		b, err := strconv.ParseBool(val)
		if err == nil {
			return b
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) (time.Duration, error) {
	val := os.Getenv(key)
	if val == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(val)
	if err != nil {
		return 0, fmt.Errorf("parsing %s: %w", key, err)
	}
	return d, nil
}
