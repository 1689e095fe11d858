// Package config loads server settings from the environment and an optional
// .env file.
package config

import (
	"fmt"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// DevJWTSecret is used when JWT_SECRET is unset. Development only.
const DevJWTSecret = "sniplinks-dev-secret-change-in-production"

// Config holds every server setting.
type Config struct {
	Port             string
	DatabaseURL      string
	BaseURL          string
	JWTSecret        string
	CodeLength       int
	FreeMonthlyLimit int64
	StoreTimeout     time.Duration
	AnalyticsTimeout time.Duration
	AnalyticsWorkers int
	// AnalyticsQueueSize is how many clicks may wait for a worker; 0 means
	// 64 per worker.
	AnalyticsQueueSize int
	RedirectStatus     int
	NotFoundURL        string
	AnonRateLimit      string
	RedisURL           string
	CacheTTL           time.Duration
	ReconcileSchedule  string
	CORSOrigins        []string
	TrustedProxies     []string
	ErrorLogPath       string
}

// Load reads .env (if present) and the environment.
func Load() (*Config, error) {
	_ = godotenv.Load() // Ignore error if .env not found (e.g. prod)
	return FromEnv()
}

// FromEnv reads the environment only.
func FromEnv() (*Config, error) {
	cfg := &Config{
		Port:              getEnv("PORT", "8080"),
		DatabaseURL:       getEnv("SNIPLINKS_DB_URL", "sniplinks.db"),
		BaseURL:           strings.TrimRight(getEnv("SNIPLINKS_BASE_URL", "http://localhost:8080"), "/"),
		JWTSecret:         getEnv("JWT_SECRET", DevJWTSecret),
		NotFoundURL:       getEnv("NOT_FOUND_URL", "/not-found"),
		AnonRateLimit:     getEnv("ANON_RATE_LIMIT", "10:20"),
		RedisURL:          getEnv("REDIS_URL", ""),
		ReconcileSchedule: getEnv("RECONCILE_SCHEDULE", "@every 15m"),
		CORSOrigins:       splitList(getEnv("CORS_ORIGINS", "http://localhost:3000")),
		TrustedProxies:    splitList(getEnv("TRUSTED_PROXIES", "")),
		ErrorLogPath:      getEnv("ERROR_LOG_PATH", ""),
	}

	var err error
	if cfg.CodeLength, err = getInt("CODE_LENGTH", 8); err != nil {
		return nil, err
	}
	if cfg.CodeLength < 4 || cfg.CodeLength > 64 {
		return nil, fmt.Errorf("CODE_LENGTH must be between 4 and 64, got %d", cfg.CodeLength)
	}
	limit, err := getInt("FREE_MONTHLY_LIMIT", 10)
	if err != nil {
		return nil, err
	}
	cfg.FreeMonthlyLimit = int64(limit)
	if cfg.AnalyticsWorkers, err = getInt("ANALYTICS_CONCURRENCY", 64); err != nil {
		return nil, err
	}
	if cfg.AnalyticsQueueSize, err = getInt("ANALYTICS_QUEUE_SIZE", 0); err != nil {
		return nil, err
	}
	if cfg.RedirectStatus, err = getInt("REDIRECT_STATUS", http.StatusFound); err != nil {
		return nil, err
	}
	if cfg.StoreTimeout, err = getDuration("STORE_TIMEOUT", 2*time.Second); err != nil {
		return nil, err
	}
	if cfg.AnalyticsTimeout, err = getDuration("ANALYTICS_TIMEOUT", 5*time.Second); err != nil {
		return nil, err
	}
	if cfg.CacheTTL, err = getDuration("CACHE_TTL", 10*time.Minute); err != nil {
		return nil, err
	}

	return cfg, nil
}

func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

func getInt(key string, fallback int) (int, error) {
	raw := strings.TrimSpace(getEnv(key, ""))
	if raw == "" {
		return fallback, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, raw, err)
	}
	return v, nil
}

func getDuration(key string, fallback time.Duration) (time.Duration, error) {
	raw := strings.TrimSpace(getEnv(key, ""))
	if raw == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, raw, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("%s must be positive, got %s", key, raw)
	}
	return d, nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
