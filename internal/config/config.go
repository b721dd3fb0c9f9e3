// Package config loads service settings from the environment.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/example/face-match/internal/locale"
)

type Config struct {
	HTTPAddr        string
	ShutdownTimeout time.Duration
	LogLevel        string
	Match           MatchConfig
	Session         SessionConfig
	Audit           AuditConfig
	Auth            AuthConfig
	DefaultLocale   locale.Locale
}

type MatchConfig struct {
	URL     string        // base URL of the matching service, e.g. http://face-quiz:8001
	Path    string        // analyze endpoint, defaults to /api/analyze
	Timeout time.Duration // per-submission deadline, surfaced as a request failure
}

type SessionConfig struct {
	TTL           time.Duration
	SweepInterval time.Duration
}

type AuditConfig struct {
	Enabled     bool
	DatabaseDSN string
	RedisAddr   string
}

type AuthConfig struct {
	JWTSecret   string
	JWTAudience string
}

// Load reads an optional .env file and then the environment. Values already
// present in the environment win over the file.
func Load() *Config {
	_ = godotenv.Load()

	return &Config{
		HTTPAddr:        getEnv("HTTP_ADDR", ":8080"),
		ShutdownTimeout: envDuration("SHUTDOWN_TIMEOUT", 15*time.Second),
		LogLevel:        getEnv("LOG_LEVEL", "info"),
		Match: MatchConfig{
			URL:     getEnv("MATCH_SERVICE_URL", "http://face-quiz:8001"),
			Path:    getEnv("MATCH_SERVICE_PATH", "/api/analyze"),
			Timeout: envDuration("MATCH_TIMEOUT", 30*time.Second),
		},
		Session: SessionConfig{
			TTL:           envDuration("SESSION_TTL", 30*time.Minute),
			SweepInterval: envDuration("SESSION_SWEEP_INTERVAL", time.Minute),
		},
		Audit: AuditConfig{
			Enabled:     envBool("AUDIT_ENABLED", true),
			DatabaseDSN: getEnv("DATABASE_DSN", "host=postgres user=postgres password=postgres dbname=facematch port=5432 sslmode=disable"),
			RedisAddr:   getEnv("REDIS_ADDR", "redis:6379"),
		},
		Auth: AuthConfig{
			JWTSecret:   getEnv("JWT_SECRET", "dev-secret"),
			JWTAudience: os.Getenv("JWT_AUDIENCE"),
		},
		DefaultLocale: locale.Locale(strings.ToLower(getEnv("DEFAULT_LOCALE", string(locale.DefaultLocale)))),
	}
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

// envDuration parses values such as "30s" or "5m". Invalid or non-positive
// values fall back to the default.
func envDuration(key string, defaultVal time.Duration) time.Duration {
	s := os.Getenv(key)
	if s == "" {
		return defaultVal
	}
	if d, err := time.ParseDuration(s); err == nil && d > 0 {
		return d
	}
	return defaultVal
}

func envBool(key string, defaultVal bool) bool {
	s := os.Getenv(key)
	if s == "" {
		return defaultVal
	}
	if b, err := strconv.ParseBool(s); err == nil {
		return b
	}
	return defaultVal
}
