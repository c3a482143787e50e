// Package config loads configuration from environment variables.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

// Config holds all organizer configuration.
type Config struct {
	// Server
	ListenAddr  string
	MetricsAddr string

	// Logging
	LogLevel  string
	LogFormat string

	// Rule tables (empty = embedded defaults)
	RulesFile string

	// Object store ("aws" or "minio")
	ObjectStoreDriver string
	S3Endpoint        string
	S3Region          string
	S3AccessKey       string
	S3SecretKey       string
	S3UseSSL          bool

	// Providers ("static", "postgres", "redis")
	PermissionsBackend string
	UsageBackend       string
	DatabaseURL        string
	RedisAddr          string
	RedisPassword      string
	RedisDB            int
	AdminUsers         []string

	// Pipeline
	Workers          int
	PageLimit        int
	MaxPageLimit     int
	ExifMaxReadBytes int64
	RetryAttempts    int
	ProbeLatencyAddr string

	// API rate limiting (0 = unlimited)
	RateLimitRPS   float64
	RateLimitBurst int
}

// Load reads configuration from environment variables with defaults.
func Load() (*Config, error) {
	cfg := &Config{
		ListenAddr:         envOr("LISTEN_ADDR", ":8080"),
		MetricsAddr:        envOr("METRICS_ADDR", ":9090"),
		LogLevel:           envOr("LOG_LEVEL", "info"),
		LogFormat:          envOr("LOG_FORMAT", "json"),
		RulesFile:          envOr("RULES_FILE", ""),
		ObjectStoreDriver:  envOr("OBJECT_STORE_DRIVER", "aws"),
		S3Endpoint:         envOr("S3_ENDPOINT", ""),
		S3Region:           envOr("S3_REGION", "us-east-1"),
		S3AccessKey:        envOr("S3_ACCESS_KEY", ""),
		S3SecretKey:        envOr("S3_SECRET_KEY", ""),
		S3UseSSL:           envBool("S3_USE_SSL", true),
		PermissionsBackend: envOr("PERMISSIONS_BACKEND", "static"),
		UsageBackend:       envOr("USAGE_BACKEND", "static"),
		DatabaseURL:        envOr("DATABASE_URL", ""),
		RedisAddr:          envOr("REDIS_ADDR", "localhost:6379"),
		RedisPassword:      envOr("REDIS_PASSWORD", ""),
		RedisDB:            envInt("REDIS_DB", 0),
		AdminUsers:         envList("ADMIN_USERS"),
		Workers:            envInt("WORKERS", 4),
		PageLimit:          envInt("PAGE_LIMIT", 1000),
		MaxPageLimit:       envInt("MAX_PAGE_LIMIT", 10000),
		ExifMaxReadBytes:   envInt64("EXIF_MAX_READ_BYTES", 64*1024*1024), // 64MB
		RetryAttempts:      envInt("RETRY_ATTEMPTS", 3),
		ProbeLatencyAddr:   envOr("PROBE_LATENCY_ADDR", ""),
		RateLimitRPS:       envFloat("RATE_LIMIT_RPS", 0),
		RateLimitBurst:     envInt("RATE_LIMIT_BURST", 20),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks cross-field constraints.
func (c *Config) Validate() error {
	switch c.ObjectStoreDriver {
	case "aws", "minio":
	default:
		return fmt.Errorf("OBJECT_STORE_DRIVER must be aws or minio, got %q", c.ObjectStoreDriver)
	}
	switch c.PermissionsBackend {
	case "static", "postgres":
	default:
		return fmt.Errorf("PERMISSIONS_BACKEND must be static or postgres, got %q", c.PermissionsBackend)
	}
	switch c.UsageBackend {
	case "static", "postgres", "redis":
	default:
		return fmt.Errorf("USAGE_BACKEND must be static, postgres or redis, got %q", c.UsageBackend)
	}
	if (c.PermissionsBackend == "postgres" || c.UsageBackend == "postgres") && c.DatabaseURL == "" {
		return fmt.Errorf("DATABASE_URL is required for the postgres backend")
	}
	if c.Workers < 1 {
		return fmt.Errorf("WORKERS must be at least 1")
	}
	if c.PageLimit < 1 || c.MaxPageLimit < c.PageLimit {
		return fmt.Errorf("PAGE_LIMIT must be in [1, MAX_PAGE_LIMIT]")
	}
	return nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return b
}

func envInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return i
}

func envInt64(key string, fallback int64) int64 {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	i, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return fallback
	}
	return i
}

func envFloat(key string, fallback float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return fallback
	}
	return f
}

func envList(key string) []string {
	var out []string
	for _, s := range strings.Split(os.Getenv(key), ",") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}
