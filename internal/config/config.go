package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all configuration for the application.
type Config struct {
	Port        string
	Env         string
	PublicURL   string
	DatabaseURL string // PostgreSQL; takes precedence over SQLitePath
	SQLitePath  string
	RedisURL    string

	// Attachment storage
	BlobBackend   string // "pebble" or "bolt"
	BlobPath      string
	MaxImageBytes int64

	SessionTTL       time.Duration
	MessageRetention time.Duration // 0 keeps messages forever

	// Outgoing mail; verification links are logged when SMTPAddr is empty
	SMTPAddr     string
	SMTPFrom     string
	SMTPUsername string
	SMTPPassword string

	// Rate limiting
	RateLimitWhitelist []string // IPs or CIDRs exempt from rate limiting
	AutoBlockEnabled   bool     // Enable auto-blocking after repeated violations
}

// Load reads configuration from environment variables.
// In development, it loads from .env file if present.
// In production, it panics on missing required variables.
func Load() *Config {
	// Load .env file if it exists (for development)
	_ = godotenv.Load()

	cfg := &Config{
		Port:             getEnv("PORT", "8080"),
		Env:              getEnv("ENV", "development"),
		DatabaseURL:      os.Getenv("DATABASE_URL"),
		SQLitePath:       getEnv("SQLITE_PATH", "./data/chatboard.db"),
		RedisURL:         getEnv("REDIS_URL", "redis://localhost:6379/0"),
		BlobBackend:      getEnv("BLOB_BACKEND", "pebble"),
		BlobPath:         getEnv("BLOB_PATH", "./data/blobs"),
		MaxImageBytes:    getInt64("MAX_IMAGE_BYTES", 1<<20),
		SessionTTL:       getDuration("SESSION_TTL", 7*24*time.Hour),
		MessageRetention: getDuration("MESSAGE_RETENTION", 0),
		SMTPAddr:         os.Getenv("SMTP_ADDR"),
		SMTPFrom:         getEnv("SMTP_FROM", "chatboard@localhost"),
		SMTPUsername:     os.Getenv("SMTP_USERNAME"),
		SMTPPassword:     os.Getenv("SMTP_PASSWORD"),
		AutoBlockEnabled: getEnv("AUTO_BLOCK_ENABLED", "false") == "true",
	}
	cfg.PublicURL = strings.TrimRight(getEnv("PUBLIC_URL", "http://localhost:"+cfg.Port), "/")

	// Parse whitelist (comma-separated IPs or CIDRs)
	if whitelist := os.Getenv("RATE_LIMIT_WHITELIST"); whitelist != "" {
		for _, entry := range strings.Split(whitelist, ",") {
			entry = strings.TrimSpace(entry)
			if entry != "" {
				cfg.RateLimitWhitelist = append(cfg.RateLimitWhitelist, entry)
			}
		}
	}

	if cfg.BlobBackend != "pebble" && cfg.BlobBackend != "bolt" {
		panic("BLOB_BACKEND must be pebble or bolt")
	}

	// In production, require database and redis URLs
	if cfg.Env == "production" {
		if cfg.DatabaseURL == "" {
			panic("DATABASE_URL is required in production")
		}
		if os.Getenv("REDIS_URL") == "" {
			panic("REDIS_URL is required in production")
		}
	}

	return cfg
}

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool {
	return c.Env == "development"
}

// MaxBodyBytes is the request body limit. Inline images travel base64
// encoded inside JSON, so the limit leaves room for a 4/3 expansion.
func (c *Config) MaxBodyBytes() int64 {
	return c.MaxImageBytes*4/3 + 16*1024
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getInt64(key string, defaultValue int64) int64 {
	if v, err := strconv.ParseInt(os.Getenv(key), 10, 64); err == nil && v > 0 {
		return v
	}
	return defaultValue
}

func getDuration(key string, defaultValue time.Duration) time.Duration {
	if d, err := time.ParseDuration(os.Getenv(key)); err == nil && d >= 0 {
		return d
	}
	return defaultValue
}
