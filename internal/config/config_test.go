package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("ENV", "test")
	t.Setenv("PORT", "9090")
	t.Setenv("PUBLIC_URL", "")
	t.Setenv("SESSION_TTL", "")
	t.Setenv("MAX_IMAGE_BYTES", "")

	cfg := Load()
	if cfg.Port != "9090" {
		t.Fatalf("expected port 9090, got %s", cfg.Port)
	}
	if cfg.PublicURL != "http://localhost:9090" {
		t.Fatalf("unexpected public url %q", cfg.PublicURL)
	}
	if cfg.SessionTTL != 7*24*time.Hour {
		t.Fatalf("unexpected session ttl %s", cfg.SessionTTL)
	}
	if cfg.MaxImageBytes != 1<<20 {
		t.Fatalf("unexpected max image bytes %d", cfg.MaxImageBytes)
	}
	if cfg.IsDevelopment() {
		t.Fatal("ENV=test is not development")
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("ENV", "development")
	t.Setenv("PUBLIC_URL", "https://board.example.com/")
	t.Setenv("SESSION_TTL", "1h")
	t.Setenv("MESSAGE_RETENTION", "720h")
	t.Setenv("MAX_IMAGE_BYTES", "2048")
	t.Setenv("BLOB_BACKEND", "bolt")
	t.Setenv("RATE_LIMIT_WHITELIST", "10.0.0.0/8, 127.0.0.1 ,")

	cfg := Load()
	if cfg.PublicURL != "https://board.example.com" {
		t.Fatalf("trailing slash not trimmed: %q", cfg.PublicURL)
	}
	if cfg.SessionTTL != time.Hour || cfg.MessageRetention != 720*time.Hour {
		t.Fatalf("durations not parsed: %s %s", cfg.SessionTTL, cfg.MessageRetention)
	}
	if cfg.MaxImageBytes != 2048 {
		t.Fatalf("expected 2048, got %d", cfg.MaxImageBytes)
	}
	if cfg.BlobBackend != "bolt" {
		t.Fatalf("expected bolt, got %s", cfg.BlobBackend)
	}
	if len(cfg.RateLimitWhitelist) != 2 {
		t.Fatalf("expected 2 whitelist entries, got %v", cfg.RateLimitWhitelist)
	}
	if cfg.MaxBodyBytes() <= cfg.MaxImageBytes {
		t.Fatal("body limit must exceed image limit")
	}
}

func TestLoadRejectsUnknownBlobBackend(t *testing.T) {
	t.Setenv("BLOB_BACKEND", "s3")
	defer func() {
		if recover() == nil {
			t.Fatal("expected panic")
		}
	}()
	Load()
}
