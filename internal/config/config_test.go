package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("APP_ENV", "")
	t.Setenv("PORT", "")
	t.Setenv("STORAGE", "")
	t.Setenv("DATABASE_URL", "")
	t.Setenv("DOC_WRITE_RATE_PER_MIN", "")

	cfg := Load()

	if cfg.Env != "dev" {
		t.Fatalf("got env %q, want dev", cfg.Env)
	}
	if cfg.Port != 8080 {
		t.Fatalf("got port %d, want 8080", cfg.Port)
	}
	if cfg.Storage != StoragePostgres {
		t.Fatalf("got storage %q, want %q", cfg.Storage, StoragePostgres)
	}
	if cfg.DocWriteRatePerMin != 120 {
		t.Fatalf("got doc write rate %d, want 120", cfg.DocWriteRatePerMin)
	}
	if cfg.AccessTTL() != 15*time.Minute {
		t.Fatalf("got access ttl %s", cfg.AccessTTL())
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("STORAGE", "MEMORY")
	t.Setenv("CORS_ALLOWED_ORIGINS", "https://a.example, https://b.example,")
	t.Setenv("JWT_REFRESH_TTL_DAYS", "2")

	cfg := Load()

	if cfg.Port != 9090 {
		t.Fatalf("got port %d, want 9090", cfg.Port)
	}
	if cfg.Storage != StorageMemory {
		t.Fatalf("got storage %q, want %q", cfg.Storage, StorageMemory)
	}
	if len(cfg.AllowedOrigins) != 2 || cfg.AllowedOrigins[1] != "https://b.example" {
		t.Fatalf("unexpected origins %v", cfg.AllowedOrigins)
	}
	if cfg.RefreshTTL() != 48*time.Hour {
		t.Fatalf("got refresh ttl %s", cfg.RefreshTTL())
	}
}

func TestGetEnvIntFallsBackOnGarbage(t *testing.T) {
	t.Setenv("REDIS_DB", "not-a-number")

	if got := getEnvInt("REDIS_DB", 3); got != 3 {
		t.Fatalf("got %d, want fallback 3", got)
	}
}
