package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("PORT", "")
	t.Setenv("ENV", "")
	t.Setenv("LOG_LEVEL", "")
	t.Setenv("USE_MEMORY_QUEUE", "")
	t.Setenv("NOTIFY_EMAILS", "")
	cfg := Load()
	if cfg.Port != "8080" {
		t.Fatalf("expected default port, got %s", cfg.Port)
	}
	if cfg.Env != "development" {
		t.Fatalf("expected default env, got %s", cfg.Env)
	}
	if !cfg.UseMemoryQueue {
		t.Fatalf("expected memory queue by default")
	}
	if cfg.WhatsAppMaxRetries != 2 {
		t.Fatalf("expected 2 send retries by default, got %d", cfg.WhatsAppMaxRetries)
	}
	if cfg.StateCacheTTL != time.Hour {
		t.Fatalf("expected 1h state cache ttl, got %s", cfg.StateCacheTTL)
	}
	if cfg.DefaultCountryCode != "55" {
		t.Fatalf("expected default country 55, got %s", cfg.DefaultCountryCode)
	}
	if cfg.NotifyEmails != nil {
		t.Fatalf("expected no notify emails, got %v", cfg.NotifyEmails)
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("ENV", "production")
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("DATABASE_URL", "postgres://user@host/db")
	t.Setenv("USE_MEMORY_QUEUE", "false")
	t.Setenv("WORKER_COUNT", "8")
	t.Setenv("DISPATCH_MAX_ATTEMPTS", "not-a-number")
	t.Setenv("WHATSAPP_TIMEOUT", "5s")
	t.Setenv("NOTIFY_EMAILS", " ops@example.com, ,arch@example.com ")
	t.Setenv("EMAIL_PROVIDER", " SES ")
	cfg := Load()
	if cfg.Port != "9090" {
		t.Fatalf("expected override port, got %s", cfg.Port)
	}
	if cfg.Env != "production" {
		t.Fatalf("expected env override, got %s", cfg.Env)
	}
	if cfg.DatabaseURL != "postgres://user@host/db" {
		t.Fatalf("expected database url override, got %s", cfg.DatabaseURL)
	}
	if cfg.UseMemoryQueue {
		t.Fatalf("expected memory queue disabled")
	}
	if cfg.WorkerCount != 8 {
		t.Fatalf("expected 8 workers, got %d", cfg.WorkerCount)
	}
	if cfg.DispatchMaxAttempts != 5 {
		t.Fatalf("expected invalid int to fall back to default, got %d", cfg.DispatchMaxAttempts)
	}
	if cfg.WhatsAppTimeout != 5*time.Second {
		t.Fatalf("expected 5s timeout, got %s", cfg.WhatsAppTimeout)
	}
	if len(cfg.NotifyEmails) != 2 || cfg.NotifyEmails[1] != "arch@example.com" {
		t.Fatalf("unexpected notify emails %v", cfg.NotifyEmails)
	}
	if cfg.EmailProvider != "ses" {
		t.Fatalf("expected normalized provider, got %q", cfg.EmailProvider)
	}
}
