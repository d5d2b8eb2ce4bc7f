package environments

import (
	"testing"
	"time"
)

func TestLoad_Defaults(t *testing.T) {
	cfg := Load()

	if cfg.Server.Port != "8080" {
		t.Fatalf("expected default port 8080, got %q", cfg.Server.Port)
	}
	if cfg.Dispatch.Workers != 4 {
		t.Fatalf("expected 4 workers, got %d", cfg.Dispatch.Workers)
	}
	if cfg.Maintenance.CleanupCron != "@daily" {
		t.Fatalf("expected @daily cleanup cron, got %q", cfg.Maintenance.CleanupCron)
	}
}

func TestLoad_ReadsEnvironment(t *testing.T) {
	t.Setenv("DB_DRIVER", "SQLite")
	t.Setenv("DISPATCH_RATE_PER_SECOND", "2.5")
	t.Setenv("DISPATCH_SEND_TIMEOUT", "3s")
	t.Setenv("WEBHOOK_TIMEOUT_SECONDS", "7")
	t.Setenv("QUEUE_DRIVER", "AMQP")

	cfg := Load()

	if cfg.Database.Driver != "sqlite" {
		t.Fatalf("expected lowercased driver sqlite, got %q", cfg.Database.Driver)
	}
	if cfg.Dispatch.RatePerSecond != 2.5 {
		t.Fatalf("expected rate 2.5, got %v", cfg.Dispatch.RatePerSecond)
	}
	if cfg.Dispatch.SendTimeout != 3*time.Second {
		t.Fatalf("expected 3s send timeout, got %v", cfg.Dispatch.SendTimeout)
	}
	if cfg.Webhook.Timeout != 7*time.Second {
		t.Fatalf("expected 7s webhook timeout, got %v", cfg.Webhook.Timeout)
	}
	if cfg.Queue.Driver != "amqp" {
		t.Fatalf("expected amqp queue driver, got %q", cfg.Queue.Driver)
	}
}

func TestGetEnvHelpers_FallBackOnGarbage(t *testing.T) {
	t.Setenv("TEST_INT", "not-a-number")
	t.Setenv("TEST_BOOL", "maybe")
	t.Setenv("TEST_DURATION", "soon")

	if got := GetEnvAsInt("TEST_INT", 5); got != 5 {
		t.Fatalf("expected fallback 5, got %d", got)
	}
	if got := GetEnvAsBool("TEST_BOOL", true); !got {
		t.Fatalf("expected fallback true")
	}
	if got := GetEnvAsDuration("TEST_DURATION", time.Minute); got != time.Minute {
		t.Fatalf("expected fallback 1m, got %v", got)
	}
	if got := GetEnv("TEST_UNSET_KEY_XYZ", "x"); got != "x" {
		t.Fatalf("expected fallback x, got %q", got)
	}
}
