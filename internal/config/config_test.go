package config

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/sethvargo/go-envconfig"
)

func load(t *testing.T, env map[string]string) (Config, error) {
	t.Helper()
	return LoadFrom(context.Background(), envconfig.MapLookuper(env))
}

func TestLoad_DevDefaults(t *testing.T) {
	cfg, err := load(t, map[string]string{
		"JWT_SECRET":         "jwt-secret",
		"PAYLOAD_SECRET_KEY": "0123456789abcdef",
	})
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Address() != ":8080" {
		t.Fatalf("unexpected address %q", cfg.Address())
	}
	if cfg.Auth.TokenTTL != time.Hour {
		t.Fatalf("expected 1h token ttl, got %s", cfg.Auth.TokenTTL)
	}
	if cfg.Database.TxLockTimeout != 5*time.Second || cfg.Database.TxTimeout != 10*time.Second {
		t.Fatalf("unexpected tx limits: %+v", cfg.Database)
	}
	if p := cfg.RetryPolicy(); p.MaxAttempts != 4 || p.InitialInterval != 25*time.Millisecond {
		t.Fatalf("unexpected retry policy: %+v", p)
	}
	if cfg.Stripe.Currency != "eur" {
		t.Fatalf("unexpected currency %q", cfg.Stripe.Currency)
	}
	if !cfg.IsDev() {
		t.Fatalf("expected development env")
	}
}

func TestLoad_ProductionRequiresInfrastructure(t *testing.T) {
	_, err := load(t, map[string]string{
		"APP_ENV":            "production",
		"JWT_SECRET":         "jwt-secret",
		"PAYLOAD_SECRET_KEY": "0123456789abcdef",
	})
	if err == nil {
		t.Fatalf("expected error")
	}
	for _, want := range []string{"DATABASE_URL", "REDIS_URL", "STRIPE_SECRET_KEY"} {
		if !strings.Contains(err.Error(), want) {
			t.Fatalf("expected %s in error, got %v", want, err)
		}
	}
}

func TestLoad_RequiresSecrets(t *testing.T) {
	_, err := load(t, map[string]string{})
	if err == nil || !strings.Contains(err.Error(), "JWT_SECRET") || !strings.Contains(err.Error(), "PAYLOAD_SECRET_KEY") {
		t.Fatalf("expected missing secret errors, got %v", err)
	}
}

func TestLoad_ParsesOverrides(t *testing.T) {
	cfg, err := load(t, map[string]string{
		"PORT":               ":9090",
		"LOG_LEVEL":          "DEBUG",
		"IDEMPOTENCY_TTL":    "2h",
		"TX_TIMEOUT":         "3s",
		"JWT_SECRET":         "jwt-secret",
		"PAYLOAD_SECRET_KEY": "0123456789abcdef",
	})
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Address() != ":9090" || cfg.LogLevel != "debug" {
		t.Fatalf("unexpected cfg: %+v", cfg)
	}
	if cfg.IdempotencyTTL != 2*time.Hour || cfg.TxLimits().Timeout != 3*time.Second {
		t.Fatalf("unexpected durations: %s %s", cfg.IdempotencyTTL, cfg.TxLimits().Timeout)
	}
}
