package config

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sethvargo/go-envconfig"

	"github.com/consent-app/consent_api/internal/store"
)

// Config captures application runtime configuration loaded from environment variables.
type Config struct {
	AppName        string        `env:"APP_NAME, default=ConsentAPI"`
	AppEnv         string        `env:"APP_ENV, default=development"`
	Port           string        `env:"PORT, default=8080"`
	LogLevel       string        `env:"LOG_LEVEL, default=info"`
	DatabaseURL    string        `env:"DATABASE_URL"`
	RedisURL       string        `env:"REDIS_URL"`
	ShutdownPeriod time.Duration `env:"SHUTDOWN_TIMEOUT, default=10s"`
	IdempotencyTTL time.Duration `env:"IDEMPOTENCY_TTL, default=24h"`
	LoginRateLimit int           `env:"LOGIN_RATE_LIMIT, default=5"`

	Auth     AuthConfig
	Payload  PayloadConfig
	Database DatabaseConfig
	Stripe   StripeConfig
}

// AuthConfig configures access tokens.
type AuthConfig struct {
	JWTSecret string        `env:"JWT_SECRET"`
	TokenTTL  time.Duration `env:"JWT_TTL, default=1h"`
}

// PayloadConfig holds the key material for consent payload encryption.
type PayloadConfig struct {
	SecretKey string `env:"PAYLOAD_SECRET_KEY"`
}

// DatabaseConfig bounds transactions and their retries.
type DatabaseConfig struct {
	MaxConns             int32         `env:"DB_MAX_CONNS, default=10"`
	TxLockTimeout        time.Duration `env:"TX_LOCK_TIMEOUT, default=5s"`
	TxTimeout            time.Duration `env:"TX_TIMEOUT, default=10s"`
	RetryMaxAttempts     uint          `env:"TX_RETRY_MAX_ATTEMPTS, default=4"`
	RetryInitialInterval time.Duration `env:"TX_RETRY_INITIAL_INTERVAL, default=25ms"`
	RetryMaxInterval     time.Duration `env:"TX_RETRY_MAX_INTERVAL, default=500ms"`
}

// StripeConfig configures the payment provider.
type StripeConfig struct {
	SecretKey      string `env:"STRIPE_SECRET_KEY"`
	PublishableKey string `env:"STRIPE_PUBLISHABLE_KEY"`
	WebhookSecret  string `env:"STRIPE_WEBHOOK_SECRET"`
	Currency       string `env:"STRIPE_CURRENCY, default=eur"`
}

// Load reads configuration values from the process environment.
func Load() (Config, error) {
	return LoadFrom(context.Background(), envconfig.OsLookuper())
}

// LoadFrom reads configuration through lookuper and validates it.
func LoadFrom(ctx context.Context, lookuper envconfig.Lookuper) (Config, error) {
	var cfg Config
	if err := envconfig.ProcessWith(ctx, &envconfig.Config{
		Target:   &cfg,
		Lookuper: lookuper,
	}); err != nil {
		return Config{}, fmt.Errorf("load config: %w", err)
	}
	cfg.LogLevel = strings.ToLower(cfg.LogLevel)
	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) validate() error {
	var errs []error
	if c.Auth.JWTSecret == "" {
		errs = append(errs, errors.New("JWT_SECRET must be set"))
	}
	if c.Payload.SecretKey == "" {
		errs = append(errs, errors.New("PAYLOAD_SECRET_KEY must be set"))
	}
	if c.Database.TxTimeout <= 0 || c.Database.TxLockTimeout <= 0 {
		errs = append(errs, errors.New("TX_TIMEOUT and TX_LOCK_TIMEOUT must be positive"))
	}
	if c.Database.RetryMaxAttempts == 0 {
		errs = append(errs, errors.New("TX_RETRY_MAX_ATTEMPTS must be at least 1"))
	}
	if !c.IsDev() {
		if c.DatabaseURL == "" {
			errs = append(errs, errors.New("DATABASE_URL must be set"))
		}
		if c.RedisURL == "" {
			errs = append(errs, errors.New("REDIS_URL must be set"))
		}
		if c.Stripe.SecretKey == "" || c.Stripe.WebhookSecret == "" {
			errs = append(errs, errors.New("STRIPE_SECRET_KEY and STRIPE_WEBHOOK_SECRET must be set"))
		}
	}
	return errors.Join(errs...)
}

// IsDev reports whether the app runs in a local environment, where the
// in-memory store and a simulated payment provider stand in for missing
// infrastructure.
func (c Config) IsDev() bool {
	switch strings.ToLower(c.AppEnv) {
	case "dev", "development", "local":
		return true
	default:
		return false
	}
}

// RetryPolicy returns the transaction retry policy.
func (c Config) RetryPolicy() store.RetryPolicy {
	return store.RetryPolicy{
		MaxAttempts:     c.Database.RetryMaxAttempts,
		InitialInterval: c.Database.RetryInitialInterval,
		MaxInterval:     c.Database.RetryMaxInterval,
	}
}

// TxLimits returns the per-transaction lock and statement bounds.
func (c Config) TxLimits() store.TxLimits {
	return store.TxLimits{LockTimeout: c.Database.TxLockTimeout, Timeout: c.Database.TxTimeout}
}

// Address returns the listen address in the format Fiber expects.
func (c Config) Address() string {
	if strings.HasPrefix(c.Port, ":") {
		return c.Port
	}
	return fmt.Sprintf(":%s", c.Port)
}
