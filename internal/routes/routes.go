package routes

import (
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/consent-app/consent_api/internal/auth"
	"github.com/consent-app/consent_api/internal/billing"
	"github.com/consent-app/consent_api/internal/codec"
	"github.com/consent-app/consent_api/internal/config"
	"github.com/consent-app/consent_api/internal/consent"
	"github.com/consent-app/consent_api/internal/identity"
	"github.com/consent-app/consent_api/internal/ledger"
	"github.com/consent-app/consent_api/internal/middleware"
	"github.com/consent-app/consent_api/internal/notification"
	"github.com/consent-app/consent_api/internal/store"
)

// Deps aggregates shared dependencies required to wire routes. Store and
// Provider override the backends derived from DB and the Stripe config.
type Deps struct {
	Cfg      config.Config
	DB       *pgxpool.Pool
	Cache    *redis.Client
	Logger   *slog.Logger
	Store    store.Store
	Provider billing.Provider
}

// Setup configures middlewares and all application routes.
func Setup(app *fiber.App, d Deps) error {
	if !d.Cfg.IsDev() {
		if d.DB == nil && d.Store == nil {
			return fmt.Errorf("database is required when APP_ENV=%s", d.Cfg.AppEnv)
		}
		if d.Cache == nil {
			return fmt.Errorf("redis is required when APP_ENV=%s", d.Cfg.AppEnv)
		}
	}

	app.Use(recover.New())
	app.Use(middleware.RequestID())
	app.Use(middleware.Audit(d.Logger))

	st := d.Store
	if st == nil {
		if d.DB != nil {
			st = store.NewPostgresStore(d.DB, d.Cfg.TxLimits())
		} else {
			d.Logger.Warn("no database configured, using in-memory store")
			st = store.NewMemory()
		}
	}

	provider := d.Provider
	if provider == nil {
		if d.Cfg.Stripe.SecretKey != "" {
			provider = billing.NewStripeProvider(d.Cfg.Stripe.SecretKey)
		} else {
			d.Logger.Warn("no stripe key configured, payment intents are simulated")
			provider = &billing.StaticProvider{}
		}
	}

	var notifier notification.Notifier = notification.NewLoggerNotifier(d.Logger)
	if d.Cache != nil {
		notifier = notification.NewRedisNotifier(d.Cache)
	}

	sealer, err := codec.New(d.Cfg.Payload.SecretKey)
	if err != nil {
		return fmt.Errorf("payload codec: %w", err)
	}

	retry := d.Cfg.RetryPolicy()
	ledgerSvc := ledger.NewService(st, retry, d.Logger)
	identitySvc := identity.NewService(st)
	tokens := auth.NewTokens(d.Cfg.Auth.JWTSecret, d.Cfg.Auth.TokenTTL)
	authSvc := auth.NewService(identitySvc, tokens)
	consentSvc := consent.NewService(st, ledgerSvc, sealer, notifier, retry, d.Logger)
	billingSvc := billing.NewService(st, provider, billing.NewStripeVerifier(d.Cfg.Stripe.WebhookSecret),
		ledgerSvc, notifier, billing.Config{
			Currency:       d.Cfg.Stripe.Currency,
			PublishableKey: d.Cfg.Stripe.PublishableKey,
		}, d.Logger)

	authHandler := auth.NewHandler(authSvc)
	identityHandler := identity.NewHandler(identitySvc, ledgerSvc)
	ledgerHandler := ledger.NewHandler(ledgerSvc)
	consentHandler := consent.NewHandler(consentSvc)
	billingHandler := billing.NewHandler(billingSvc)

	RegisterHealthRoutes(app, st, d.Cache)

	api := app.Group("/api/v1")
	api.Get("/ping", func(c *fiber.Ctx) error {
		return c.Status(http.StatusOK).JSON(fiber.Map{
			"status":     "ok",
			"request_id": middleware.RequestIDFrom(c),
			"timestamp":  time.Now().UTC().Format(time.RFC3339Nano),
		})
	})

	// Public routes
	RegisterAuthRoutes(api, authHandler, middleware.LoginRateLimit(d.Cache, d.Cfg.LoginRateLimit))
	RegisterWebhookRoutes(api, billingHandler)

	// Protected routes
	protected := api.Group("", middleware.JWTAuth(tokens))
	if d.Cache != nil {
		protected.Use(middleware.Idempotency(d.Cache, d.Cfg.IdempotencyTTL, d.Logger))
	}
	RegisterAccountRoutes(protected, identityHandler, ledgerHandler)
	RegisterBillingRoutes(protected, billingHandler)
	RegisterConsentRoutes(protected, consentHandler)

	return nil
}
