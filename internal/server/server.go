package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/consent-app/consent_api/internal/config"
	"github.com/consent-app/consent_api/internal/logging"
	"github.com/consent-app/consent_api/internal/middleware"
	"github.com/consent-app/consent_api/internal/routes"
	"github.com/consent-app/consent_api/internal/store"
)

// Server wraps the Fiber application and shared dependencies.
type Server struct {
	app *fiber.App
	cfg config.Config
}

// New instantiates the HTTP server and delegates route wiring to routes.Setup.
func New(deps routes.Deps) (*Server, error) {
	if deps.Logger == nil {
		deps.Logger = logging.Discard()
	}
	app := fiber.New(fiber.Config{
		AppName:      deps.Cfg.AppName,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		ErrorHandler: errorHandler(deps.Logger),
	})

	if err := routes.Setup(app, deps); err != nil {
		return nil, err
	}

	return &Server{app: app, cfg: deps.Cfg}, nil
}

// App exposes the underlying Fiber app, mainly for tests.
func (s *Server) App() *fiber.App {
	return s.app
}

// Listen starts the HTTP server.
func (s *Server) Listen() error {
	return s.app.Listen(s.cfg.Address())
}

// Shutdown gracefully stops the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.app.ShutdownWithContext(ctx)
}

// errorHandler renders every error as {"error": "..."}. Unmapped errors are
// logged and answered with a generic 500.
func errorHandler(logger *slog.Logger) fiber.ErrorHandler {
	return func(c *fiber.Ctx, err error) error {
		code := http.StatusInternalServerError
		msg := "internal server error"

		var fe *fiber.Error
		switch {
		case errors.As(err, &fe):
			code = fe.Code
			msg = fe.Message
		case store.IsTransient(err):
			code = http.StatusServiceUnavailable
			msg = "temporarily unavailable, retry later"
		default:
			logger.Error("unhandled error",
				slog.String("method", c.Method()),
				slog.String("path", c.Path()),
				slog.String("request_id", middleware.RequestIDFrom(c)),
				slog.Any("error", err),
			)
		}
		if code == http.StatusServiceUnavailable {
			c.Set(fiber.HeaderRetryAfter, "1")
		}
		return c.Status(code).JSON(fiber.Map{"error": msg})
	}
}
