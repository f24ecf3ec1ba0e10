package routes

import (
	"context"
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/consent-app/consent_api/internal/store"
)

// RegisterHealthRoutes adds the readiness probe and the Prometheus scrape
// endpoint.
func RegisterHealthRoutes(app *fiber.App, st store.Store, cache *redis.Client) {
	app.Get("/healthz", func(c *fiber.Ctx) error {
		dbStatus := "ok"
		redisStatus := "ok"

		ctx, cancel := context.WithTimeout(c.UserContext(), 2*time.Second)
		defer cancel()
		if err := st.Ping(ctx); err != nil {
			dbStatus = err.Error()
		}
		if cache == nil {
			redisStatus = "disabled"
		} else if err := cache.Ping(ctx).Err(); err != nil {
			redisStatus = err.Error()
		}
		status := http.StatusOK
		if dbStatus != "ok" || (redisStatus != "ok" && redisStatus != "disabled") {
			status = http.StatusServiceUnavailable
		}
		return c.Status(status).JSON(fiber.Map{
			"status":    fiber.Map{"store": dbStatus, "redis": redisStatus},
			"timestamp": time.Now().UTC().Format(time.RFC3339Nano),
		})
	})
	app.Get("/metrics", adaptor.HTTPHandler(promhttp.Handler()))
}
