package middleware

import (
	"net/http/httptest"
	"strings"
	"testing"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
)

func TestLoginRateLimitPerEmail(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("start miniredis: %v", err)
	}
	defer mr.Close()
	cache := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer cache.Close()

	app := fiber.New()
	app.Post("/login", LoginRateLimit(cache, 2), func(c *fiber.Ctx) error {
		return c.SendStatus(fiber.StatusOK)
	})

	login := func(email string) int {
		req := httptest.NewRequest(fiber.MethodPost, "/login", strings.NewReader(`{"email":"`+email+`"}`))
		req.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
		resp, err := app.Test(req)
		if err != nil {
			t.Fatalf("app.Test: %v", err)
		}
		return resp.StatusCode
	}

	for i := 0; i < 2; i++ {
		if got := login("a@example.com"); got != fiber.StatusOK {
			t.Fatalf("attempt %d: expected 200 got %d", i, got)
		}
	}
	if got := login("A@example.com"); got != fiber.StatusTooManyRequests {
		t.Fatalf("expected 429 got %d", got)
	}
	if got := login("b@example.com"); got != fiber.StatusOK {
		t.Fatalf("expected other email to pass, got %d", got)
	}
}
