package middleware

import (
	"io"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"

	"github.com/consent-app/consent_api/internal/logging"
)

type testApp struct {
	app   *fiber.App
	calls *int32
}

// setupTestApp installs a fake auth step reading X-Test-User so requests can
// act as different users.
func setupTestApp(t *testing.T, status int) (testApp, func()) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("start miniredis: %v", err)
	}

	cache := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	app := fiber.New()
	app.Use(func(c *fiber.Ctx) error {
		if v := c.Get("X-Test-User"); v != "" {
			id, _ := strconv.ParseInt(v, 10, 64)
			SetUserID(c, id)
		}
		return c.Next()
	})
	app.Use(Idempotency(cache, time.Minute, logging.Discard()))

	var calls int32
	app.Post("/resource", func(c *fiber.Ctx) error {
		n := atomic.AddInt32(&calls, 1)
		return c.Status(status).JSON(fiber.Map{"call": n})
	})

	cleanup := func() {
		cache.Close()
		mr.Close()
	}
	return testApp{app: app, calls: &calls}, cleanup
}

func post(t *testing.T, app *fiber.App, user, key string) (int, string) {
	t.Helper()
	req := httptest.NewRequest(fiber.MethodPost, "/resource", strings.NewReader("{}"))
	req.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	if user != "" {
		req.Header.Set("X-Test-User", user)
	}
	if key != "" {
		req.Header.Set(idempotencyKeyHeader, key)
	}
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("app.Test: %v", err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	return resp.StatusCode, string(body)
}

func TestIdempotencyRequiresHeader(t *testing.T) {
	ta, cleanup := setupTestApp(t, fiber.StatusCreated)
	defer cleanup()

	if status, _ := post(t, ta.app, "1", ""); status != fiber.StatusBadRequest {
		t.Fatalf("expected %d got %d", fiber.StatusBadRequest, status)
	}
}

func TestIdempotencyReturnsCachedResponse(t *testing.T) {
	ta, cleanup := setupTestApp(t, fiber.StatusCreated)
	defer cleanup()

	status, first := post(t, ta.app, "1", "abc123")
	if status != fiber.StatusCreated {
		t.Fatalf("expected status %d got %d", fiber.StatusCreated, status)
	}

	status, second := post(t, ta.app, "1", "abc123")
	if status != fiber.StatusCreated {
		t.Fatalf("expected cached status %d got %d", fiber.StatusCreated, status)
	}
	if first != second {
		t.Fatalf("expected cached payload %s got %s", first, second)
	}
	if atomic.LoadInt32(ta.calls) != 1 {
		t.Fatalf("expected handler to run once, ran %d times", *ta.calls)
	}
}

func TestIdempotencyKeysAreScopedPerUser(t *testing.T) {
	ta, cleanup := setupTestApp(t, fiber.StatusCreated)
	defer cleanup()

	post(t, ta.app, "1", "shared")
	post(t, ta.app, "2", "shared")
	if atomic.LoadInt32(ta.calls) != 2 {
		t.Fatalf("expected both users to reach the handler, got %d calls", *ta.calls)
	}
}

func TestIdempotencyDoesNotStoreFailures(t *testing.T) {
	ta, cleanup := setupTestApp(t, fiber.StatusPaymentRequired)
	defer cleanup()

	post(t, ta.app, "1", "retry-me")
	post(t, ta.app, "1", "retry-me")
	if atomic.LoadInt32(ta.calls) != 2 {
		t.Fatalf("expected failed attempt to release the key, got %d calls", *ta.calls)
	}
}

func TestIdempotencyCacheKeyIsHashed(t *testing.T) {
	k := idempotencyCacheKey(1, "POST", "/consents", "user supplied: key")
	if strings.Contains(k, "user supplied") {
		t.Fatalf("expected raw key to be hashed, got %s", k)
	}
	if k == idempotencyCacheKey(2, "POST", "/consents", "user supplied: key") {
		t.Fatalf("expected different users to get different cache keys")
	}
}
