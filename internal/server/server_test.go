package server

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stripe/stripe-go/v79/webhook"

	"github.com/consent-app/consent_api/internal/billing"
	"github.com/consent-app/consent_api/internal/config"
	"github.com/consent-app/consent_api/internal/logging"
	"github.com/consent-app/consent_api/internal/routes"
	"github.com/consent-app/consent_api/internal/store"
)

const webhookSecret = "whsec_server_test"

type harness struct {
	t   *testing.T
	srv *Server
	st  store.Store
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	mr := miniredis.RunT(t)
	cache := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = cache.Close() })

	cfg := config.Config{
		AppName:        "consent-api-test",
		AppEnv:         "development",
		IdempotencyTTL: time.Minute,
		LoginRateLimit: 5,
		Auth:           config.AuthConfig{JWTSecret: "server-test-secret", TokenTTL: time.Hour},
		Payload:        config.PayloadConfig{SecretKey: "0123456789abcdef0123456789abcdef"},
		Database: config.DatabaseConfig{
			TxLockTimeout:        time.Second,
			TxTimeout:            time.Second,
			RetryMaxAttempts:     2,
			RetryInitialInterval: time.Millisecond,
			RetryMaxInterval:     time.Millisecond,
		},
		Stripe: config.StripeConfig{WebhookSecret: webhookSecret, PublishableKey: "pk_test", Currency: "eur"},
	}
	st := store.NewMemory()
	srv, err := New(routes.Deps{
		Cfg:      cfg,
		Cache:    cache,
		Logger:   logging.Discard(),
		Store:    st,
		Provider: &billing.StaticProvider{},
	})
	if err != nil {
		t.Fatalf("new server: %v", err)
	}
	return &harness{t: t, srv: srv, st: st}
}

func (h *harness) do(method, path, token string, body any) (int, map[string]any) {
	h.t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			h.t.Fatalf("marshal: %v", err)
		}
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if method != http.MethodGet {
		req.Header.Set("Idempotency-Key", uuid.NewString())
	}
	return h.send(req)
}

func (h *harness) send(req *http.Request) (int, map[string]any) {
	h.t.Helper()
	resp, err := h.srv.App().Test(req, -1)
	if err != nil {
		h.t.Fatalf("app.Test: %v", err)
	}
	defer resp.Body.Close()
	raw, _ := io.ReadAll(resp.Body)
	out := map[string]any{}
	if len(raw) > 0 {
		_ = json.Unmarshal(raw, &out)
	}
	return resp.StatusCode, out
}

func (h *harness) signup(email string) (string, int64) {
	h.t.Helper()
	code, body := h.do(http.MethodPost, "/api/v1/auth/signup", "", map[string]string{
		"email":    email,
		"password": "correct-horse",
	})
	if code != http.StatusCreated {
		h.t.Fatalf("signup %s: status %d body %v", email, code, body)
	}
	user := body["user"].(map[string]any)
	return body["access_token"].(string), int64(user["id"].(float64))
}

func (h *harness) deliverPayment(userID int64, intentID string, quantity int) int {
	h.t.Helper()
	payload, _ := json.Marshal(map[string]any{
		"id":     "evt_" + intentID,
		"object": "event",
		"type":   billing.EventPaymentIntentSucceeded,
		"data": map[string]any{"object": map[string]any{
			"id":     intentID,
			"object": "payment_intent",
			"metadata": map[string]string{
				billing.MetadataUserID:       fmt.Sprint(userID),
				billing.MetadataPackQuantity: fmt.Sprint(quantity),
			},
		}},
	})
	signed := webhook.GenerateTestSignedPayload(&webhook.UnsignedPayload{
		Payload:   payload,
		Secret:    webhookSecret,
		Timestamp: time.Now(),
	})
	req := httptest.NewRequest(http.MethodPost, "/api/v1/payments/webhook", bytes.NewReader(signed.Payload))
	req.Header.Set("Stripe-Signature", signed.Header)
	code, _ := h.send(req)
	return code
}

func TestConsentLifecycleOverHTTP(t *testing.T) {
	h := newHarness(t)
	aliceToken, aliceID := h.signup("alice@example.com")
	bobToken, _ := h.signup("bob@example.com")

	createBody := map[string]any{
		"partner_email": "bob@example.com",
		"payload":       map[string]string{"message": "dinner?", "emoji": "🍷"},
	}

	if code, body := h.do(http.MethodPost, "/api/v1/consents", aliceToken, createBody); code != http.StatusPaymentRequired {
		t.Fatalf("expected 402 without credit, got %d %v", code, body)
	}

	if code := h.deliverPayment(aliceID, "pi_alice", 1); code != http.StatusOK {
		t.Fatalf("webhook status %d", code)
	}
	if code := h.deliverPayment(aliceID, "pi_alice", 1); code != http.StatusOK {
		t.Fatalf("redelivered webhook status %d", code)
	}
	if _, body := h.do(http.MethodGet, "/api/v1/credits", aliceToken, nil); body["quantity"].(float64) != 1 {
		t.Fatalf("expected 1 credit, got %v", body)
	}

	code, created := h.do(http.MethodPost, "/api/v1/consents", aliceToken, createBody)
	if code != http.StatusCreated {
		t.Fatalf("create: %d %v", code, created)
	}
	id := created["id"].(string)
	if created["status"] != "PENDING" || created["payment_status"] != "PENDING" {
		t.Fatalf("unexpected consent: %v", created)
	}
	if _, body := h.do(http.MethodGet, "/api/v1/credits", aliceToken, nil); body["quantity"].(float64) != 0 {
		t.Fatalf("expected credit consumed, got %v", body)
	}

	if code, _ := h.do(http.MethodPut, "/api/v1/consents/"+id+"/accept", aliceToken, nil); code != http.StatusForbidden {
		t.Fatalf("initiator accept should be 403, got %d", code)
	}
	if code, body := h.do(http.MethodPut, "/api/v1/consents/"+id+"/accept", bobToken, nil); code != http.StatusOK || body["status"] != "ACCEPTED" {
		t.Fatalf("accept: %d %v", code, body)
	}
	if code, _ := h.do(http.MethodPut, "/api/v1/consents/"+id+"/refuse", bobToken, nil); code != http.StatusConflict {
		t.Fatalf("refuse after accept should be 409, got %d", code)
	}

	if code, body := h.do(http.MethodPut, "/api/v1/consents/"+id+"/confirm-biometric", aliceToken, nil); code != http.StatusOK || body["validated_now"] != false {
		t.Fatalf("first confirm: %d %v", code, body)
	}
	if code, body := h.do(http.MethodPut, "/api/v1/consents/"+id+"/confirm-biometric", bobToken, nil); code != http.StatusOK || body["validated_now"] != true {
		t.Fatalf("second confirm: %d %v", code, body)
	}

	if code, _ := h.do(http.MethodDelete, "/api/v1/consents/"+id, bobToken, nil); code != http.StatusForbidden {
		t.Fatalf("partner delete should be 403, got %d", code)
	}
	if code, _ := h.do(http.MethodDelete, "/api/v1/consents/"+id, aliceToken, nil); code != http.StatusNoContent {
		t.Fatalf("initiator delete: %d", code)
	}

	_, aliceHistory := h.do(http.MethodGet, "/api/v1/consents/history", aliceToken, nil)
	if n := len(aliceHistory["consents"].([]any)); n != 0 {
		t.Fatalf("expected hidden consent for initiator, got %d", n)
	}
	_, bobHistory := h.do(http.MethodGet, "/api/v1/consents/history", bobToken, nil)
	if n := len(bobHistory["consents"].([]any)); n != 0 {
		t.Fatalf("expected hidden consent out of partner history, got %d", n)
	}
	if code, body := h.do(http.MethodGet, "/api/v1/consents/"+id, bobToken, nil); code != http.StatusOK || body["visibility"] != "hidden_by_initiator" {
		t.Fatalf("partner should still read the consent by id: %d %v", code, body)
	}
}

func TestIdempotentReplayDoesNotChargeTwice(t *testing.T) {
	h := newHarness(t)
	aliceToken, aliceID := h.signup("alice@example.com")
	h.signup("bob@example.com")
	store.SeedBalance(h.st, aliceID, 2)

	raw, _ := json.Marshal(map[string]any{
		"partner_email": "bob@example.com",
		"payload":       map[string]string{"message": "hello"},
	})
	newReq := func() *http.Request {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/consents", bytes.NewReader(raw))
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Authorization", "Bearer "+aliceToken)
		req.Header.Set("Idempotency-Key", "create-once")
		return req
	}

	code, first := h.send(newReq())
	if code != http.StatusCreated {
		t.Fatalf("first create: %d %v", code, first)
	}
	code, second := h.send(newReq())
	if code != http.StatusCreated || second["id"] != first["id"] {
		t.Fatalf("expected replayed response, got %d %v", code, second)
	}
	if _, body := h.do(http.MethodGet, "/api/v1/credits", aliceToken, nil); body["quantity"].(float64) != 1 {
		t.Fatalf("expected one credit consumed, got %v", body)
	}
}

func TestErrorsUseEnvelope(t *testing.T) {
	h := newHarness(t)

	code, body := h.do(http.MethodGet, "/api/v1/me", "", nil)
	if code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", code)
	}
	if _, ok := body["error"].(string); !ok {
		t.Fatalf("expected error envelope, got %v", body)
	}

	req := httptest.NewRequest(http.MethodPost, "/api/v1/payments/webhook", bytes.NewBufferString(`{}`))
	req.Header.Set("Stripe-Signature", "t=1,v1=bad")
	if code, body := h.send(req); code != http.StatusBadRequest || body["error"] == nil {
		t.Fatalf("expected 400 envelope for bad signature, got %d %v", code, body)
	}
}

func TestHealthAndMetrics(t *testing.T) {
	h := newHarness(t)

	code, body := h.do(http.MethodGet, "/healthz", "", nil)
	if code != http.StatusOK {
		t.Fatalf("healthz: %d %v", code, body)
	}

	resp, err := h.srv.App().Test(httptest.NewRequest(http.MethodGet, "/metrics", nil), -1)
	if err != nil {
		t.Fatalf("metrics: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("metrics status %d", resp.StatusCode)
	}
}

func TestNew_RequiresInfrastructureOutsideDev(t *testing.T) {
	_, err := New(routes.Deps{
		Cfg: config.Config{
			AppEnv:  "production",
			Auth:    config.AuthConfig{JWTSecret: "secret", TokenTTL: time.Hour},
			Payload: config.PayloadConfig{SecretKey: "0123456789abcdef"},
		},
	})
	if err == nil {
		t.Fatalf("expected error without database and redis in production")
	}
}

func TestNew_RejectsWeakPayloadKey(t *testing.T) {
	_, err := New(routes.Deps{
		Cfg: config.Config{
			AppEnv:  "development",
			Auth:    config.AuthConfig{JWTSecret: "secret", TokenTTL: time.Hour},
			Payload: config.PayloadConfig{SecretKey: "short"},
		},
		Store: store.NewMemory(),
	})
	if err == nil {
		t.Fatalf("expected weak payload key to be rejected")
	}
}
