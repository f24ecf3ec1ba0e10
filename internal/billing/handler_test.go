package billing

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"

	"github.com/gofiber/fiber/v2"

	"github.com/consent-app/consent_api/internal/middleware"
)

func itoa(id int64) string { return strconv.FormatInt(id, 10) }

func newTestApp(f fixture) *fiber.App {
	h := NewHandler(f.svc)
	app := fiber.New()
	app.Post("/webhooks/stripe", h.Webhook)
	app.Post("/packs/payment-sheet", func(c *fiber.Ctx) error {
		middleware.SetUserID(c, f.user.ID)
		return c.Next()
	}, h.PaymentSheet)
	return app
}

func TestWebhookHandler_StatusCodes(t *testing.T) {
	f := setup(t)
	app := newTestApp(f)
	meta := map[string]string{MetadataUserID: itoa(f.user.ID), MetadataPackQuantity: "10"}

	payload, header := signedEvent(t, "evt_h", EventPaymentIntentSucceeded, "pi_h", meta)
	req := httptest.NewRequest(http.MethodPost, "/webhooks/stripe", bytes.NewReader(payload))
	req.Header.Set("Stripe-Signature", header)
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("app.Test: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}

	req = httptest.NewRequest(http.MethodPost, "/webhooks/stripe", bytes.NewReader(payload))
	req.Header.Set("Stripe-Signature", "t=1,v1=bad")
	resp, err = app.Test(req)
	if err != nil {
		t.Fatalf("app.Test: %v", err)
	}
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400 for bad signature, got %d", resp.StatusCode)
	}

	payload, header = signedEvent(t, "evt_m", EventPaymentIntentSucceeded, "pi_m", map[string]string{MetadataUserID: "x"})
	req = httptest.NewRequest(http.MethodPost, "/webhooks/stripe", bytes.NewReader(payload))
	req.Header.Set("Stripe-Signature", header)
	resp, err = app.Test(req)
	if err != nil {
		t.Fatalf("app.Test: %v", err)
	}
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400 for malformed metadata, got %d", resp.StatusCode)
	}
}

func TestPaymentSheetHandler(t *testing.T) {
	f := setup(t)
	app := newTestApp(f)

	req := httptest.NewRequest(http.MethodPost, "/packs/payment-sheet", bytes.NewBufferString(`{"quantity":1}`))
	req.Header.Set("Content-Type", "application/json")
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("app.Test: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	var sheet PaymentSheet
	if err := json.NewDecoder(resp.Body).Decode(&sheet); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if sheet.PaymentIntent == "" || sheet.Customer == "" {
		t.Fatalf("incomplete sheet: %+v", sheet)
	}

	req = httptest.NewRequest(http.MethodPost, "/packs/payment-sheet", bytes.NewBufferString(`{"quantity":5}`))
	req.Header.Set("Content-Type", "application/json")
	resp, err = app.Test(req)
	if err != nil {
		t.Fatalf("app.Test: %v", err)
	}
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.StatusCode)
	}
}
