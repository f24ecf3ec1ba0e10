package routes

import (
	"github.com/gofiber/fiber/v2"

	"github.com/consent-app/consent_api/internal/billing"
)

// RegisterWebhookRoutes wires the unauthenticated provider callback. The
// request signature is its only authentication.
func RegisterWebhookRoutes(r fiber.Router, h *billing.Handler) {
	r.Post("/payments/webhook", h.Webhook)
}

// RegisterBillingRoutes wires credit pack purchase.
func RegisterBillingRoutes(r fiber.Router, h *billing.Handler) {
	r.Post("/packs/payment-sheet", h.PaymentSheet)
}
