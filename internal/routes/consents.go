package routes

import (
	"github.com/gofiber/fiber/v2"

	"github.com/consent-app/consent_api/internal/consent"
)

// RegisterConsentRoutes wires the consent lifecycle endpoints.
func RegisterConsentRoutes(r fiber.Router, h *consent.Handler) {
	group := r.Group("/consents")
	group.Post("/", h.Create)
	group.Get("/history", h.History)
	group.Get("/:id", h.Get)
	group.Put("/:id/accept", h.Accept)
	group.Put("/:id/refuse", h.Refuse)
	group.Put("/:id/confirm-biometric", h.ConfirmBiometric)
	group.Delete("/:id", h.Delete)
}
