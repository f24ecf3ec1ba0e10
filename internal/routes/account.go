package routes

import (
	"github.com/gofiber/fiber/v2"

	"github.com/consent-app/consent_api/internal/identity"
	"github.com/consent-app/consent_api/internal/ledger"
)

// RegisterAccountRoutes wires the caller's profile and credit summary.
func RegisterAccountRoutes(r fiber.Router, ids *identity.Handler, credits *ledger.Handler) {
	r.Get("/me", ids.Me)
	r.Get("/credits", credits.Credits)
}
