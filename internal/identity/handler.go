package identity

import (
	"context"
	"errors"
	"net/http"

	"github.com/gofiber/fiber/v2"

	"github.com/consent-app/consent_api/internal/ledger"
	"github.com/consent-app/consent_api/internal/middleware"
	"github.com/consent-app/consent_api/internal/store"
)

// CreditSummarizer reports a user's credit state.
type CreditSummarizer interface {
	Summary(ctx context.Context, userID int64) (ledger.Summary, error)
}

// Handler exposes identity endpoints.
type Handler struct {
	service *Service
	credits CreditSummarizer
}

// NewHandler constructs an identity HTTP handler.
func NewHandler(service *Service, credits CreditSummarizer) *Handler {
	return &Handler{service: service, credits: credits}
}

// Me returns the caller's profile and credit summary.
func (h *Handler) Me(c *fiber.Ctx) error {
	uid, ok := middleware.UserID(c)
	if !ok {
		return fiber.NewError(http.StatusUnauthorized, "unauthorized")
	}
	profile, err := h.service.Profile(c.UserContext(), uid)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return fiber.NewError(http.StatusNotFound, "user not found")
		}
		return err
	}

	resp := fiber.Map{"user": profile}
	if h.credits != nil {
		summary, err := h.credits.Summary(c.UserContext(), uid)
		if err != nil {
			return err
		}
		resp["credits"] = summary
	}
	return c.Status(http.StatusOK).JSON(resp)
}
