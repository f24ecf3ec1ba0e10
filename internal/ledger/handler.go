package ledger

import (
	"errors"
	"net/http"

	"github.com/gofiber/fiber/v2"

	"github.com/consent-app/consent_api/internal/middleware"
	"github.com/consent-app/consent_api/internal/store"
)

// Handler exposes the ledger read model over HTTP.
type Handler struct {
	service *Service
}

// NewHandler constructs a ledger handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// Credits returns the caller's credit summary.
func (h *Handler) Credits(c *fiber.Ctx) error {
	uid, ok := middleware.UserID(c)
	if !ok {
		return fiber.NewError(http.StatusUnauthorized, "unauthorized")
	}
	summary, err := h.service.Summary(c.UserContext(), uid)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return fiber.NewError(http.StatusNotFound, "user not found")
		}
		return err
	}
	return c.Status(http.StatusOK).JSON(summary)
}
