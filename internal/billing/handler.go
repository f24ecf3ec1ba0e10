package billing

import (
	"errors"
	"net/http"

	"github.com/gofiber/fiber/v2"

	"github.com/consent-app/consent_api/internal/ledger"
	"github.com/consent-app/consent_api/internal/middleware"
	"github.com/consent-app/consent_api/internal/store"
	"github.com/consent-app/consent_api/internal/validation"
)

const signatureHeader = "Stripe-Signature"

// Handler exposes pack purchase and the provider webhook.
type Handler struct {
	service *Service
}

// NewHandler constructs a billing handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

type paymentSheetRequest struct {
	Quantity int `json:"quantity" validate:"oneof=1 10"`
}

// PaymentSheet creates a payment intent for a credit pack.
func (h *Handler) PaymentSheet(c *fiber.Ctx) error {
	uid, ok := middleware.UserID(c)
	if !ok {
		return fiber.NewError(http.StatusUnauthorized, "unauthorized")
	}
	var req paymentSheetRequest
	if err := validation.BindJSON(c, &req); err != nil {
		return err
	}

	sheet, err := h.service.CreateIntent(c.UserContext(), IntentInput{
		UserID:         uid,
		Quantity:       req.Quantity,
		IdempotencyKey: c.Get("Idempotency-Key"),
	})
	if err != nil {
		switch {
		case errors.Is(err, ErrUnsupportedQuantity):
			return fiber.NewError(http.StatusBadRequest, err.Error())
		case errors.Is(err, store.ErrNotFound):
			return fiber.NewError(http.StatusNotFound, "user not found")
		default:
			return err
		}
	}
	return c.Status(http.StatusOK).JSON(sheet)
}

// Webhook receives provider notifications. Rejections that a redelivery
// cannot fix answer 400; storage failures answer 500 so the provider retries.
func (h *Handler) Webhook(c *fiber.Ctx) error {
	res, err := h.service.HandleNotification(c.UserContext(), c.Body(), c.Get(signatureHeader))
	if err != nil {
		switch {
		case errors.Is(err, ErrInvalidSignature):
			return fiber.NewError(http.StatusBadRequest, "invalid signature")
		case errors.Is(err, ErrMalformedEvent):
			return fiber.NewError(http.StatusBadRequest, "invalid metadata")
		case errors.Is(err, ledger.ErrUnknownUser), errors.Is(err, ledger.ErrInvalidGrant):
			return fiber.NewError(http.StatusBadRequest, err.Error())
		default:
			return fiber.NewError(http.StatusInternalServerError, "webhook processing failed")
		}
	}
	return c.Status(http.StatusOK).JSON(fiber.Map{"received": true, "outcome": res.Outcome})
}
