package consent

import (
	"errors"
	"net/http"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"github.com/consent-app/consent_api/internal/middleware"
	"github.com/consent-app/consent_api/internal/store"
	"github.com/consent-app/consent_api/internal/validation"
)

// Handler exposes consent endpoints.
type Handler struct {
	service *Service
}

// NewHandler constructs a consent handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// Create opens a new consent with the partner named by email.
func (h *Handler) Create(c *fiber.Ctx) error {
	uid, ok := middleware.UserID(c)
	if !ok {
		return fiber.NewError(http.StatusUnauthorized, "unauthorized")
	}
	var req createRequest
	if err := validation.BindJSON(c, &req); err != nil {
		return err
	}

	view, err := h.service.Create(c.UserContext(), CreateInput{
		InitiatorID:  uid,
		PartnerEmail: req.PartnerEmail,
		Payload:      req.payload(),
	})
	if err != nil {
		return mapError(err)
	}
	return c.Status(http.StatusCreated).JSON(view)
}

// Accept marks the consent accepted by the partner.
func (h *Handler) Accept(c *fiber.Ctx) error {
	uid, id, err := actorAndID(c)
	if err != nil {
		return err
	}
	view, err := h.service.Accept(c.UserContext(), id, uid)
	if err != nil {
		return mapError(err)
	}
	return c.Status(http.StatusOK).JSON(view)
}

// Refuse marks the consent refused by the partner.
func (h *Handler) Refuse(c *fiber.Ctx) error {
	uid, id, err := actorAndID(c)
	if err != nil {
		return err
	}
	view, err := h.service.Refuse(c.UserContext(), id, uid)
	if err != nil {
		return mapError(err)
	}
	return c.Status(http.StatusOK).JSON(view)
}

// ConfirmBiometric records the caller's biometric confirmation.
func (h *Handler) ConfirmBiometric(c *fiber.Ctx) error {
	uid, id, err := actorAndID(c)
	if err != nil {
		return err
	}
	res, err := h.service.ConfirmBiometric(c.UserContext(), id, uid)
	if err != nil {
		return mapError(err)
	}
	return c.Status(http.StatusOK).JSON(res)
}

// Delete hides the consent from the initiator's history.
func (h *Handler) Delete(c *fiber.Ctx) error {
	uid, id, err := actorAndID(c)
	if err != nil {
		return err
	}
	if err := h.service.SoftDelete(c.UserContext(), id, uid); err != nil {
		return mapError(err)
	}
	return c.SendStatus(http.StatusNoContent)
}

// History lists the caller's visible consents.
func (h *Handler) History(c *fiber.Ctx) error {
	uid, ok := middleware.UserID(c)
	if !ok {
		return fiber.NewError(http.StatusUnauthorized, "unauthorized")
	}
	views, err := h.service.History(c.UserContext(), uid)
	if err != nil {
		return mapError(err)
	}
	return c.Status(http.StatusOK).JSON(fiber.Map{"consents": views})
}

// Get returns a single consent.
func (h *Handler) Get(c *fiber.Ctx) error {
	uid, id, err := actorAndID(c)
	if err != nil {
		return err
	}
	view, err := h.service.Get(c.UserContext(), id, uid)
	if err != nil {
		return mapError(err)
	}
	return c.Status(http.StatusOK).JSON(view)
}

func actorAndID(c *fiber.Ctx) (int64, uuid.UUID, error) {
	uid, ok := middleware.UserID(c)
	if !ok {
		return 0, uuid.Nil, fiber.NewError(http.StatusUnauthorized, "unauthorized")
	}
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return 0, uuid.Nil, fiber.NewError(http.StatusBadRequest, "invalid consent id")
	}
	return uid, id, nil
}

func mapError(err error) error {
	switch {
	case errors.Is(err, ErrInvalidPayload), errors.Is(err, ErrSelfConsent):
		return fiber.NewError(http.StatusBadRequest, err.Error())
	case errors.Is(err, ErrNoEntitlement):
		return fiber.NewError(http.StatusPaymentRequired, err.Error())
	case errors.Is(err, ErrUnauthorized):
		return fiber.NewError(http.StatusForbidden, err.Error())
	case errors.Is(err, ErrNotFound), errors.Is(err, ErrPartnerNotFound):
		return fiber.NewError(http.StatusNotFound, err.Error())
	case errors.Is(err, store.ErrNotFound):
		return fiber.NewError(http.StatusNotFound, "user not found")
	case errors.Is(err, ErrAlreadyTerminal):
		return fiber.NewError(http.StatusConflict, err.Error())
	case store.IsTransient(err):
		return fiber.NewError(http.StatusServiceUnavailable, "temporarily unavailable, retry later")
	default:
		return err
	}
}
