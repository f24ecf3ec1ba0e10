package auth

import (
	"errors"
	"net/http"

	"github.com/gofiber/fiber/v2"

	"github.com/consent-app/consent_api/internal/identity"
	"github.com/consent-app/consent_api/internal/validation"
)

// Handler exposes signup and login.
type Handler struct {
	svc *Service
}

// NewHandler constructs an auth handler.
func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

type signupRequest struct {
	Email     string `json:"email" validate:"required,email"`
	Password  string `json:"password" validate:"required,min=8"`
	FirstName string `json:"first_name" validate:"max=100"`
	LastName  string `json:"last_name" validate:"max=100"`
}

type loginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

// Signup registers a user and returns an access token.
func (h *Handler) Signup(c *fiber.Ctx) error {
	var req signupRequest
	if err := validation.BindJSON(c, &req); err != nil {
		return err
	}
	session, err := h.svc.Signup(c.UserContext(), identity.Credentials{
		Email:     req.Email,
		Password:  req.Password,
		FirstName: req.FirstName,
		LastName:  req.LastName,
	})
	if err != nil {
		if errors.Is(err, identity.ErrEmailTaken) {
			return fiber.NewError(http.StatusConflict, err.Error())
		}
		return err
	}
	return c.Status(http.StatusCreated).JSON(session)
}

// Login validates credentials and returns an access token.
func (h *Handler) Login(c *fiber.Ctx) error {
	var req loginRequest
	if err := validation.BindJSON(c, &req); err != nil {
		return err
	}
	session, err := h.svc.Login(c.UserContext(), req.Email, req.Password)
	if err != nil {
		if errors.Is(err, identity.ErrInvalidCredentials) {
			return fiber.NewError(http.StatusUnauthorized, err.Error())
		}
		return err
	}
	return c.Status(http.StatusOK).JSON(session)
}
