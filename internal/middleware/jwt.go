package middleware

import (
	"net/http"
	"strings"

	"github.com/gofiber/fiber/v2"
)

const userIDLocal = "user_id"

// TokenVerifier resolves a bearer token to a user id.
type TokenVerifier interface {
	Verify(token string) (int64, error)
}

// JWTAuth rejects requests without a valid bearer token and stores the
// authenticated user id in the request locals.
func JWTAuth(verifier TokenVerifier) fiber.Handler {
	return func(c *fiber.Ctx) error {
		authz := c.Get(fiber.HeaderAuthorization)
		if len(authz) < len("Bearer ") || !strings.EqualFold(authz[:len("Bearer ")], "bearer ") {
			return fiber.NewError(http.StatusUnauthorized, "missing bearer token")
		}
		uid, err := verifier.Verify(strings.TrimSpace(authz[len("Bearer "):]))
		if err != nil {
			return fiber.NewError(http.StatusUnauthorized, "invalid token")
		}
		SetUserID(c, uid)
		return c.Next()
	}
}

// SetUserID stores the authenticated user id on the request.
func SetUserID(c *fiber.Ctx, id int64) {
	c.Locals(userIDLocal, id)
}

// UserID returns the authenticated user id, if any.
func UserID(c *fiber.Ctx) (int64, bool) {
	id, ok := c.Locals(userIDLocal).(int64)
	return id, ok && id > 0
}
