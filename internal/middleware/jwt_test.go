package middleware

import (
	"errors"
	"net/http/httptest"
	"strconv"
	"testing"

	"github.com/gofiber/fiber/v2"
)

type staticVerifier map[string]int64

func (v staticVerifier) Verify(token string) (int64, error) {
	if id, ok := v[token]; ok {
		return id, nil
	}
	return 0, errors.New("bad token")
}

func TestJWTAuth(t *testing.T) {
	app := fiber.New()
	app.Use(JWTAuth(staticVerifier{"good": 9}))
	app.Get("/me", func(c *fiber.Ctx) error {
		uid, _ := UserID(c)
		return c.SendString(strconv.FormatInt(uid, 10))
	})

	cases := []struct {
		header string
		want   int
	}{
		{"", fiber.StatusUnauthorized},
		{"Basic abc", fiber.StatusUnauthorized},
		{"Bearer bad", fiber.StatusUnauthorized},
		{"Bearer good", fiber.StatusOK},
		{"bearer good", fiber.StatusOK},
	}
	for _, tc := range cases {
		req := httptest.NewRequest(fiber.MethodGet, "/me", nil)
		if tc.header != "" {
			req.Header.Set(fiber.HeaderAuthorization, tc.header)
		}
		resp, err := app.Test(req)
		if err != nil {
			t.Fatalf("app.Test: %v", err)
		}
		if resp.StatusCode != tc.want {
			t.Fatalf("header %q: expected %d got %d", tc.header, tc.want, resp.StatusCode)
		}
	}
}
