package middleware

import (
	"context"
	"net/http/httptest"
	"strings"
	"testing"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
)

type staticVerifier map[string]string

func (v staticVerifier) VerifyToken(_ context.Context, userID, token string) bool {
	return v[userID] == token
}

func TestCredentialAuth(t *testing.T) {
	app := fiber.New()
	app.Use(RequestID())
	app.Get("/me", CredentialAuth(staticVerifier{"7": "tok"}), func(c *fiber.Ctx) error {
		return c.SendString(UserID(c))
	})

	cases := []struct {
		token, user string
		want        int
	}{
		{"", "", fiber.StatusUnauthorized},
		{"bad", "7", fiber.StatusUnauthorized},
		{"tok", "7", fiber.StatusOK},
	}
	for _, tc := range cases {
		req := httptest.NewRequest(fiber.MethodGet, "/me", nil)
		req.Header.Set(tokenHeader, tc.token)
		req.Header.Set(userIDHeader, tc.user)
		resp, err := app.Test(req)
		if err != nil {
			t.Fatalf("app.Test: %v", err)
		}
		if resp.StatusCode != tc.want {
			t.Fatalf("token %q user %q: expected %d got %d", tc.token, tc.user, tc.want, resp.StatusCode)
		}
		if resp.Header.Get(requestIDHeader) == "" {
			t.Fatalf("expected request id header")
		}
	}
}

func TestOTPRateLimit(t *testing.T) {
	mr := miniredis.RunT(t)
	cache := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer cache.Close()

	app := fiber.New()
	app.Post("/User/UserReg", OTPRateLimit(cache, 2), func(c *fiber.Ctx) error {
		return c.SendStatus(fiber.StatusOK)
	})

	send := func() int {
		req := httptest.NewRequest(fiber.MethodPost, "/User/UserReg", strings.NewReader("mobile=9876543210"))
		req.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationForm)
		resp, err := app.Test(req)
		if err != nil {
			t.Fatalf("app.Test: %v", err)
		}
		return resp.StatusCode
	}
	for i := 0; i < 2; i++ {
		if got := send(); got != fiber.StatusOK {
			t.Fatalf("request %d: expected 200 got %d", i, got)
		}
	}
	if got := send(); got != fiber.StatusTooManyRequests {
		t.Fatalf("expected 429 got %d", got)
	}
}
