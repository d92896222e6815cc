package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/gofiber/fiber/v2"
)

const (
	tokenHeader  = "token"
	userIDHeader = "User-ID"
	userIDLocal  = "user_id"
)

// TokenVerifier reports whether token was issued to userID.
type TokenVerifier interface {
	VerifyToken(ctx context.Context, userID, token string) bool
}

// CredentialAuth checks the opaque token and User-ID headers the API uses
// instead of bearer tokens.
func CredentialAuth(v TokenVerifier) fiber.Handler {
	return func(c *fiber.Ctx) error {
		token := strings.TrimSpace(c.Get(tokenHeader))
		userID := strings.TrimSpace(c.Get(userIDHeader))
		if token == "" || userID == "" {
			return fiber.NewError(http.StatusUnauthorized, "missing credentials")
		}
		if !v.VerifyToken(c.UserContext(), userID, token) {
			return fiber.NewError(http.StatusUnauthorized, "invalid token")
		}
		c.Locals(userIDLocal, userID)
		return c.Next()
	}
}

// UserID returns the caller resolved by CredentialAuth.
func UserID(c *fiber.Ctx) string {
	uid, _ := c.Locals(userIDLocal).(string)
	return uid
}
