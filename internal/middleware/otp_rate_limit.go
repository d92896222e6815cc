package middleware

import (
	"net/http"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
)

// OTPRateLimit limits OTP requests per mobile number (or IP when the form
// carries none) using Redis if available.
func OTPRateLimit(cache *redis.Client, maxPerMin int) fiber.Handler {
	if maxPerMin <= 0 {
		maxPerMin = 5
	}
	return func(c *fiber.Ctx) error {
		if cache == nil {
			return c.Next() // no-op without Redis
		}
		mobile := strings.TrimSpace(c.FormValue("mobile"))
		if mobile == "" {
			mobile = c.IP()
		}
		key := "rl:otp:" + mobile
		cnt, err := cache.Incr(c.UserContext(), key).Result()
		if err != nil {
			return c.Next() // fail-open on cache errors
		}
		if cnt == 1 {
			cache.Expire(c.UserContext(), key, time.Minute)
		}
		if cnt > int64(maxPerMin) {
			return fiber.NewError(http.StatusTooManyRequests, "too many OTP requests, try again later")
		}
		return c.Next()
	}
}
