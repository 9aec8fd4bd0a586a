package middleware

import (
	"crypto/subtle"

	"github.com/gofiber/fiber/v2"
)

// APIKeyAuth validates the X-API-Key header against the configured keys.
// With no keys configured the middleware is a no-op, which keeps local
// development friction-free.
func APIKeyAuth(keys []string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if len(keys) == 0 {
			return c.Next()
		}

		provided := c.Get("X-API-Key")
		if provided == "" {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"success": false,
				"error":   "missing API key",
			})
		}

		for _, key := range keys {
			if subtle.ConstantTimeCompare([]byte(provided), []byte(key)) == 1 {
				return c.Next()
			}
		}

		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
			"success": false,
			"error":   "invalid API key",
		})
	}
}
