package middleware

import (
	"crypto/subtle"
	"strings"

	"github.com/gofiber/fiber/v2"
)

// AdminTokenHeader carries the shared secret for administrative and
// schedule-invoked endpoints.
const AdminTokenHeader = "X-Admin-Token"

// AdminTokenMiddleware authenticates requests with a static shared-secret
// header. The comparison is constant time; an unset secret rejects
// everything instead of opening the endpoints.
func AdminTokenMiddleware(secret string) fiber.Handler {
	expected := []byte(strings.TrimSpace(secret))
	return func(c *fiber.Ctx) error {
		if len(expected) == 0 {
			return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
				"error":   "admin_disabled",
				"message": "Admin token is not configured",
			})
		}
		got := []byte(strings.TrimSpace(c.Get(AdminTokenHeader)))
		if len(got) == 0 || subtle.ConstantTimeCompare(expected, got) != 1 {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error":   "unauthorized",
				"message": "Missing or invalid admin token",
			})
		}
		return c.Next()
	}
}
