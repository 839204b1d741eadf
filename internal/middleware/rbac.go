package middleware

import (
	"slices"
	"strings"

	"roof-crm/pkg/utils"

	"github.com/gofiber/fiber/v2"
)

// RequireRole lets the request through when the caller holds any of roles.
func RequireRole(skipAuth bool, roles ...string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if skipAuth {
			return c.Next()
		}

		claims, ok := c.Locals(utils.UserClaimsKey).(*utils.UserClaims)
		if !ok {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "Unauthorized",
			})
		}

		for _, held := range claims.Roles {
			if slices.Contains(roles, strings.ToLower(held)) {
				return c.Next()
			}
		}

		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{
			"error": "Forbidden: Insufficient permissions",
		})
	}
}
