package middleware

import (
	"context"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

type RequestIDContextKey string

const RequestIDKey RequestIDContextKey = "request_id"

// RequestIDMiddleware propagates X-Request-ID, minting one when absent.
func RequestIDMiddleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		id := c.Get("X-Request-ID")
		if id == "" {
			id = uuid.NewString()
		}
		c.Set("X-Request-ID", id)
		c.SetUserContext(context.WithValue(c.UserContext(), RequestIDKey, id))
		return c.Next()
	}
}
