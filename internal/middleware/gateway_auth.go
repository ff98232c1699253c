package middleware

import (
	"github.com/gofiber/fiber/v2"

	"github.com/competeiq/api/internal/auth"
	"github.com/competeiq/api/pkg/response"
)

// GatewayAuthMiddleware trusts the X-User-* headers set by a ForwardAuth
// gateway in front of the service.
func GatewayAuthMiddleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		userID := c.Get("X-User-Id")
		if userID == "" {
			return response.Unauthorized(c, "Missing user identity headers")
		}
		setIdentity(c, &auth.Identity{
			UserID:    userID,
			Email:     c.Get("X-User-Email"),
			Name:      c.Get("X-User-Name"),
			SessionID: c.Get("X-User-Session"),
		})
		return c.Next()
	}
}
