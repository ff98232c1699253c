package middleware

import (
	"errors"

	"github.com/gofiber/fiber/v2"

	"github.com/competeiq/api/internal/auth"
	"github.com/competeiq/api/pkg/response"
)

// AuthMiddleware authenticates /api requests with bearer tokens.
type AuthMiddleware struct {
	authenticator *auth.Authenticator
}

// NewAuthMiddleware accepts Zitadel tokens only.
func NewAuthMiddleware(verifier auth.TokenVerifier) *AuthMiddleware {
	return &AuthMiddleware{authenticator: auth.NewAuthenticator(verifier, "")}
}

// NewAuthMiddlewareWithFallback accepts Zitadel tokens and tokens issued
// by this service.
func NewAuthMiddlewareWithFallback(verifier auth.TokenVerifier, jwtSecret string) *AuthMiddleware {
	return &AuthMiddleware{authenticator: auth.NewAuthenticator(verifier, jwtSecret)}
}

// NewLegacyAuthMiddleware accepts only tokens issued by this service.
func NewLegacyAuthMiddleware(jwtSecret string) *AuthMiddleware {
	return &AuthMiddleware{authenticator: auth.NewAuthenticator(nil, jwtSecret)}
}

func (m *AuthMiddleware) Authenticate() fiber.Handler {
	return func(c *fiber.Ctx) error {
		id, err := m.authenticator.Authenticate(c.Get("Authorization"))
		if err != nil {
			switch {
			case errors.Is(err, auth.ErrMissingToken):
				return response.Unauthorized(c, "Missing authorization header")
			case errors.Is(err, auth.ErrMalformed):
				return response.Unauthorized(c, "Invalid authorization header format")
			case errors.Is(err, auth.ErrNotConfigured):
				return response.Unauthorized(c, "Authentication not configured")
			}
			return response.Unauthorized(c, "Invalid or expired token")
		}
		setIdentity(c, id)
		return c.Next()
	}
}

func setIdentity(c *fiber.Ctx, id *auth.Identity) {
	c.Locals("userId", id.UserID)
	c.Locals("email", id.Email)
	c.Locals("name", id.Name)
	c.Locals("sessionId", id.SessionID)
}

// GetUserID extracts user ID from context
func GetUserID(c *fiber.Ctx) string {
	if userID, ok := c.Locals("userId").(string); ok {
		return userID
	}
	return ""
}

func GetUserEmail(c *fiber.Ctx) string {
	if email, ok := c.Locals("email").(string); ok {
		return email
	}
	return ""
}

func GetUserName(c *fiber.Ctx) string {
	if name, ok := c.Locals("name").(string); ok {
		return name
	}
	return ""
}

// GetSessionID returns the identity provider session behind the token, if
// any.
func GetSessionID(c *fiber.Ctx) string {
	if sid, ok := c.Locals("sessionId").(string); ok {
		return sid
	}
	return ""
}
