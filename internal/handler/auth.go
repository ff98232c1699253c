package handler

import (
	"errors"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"

	"github.com/competeiq/api/internal/auth"
	"github.com/competeiq/api/internal/middleware"
	"github.com/competeiq/api/internal/model"
	"github.com/competeiq/api/internal/service"
	"github.com/competeiq/api/pkg/response"
)

// AuthHandler serves the login passthrough and ForwardAuth verification.
type AuthHandler struct {
	service       *service.AuthService
	authenticator *auth.Authenticator
	validator     *validator.Validate
}

func NewAuthHandler(svc *service.AuthService, authenticator *auth.Authenticator, v *validator.Validate) *AuthHandler {
	return &AuthHandler{
		service:       svc,
		authenticator: authenticator,
		validator:     v,
	}
}

// Login handles POST /auth/login
func (h *AuthHandler) Login(c *fiber.Ctx) error {
	var req model.LoginRequest
	if err := parseAndValidate(c, h.validator, &req); err != nil {
		return err
	}

	result, err := h.service.Login(c.UserContext(), &req)
	if err != nil {
		if errors.Is(err, service.ErrUnauthorized) {
			return response.Unauthorized(c, "Invalid email or password")
		}
		return response.ServiceError(c, err.Error())
	}
	return response.OK(c, result)
}

// Register handles POST /auth/register
func (h *AuthHandler) Register(c *fiber.Ctx) error {
	var req model.RegisterRequest
	if err := parseAndValidate(c, h.validator, &req); err != nil {
		return err
	}

	result, err := h.service.Register(c.UserContext(), &req)
	if err != nil {
		return response.ServiceError(c, err.Error())
	}
	return response.Created(c, result)
}

// Logout handles POST /auth/logout
func (h *AuthHandler) Logout(c *fiber.Ctx) error {
	if err := h.service.Logout(c.UserContext(), identity(c)); err != nil {
		return serviceError(c, err)
	}
	return response.OK(c, model.LogoutResponse{Success: true})
}

// User handles GET /auth/user
func (h *AuthHandler) User(c *fiber.Ctx) error {
	user, err := h.service.CurrentUser(c.UserContext(), identity(c))
	if err != nil {
		return serviceError(c, err)
	}
	return response.OK(c, model.UserResponse{User: *user})
}

// Verify handles GET /auth/verify, called by Traefik ForwardAuth.
// Returns 200 with X-User-* headers on success, 401 on failure.
func (h *AuthHandler) Verify(c *fiber.Ctx) error {
	if h.authenticator == nil {
		return c.SendStatus(fiber.StatusUnauthorized)
	}
	id, err := h.authenticator.Authenticate(c.Get(fiber.HeaderAuthorization))
	if err != nil {
		return c.SendStatus(fiber.StatusUnauthorized)
	}

	c.Set("X-User-Id", id.UserID)
	c.Set("X-User-Email", id.Email)
	if id.Name != "" {
		c.Set("X-User-Name", id.Name)
	}
	if id.SessionID != "" {
		c.Set("X-User-Session", id.SessionID)
	}
	return c.SendStatus(fiber.StatusOK)
}

func identity(c *fiber.Ctx) *auth.Identity {
	return &auth.Identity{
		UserID:    middleware.GetUserID(c),
		Email:     middleware.GetUserEmail(c),
		Name:      middleware.GetUserName(c),
		SessionID: middleware.GetSessionID(c),
	}
}
