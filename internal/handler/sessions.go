package handler

import (
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"

	"github.com/competeiq/api/internal/middleware"
	"github.com/competeiq/api/internal/model"
	"github.com/competeiq/api/internal/service"
	"github.com/competeiq/api/pkg/response"
)

type SessionHandler struct {
	service   *service.SessionService
	validator *validator.Validate
}

func NewSessionHandler(svc *service.SessionService, v *validator.Validate) *SessionHandler {
	return &SessionHandler{
		service:   svc,
		validator: v,
	}
}

// List handles GET /api/sessions
func (h *SessionHandler) List(c *fiber.Ctx) error {
	records, err := h.service.List(c.UserContext(), middleware.GetUserID(c))
	if err != nil {
		return serviceError(c, err)
	}
	return response.OK(c, model.SessionListResponse{Sessions: records})
}

// Create handles POST /api/sessions
func (h *SessionHandler) Create(c *fiber.Ctx) error {
	var req model.SessionCreateRequest
	if err := parseAndValidate(c, h.validator, &req); err != nil {
		return err
	}

	record, err := h.service.Create(c.UserContext(), middleware.GetUserID(c), &req)
	if err != nil {
		return serviceError(c, err)
	}
	return response.Created(c, record)
}

// Active handles GET /api/sessions/active
func (h *SessionHandler) Active(c *fiber.Ctx) error {
	record, err := h.service.GetActive(c.UserContext(), middleware.GetUserID(c))
	if err != nil {
		return serviceError(c, err)
	}
	return response.OK(c, record)
}

// Update handles PUT /api/sessions/:id
func (h *SessionHandler) Update(c *fiber.Ctx) error {
	var req model.SessionUpdateRequest
	if err := parseAndValidate(c, h.validator, &req); err != nil {
		return err
	}

	record, err := h.service.Update(c.UserContext(), middleware.GetUserID(c), c.Params("id"), &req)
	if err != nil {
		return serviceError(c, err)
	}
	return response.OK(c, record)
}

// Activate handles POST /api/sessions/:id/activate
func (h *SessionHandler) Activate(c *fiber.Ctx) error {
	record, err := h.service.SetActive(c.UserContext(), middleware.GetUserID(c), c.Params("id"))
	if err != nil {
		return serviceError(c, err)
	}
	return response.OK(c, record)
}

// Delete handles DELETE /api/sessions/:id
func (h *SessionHandler) Delete(c *fiber.Ctx) error {
	if err := h.service.Delete(c.UserContext(), middleware.GetUserID(c), c.Params("id")); err != nil {
		return serviceError(c, err)
	}
	return response.OK(c, fiber.Map{"success": true})
}
