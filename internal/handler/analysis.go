package handler

import (
	"fmt"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"

	"github.com/competeiq/api/internal/middleware"
	"github.com/competeiq/api/internal/model"
	"github.com/competeiq/api/internal/service"
	"github.com/competeiq/api/pkg/response"
)

type AnalysisHandler struct {
	service   *service.AnalysisService
	export    *service.ExportService
	validator *validator.Validate
}

func NewAnalysisHandler(svc *service.AnalysisService, export *service.ExportService, v *validator.Validate) *AnalysisHandler {
	return &AnalysisHandler{
		service:   svc,
		export:    export,
		validator: v,
	}
}

// Start handles POST /api/analyze-company
func (h *AnalysisHandler) Start(c *fiber.Ctx) error {
	var req model.AnalyzeCompanyRequest
	if err := parseAndValidate(c, h.validator, &req); err != nil {
		return err
	}
	if req.UserName == "" {
		req.UserName = middleware.GetUserName(c)
	}

	result, err := h.service.Start(c.UserContext(), middleware.GetUserID(c), &req)
	if err != nil {
		return response.ServiceError(c, err.Error())
	}

	return response.Accepted(c, result)
}

// Progress handles GET /api/analysis/:id/progress
func (h *AnalysisHandler) Progress(c *fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return response.ValidationError(c, "Analysis ID is required", nil)
	}

	result, err := h.service.GetProgress(c.UserContext(), id)
	if err != nil {
		return serviceError(c, err)
	}

	return response.OK(c, result)
}

// Result handles GET /api/analysis/:id
func (h *AnalysisHandler) Result(c *fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return response.ValidationError(c, "Analysis ID is required", nil)
	}

	result, err := h.service.GetResult(c.UserContext(), id)
	if err != nil {
		return serviceError(c, err)
	}

	return response.OK(c, result)
}

// Export handles GET /api/analysis/:id/export
func (h *AnalysisHandler) Export(c *fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return response.ValidationError(c, "Analysis ID is required", nil)
	}

	data, filename, err := h.export.ExportAnalysis(c.UserContext(), id)
	if err != nil {
		return serviceError(c, err)
	}

	c.Set(fiber.HeaderContentType, service.XLSXContentType)
	c.Set(fiber.HeaderContentDisposition, fmt.Sprintf(`attachment; filename="%s"`, filename))
	return c.Send(data)
}
