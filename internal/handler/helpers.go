package handler

import (
	"errors"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"

	"github.com/competeiq/api/internal/service"
	"github.com/competeiq/api/pkg/response"
)

// formatValidationErrors formats validator errors for response
func formatValidationErrors(err error) interface{} {
	var validationErrors validator.ValidationErrors
	if errors.As(err, &validationErrors) {
		fields := make(map[string]string)
		for _, e := range validationErrors {
			fields[e.Field()] = e.Tag()
		}
		return fields
	}
	return nil
}

// parseAndValidate decodes the body into req and validates it.
func parseAndValidate(c *fiber.Ctx, v *validator.Validate, req interface{}) error {
	if err := c.BodyParser(req); err != nil {
		return response.ValidationError(c, "Invalid request body", nil)
	}
	if err := v.Struct(req); err != nil {
		return response.ValidationError(c, "Validation failed", formatValidationErrors(err))
	}
	return nil
}

// serviceError maps service sentinels onto the error envelope.
func serviceError(c *fiber.Ctx, err error) error {
	switch {
	case errors.Is(err, service.ErrJobNotFound):
		return response.NotFound(c, "Analysis not found")
	case errors.Is(err, service.ErrSessionNotFound):
		return response.NotFound(c, "Session not found")
	case errors.Is(err, service.ErrJobNotCompleted):
		return response.NotReady(c, "Analysis not completed yet")
	case errors.Is(err, service.ErrAnalysisNotCompleted):
		return response.NotReady(c, err.Error())
	case errors.Is(err, service.ErrJobFailed):
		return response.JobFailed(c, err.Error())
	case errors.Is(err, service.ErrUnauthorized):
		return response.Unauthorized(c, "Invalid or expired session")
	}
	return response.ServiceError(c, err.Error())
}
