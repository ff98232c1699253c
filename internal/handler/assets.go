package handler

import (
	"errors"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"

	"github.com/competeiq/api/internal/middleware"
	"github.com/competeiq/api/internal/model"
	"github.com/competeiq/api/internal/service"
	"github.com/competeiq/api/pkg/response"
)

type AssetHandler struct {
	service   *service.AssetService
	validator *validator.Validate
}

func NewAssetHandler(svc *service.AssetService, v *validator.Validate) *AssetHandler {
	return &AssetHandler{
		service:   svc,
		validator: v,
	}
}

// Script handles POST /api/generate-script
func (h *AssetHandler) Script(c *fiber.Ctx) error {
	var req model.ScriptRequest
	if err := parseAndValidate(c, h.validator, &req); err != nil {
		return err
	}

	result, err := h.service.GenerateScript(c.UserContext(), middleware.GetUserID(c), &req)
	if err != nil {
		return assetError(c, err)
	}

	return response.OK(c, result)
}

// Images handles POST /api/generate-images
func (h *AssetHandler) Images(c *fiber.Ctx) error {
	var req model.ImagesRequest
	if err := parseAndValidate(c, h.validator, &req); err != nil {
		return err
	}

	result, err := h.service.GenerateImages(c.UserContext(), &req)
	if err != nil {
		return assetError(c, err)
	}

	return response.OK(c, result)
}

// Audio handles POST /api/generate-audio
func (h *AssetHandler) Audio(c *fiber.Ctx) error {
	var req model.AudioRequest
	if err := parseAndValidate(c, h.validator, &req); err != nil {
		return err
	}

	result, err := h.service.GenerateAudio(c.UserContext(), &req)
	if err != nil {
		return assetError(c, err)
	}

	return response.OK(c, result)
}

// assetError reports generation failures as AI errors.
func assetError(c *fiber.Ctx, err error) error {
	if errors.Is(err, service.ErrJobNotFound) || errors.Is(err, service.ErrAnalysisNotCompleted) {
		return serviceError(c, err)
	}
	return response.AIError(c, err.Error())
}
