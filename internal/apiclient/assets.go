package apiclient

import (
	"context"

	"github.com/competeiq/api/internal/model"
)

// GenerateScript asks the backend for a marketing script.
func (c *Client) GenerateScript(ctx context.Context, analysisID string, style model.ScriptStyle, duration int) (string, error) {
	req := model.ScriptRequest{AnalysisID: analysisID, Style: style, Duration: duration}
	if err := c.checkInput("generate_script", &req); err != nil {
		return "", err
	}
	req.ApplyDefaults()

	var out model.ScriptResponse
	if err := c.post(ctx, "generate_script", "/api/generate-script", req, &out); err != nil {
		return "", err
	}
	return out.Script, nil
}

// GenerateImages asks the backend for images matching a script.
func (c *Client) GenerateImages(ctx context.Context, script, companyName string, style model.ScriptStyle) ([]model.GeneratedImage, error) {
	req := model.ImagesRequest{Script: script, CompanyName: companyName, Style: style}
	if err := c.checkInput("generate_images", &req); err != nil {
		return nil, err
	}
	req.ApplyDefaults()

	var out model.ImagesResponse
	if err := c.post(ctx, "generate_images", "/api/generate-images", req, &out); err != nil {
		return nil, err
	}
	return out.Images, nil
}

// GenerateAudio asks the backend to narrate a script and returns the audio URL.
func (c *Client) GenerateAudio(ctx context.Context, script string, voice model.Voice) (string, error) {
	req := model.AudioRequest{Script: script, Voice: voice}
	if err := c.checkInput("generate_audio", &req); err != nil {
		return "", err
	}
	req.ApplyDefaults()

	var out model.AudioResponse
	if err := c.post(ctx, "generate_audio", "/api/generate-audio", req, &out); err != nil {
		return "", err
	}
	return out.AudioURL, nil
}
