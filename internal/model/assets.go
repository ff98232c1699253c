package model

import "time"

// Asset generation constants
const (
	AssetTargetDuration = 30 // seconds
	DefaultScriptLength = 30 // seconds
	WordsPerSecond      = 2.5
)

// ScriptRequest is the body of POST /api/generate-script.
type ScriptRequest struct {
	AnalysisID string      `json:"analysis_id" validate:"required,notblank"`
	Style      ScriptStyle `json:"style,omitempty" validate:"omitempty,oneof=professional casual technical"`
	Duration   int         `json:"duration,omitempty" validate:"omitempty,min=15,max=60"`
}

// ApplyDefaults fills the optional fields.
func (r *ScriptRequest) ApplyDefaults() {
	if r.Style == "" {
		r.Style = StyleProfessional
	}
	if r.Duration == 0 {
		r.Duration = DefaultScriptLength
	}
}

type ScriptResponse struct {
	Script  string `json:"script" validate:"required,notblank"`
	AssetID string `json:"asset_id"`
}

// ImagesRequest is the body of POST /api/generate-images.
type ImagesRequest struct {
	Script      string      `json:"script" validate:"required,notblank"`
	CompanyName string      `json:"company_name" validate:"required,notblank"`
	Style       ScriptStyle `json:"style,omitempty" validate:"omitempty,oneof=professional casual technical"`
}

func (r *ImagesRequest) ApplyDefaults() {
	if r.Style == "" {
		r.Style = StyleProfessional
	}
}

// GeneratedImage is positioned by Timestamp, in seconds within the
// AssetTargetDuration.
type GeneratedImage struct {
	URL       string  `json:"url" validate:"required"`
	Prompt    string  `json:"prompt"`
	Timestamp float64 `json:"timestamp" validate:"gte=0"`
	Source    string  `json:"source,omitempty"`
}

type ImagesResponse struct {
	Images []GeneratedImage `json:"images" validate:"required,dive"`
}

// AudioRequest is the body of POST /api/generate-audio.
type AudioRequest struct {
	Script string `json:"script" validate:"required,notblank"`
	Voice  Voice  `json:"voice,omitempty" validate:"omitempty,oneof=professional_male professional_female friendly"`
}

func (r *AudioRequest) ApplyDefaults() {
	if r.Voice == "" {
		r.Voice = VoiceProfessionalMale
	}
}

type AudioResponse struct {
	AudioURL string `json:"audio_url" validate:"required"`
}

// MarketingAsset is the stored record of a generated script.
type MarketingAsset struct {
	ID            string      `json:"id"`
	CompanyID     string      `json:"company_id"`
	AnalysisID    string      `json:"analysis_id"`
	UserID        string      `json:"user_id"`
	ScriptContent string      `json:"script_content"`
	Duration      int         `json:"duration"`
	Style         ScriptStyle `json:"style"`
	Status        string      `json:"status"`
	CreatedAt     time.Time   `json:"createdAt"`
	UpdatedAt     time.Time   `json:"updatedAt"`
}
