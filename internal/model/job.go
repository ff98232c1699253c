package model

import (
	"encoding/json"
	"time"
)

// Job represents an analysis job tracked in Redis
type Job struct {
	ID          string          `json:"id"`
	Type        string          `json:"type"`
	Status      JobStatus       `json:"status"`
	Progress    int             `json:"progress"`
	CurrentStep string          `json:"currentStep"`
	Steps       []StepProgress  `json:"steps"`
	Error       *string         `json:"error,omitempty"`
	CompanyID   string          `json:"companyId"`
	UserID      string          `json:"userId"`
	Result      json.RawMessage `json:"result,omitempty"`
	CreatedAt   time.Time       `json:"createdAt"`
	StartedAt   *time.Time      `json:"startedAt,omitempty"`
	CompletedAt *time.Time      `json:"completedAt,omitempty"`
}

// Job types
const (
	JobTypeAnalysis = "analysis"
)

// CurrentStepUnknown is reported when no step has been touched yet.
const CurrentStepUnknown = "unknown"

// AnalysisJobPayload contains the data for an analysis task
type AnalysisJobPayload struct {
	AnalysisID string       `json:"analysisId"`
	CompanyID  string       `json:"companyId"`
	UserID     string       `json:"userId"`
	UserName   string       `json:"userName,omitempty"`
	Company    CompanyInput `json:"company"`
}

// Snapshot converts the stored job into the public progress shape.
func (j *Job) Snapshot() *ProgressResponse {
	steps := make([]StepProgress, len(j.Steps))
	copy(steps, j.Steps)
	current := j.CurrentStep
	if current == "" {
		current = CurrentStepUnknown
	}
	return &ProgressResponse{
		AnalysisID:  j.ID,
		CurrentStep: current,
		Progress:    j.Progress,
		Status:      j.Status,
		Steps:       steps,
		Error:       j.Error,
	}
}
