package model

import "time"

// SessionRecord is a saved workflow stored server-side. At most one record
// per user has IsActive set.
type SessionRecord struct {
	ID           string          `json:"id" validate:"required"`
	UserID       string          `json:"user_id"`
	SessionName  string          `json:"session_name"`
	CompanyData  *CompanyInput   `json:"company_data,omitempty"`
	AnalysisData *AnalysisResult `json:"analysis_data,omitempty"`
	AnalysisID   string          `json:"analysis_id,omitempty"`
	AppState     AppState        `json:"app_state" validate:"required"`
	LastAccessed time.Time       `json:"last_accessed"`
	IsActive     bool            `json:"is_active"`
	CreatedAt    time.Time       `json:"created_at"`
}

// SessionCreateRequest is the body of POST /api/sessions.
type SessionCreateRequest struct {
	SessionName  string          `json:"session_name" validate:"required,notblank,max=120"`
	CompanyData  *CompanyInput   `json:"company_data,omitempty"`
	AnalysisData *AnalysisResult `json:"analysis_data,omitempty"`
	AnalysisID   string          `json:"analysis_id,omitempty"`
	AppState     AppState        `json:"app_state" validate:"required,oneof=input analyzing results generating sessions"`
}

// SessionUpdateRequest is the body of PUT /api/sessions/:id. Nil fields are
// left untouched.
type SessionUpdateRequest struct {
	SessionName  *string         `json:"session_name,omitempty" validate:"omitempty,notblank,max=120"`
	CompanyData  *CompanyInput   `json:"company_data,omitempty"`
	AnalysisData *AnalysisResult `json:"analysis_data,omitempty"`
	AnalysisID   *string         `json:"analysis_id,omitempty"`
	AppState     *AppState       `json:"app_state,omitempty" validate:"omitempty,oneof=input analyzing results generating sessions"`
}

type SessionListResponse struct {
	Sessions []SessionRecord `json:"sessions" validate:"dive"`
}
