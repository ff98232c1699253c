package model

// Competitor is one entry of the competitor analysis.
type Competitor struct {
	Name        string   `json:"name" validate:"required"`
	Website     string   `json:"website"`
	MarketShare float64  `json:"market_share" validate:"gte=0,lte=100"`
	Strengths   []string `json:"strengths"`
	Weaknesses  []string `json:"weaknesses"`
}

// MarketTrend is one identified trend.
type MarketTrend struct {
	Trend      string  `json:"trend" validate:"required"`
	Impact     string  `json:"impact"`
	Confidence float64 `json:"confidence" validate:"gte=0,lte=100"`
}

// CompanySummary is the company block embedded in an analysis result.
type CompanySummary struct {
	Name       string `json:"name"`
	WebsiteURL string `json:"website_url"`
}

// AnalysisResult is the terminal payload of a completed analysis job.
type AnalysisResult struct {
	AnalysisID            string          `json:"analysis_id,omitempty"`
	Company               *CompanySummary `json:"company,omitempty"`
	Competitors           []Competitor    `json:"competitors" validate:"dive"`
	MarketTrends          []MarketTrend   `json:"market_trends" validate:"dive"`
	MarketGaps            []string        `json:"market_gaps"`
	PositioningStrategy   string          `json:"positioning_strategy"`
	CompetitiveAdvantages []string        `json:"competitive_advantages"`
}

// StartAnalysisResponse is returned by POST /api/analyze-company.
type StartAnalysisResponse struct {
	AnalysisID        string `json:"analysis_id" validate:"required"`
	CompanyID         string `json:"company_id"`
	Status            string `json:"status" validate:"required"`
	EstimatedDuration int    `json:"estimated_duration" validate:"gte=0"`
}

// StepProgress is the status of one pipeline phase.
type StepProgress struct {
	Name     StepName  `json:"name" validate:"required"`
	Status   JobStatus `json:"status" validate:"required,oneof=pending in_progress completed failed"`
	Progress int       `json:"progress" validate:"gte=0,lte=100"`
	Agent    string    `json:"agent,omitempty"`
}

// ProgressResponse is one job snapshot, as returned by
// GET /api/analysis/:id/progress. Each snapshot is ground truth, not a delta.
type ProgressResponse struct {
	AnalysisID  string         `json:"analysis_id" validate:"required"`
	CurrentStep string         `json:"current_step"`
	Progress    int            `json:"progress" validate:"gte=0,lte=100"`
	Status      JobStatus      `json:"status" validate:"required,oneof=pending in_progress completed failed"`
	Steps       []StepProgress `json:"steps" validate:"dive"`
	Error       *string        `json:"error,omitempty"`
}
