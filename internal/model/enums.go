package model

// JobStatus is the lifecycle state of an analysis job or one of its steps.
type JobStatus string

const (
	JobStatusPending    JobStatus = "pending"
	JobStatusInProgress JobStatus = "in_progress"
	JobStatusCompleted  JobStatus = "completed"
	JobStatusFailed     JobStatus = "failed"
)

var ValidJobStatuses = []JobStatus{
	JobStatusPending, JobStatusInProgress, JobStatusCompleted, JobStatusFailed,
}

// IsTerminal reports whether no further progress can be observed.
func (s JobStatus) IsTerminal() bool {
	return s == JobStatusCompleted || s == JobStatusFailed
}

// Rank orders statuses along the only allowed direction of travel.
// Unknown statuses rank -1.
func (s JobStatus) Rank() int {
	switch s {
	case JobStatusPending:
		return 0
	case JobStatusInProgress:
		return 1
	case JobStatusCompleted, JobStatusFailed:
		return 2
	}
	return -1
}

// Step names, in catalog order.
type StepName string

const (
	StepWebScraping        StepName = "web_scraping"
	StepCompetitorResearch StepName = "competitor_research"
	StepTrendPrediction    StepName = "trend_prediction"
	StepWeaknessAnalysis   StepName = "weakness_analysis"
	StepMarketPositioning  StepName = "market_positioning"
)

// Script styles
type ScriptStyle string

const (
	StyleProfessional ScriptStyle = "professional"
	StyleCasual       ScriptStyle = "casual"
	StyleTechnical    ScriptStyle = "technical"
)

var ValidStyles = []ScriptStyle{StyleProfessional, StyleCasual, StyleTechnical}

// Narration voices
type Voice string

const (
	VoiceProfessionalMale   Voice = "professional_male"
	VoiceProfessionalFemale Voice = "professional_female"
	VoiceFriendly           Voice = "friendly"
)

var ValidVoices = []Voice{VoiceProfessionalMale, VoiceProfessionalFemale, VoiceFriendly}

// Image sources
const (
	ImageSourceLLM  = "llm"
	ImageSourceMock = "mock"
)

// Marketing asset statuses
const (
	AssetStatusScriptGenerated = "script_generated"
	AssetStatusImagesGenerated = "images_generated"
	AssetStatusAudioGenerated  = "audio_generated"
)

// AppState is a state of the client workflow.
type AppState string

const (
	AppStateInput      AppState = "input"
	AppStateAnalyzing  AppState = "analyzing"
	AppStateResults    AppState = "results"
	AppStateGenerating AppState = "generating"
	AppStateSessions   AppState = "sessions"
)

var ValidAppStates = []AppState{
	AppStateInput, AppStateAnalyzing, AppStateResults, AppStateGenerating, AppStateSessions,
}
