package model

// WebSocket message types
const (
	WSMessageTypeProgress = "progress"
	WSMessageTypeComplete = "complete"
	WSMessageTypeError    = "error"
	WSMessageTypePing     = "ping"
	WSMessageTypePong     = "pong"
)

// WSMessage represents a generic WebSocket message
type WSMessage struct {
	Type string `json:"type"`
}

// WSProgressMessage is pushed whenever a step changes status
type WSProgressMessage struct {
	Type       string    `json:"type"`
	AnalysisID string    `json:"analysis_id"`
	Step       StepName  `json:"step"`
	Progress   int       `json:"progress"`
	Status     JobStatus `json:"status"`
	Overall    int       `json:"overall"`
	Message    string    `json:"message,omitempty"`
}

// WSCompleteMessage represents job completion
type WSCompleteMessage struct {
	Type       string      `json:"type"`
	AnalysisID string      `json:"analysis_id"`
	Result     interface{} `json:"result"`
}

// WSErrorMessage represents an error
type WSErrorMessage struct {
	Type       string  `json:"type"`
	AnalysisID string  `json:"analysis_id"`
	Error      WSError `json:"error"`
}

// WSError represents error details
type WSError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}
