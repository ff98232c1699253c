package service

import "errors"

var (
	ErrJobNotFound          = errors.New("analysis not found")
	ErrJobNotCompleted      = errors.New("analysis not completed")
	ErrJobFailed            = errors.New("analysis failed")
	ErrAnalysisNotCompleted = errors.New("analysis must complete before generating assets")
	ErrSessionNotFound      = errors.New("session not found")
	ErrUnauthorized         = errors.New("unauthorized")
)
