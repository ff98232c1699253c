package workflow

import (
	"errors"
	"fmt"

	"github.com/competeiq/api/internal/apiclient"
	"github.com/competeiq/api/internal/model"
	"github.com/competeiq/api/internal/pipeline"
	"github.com/competeiq/api/internal/poller"
)

// ErrClosed is returned by every action after Close.
var ErrClosed = errors.New("workflow is closed")

// TransitionError reports an action that is not allowed in the current state.
type TransitionError struct {
	Action string
	From   model.AppState
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("cannot %s while in %s state", e.Action, e.From)
}

// JobFailedError reports an analysis job that ended with status failed.
type JobFailedError struct {
	JobID   string
	Message string
}

func (e *JobFailedError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("analysis %s failed", e.JobID)
	}
	return fmt.Sprintf("analysis %s failed: %s", e.JobID, e.Message)
}

// Describe turns an error into the single message shown to the user.
func Describe(err error) string {
	if err == nil {
		return ""
	}

	var jobErr *JobFailedError
	var genErr *pipeline.GenerationError
	switch {
	case errors.As(err, &jobErr):
		if jobErr.Message != "" {
			return "Analysis failed: " + jobErr.Message
		}
		return "Analysis failed. Please try again."
	case errors.As(err, &genErr):
		return fmt.Sprintf("Failed to generate the %s. Please try again.", genErr.Stage)
	case errors.Is(err, poller.ErrInvalidSnapshots):
		return "The analysis reported inconsistent progress. Please try again."
	case apiclient.IsValidation(err):
		return "Please fill in the company name, website, product description and market category."
	case apiclient.IsNotFound(err):
		return "The analysis could not be found. Please start a new one."
	case apiclient.IsPrecondition(err):
		return "The analysis is not ready yet."
	case apiclient.IsUnauthorized(err):
		return "Your session has expired. Please log in again."
	case apiclient.IsTransient(err):
		return "The service is temporarily unavailable. Please try again."
	}
	return "Something went wrong: " + err.Error()
}
