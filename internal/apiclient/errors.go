package apiclient

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// ValidationError reports bad input caught before a request is sent, or a
// response whose shape does not match its endpoint.
type ValidationError struct {
	Op     string
	Fields map[string]string
	Err    error
}

func (e *ValidationError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s: validation failed", e.Op)
	if len(e.Fields) > 0 {
		keys := make([]string, 0, len(e.Fields))
		for k := range e.Fields {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		parts := make([]string, 0, len(keys))
		for _, k := range keys {
			parts = append(parts, k+"="+e.Fields[k])
		}
		fmt.Fprintf(&b, " (%s)", strings.Join(parts, ", "))
	}
	if e.Err != nil {
		fmt.Fprintf(&b, ": %v", e.Err)
	}
	return b.String()
}

func (e *ValidationError) Unwrap() error { return e.Err }

// TransientError covers network failures, 5xx and rate limiting. Callers may
// retry on user action; the client never retries on its own.
type TransientError struct {
	Op         string
	StatusCode int
	Err        error
}

func (e *TransientError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s: transient failure (status %d): %v", e.Op, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("%s: transient failure: %v", e.Op, e.Err)
}

func (e *TransientError) Unwrap() error { return e.Err }

// NotFoundError reports an unknown job, session or asset identifier.
type NotFoundError struct {
	Op       string
	Resource string
	ID       string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s: %s %q not found", e.Op, e.Resource, e.ID)
}

// PreconditionError reports a call made in the wrong phase, such as fetching
// results of a job that has not completed.
type PreconditionError struct {
	Op     string
	Reason string
}

func (e *PreconditionError) Error() string {
	return fmt.Sprintf("%s: precondition failed: %s", e.Op, e.Reason)
}

// APIError is any other non-success response.
type APIError struct {
	Op         string
	StatusCode int
	Code       string
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s: %s (status %d): %s", e.Op, e.Code, e.StatusCode, e.Message)
}

func IsValidation(err error) bool {
	var e *ValidationError
	return errors.As(err, &e)
}

func IsTransient(err error) bool {
	var e *TransientError
	return errors.As(err, &e)
}

func IsNotFound(err error) bool {
	var e *NotFoundError
	return errors.As(err, &e)
}

func IsPrecondition(err error) bool {
	var e *PreconditionError
	return errors.As(err, &e)
}

// IsUnauthorized reports a 401 from the backend.
func IsUnauthorized(err error) bool {
	var e *APIError
	return errors.As(err, &e) && e.StatusCode == 401
}
