package types

import "fmt"

// ValidationError is a local input problem detected before any network call
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

// NewValidationError creates a ValidationError with a formatted message
func NewValidationError(format string, args ...interface{}) *ValidationError {
	return &ValidationError{Message: fmt.Sprintf(format, args...)}
}

// RequestError is a failed backend call
type RequestError struct {
	Op         string
	StatusCode int
	Detail     string
	Err        error
}

func (e *RequestError) Error() string {
	if e.Detail != "" {
		return e.Detail
	}
	if e.Err != nil {
		return fmt.Sprintf("%s failed: %v", e.Op, e.Err)
	}
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s failed (HTTP %d)", e.Op, e.StatusCode)
	}
	return e.Op + " failed"
}

func (e *RequestError) Unwrap() error {
	return e.Err
}

// JobFailure is a terminal "failed" status reported by the backend
type JobFailure struct {
	TaskID string
	Reason string
}

func (e *JobFailure) Error() string {
	return fmt.Sprintf("task %s failed: %s", e.TaskID, e.Reason)
}
