package core

import (
	"fmt"
	"strings"
)

// ExecutionError represents a structured step failure with category and details
type ExecutionError struct {
	Category   ErrorCategory
	Code       string         // Machine-readable code: element_not_found, wait_timeout, etc.
	Message    string         // Human-readable message
	Step       string         // Title of the failing step
	Screenshot string         // Path of the screenshot captured on failure
	Details    map[string]any // Additional context
	Cause      error          // Underlying error
}

// Error implements the error interface
func (e *ExecutionError) Error() string {
	var b strings.Builder
	if e.Step != "" {
		fmt.Fprintf(&b, "step %q: ", e.Step)
	}
	b.WriteString(e.Message)
	if e.Cause != nil {
		fmt.Fprintf(&b, ": %v", e.Cause)
	}
	if e.Screenshot != "" {
		fmt.Fprintf(&b, " (screenshot: %s)", e.Screenshot)
	}
	return b.String()
}

// Unwrap returns the underlying error for errors.Is/As support
func (e *ExecutionError) Unwrap() error {
	return e.Cause
}

// Is matches predefined errors by code, so copies made with the With*
// helpers still satisfy errors.Is(err, ErrElementNotFound).
func (e *ExecutionError) Is(target error) bool {
	t, ok := target.(*ExecutionError)
	return ok && t.Code != "" && t.Code == e.Code
}

func (e *ExecutionError) clone() *ExecutionError {
	c := *e
	return &c
}

// WithCause returns a copy of the error with the given cause
func (e *ExecutionError) WithCause(cause error) *ExecutionError {
	c := e.clone()
	c.Cause = cause
	return c
}

// WithMessage returns a copy of the error with a custom message
func (e *ExecutionError) WithMessage(msg string) *ExecutionError {
	c := e.clone()
	c.Message = msg
	return c
}

// WithStep returns a copy of the error attributed to the given step title
func (e *ExecutionError) WithStep(title string) *ExecutionError {
	c := e.clone()
	c.Step = title
	return c
}

// WithScreenshot returns a copy of the error carrying a screenshot path
func (e *ExecutionError) WithScreenshot(path string) *ExecutionError {
	c := e.clone()
	c.Screenshot = path
	return c
}

// WithDetails returns a copy of the error with additional details
func (e *ExecutionError) WithDetails(details map[string]any) *ExecutionError {
	merged := make(map[string]any, len(e.Details)+len(details))
	for k, v := range e.Details {
		merged[k] = v
	}
	for k, v := range details {
		merged[k] = v
	}
	c := e.clone()
	c.Details = merged
	return c
}

// Predefined errors
var (
	// Element errors
	ErrElementNotFound = &ExecutionError{
		Category: ErrCategoryElement,
		Code:     "element_not_found",
		Message:  "element not found",
	}
	ErrOptionNotFound = &ExecutionError{
		Category: ErrCategoryElement,
		Code:     "option_not_found",
		Message:  "option not found",
	}

	// Timeout errors
	ErrWaitTimeout = &ExecutionError{
		Category: ErrCategoryTimeout,
		Code:     "wait_timeout",
		Message:  "wait condition timed out",
	}

	// Value errors
	ErrNotSequence = &ExecutionError{
		Category: ErrCategoryValue,
		Code:     "not_sequence",
		Message:  "value is not a sequence",
	}
	ErrInvalidValue = &ExecutionError{
		Category: ErrCategoryValue,
		Code:     "invalid_value",
		Message:  "invalid field value",
	}
	ErrUnresolvable = &ExecutionError{
		Category: ErrCategoryValue,
		Code:     "unresolvable",
		Message:  "could not resolve placeholder",
	}

	// Connection errors
	ErrServerUnreachable = &ExecutionError{
		Category: ErrCategoryConnection,
		Code:     "server_unreachable",
		Message:  "could not connect to automation server",
	}
	ErrRequestFailed = &ExecutionError{
		Category: ErrCategoryConnection,
		Code:     "request_failed",
		Message:  "http request failed",
	}

	// Bot errors
	ErrSubBotFailed = &ExecutionError{
		Category: ErrCategoryBot,
		Code:     "sub_bot_failed",
		Message:  "sub-bot failed",
	}
	ErrCancelled = &ExecutionError{
		Category: ErrCategoryBot,
		Code:     "cancelled",
		Message:  "run cancelled",
	}
	ErrStepFailed = &ExecutionError{
		Category: ErrCategoryBot,
		Code:     "step_failed",
		Message:  "step failed",
	}
)

// NewExecutionError creates a new ExecutionError with the given parameters
func NewExecutionError(category ErrorCategory, code, message string) *ExecutionError {
	return &ExecutionError{
		Category: category,
		Code:     code,
		Message:  message,
	}
}

// StructuralError reports a bot document whose shape cannot be validated
// at all: a missing bot title, a non-sequence step list, or a step without
// a title. Parsing stops at the first one.
type StructuralError struct {
	Path    string // Location in the document, e.g. "steps[2]"
	Message string
}

func (e *StructuralError) Error() string {
	if e.Path == "" {
		return e.Message
	}
	return e.Path + ": " + e.Message
}

// NewStructuralError creates a StructuralError
func NewStructuralError(path, format string, args ...any) *StructuralError {
	return &StructuralError{Path: path, Message: fmt.Sprintf(format, args...)}
}
