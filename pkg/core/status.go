package core

// StepStatus represents where a step is in its lifecycle:
//
//	Pending → Validating → ValidationFailed
//	                     → Validated → Resolving → Resolved → Executing → Succeeded
//	                                                                    → Failed
//
// There is no retry; ValidationFailed, Succeeded and Failed are terminal.
type StepStatus int

const (
	StatusPending          StepStatus = iota // Constructed, not yet validated
	StatusValidating                         // Field schema validation in progress
	StatusValidationFailed                   // Validation produced errors
	StatusValidated                          // Fields validated
	StatusResolving                          // Placeholders being substituted
	StatusResolved                           // Ready to execute
	StatusExecuting                          // Effect in progress
	StatusSucceeded                          // Output recorded
	StatusFailed                             // Execution failed, exception path taken
	StatusSkipped                            // Never reached because an earlier step failed
)

var statusNames = map[StepStatus]string{
	StatusPending:          "pending",
	StatusValidating:       "validating",
	StatusValidationFailed: "validation_failed",
	StatusValidated:        "validated",
	StatusResolving:        "resolving",
	StatusResolved:         "resolved",
	StatusExecuting:        "executing",
	StatusSucceeded:        "succeeded",
	StatusFailed:           "failed",
	StatusSkipped:          "skipped",
}

// String returns the string representation of StepStatus
func (s StepStatus) String() string {
	if name, ok := statusNames[s]; ok {
		return name
	}
	return "unknown"
}

// MarshalText encodes the status by name in JSON reports
func (s StepStatus) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// IsTerminal returns true if the status is a final state
func (s StepStatus) IsTerminal() bool {
	switch s {
	case StatusValidationFailed, StatusSucceeded, StatusFailed, StatusSkipped:
		return true
	default:
		return false
	}
}

// IsSuccess returns true if the step completed successfully
func (s StepStatus) IsSuccess() bool {
	return s == StatusSucceeded
}

var transitions = map[StepStatus][]StepStatus{
	StatusPending:    {StatusValidating, StatusSkipped},
	StatusValidating: {StatusValidated, StatusValidationFailed},
	StatusValidated:  {StatusResolving, StatusValidating, StatusSkipped},
	StatusResolving:  {StatusResolved, StatusFailed},
	StatusResolved:   {StatusExecuting},
	StatusExecuting:  {StatusSucceeded, StatusFailed},
	// a failed validation can be re-attempted with the same or new data
	StatusValidationFailed: {StatusValidating},
}

// CanTransition reports whether a step may move from s to next.
func (s StepStatus) CanTransition(next StepStatus) bool {
	for _, allowed := range transitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// ErrorCategory classifies the type of error for better debugging and reporting
type ErrorCategory int

const (
	ErrCategoryNone       ErrorCategory = iota // No error
	ErrCategoryElement                         // Element or option not found
	ErrCategoryTimeout                         // Bounded wait expired
	ErrCategoryConnection                      // WebDriver server or HTTP endpoint unreachable
	ErrCategoryValue                           // Resolved field value has the wrong shape
	ErrCategoryBot                             // Sub-bot failure, cancellation, generic step failure
)

// String returns the string representation of ErrorCategory
func (c ErrorCategory) String() string {
	switch c {
	case ErrCategoryNone:
		return "none"
	case ErrCategoryElement:
		return "element"
	case ErrCategoryTimeout:
		return "timeout"
	case ErrCategoryConnection:
		return "connection"
	case ErrCategoryValue:
		return "value"
	case ErrCategoryBot:
		return "bot"
	default:
		return "unknown"
	}
}

// MarshalText encodes the category by name in JSON reports
func (c ErrorCategory) MarshalText() ([]byte, error) {
	return []byte(c.String()), nil
}
