package core

import (
	"time"
)

// StepResult captures the outcome of executing a single step
type StepResult struct {
	// Identity
	Title  string `json:"title"`
	Action string `json:"action"`
	Index  int    `json:"index"` // 0-based position in its sequence

	// Status
	Status   StepStatus    `json:"status"`
	Category ErrorCategory `json:"errorCategory,omitempty"`

	// Timing
	StartTime time.Time     `json:"startTime"`
	Duration  time.Duration `json:"duration"`

	// Output recorded in the context under Title
	Output map[string]any `json:"output,omitempty"`

	// Error details
	Error string `json:"error,omitempty"`

	// Debug artifacts
	Attachments []Attachment `json:"attachments,omitempty"`

	// Steps run inside this one: nested steps of control-flow actions and
	// the top-level steps of a sub-bot
	Steps []StepResult `json:"steps,omitempty"`
}

// BotResult captures the complete outcome of performing a bot
type BotResult struct {
	// Identity
	RunID    string `json:"runId"`
	Title    string `json:"title"`
	FilePath string `json:"filePath,omitempty"`

	// Status (aggregated from steps)
	Status StepStatus `json:"status"`

	// Timing
	StartTime time.Time     `json:"startTime"`
	Duration  time.Duration `json:"duration"`

	// Results
	Steps          []StepResult `json:"steps"`
	ExceptionSteps []StepResult `json:"exceptionSteps,omitempty"` // Run when a step fails

	// Final execution context
	Context map[string]any `json:"context,omitempty"`

	// Summary (computed)
	TotalSteps     int `json:"totalSteps"`
	SucceededSteps int `json:"succeededSteps"`
	FailedSteps    int `json:"failedSteps"`
	SkippedSteps   int `json:"skippedSteps"`

	// Error info (if the bot failed)
	Error      string `json:"error,omitempty"`
	FailedStep string `json:"failedStep,omitempty"`
}

// ComputeSummary calculates step counts from the Steps slice
func (b *BotResult) ComputeSummary() {
	b.TotalSteps = len(b.Steps)
	b.SucceededSteps = 0
	b.FailedSteps = 0
	b.SkippedSteps = 0

	for _, step := range b.Steps {
		switch step.Status {
		case StatusSucceeded:
			b.SucceededSteps++
		case StatusFailed, StatusValidationFailed:
			b.FailedSteps++
		case StatusSkipped:
			b.SkippedSteps++
		}
	}
}

// AggregateStatus determines the bot status from step results.
// Exception step outcomes never affect it.
func (b *BotResult) AggregateStatus() StepStatus {
	for _, step := range b.Steps {
		if step.Status == StatusFailed || step.Status == StatusValidationFailed {
			return StatusFailed
		}
	}
	return StatusSucceeded
}
