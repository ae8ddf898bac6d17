// Package report writes JSON run reports that update while bots run.
//
// Layout of a report directory:
//   - report.json: run index (small, rewritten on every change, mutex-protected)
//   - bots/bot-XXX.json: per-bot detail with the full step tree (one writer per bot)
//
// The index carries an UpdateSeq per bot so readers can poll report.json and
// fetch only the bot files that changed.
package report

import (
	"time"

	"github.com/devicelab-dev/botrunner/pkg/core"
)

// Version is the report schema version.
const Version = "1.0.0"

// Status is the state of a bot or step in the report.
type Status string

// Status values.
const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusSucceeded Status = "succeeded"
	StatusFailed    Status = "failed"
	StatusSkipped   Status = "skipped"
)

// IsTerminal returns true if the status is a final state.
func (s Status) IsTerminal() bool {
	return s == StatusSucceeded || s == StatusFailed || s == StatusSkipped
}

// statusOf maps an execution status onto the report vocabulary.
func statusOf(s core.StepStatus) Status {
	switch s {
	case core.StatusSucceeded:
		return StatusSucceeded
	case core.StatusFailed, core.StatusValidationFailed:
		return StatusFailed
	case core.StatusSkipped:
		return StatusSkipped
	case core.StatusPending, core.StatusValidated:
		return StatusPending
	default:
		return StatusRunning
	}
}

// ============================================================================
// INDEX (report.json)
// ============================================================================

// Index is the main report file.
type Index struct {
	Version     string     `json:"version"`
	UpdateSeq   uint64     `json:"updateSeq"`
	Status      Status     `json:"status"`
	StartTime   time.Time  `json:"startTime"`
	EndTime     *time.Time `json:"endTime,omitempty"`
	LastUpdated time.Time  `json:"lastUpdated"`
	Runner      RunnerInfo `json:"runner"`
	Summary     Summary    `json:"summary"`
	Bots        []BotEntry `json:"bots"`
}

// RunnerInfo describes the botrunner build that produced the report.
type RunnerInfo struct {
	Version string `json:"version"`
	Driver  string `json:"driver"` // webdriver, mock
}

// Summary contains aggregated bot counts.
type Summary struct {
	Total     int `json:"total"`
	Succeeded int `json:"succeeded"`
	Failed    int `json:"failed"`
	Skipped   int `json:"skipped"`
	Running   int `json:"running"`
	Pending   int `json:"pending"`
}

// BotEntry is the index entry for a bot.
type BotEntry struct {
	Index       int         `json:"index"`
	ID          string      `json:"id"`
	RunID       string      `json:"runId,omitempty"`
	Title       string      `json:"title"`
	SourceFile  string      `json:"sourceFile,omitempty"`
	DataFile    string      `json:"dataFile"`
	Status      Status      `json:"status"`
	UpdateSeq   uint64      `json:"updateSeq"`
	StartTime   *time.Time  `json:"startTime,omitempty"`
	EndTime     *time.Time  `json:"endTime,omitempty"`
	Duration    *int64      `json:"duration,omitempty"` // milliseconds
	LastUpdated *time.Time  `json:"lastUpdated,omitempty"`
	Steps       StepSummary `json:"steps"`
	Error       *string     `json:"error,omitempty"`
}

// StepSummary contains top-level step counts for a bot.
type StepSummary struct {
	Total     int `json:"total"`
	Succeeded int `json:"succeeded"`
	Failed    int `json:"failed"`
	Skipped   int `json:"skipped"`
	Pending   int `json:"pending"`
}

// ============================================================================
// BOT DETAIL (bots/bot-XXX.json)
// ============================================================================

// BotDetail contains the full outcome of one bot.
type BotDetail struct {
	ID             string         `json:"id"`
	RunID          string         `json:"runId,omitempty"`
	Title          string         `json:"title"`
	SourceFile     string         `json:"sourceFile,omitempty"`
	Status         Status         `json:"status"`
	StartTime      time.Time      `json:"startTime"`
	EndTime        *time.Time     `json:"endTime,omitempty"`
	Duration       *int64         `json:"duration,omitempty"` // milliseconds
	Steps          []Step         `json:"steps"`
	ExceptionSteps []Step         `json:"exceptionSteps,omitempty"`
	Context        map[string]any `json:"context,omitempty"`
	FailedStep     string         `json:"failedStep,omitempty"`
	Error          string         `json:"error,omitempty"`
}

// Step represents a single step execution. Steps holds the nested steps of
// control-flow actions and the steps of a sub-bot.
type Step struct {
	Index      int            `json:"index"`
	Title      string         `json:"title"`
	Action     string         `json:"action"`
	Status     Status         `json:"status"`
	StartTime  *time.Time     `json:"startTime,omitempty"`
	Duration   *int64         `json:"duration,omitempty"` // milliseconds
	Output     map[string]any `json:"output,omitempty"`
	Error      *Error         `json:"error,omitempty"`
	Screenshot string         `json:"screenshot,omitempty"`
	Steps      []Step         `json:"steps,omitempty"`
}

// Error contains error details.
type Error struct {
	Type    string `json:"type"` // element, timeout, connection, value, bot
	Message string `json:"message"`
}

// ============================================================================
// UPDATE TYPES
// ============================================================================

// BotUpdate contains the fields to update in the index for a bot.
type BotUpdate struct {
	Status    Status
	RunID     string
	StartTime *time.Time
	EndTime   *time.Time
	Duration  *int64
	Steps     StepSummary
	Error     *string
}
