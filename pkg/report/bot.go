package report

import (
	"path/filepath"
	"time"

	"github.com/devicelab-dev/botrunner/pkg/core"
	"github.com/devicelab-dev/botrunner/pkg/logger"
)

// BotWriter writes updates for a single bot.
// Only the goroutine running the bot touches it, so it needs no locking.
type BotWriter struct {
	bot   *BotDetail
	path  string
	index *IndexWriter
}

// NewBotWriter creates a new BotWriter.
func NewBotWriter(detail *BotDetail, outputDir string, index *IndexWriter) *BotWriter {
	return &BotWriter{
		bot:   detail,
		path:  filepath.Join(outputDir, "bots", detail.ID+".json"),
		index: index,
	}
}

// Start marks the bot as running.
func (w *BotWriter) Start() {
	now := time.Now()
	w.bot.StartTime = now
	w.bot.Status = StatusRunning

	w.flush()
	w.index.UpdateBot(w.bot.ID, &BotUpdate{
		Status:    StatusRunning,
		StartTime: &now,
		Steps:     w.stepSummary(),
	})
}

// End records the bot's result and marks it terminal.
func (w *BotWriter) End(result *core.BotResult) {
	now := time.Now()
	duration := result.Duration.Milliseconds()

	w.bot.RunID = result.RunID
	w.bot.Status = statusOf(result.Status)
	w.bot.EndTime = &now
	w.bot.Duration = &duration
	w.bot.Context = result.Context
	w.bot.FailedStep = result.FailedStep
	w.bot.Error = result.Error
	if !result.StartTime.IsZero() {
		w.bot.StartTime = result.StartTime
	}
	if len(result.Steps) > 0 {
		w.bot.Steps = convertSteps(result.Steps)
	} else {
		// never started: leave the skeleton steps, all skipped
		for i := range w.bot.Steps {
			w.bot.Steps[i].Status = StatusSkipped
		}
	}
	w.bot.ExceptionSteps = convertSteps(result.ExceptionSteps)

	w.flush()

	update := &BotUpdate{
		Status:   w.bot.Status,
		RunID:    result.RunID,
		EndTime:  &now,
		Duration: &duration,
		Steps:    w.stepSummary(),
	}
	if result.Error != "" {
		msg := result.Error
		update.Error = &msg
	}
	w.index.UpdateBot(w.bot.ID, update)
}

// GetBotDetail returns the current bot detail (for reading).
func (w *BotWriter) GetBotDetail() *BotDetail {
	return w.bot
}

func (w *BotWriter) flush() {
	if err := atomicWriteJSON(w.path, w.bot); err != nil {
		logger.Warn("failed to write bot report %s: %v", w.path, err)
	}
}

func (w *BotWriter) stepSummary() StepSummary {
	s := StepSummary{Total: len(w.bot.Steps)}
	for _, step := range w.bot.Steps {
		switch step.Status {
		case StatusSucceeded:
			s.Succeeded++
		case StatusFailed:
			s.Failed++
		case StatusSkipped:
			s.Skipped++
		default:
			s.Pending++
		}
	}
	return s
}

func convertSteps(results []core.StepResult) []Step {
	if len(results) == 0 {
		return nil
	}
	steps := make([]Step, len(results))
	for i, r := range results {
		steps[i] = convertStep(r)
	}
	return steps
}

func convertStep(r core.StepResult) Step {
	s := Step{
		Index:  r.Index,
		Title:  r.Title,
		Action: r.Action,
		Status: statusOf(r.Status),
		Output: r.Output,
		Steps:  convertSteps(r.Steps),
	}
	if !r.StartTime.IsZero() {
		start := r.StartTime
		duration := r.Duration.Milliseconds()
		s.StartTime = &start
		s.Duration = &duration
	}
	if r.Error != "" {
		s.Error = &Error{Type: r.Category.String(), Message: r.Error}
	}
	for _, a := range r.Attachments {
		if a.Name == core.AttachmentScreenshot {
			s.Screenshot = a.Path
		}
	}
	return s
}
