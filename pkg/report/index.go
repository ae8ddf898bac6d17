package report

import (
	"path/filepath"
	"sync"
	"time"

	"github.com/devicelab-dev/botrunner/pkg/logger"
)

// progressDebounce delays index writes for non-terminal updates.
const progressDebounce = 100 * time.Millisecond

// IndexWriter provides thread-safe updates to the report index.
// Bots running on parallel workers update it concurrently.
type IndexWriter struct {
	mu    sync.Mutex
	path  string
	index *Index

	// Debouncing for progress updates
	pending map[string]*BotUpdate
	timer   *time.Timer
	closed  bool
}

// NewIndexWriter creates a new IndexWriter.
func NewIndexWriter(outputDir string, index *Index) *IndexWriter {
	return &IndexWriter{
		path:    filepath.Join(outputDir, "report.json"),
		index:   index,
		pending: make(map[string]*BotUpdate),
	}
}

// Start marks the run as started.
func (w *IndexWriter) Start() {
	w.mu.Lock()
	defer w.mu.Unlock()

	now := time.Now()
	w.index.Status = StatusRunning
	w.index.StartTime = now

	w.flushLocked()
}

// UpdateBot updates a bot entry in the index.
// Terminal states flush immediately; progress updates are debounced.
func (w *IndexWriter) UpdateBot(botID string, update *BotUpdate) {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.pending[botID] = update

	if update.Status.IsTerminal() {
		w.flushLocked()
		return
	}

	if w.timer == nil && !w.closed {
		w.timer = time.AfterFunc(progressDebounce, w.flush)
	}
}

// End marks the run as complete.
func (w *IndexWriter) End() {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.applyPendingLocked()
	now := time.Now()
	w.index.EndTime = &now
	w.index.Status = w.computeRunStatus()

	w.flushLocked()
}

// Close flushes any pending updates and stops the debounce timer.
func (w *IndexWriter) Close() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.closed = true
	w.flushLocked()
}

// GetIndex returns the current index (for reading).
func (w *IndexWriter) GetIndex() *Index {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.index
}

func (w *IndexWriter) flush() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.flushLocked()
}

// flushLocked applies pending updates and writes the index while holding the lock.
func (w *IndexWriter) flushLocked() {
	w.applyPendingLocked()

	w.index.UpdateSeq++
	w.index.LastUpdated = time.Now()
	w.index.Summary = w.computeSummary()

	if w.timer != nil {
		w.timer.Stop()
		w.timer = nil
	}

	if err := atomicWriteJSON(w.path, w.index); err != nil {
		logger.Warn("failed to write report index %s: %v", w.path, err)
	}
}

func (w *IndexWriter) applyPendingLocked() {
	for botID, update := range w.pending {
		w.applyUpdate(botID, update)
	}
	w.pending = make(map[string]*BotUpdate)
}

// applyUpdate applies a BotUpdate to the index.
func (w *IndexWriter) applyUpdate(botID string, update *BotUpdate) {
	for i := range w.index.Bots {
		if w.index.Bots[i].ID != botID {
			continue
		}
		b := &w.index.Bots[i]
		b.Status = update.Status
		if update.RunID != "" {
			b.RunID = update.RunID
		}
		if update.StartTime != nil {
			b.StartTime = update.StartTime
		}
		if update.EndTime != nil {
			b.EndTime = update.EndTime
		}
		if update.Duration != nil {
			b.Duration = update.Duration
		}
		b.Steps = update.Steps
		if update.Error != nil {
			b.Error = update.Error
		}
		b.UpdateSeq++
		now := time.Now()
		b.LastUpdated = &now
		return
	}
}

// computeSummary calculates summary from bot statuses.
func (w *IndexWriter) computeSummary() Summary {
	var s Summary
	for _, b := range w.index.Bots {
		s.Total++
		switch b.Status {
		case StatusSucceeded:
			s.Succeeded++
		case StatusFailed:
			s.Failed++
		case StatusSkipped:
			s.Skipped++
		case StatusRunning:
			s.Running++
		case StatusPending:
			s.Pending++
		}
	}
	return s
}

// computeRunStatus determines overall run status from bots.
func (w *IndexWriter) computeRunStatus() Status {
	hasFailure := false
	allComplete := true

	for _, b := range w.index.Bots {
		if b.Status == StatusFailed {
			hasFailure = true
		}
		if !b.Status.IsTerminal() {
			allComplete = false
		}
	}

	if !allComplete {
		return StatusRunning
	}
	if hasFailure {
		return StatusFailed
	}
	return StatusSucceeded
}
