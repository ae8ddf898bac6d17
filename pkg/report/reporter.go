package report

import (
	"fmt"

	"github.com/devicelab-dev/botrunner/pkg/core"
	"github.com/devicelab-dev/botrunner/pkg/flow"
)

// Reporter keeps a report directory current while a run progresses. Its
// BotStarted and BotEnded methods match the runner's progress callbacks
// and are safe to call from parallel workers.
type Reporter struct {
	dir     string
	index   *IndexWriter
	writers []*BotWriter
}

// New writes the skeleton for bots into outputDir.
func New(outputDir string, bots []*flow.Bot, cfg BuilderConfig) (*Reporter, error) {
	index, details := BuildSkeleton(bots, cfg)
	if err := WriteSkeleton(outputDir, index, details); err != nil {
		return nil, err
	}

	iw := NewIndexWriter(outputDir, index)
	writers := make([]*BotWriter, len(details))
	for i := range details {
		writers[i] = NewBotWriter(&details[i], outputDir, iw)
	}
	iw.Start()
	return &Reporter{dir: outputDir, index: iw, writers: writers}, nil
}

// Dir returns the report directory.
func (r *Reporter) Dir() string { return r.dir }

// BotStarted marks bot botIdx as running.
func (r *Reporter) BotStarted(botIdx, _ int, _, _ string) {
	if w := r.writer(botIdx); w != nil {
		w.Start()
	}
}

// BotEnded records the result of bot botIdx.
func (r *Reporter) BotEnded(botIdx int, result *core.BotResult) {
	if w := r.writer(botIdx); w != nil && result != nil {
		w.End(result)
	}
}

// Finish records results for bots that never reported an end (skipped
// after a failure or cancellation) and closes the run.
func (r *Reporter) Finish(results []*core.BotResult) error {
	if len(results) != len(r.writers) {
		return fmt.Errorf("report has %d bots, got %d results", len(r.writers), len(results))
	}
	for i, w := range r.writers {
		if !w.GetBotDetail().Status.IsTerminal() && results[i] != nil {
			w.End(results[i])
		}
	}
	r.index.End()
	r.index.Close()
	return nil
}

func (r *Reporter) writer(botIdx int) *BotWriter {
	if botIdx < 0 || botIdx >= len(r.writers) {
		return nil
	}
	return r.writers[botIdx]
}
