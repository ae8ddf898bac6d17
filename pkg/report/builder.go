package report

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/devicelab-dev/botrunner/pkg/flow"
)

// BuilderConfig contains configuration for building the report skeleton.
type BuilderConfig struct {
	RunnerVersion string
	DriverName    string // webdriver, mock
}

// BuildSkeleton creates the initial report structure from validated bots.
// Every bot and top-level step starts out pending.
func BuildSkeleton(bots []*flow.Bot, cfg BuilderConfig) (*Index, []BotDetail) {
	now := time.Now()

	index := &Index{
		Version:     Version,
		Status:      StatusPending,
		StartTime:   now,
		LastUpdated: now,
		Runner: RunnerInfo{
			Version: cfg.RunnerVersion,
			Driver:  cfg.DriverName,
		},
		Summary: Summary{
			Total:   len(bots),
			Pending: len(bots),
		},
		Bots: make([]BotEntry, len(bots)),
	}

	details := make([]BotDetail, len(bots))
	for i, b := range bots {
		id := botID(i)
		steps := pendingSteps(b.Steps)

		index.Bots[i] = BotEntry{
			Index:      i,
			ID:         id,
			Title:      b.Title,
			SourceFile: b.SourcePath,
			DataFile:   filepath.Join("bots", id+".json"),
			Status:     StatusPending,
			Steps: StepSummary{
				Total:   len(steps),
				Pending: len(steps),
			},
		}
		details[i] = BotDetail{
			ID:         id,
			Title:      b.Title,
			SourceFile: b.SourcePath,
			Status:     StatusPending,
			Steps:      steps,
		}
	}
	return index, details
}

func botID(i int) string {
	return fmt.Sprintf("bot-%03d", i)
}

func pendingSteps(list *flow.StepList) []Step {
	steps := make([]Step, 0, list.Len())
	for i, s := range list.Steps() {
		steps = append(steps, Step{
			Index:  i,
			Title:  s.Title,
			Action: s.Action,
			Status: StatusPending,
		})
	}
	return steps
}

// WriteSkeleton writes the initial index and bot detail files.
func WriteSkeleton(outputDir string, index *Index, details []BotDetail) error {
	if err := ensureDir(filepath.Join(outputDir, "bots")); err != nil {
		return fmt.Errorf("create bots dir: %w", err)
	}
	for _, d := range details {
		if err := atomicWriteJSON(filepath.Join(outputDir, "bots", d.ID+".json"), d); err != nil {
			return fmt.Errorf("write bot %s: %w", d.ID, err)
		}
	}
	if err := atomicWriteJSON(filepath.Join(outputDir, "report.json"), index); err != nil {
		return fmt.Errorf("write index: %w", err)
	}
	return nil
}
