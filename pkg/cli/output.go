package cli

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/devicelab-dev/botrunner/pkg/core"
	"github.com/devicelab-dev/botrunner/pkg/executor"
	"github.com/devicelab-dev/botrunner/pkg/report"
)

// ANSI color codes
const (
	colorReset  = "\033[0m"
	colorBold   = "\033[1m"
	colorGreen  = "\033[32m"
	colorRed    = "\033[31m"
	colorYellow = "\033[33m"
	colorCyan   = "\033[36m"
	colorGray   = "\033[90m"
)

// Slow step threshold
const slowThreshold = 5 * time.Second

// colorsEnabled determines if ANSI colors should be used
var colorsEnabled = true

func init() {
	// Respect NO_COLOR environment variable
	if os.Getenv("NO_COLOR") != "" {
		colorsEnabled = false
		return
	}
	// Check if stdout is a terminal
	if fileInfo, err := os.Stdout.Stat(); err == nil {
		if (fileInfo.Mode() & os.ModeCharDevice) == 0 {
			colorsEnabled = false
		}
	}
}

// color returns the color code if colors are enabled, empty string otherwise
func color(c string) string {
	if colorsEnabled {
		return c
	}
	return ""
}

// progress prints live bot and step progress. Parallel workers share it.
type progress struct {
	mu sync.Mutex
	w  io.Writer
}

func newProgress(w io.Writer) *progress {
	return &progress{w: w}
}

func (p *progress) botStart(botIdx, totalBots int, title, file string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	fmt.Fprintf(p.w, "\n  %s[%d/%d]%s %s%s%s",
		color(colorCyan), botIdx+1, totalBots, color(colorReset),
		color(colorBold), title, color(colorReset))
	if file != "" {
		fmt.Fprintf(p.w, " (%s)", file)
	}
	fmt.Fprintln(p.w)
	fmt.Fprintln(p.w, "  "+strings.Repeat("─", 60))
}

func (p *progress) stepComplete(depth int, result core.StepResult) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.writeStep(depth, result)
}

func (p *progress) writeStep(depth int, result core.StepResult) {
	// Base indent (4 spaces) + 2 spaces per nesting level
	indent := strings.Repeat("  ", 2+depth)
	desc := fmt.Sprintf("%s %s(%s)%s", result.Title, color(colorGray), result.Action, color(colorReset))
	dur := formatDuration(result.Duration)

	switch result.Status {
	case core.StatusSucceeded:
		symbol, symbolColor, durColor := "✓", color(colorGreen), ""
		// Steps with children take as long as their children
		if result.Duration >= slowThreshold && len(result.Steps) == 0 {
			symbol, symbolColor, durColor = "⚠", color(colorYellow), color(colorYellow)
		}
		fmt.Fprintf(p.w, "%s%s%s%s %s %s(%s)%s\n",
			indent, symbolColor, symbol, color(colorReset), desc, durColor, dur, color(colorReset))
	case core.StatusSkipped:
		fmt.Fprintf(p.w, "%s%s-%s %s\n", indent, color(colorCyan), color(colorReset), desc)
	default:
		fmt.Fprintf(p.w, "%s%s✗%s %s (%s)\n", indent, color(colorRed), color(colorReset), desc, dur)
		if result.Error != "" {
			fmt.Fprintf(p.w, "%s  %s╰─%s %s\n", indent, color(colorGray), color(colorReset), result.Error)
		}
	}
}

func (p *progress) botEnd(_ int, result *core.BotResult) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if result.Status == core.StatusSucceeded {
		fmt.Fprintf(p.w, "%s✓ %s%s %s%s%s\n",
			color(colorGreen), color(colorReset), result.Title,
			color(colorGray), formatDuration(result.Duration), color(colorReset))
		return
	}
	fmt.Fprintf(p.w, "%s✗ %s%s %s%s%s\n",
		color(colorRed), color(colorReset), result.Title,
		color(colorGray), formatDuration(result.Duration), color(colorReset))
	if result.FailedStep != "" {
		fmt.Fprintf(p.w, "  %s╰─%s %s\n", color(colorGray), color(colorReset), result.Error)
	}
}

// printSummary prints the step totals and the per-bot table.
func printSummary(w io.Writer, result *executor.RunResult) {
	totalSteps, succeeded, failed, skipped := 0, 0, 0, 0
	for _, b := range result.Bots {
		totalSteps += b.TotalSteps
		succeeded += b.SucceededSteps
		failed += b.FailedSteps
		skipped += b.SkippedSteps
	}

	fmt.Fprintln(w)
	if succeeded > 0 {
		fmt.Fprintf(w, "  %s%d steps succeeded%s (%s)\n", color(colorGreen), succeeded, color(colorReset), formatDuration(result.Duration))
	}
	if failed > 0 {
		fmt.Fprintf(w, "  %s%d steps failed%s\n", color(colorRed), failed, color(colorReset))
	}
	if skipped > 0 {
		fmt.Fprintf(w, "  %s%d steps skipped%s\n", color(colorCyan), skipped, color(colorReset))
	}
	fmt.Fprintln(w)

	tableWidth := 92
	fmt.Fprintln(w, strings.Repeat("═", tableWidth))
	fmt.Fprintf(w, "  %-42s %6s %7s %6s %6s %6s %10s\n", "Bot", "Status", "Steps", "Pass", "Fail", "Skip", "Duration")
	fmt.Fprintln(w, strings.Repeat("─", tableWidth))

	for _, b := range result.Bots {
		status, statusColor := statusLabel(b.Status)
		fmt.Fprintf(w, "  %-42s %s%6s%s %7d %6d %6d %6d %10s\n",
			truncate(b.Title, 42), statusColor, status, color(colorReset),
			b.TotalSteps, b.SucceededSteps, b.FailedSteps, b.SkippedSteps,
			formatDuration(b.Duration))
	}

	fmt.Fprintln(w, strings.Repeat("─", tableWidth))
	statusStr := fmt.Sprintf("%d/%d", result.SucceededBots, result.TotalBots)
	statusColor := color(colorGreen)
	if result.FailedBots > 0 {
		statusColor = color(colorRed)
	}
	fmt.Fprintf(w, "  %s%-42s%s %s%6s%s %7d %6d %6d %6d %10s\n",
		color(colorBold), "TOTAL", color(colorReset),
		statusColor, statusStr, color(colorReset),
		totalSteps, succeeded, failed, skipped,
		formatDuration(result.Duration))
	fmt.Fprintln(w, strings.Repeat("═", tableWidth))
}

// printReport prints a stored report: each bot with its step tree.
func printReport(w io.Writer, index *report.Index, details []report.BotDetail) {
	for i, d := range details {
		fmt.Fprintf(w, "\n  %s[%d/%d]%s %s%s%s %s\n",
			color(colorCyan), i+1, len(details), color(colorReset),
			color(colorBold), d.Title, color(colorReset), d.Status)
		fmt.Fprintln(w, "  "+strings.Repeat("─", 60))
		printReportSteps(w, d.Steps, 0)
		if d.Error != "" {
			fmt.Fprintf(w, "  %s╰─%s %s\n", color(colorGray), color(colorReset), d.Error)
		}
	}

	s := index.Summary
	fmt.Fprintf(w, "\n  %s: %d bots, %d succeeded, %d failed, %d skipped\n",
		index.Status, s.Total, s.Succeeded, s.Failed, s.Skipped)
}

func printReportSteps(w io.Writer, steps []report.Step, depth int) {
	indent := strings.Repeat("  ", 2+depth)
	for _, s := range steps {
		var dur time.Duration
		if s.Duration != nil {
			dur = time.Duration(*s.Duration) * time.Millisecond
		}
		fmt.Fprintf(w, "%s%-9s %s (%s) %s\n", indent, s.Status, s.Title, s.Action, formatDuration(dur))
		if s.Error != nil {
			fmt.Fprintf(w, "%s  ╰─ %s\n", indent, s.Error.Message)
		}
		printReportSteps(w, s.Steps, depth+1)
	}
}

func statusLabel(s core.StepStatus) (string, string) {
	switch s {
	case core.StatusFailed:
		return "✗ FAIL", color(colorRed)
	case core.StatusSkipped:
		return "- SKIP", color(colorCyan)
	default:
		return "✓ PASS", color(colorGreen)
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n-3] + "..."
}

// formatDuration shows milliseconds below one second, seconds below one
// minute, and minutes plus seconds otherwise.
func formatDuration(d time.Duration) string {
	ms := d.Milliseconds()
	if ms < 1000 {
		return fmt.Sprintf("%dms", ms)
	}
	if ms < 60000 {
		return fmt.Sprintf("%.1fs", float64(ms)/1000)
	}
	mins := ms / 60000
	secs := (ms % 60000) / 1000
	return fmt.Sprintf("%dm %ds", mins, secs)
}
