// Package executor performs validated bots against a driver.
package executor

import (
	"context"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/devicelab-dev/botrunner/pkg/core"
	"github.com/devicelab-dev/botrunner/pkg/flow"
	"github.com/devicelab-dev/botrunner/pkg/logger"
	"github.com/devicelab-dev/botrunner/pkg/metrics"
)

const (
	// DefaultElementTimeout bounds the element wait of click, type and select.
	DefaultElementTimeout = 10 * time.Second

	// DefaultMaxDepth limits run_bot nesting.
	DefaultMaxDepth = 16
)

// RunnerConfig configures the bot runner.
type RunnerConfig struct {
	Artifacts      core.ArtifactConfig // Screenshot capture
	Delay          Delay               // Pause between top-level steps
	ElementTimeout time.Duration       // 0 = DefaultElementTimeout
	KeepAlive      bool                // Leave the driver open after Perform
	StopOnFail     bool                // RunAll: skip remaining bots after a failure
	MaxDepth       int                 // 0 = DefaultMaxDepth

	// Parser loads bots started by run_bot. Nil uses the default registry.
	Parser *flow.Parser

	Metrics *metrics.Recorder
	Logger  *zap.Logger

	// Live progress callbacks. depth is 0 for top-level steps.
	OnBotStart     func(botIdx, totalBots int, title, file string)
	OnStepStart    func(depth int, title, action string)
	OnStepComplete func(depth int, result core.StepResult)
	OnBotEnd       func(botIdx int, result *core.BotResult)
}

// RunResult contains the outcome of running several bots.
type RunResult struct {
	Status        core.StepStatus
	TotalBots     int
	SucceededBots int
	FailedBots    int
	SkippedBots   int
	Duration      time.Duration
	Bots          []*core.BotResult
}

// Runner performs bots with one driver, one bot at a time.
type Runner struct {
	config RunnerConfig
	driver core.Driver
	http   core.HTTPClient
}

// New creates a new Runner.
func New(driver core.Driver, http core.HTTPClient, cfg RunnerConfig) *Runner {
	if cfg.ElementTimeout <= 0 {
		cfg.ElementTimeout = DefaultElementTimeout
	}
	if cfg.MaxDepth <= 0 {
		cfg.MaxDepth = DefaultMaxDepth
	}
	if cfg.Parser == nil {
		cfg.Parser = flow.NewParser(flow.DefaultRegistry())
	}
	if cfg.Logger == nil {
		cfg.Logger = logger.Named("executor")
	}
	return &Runner{config: cfg, driver: driver, http: http}
}

// Perform runs bot's steps in order. If a step fails the remaining steps are
// skipped, the exception steps run once and the step's error is returned.
// The driver is closed afterwards unless KeepAlive is set; a close failure
// is combined with the run error.
func (r *Runner) Perform(ctx context.Context, bot *flow.Bot) (*core.BotResult, error) {
	result, err := newBotRun(r, bot, 0, r.config.Artifacts).perform(ctx)
	if !r.config.KeepAlive {
		err = multierr.Append(err, r.closeDriver())
	}
	return result, err
}

// RunAll performs bots one after another on the runner's driver and closes
// it at the end unless KeepAlive is set. Bot failures are reported in the
// result; the returned error is only a driver close failure.
func (r *Runner) RunAll(ctx context.Context, bots []*flow.Bot) (*RunResult, error) {
	start := time.Now()
	results := make([]*core.BotResult, len(bots))

	stop := false
	for i, bot := range bots {
		if stop || ctx.Err() != nil {
			results[i] = skippedBot(bot, "run stopped")
			continue
		}
		results[i] = r.performOne(ctx, bot, i, len(bots))
		if r.config.StopOnFail && results[i].Status == core.StatusFailed {
			stop = true
		}
	}

	var err error
	if !r.config.KeepAlive {
		err = r.closeDriver()
	}
	return buildRunResult(results, time.Since(start)), err
}

func (r *Runner) performOne(ctx context.Context, bot *flow.Bot, idx, total int) *core.BotResult {
	if r.config.OnBotStart != nil {
		r.config.OnBotStart(idx, total, bot.Title, bot.SourcePath)
	}
	result, _ := newBotRun(r, bot, 0, r.config.Artifacts).perform(ctx)
	if r.config.OnBotEnd != nil {
		r.config.OnBotEnd(idx, result)
	}
	return result
}

func (r *Runner) closeDriver() error {
	if err := r.driver.Close(); err != nil {
		r.config.Logger.Warn("failed to close driver", zap.Error(err))
		return err
	}
	return nil
}

func skippedBot(bot *flow.Bot, reason string) *core.BotResult {
	return &core.BotResult{
		Title:    bot.Title,
		FilePath: bot.SourcePath,
		Status:   core.StatusSkipped,
		Error:    reason,
	}
}

// buildRunResult aggregates bot results into a run result.
func buildRunResult(bots []*core.BotResult, duration time.Duration) *RunResult {
	result := &RunResult{
		TotalBots: len(bots),
		Bots:      bots,
		Duration:  duration,
		Status:    core.StatusSucceeded,
	}
	for _, b := range bots {
		switch b.Status {
		case core.StatusSucceeded:
			result.SucceededBots++
		case core.StatusFailed:
			result.FailedBots++
		case core.StatusSkipped:
			result.SkippedBots++
		}
	}
	if result.FailedBots > 0 {
		result.Status = core.StatusFailed
	}
	return result
}
