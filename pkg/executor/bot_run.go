package executor

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/devicelab-dev/botrunner/pkg/core"
	"github.com/devicelab-dev/botrunner/pkg/flow"
)

// botRun performs a single bot. It is the flow.Runtime its steps see.
type botRun struct {
	runner    *Runner
	bot       *flow.Bot
	runID     string
	depth     int // run_bot nesting
	artifacts core.ArtifactConfig
	context   *Context
	log       *zap.Logger

	// collectors receive the results of nested steps, innermost last
	collectors []*[]core.StepResult
	stepDepth  int
}

func newBotRun(r *Runner, bot *flow.Bot, depth int, artifacts core.ArtifactConfig) *botRun {
	runID := uuid.NewString()
	return &botRun{
		runner:    r,
		bot:       bot,
		runID:     runID,
		depth:     depth,
		artifacts: artifacts,
		context:   NewContext(),
		log: r.config.Logger.With(
			zap.String("run_id", runID),
			zap.String("bot", bot.Title),
		),
	}
}

func (b *botRun) perform(ctx context.Context) (*core.BotResult, error) {
	start := time.Now()
	result := &core.BotResult{
		RunID:     b.runID,
		Title:     b.bot.Title,
		FilePath:  b.bot.SourcePath,
		StartTime: start,
	}
	b.log.Info("bot started", zap.Int("steps", b.bot.Steps.Len()), zap.Int("depth", b.depth))

	steps := b.bot.Steps.Steps()
	var failure error
	for i, step := range steps {
		if i > 0 && b.runner.config.Delay.Enabled() {
			if err := b.Sleep(ctx, b.runner.config.Delay.Next()); err != nil {
				failure = asExecutionError(err).WithStep(step.Title)
			}
		}
		if failure == nil && ctx.Err() != nil {
			failure = core.ErrCancelled.WithStep(step.Title).WithCause(ctx.Err())
		}
		if failure != nil {
			result.FailedStep = step.Title
			result.Steps = append(result.Steps, skippedSteps(steps[i:], i)...)
			break
		}

		sr, err := b.runStep(ctx, i, step)
		result.Steps = append(result.Steps, sr)
		if err != nil {
			failure = err
			result.FailedStep = step.Title
			result.Steps = append(result.Steps, skippedSteps(steps[i+1:], i+1)...)
			break
		}
	}

	if failure != nil {
		result.Error = failure.Error()
		result.ExceptionSteps = b.runExceptionSteps(context.WithoutCancel(ctx))
	}

	result.Context = b.context.Snapshot()
	result.ComputeSummary()
	result.Status = result.AggregateStatus()
	if failure != nil {
		result.Status = core.StatusFailed
	}
	result.Duration = time.Since(start)

	b.runner.config.Metrics.ObserveRun(result.Status.String(), result.Duration)
	b.log.Info("bot finished",
		zap.Stringer("status", result.Status),
		zap.Duration("duration", result.Duration),
		zap.Int("succeeded", result.SucceededSteps),
		zap.Int("failed", result.FailedSteps),
		zap.Int("skipped", result.SkippedSteps),
	)
	return result, failure
}

// runExceptionSteps runs every exception step once. Failures are logged and
// never change the bot's outcome.
func (b *botRun) runExceptionSteps(ctx context.Context) []core.StepResult {
	steps := b.bot.ExceptionSteps.Steps()
	if len(steps) == 0 {
		return nil
	}
	b.log.Info("running exception steps", zap.Int("steps", len(steps)))

	results := make([]core.StepResult, 0, len(steps))
	for i, step := range steps {
		sr, err := b.runStep(ctx, i, step)
		results = append(results, sr)
		b.runner.config.Metrics.ObserveExceptionStep(sr.Status.String())
		if err != nil {
			b.log.Warn("exception step failed", zap.String("step", step.Title), zap.Error(err))
		}
	}
	return results
}

// runStep resolves and executes one step, records its output and captures
// its screenshot. The returned error is an *core.ExecutionError naming the
// step.
func (b *botRun) runStep(ctx context.Context, index int, step *flow.Step) (core.StepResult, error) {
	sr := core.StepResult{
		Title:     step.Title,
		Action:    step.Action,
		Index:     index,
		StartTime: time.Now(),
	}
	log := b.log.With(zap.String("step", step.Title), zap.String("action", step.Action))
	log.Debug("step started")
	if cb := b.runner.config.OnStepStart; cb != nil {
		cb(b.stepDepth, step.Title, step.Action)
	}

	var children []core.StepResult
	b.collectors = append(b.collectors, &children)
	b.stepDepth++
	out, err := b.execute(ctx, step)
	b.stepDepth--
	b.collectors = b.collectors[:len(b.collectors)-1]

	sr.Duration = time.Since(sr.StartTime)
	sr.Steps = children

	var failure *core.ExecutionError
	if err != nil {
		sr.Status = core.StatusFailed
		failure = stepFailure(step.Title, err)
	} else {
		sr.Status = core.StatusSucceeded
		sr.Output = out
		b.context.Record(step.Title, out)
	}

	if b.artifacts.ShouldCapture(sr.Status) {
		if path, ok := b.captureScreenshot(step.Title, log); ok {
			sr.Attachments = append(sr.Attachments, core.NewScreenshotAttachment(path, nil))
			if failure != nil {
				failure = failure.WithScreenshot(path)
			}
		}
	}

	b.runner.config.Metrics.ObserveStep(step.Action, sr.Status.String(), sr.Duration)
	if failure != nil {
		sr.Error = failure.Error()
		sr.Category = failure.Category
		log.Error("step failed", zap.Duration("duration", sr.Duration), zap.Error(failure))
	} else {
		log.Info("step succeeded", zap.Duration("duration", sr.Duration))
	}

	if cb := b.runner.config.OnStepComplete; cb != nil {
		cb(b.stepDepth, sr)
	}
	if failure != nil {
		return sr, failure
	}
	return sr, nil
}

func (b *botRun) execute(ctx context.Context, step *flow.Step) (map[string]any, error) {
	in, err := step.Resolve(b.context.View())
	if err != nil {
		return nil, err
	}
	return step.Execute(ctx, b, in)
}

// stepFailure attributes err to title. A failure that already names a
// nested step is kept as the cause.
func stepFailure(title string, err error) *core.ExecutionError {
	var execErr *core.ExecutionError
	if errors.As(err, &execErr) && execErr.Step != "" && execErr.Step != title {
		return core.ErrStepFailed.
			WithMessage("nested step failed").
			WithStep(title).
			WithCause(err)
	}
	return asExecutionError(err).WithStep(title)
}

func asExecutionError(err error) *core.ExecutionError {
	var execErr *core.ExecutionError
	if errors.As(err, &execErr) {
		return execErr
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return core.ErrCancelled.WithCause(err)
	}
	return core.ErrStepFailed.WithCause(err)
}

func skippedSteps(steps []*flow.Step, offset int) []core.StepResult {
	out := make([]core.StepResult, len(steps))
	for i, s := range steps {
		out[i] = core.StepResult{
			Title:  s.Title,
			Action: s.Action,
			Index:  offset + i,
			Status: core.StatusSkipped,
		}
	}
	return out
}

// captureScreenshot writes the current page to the step's screenshot file.
// Failures are logged only.
func (b *botRun) captureScreenshot(title string, log *zap.Logger) (string, bool) {
	data, err := b.runner.driver.Screenshot()
	if err != nil || len(data) == 0 {
		log.Warn("failed to capture screenshot", zap.Error(err))
		return "", false
	}
	if err := os.MkdirAll(b.artifacts.Dir, 0o755); err != nil {
		log.Warn("failed to create screenshots directory", zap.String("dir", b.artifacts.Dir), zap.Error(err))
		return "", false
	}
	path := b.artifacts.ScreenshotPath(title)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		log.Warn("failed to save screenshot", zap.String("path", path), zap.Error(err))
		return "", false
	}
	b.runner.config.Metrics.ObserveScreenshot()
	log.Debug("screenshot saved", zap.String("path", path))
	return path, true
}

// flow.Runtime

func (b *botRun) Driver() core.Driver { return b.runner.driver }

func (b *botRun) HTTP() core.HTTPClient { return b.runner.http }

func (b *botRun) ElementTimeout() time.Duration { return b.runner.config.ElementTimeout }

func (b *botRun) Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return core.ErrCancelled.WithCause(ctx.Err())
	case <-timer.C:
		return nil
	}
}

func (b *botRun) RunSteps(ctx context.Context, steps *flow.StepList, scope map[string]any) (map[string]any, error) {
	b.context.Push(scope)
	defer b.context.Pop()

	outputs := make(map[string]any, steps.Len())
	for i, step := range steps.Steps() {
		if ctx.Err() != nil {
			return nil, core.ErrCancelled.WithStep(step.Title).WithCause(ctx.Err())
		}
		sr, err := b.runStep(ctx, i, step)
		if n := len(b.collectors); n > 0 {
			*b.collectors[n-1] = append(*b.collectors[n-1], sr)
		}
		if err != nil {
			return nil, err
		}
		outputs[step.Title] = sr.Output
	}
	return outputs, nil
}

func (b *botRun) RunBot(ctx context.Context, req flow.SubBot) (map[string]any, error) {
	if b.depth+1 > b.runner.config.MaxDepth {
		return nil, core.ErrSubBotFailed.WithMessage(
			fmt.Sprintf("run_bot nesting exceeds %d levels", b.runner.config.MaxDepth))
	}

	bot, err := b.runner.config.Parser.LoadFile(req.Path, flow.LoadOptions{
		Template:        req.ParseTemplate,
		TemplateContext: req.TemplateContext,
	})
	if err != nil {
		return nil, core.ErrSubBotFailed.WithMessage(fmt.Sprintf("failed to load %s", req.Path)).WithCause(err)
	}

	artifacts := b.artifacts
	if req.SaveScreenshots != nil {
		artifacts.Enabled = *req.SaveScreenshots
	}

	child := newBotRun(b.runner, bot, b.depth+1, artifacts)
	child.log = child.log.With(zap.String("parent_run_id", b.runID))
	child.stepDepth = b.stepDepth
	result, err := child.perform(ctx)
	if n := len(b.collectors); n > 0 {
		*b.collectors[n-1] = append(*b.collectors[n-1], result.Steps...)
	}
	if err != nil {
		return nil, core.ErrSubBotFailed.WithMessage(fmt.Sprintf("bot %q failed", bot.Title)).WithCause(err)
	}
	return result.Context, nil
}

var _ flow.Runtime = (*botRun)(nil)
