package flow

import (
	"context"
	"time"

	"github.com/devicelab-dev/botrunner/pkg/core"
)

// Action implements one step kind. Implementations are stateless: all
// per-step data arrives through Input.
type Action interface {
	// Schema returns the action's ordered field declarations.
	Schema() Schema

	// Execute performs the effect and returns the output recorded in the
	// execution context under the step's title.
	Execute(ctx context.Context, rt Runtime, in *Input) (map[string]any, error)
}

// Constructor builds an Action.
type Constructor func() Action

// Runtime is what an executing step can reach. The executor provides it.
type Runtime interface {
	Driver() core.Driver
	HTTP() core.HTTPClient

	// ElementTimeout bounds the element wait done before click, type and select.
	ElementTimeout() time.Duration

	// Sleep pauses for d or until ctx is done.
	Sleep(ctx context.Context, d time.Duration) error

	// RunSteps executes steps in order inside a new scope layer holding
	// scope, recording each output in the shared context. It returns the
	// outputs keyed by step title.
	RunSteps(ctx context.Context, steps *StepList, scope map[string]any) (map[string]any, error)

	// RunBot performs another bot with the same driver and an independent
	// context, returning that bot's final context.
	RunBot(ctx context.Context, req SubBot) (map[string]any, error)
}

// SubBot describes a bot started by the run_bot action.
type SubBot struct {
	Path            string
	SaveScreenshots *bool // nil inherits the caller's setting
	ParseTemplate   bool
	TemplateContext map[string]any
}
