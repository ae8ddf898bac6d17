package executor

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/devicelab-dev/botrunner/pkg/core"
	"github.com/devicelab-dev/botrunner/pkg/flow"
)

// Worker is one browser session that performs bots pulled from the queue.
// Steps within a bot still run strictly in order on the worker's driver.
type Worker struct {
	ID      int
	Driver  core.Driver
	Cleanup func() // Called once the queue is drained; may be nil
}

// workItem represents a bot and its index in the original bot list.
type workItem struct {
	bot   *flow.Bot
	index int
}

// ParallelRunner spreads independent bots over several browser sessions.
type ParallelRunner struct {
	workers []Worker
	http    core.HTTPClient
	config  RunnerConfig
}

// NewParallelRunner creates a parallel runner over workers.
func NewParallelRunner(workers []Worker, http core.HTTPClient, config RunnerConfig) *ParallelRunner {
	return &ParallelRunner{
		workers: workers,
		http:    http,
		config:  config,
	}
}

// Run performs bots using a work queue shared by all workers. Each worker's
// driver is closed when the queue is drained unless KeepAlive is set.
func (pr *ParallelRunner) Run(ctx context.Context, bots []*flow.Bot) (*RunResult, error) {
	if len(pr.workers) == 0 {
		return nil, fmt.Errorf("no workers available")
	}

	startTime := time.Now()

	workQueue := make(chan workItem, len(bots))
	for i, b := range bots {
		workQueue <- workItem{bot: b, index: i}
	}
	close(workQueue)

	results := make([]*core.BotResult, len(bots))
	var mu sync.Mutex
	var wg sync.WaitGroup
	stopAll := false

	for i := range pr.workers {
		wg.Add(1)
		go func(w Worker) {
			defer wg.Done()
			if w.Cleanup != nil {
				defer w.Cleanup()
			}

			cfg := pr.config
			cfg.KeepAlive = true
			runner := New(w.Driver, pr.http, cfg)

			for item := range workQueue {
				mu.Lock()
				shouldStop := stopAll
				mu.Unlock()

				var result *core.BotResult
				if shouldStop || ctx.Err() != nil {
					result = skippedBot(item.bot, "run stopped")
				} else {
					result = runner.performOne(ctx, item.bot, item.index, len(bots))
				}

				mu.Lock()
				results[item.index] = result
				if pr.config.StopOnFail && result.Status == core.StatusFailed {
					stopAll = true
				}
				mu.Unlock()
			}

			if !pr.config.KeepAlive {
				_ = runner.closeDriver()
			}
		}(pr.workers[i])
	}

	wg.Wait()

	// Wall clock time, not the sum of bot durations
	return buildRunResult(results, time.Since(startTime)), nil
}
