package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/devicelab-dev/botrunner/pkg/config"
	"github.com/devicelab-dev/botrunner/pkg/core"
	"github.com/devicelab-dev/botrunner/pkg/driver/mock"
	"github.com/devicelab-dev/botrunner/pkg/driver/webdriver"
	"github.com/devicelab-dev/botrunner/pkg/executor"
	"github.com/devicelab-dev/botrunner/pkg/flow"
	"github.com/devicelab-dev/botrunner/pkg/logger"
	"github.com/devicelab-dev/botrunner/pkg/metrics"
	"github.com/devicelab-dev/botrunner/pkg/report"
	"github.com/devicelab-dev/botrunner/pkg/transport"
)

var runCommand = &cli.Command{
	Name:      "run",
	Usage:     "Perform one or more bots",
	ArgsUsage: "<bot-file-or-folder>...",
	Description: `Validate and perform YAML bots. Every file is validated, including the
files reached through run_bot, before the first step runs.

Examples:
  botrunner run login.yaml
  botrunner run bots/ --parallel 3 --report ./reports/latest
  botrunner run checkout.yaml --template-var host=staging.example.com
  botrunner run scrape.yaml --delay 500ms --delay-max 2s --no-screenshots`,
	Flags: []cli.Flag{
		// Screenshots
		&cli.BoolFlag{
			Name:  "screenshots",
			Usage: "Save a screenshot after every step and on failure",
		},
		&cli.BoolFlag{
			Name:  "no-screenshots",
			Usage: "Disable screenshots",
		},
		&cli.StringFlag{
			Name:  "screenshots-dir",
			Usage: "Directory for step screenshots",
		},

		// Templates
		&cli.BoolFlag{
			Name:  "template",
			Usage: "Render bot files as templates before parsing",
		},
		&cli.StringSliceFlag{
			Name:    "template-var",
			Aliases: []string{"e"},
			Usage:   "Template variable (KEY=VALUE); implies --template",
		},

		// Pacing
		&cli.DurationFlag{
			Name:  "delay",
			Usage: "Pause between top-level steps",
		},
		&cli.DurationFlag{
			Name:  "delay-max",
			Usage: "Upper bound of a random pause between top-level steps",
		},
		&cli.DurationFlag{
			Name:  "element-timeout",
			Usage: "How long click, type and select wait for their element",
		},

		// Output
		&cli.StringFlag{
			Name:  "report",
			Usage: "Write a JSON report to this directory",
		},
		&cli.BoolFlag{
			Name:  "save-report",
			Usage: "Write a JSON report to $BOTRUNNER_HOME/reports/<timestamp> unless --report is given",
		},
		&cli.StringFlag{
			Name:  "metrics-textfile",
			Usage: "Write Prometheus metrics to this file when the run ends",
		},
		&cli.StringFlag{
			Name:  "metrics-addr",
			Usage: "Serve Prometheus metrics on this address while the run lasts (e.g. :9090)",
		},

		// Execution
		&cli.BoolFlag{
			Name:  "keep-driver",
			Usage: "Leave the browser session open after the run",
		},
		&cli.IntFlag{
			Name:  "parallel",
			Usage: "Run bots on N browser sessions",
		},
		&cli.BoolFlag{
			Name:  "stop-on-fail",
			Usage: "Skip the remaining bots after the first failure",
		},
	},
	Action: runBots,
}

// RunConfig holds everything a run needs, merged from the config file and
// command-line flags.
type RunConfig struct {
	BotPaths []string

	Driver          string
	WebDriverURL    string
	Capabilities    map[string]interface{}
	PageLoadTimeout time.Duration

	Artifacts      core.ArtifactConfig
	Template       bool
	TemplateVars   map[string]any
	Delay          executor.Delay
	ElementTimeout time.Duration
	HTTPTimeout    time.Duration

	ReportDir       string
	MetricsTextfile string
	MetricsAddr     string

	KeepDriver bool
	Parallel   int
	StopOnFail bool
}

func runBots(c *cli.Context) error {
	if c.NArg() < 1 {
		return fmt.Errorf("at least one bot file or folder is required")
	}

	cfg, err := buildRunConfig(c, getConfig(c))
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()

	result, err := executeRun(ctx, cfg, c.App.Writer)
	if err != nil {
		return err
	}
	if result.Status == core.StatusFailed {
		return fmt.Errorf("%d of %d bots failed", result.FailedBots, result.TotalBots)
	}
	return nil
}

// buildRunConfig merges command flags over the loaded configuration.
func buildRunConfig(c *cli.Context, fileCfg *config.Config) (*RunConfig, error) {
	vars := make(map[string]any, len(fileCfg.Vars))
	for k, v := range fileCfg.Vars {
		vars[k] = v
	}
	cliVars, err := parseTemplateVars(c.StringSlice("template-var"))
	if err != nil {
		return nil, err
	}
	for k, v := range cliVars {
		vars[k] = v // CLI overrides the config file
	}

	cfg := &RunConfig{
		BotPaths:        c.Args().Slice(),
		Driver:          fileCfg.Driver,
		WebDriverURL:    fileCfg.WebDriver.URL,
		Capabilities:    fileCfg.WebDriver.Capabilities,
		PageLoadTimeout: fileCfg.WebDriver.PageLoadTimeout,
		Artifacts:       fileCfg.Artifacts(),
		Template:        c.Bool("template") || len(vars) > 0,
		TemplateVars:    vars,
		Delay:           executor.Delay{Min: fileCfg.Delay.Min, Max: fileCfg.Delay.Max},
		ElementTimeout:  fileCfg.ElementTimeout,
		HTTPTimeout:     fileCfg.HTTPTimeout,
		ReportDir:       fileCfg.Report,
		MetricsTextfile: fileCfg.MetricsTextfile,
		MetricsAddr:     c.String("metrics-addr"),
		KeepDriver:      c.Bool("keep-driver"),
		Parallel:        fileCfg.Parallel,
		StopOnFail:      c.Bool("stop-on-fail"),
	}

	if c.IsSet("screenshots") {
		cfg.Artifacts.Enabled = c.Bool("screenshots")
	}
	if c.Bool("no-screenshots") {
		cfg.Artifacts.Enabled = false
	}
	if c.IsSet("screenshots-dir") {
		cfg.Artifacts.Dir = c.String("screenshots-dir")
	}
	if c.IsSet("delay") {
		cfg.Delay.Min = c.Duration("delay")
	}
	if c.IsSet("delay-max") {
		cfg.Delay.Max = c.Duration("delay-max")
	}
	if c.IsSet("element-timeout") {
		cfg.ElementTimeout = c.Duration("element-timeout")
	}
	if c.IsSet("report") {
		cfg.ReportDir = c.String("report")
	}
	if cfg.ReportDir == "" && c.Bool("save-report") {
		cfg.ReportDir = config.GetReportsDir(time.Now().Format("2006-01-02_15-04-05"))
	}
	if c.IsSet("metrics-textfile") {
		cfg.MetricsTextfile = c.String("metrics-textfile")
	}
	if c.IsSet("parallel") {
		cfg.Parallel = c.Int("parallel")
	}

	if cfg.Delay.Max > 0 && cfg.Delay.Max < cfg.Delay.Min {
		return nil, fmt.Errorf("--delay-max (%s) is below --delay (%s)", cfg.Delay.Max, cfg.Delay.Min)
	}
	return cfg, nil
}

// executeRun validates and loads the bots, performs them and writes the
// report and metrics. Bot failures are part of the result, not the error.
func executeRun(ctx context.Context, cfg *RunConfig, out io.Writer) (*executor.RunResult, error) {
	parser := flow.NewParser(flow.DefaultRegistry())
	loadOpts := flow.LoadOptions{Template: cfg.Template, TemplateContext: cfg.TemplateVars}

	bots, err := loadBots(parser, cfg.BotPaths, loadOpts, out)
	if err != nil {
		return nil, err
	}
	logger.Info("loaded %d bots", len(bots))

	recorder := metrics.NewRecorder()
	progress := newProgress(out)

	if cfg.MetricsAddr != "" {
		stop, err := serveMetrics(cfg.MetricsAddr, recorder)
		if err != nil {
			return nil, err
		}
		defer stop()
	}

	var reporter *report.Reporter
	if cfg.ReportDir != "" {
		reporter, err = report.New(cfg.ReportDir, bots, report.BuilderConfig{
			RunnerVersion: Version,
			DriverName:    cfg.Driver,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create report: %w", err)
		}
	}

	runnerCfg := executor.RunnerConfig{
		Artifacts:      cfg.Artifacts,
		Delay:          cfg.Delay,
		ElementTimeout: cfg.ElementTimeout,
		KeepAlive:      cfg.KeepDriver,
		StopOnFail:     cfg.StopOnFail,
		Parser:         parser,
		Metrics:        recorder,
		OnBotStart: func(botIdx, total int, title, file string) {
			progress.botStart(botIdx, total, title, file)
			if reporter != nil {
				reporter.BotStarted(botIdx, total, title, file)
			}
		},
		OnStepComplete: progress.stepComplete,
		OnBotEnd: func(botIdx int, result *core.BotResult) {
			progress.botEnd(botIdx, result)
			if reporter != nil {
				reporter.BotEnded(botIdx, result)
			}
		},
	}
	httpClient := transport.New(transport.Options{
		Timeout:   cfg.HTTPTimeout,
		UserAgent: "botrunner/" + Version,
	})

	var result *executor.RunResult
	if cfg.Parallel > 1 && len(bots) > 1 {
		result, err = runParallel(ctx, cfg, bots, httpClient, runnerCfg)
	} else {
		result, err = runSequential(ctx, cfg, bots, httpClient, runnerCfg)
	}
	if result == nil {
		return nil, err
	}
	if err != nil {
		logger.Warn("run finished with error: %v", err)
	}

	if reporter != nil {
		if rerr := reporter.Finish(result.Bots); rerr != nil {
			logger.Warn("failed to finish report: %v", rerr)
		}
		fmt.Fprintf(out, "\n  Report: %s\n", reporter.Dir())
	}
	if cfg.MetricsTextfile != "" {
		if merr := recorder.WriteToTextfile(cfg.MetricsTextfile); merr != nil {
			logger.Warn("failed to write metrics: %v", merr)
		}
	}

	printSummary(out, result)
	return result, nil
}

// serveMetrics exposes recorder on addr until the returned stop is called.
func serveMetrics(addr string, recorder *metrics.Recorder) (func(), error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("failed to listen on %s: %w", addr, err)
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", recorder.Handler())
	srv := &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Warn("metrics server stopped: %v", err)
		}
	}()
	logger.Info("serving metrics on http://%s/metrics", ln.Addr())

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	}, nil
}

// loadBots validates every file (following run_bot) and then loads the
// top-level bots in order.
func loadBots(parser *flow.Parser, paths []string, opts flow.LoadOptions, out io.Writer) ([]*flow.Bot, error) {
	checker := flow.NewChecker(parser, opts)
	var files []string
	var problems []error
	for _, path := range paths {
		result := checker.Check(path)
		problems = append(problems, result.Errors...)
		if found, err := flow.BotFiles(path); err == nil {
			files = append(files, found...)
		}
	}
	if len(problems) > 0 {
		printProblems(out, problems)
		return nil, fmt.Errorf("%d problem(s) found in bot files", len(problems))
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("no bot files found")
	}

	bots := make([]*flow.Bot, 0, len(files))
	for _, file := range files {
		bot, err := parser.LoadFile(file, opts)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", file, err)
		}
		bots = append(bots, bot)
	}
	return bots, nil
}

func runSequential(ctx context.Context, cfg *RunConfig, bots []*flow.Bot, http core.HTTPClient, runnerCfg executor.RunnerConfig) (*executor.RunResult, error) {
	driver, err := createDriver(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return executor.New(driver, http, runnerCfg).RunAll(ctx, bots)
}

func runParallel(ctx context.Context, cfg *RunConfig, bots []*flow.Bot, http core.HTTPClient, runnerCfg executor.RunnerConfig) (*executor.RunResult, error) {
	n := cfg.Parallel
	if n > len(bots) {
		n = len(bots)
	}

	workers := make([]executor.Worker, 0, n)
	for i := 0; i < n; i++ {
		driver, err := createDriver(ctx, cfg)
		if err != nil {
			for _, w := range workers {
				_ = w.Driver.Close()
			}
			return nil, fmt.Errorf("failed to start session %d: %w", i+1, err)
		}
		workers = append(workers, executor.Worker{ID: i, Driver: driver})
	}
	logger.Info("running %d bots on %d sessions", len(bots), n)

	return executor.NewParallelRunner(workers, http, runnerCfg).Run(ctx, bots)
}

// createDriver opens the configured action executor.
func createDriver(ctx context.Context, cfg *RunConfig) (core.Driver, error) {
	switch cfg.Driver {
	case config.DriverMock:
		return mock.New(mock.Config{}), nil
	case config.DriverWebDriver, "":
		d, err := webdriver.NewDriver(ctx, webdriver.Options{
			ServerURL:    cfg.WebDriverURL,
			Capabilities: cloneCapabilities(cfg.Capabilities),
			PageLoad:     cfg.PageLoadTimeout,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to start browser session at %s: %w", cfg.WebDriverURL, err)
		}
		return d, nil
	default:
		return nil, fmt.Errorf("unknown driver %q", cfg.Driver)
	}
}

// printProblems prints validation problems, one line per message.
func printProblems(w io.Writer, problems []error) {
	fmt.Fprintf(w, "\n  %sValidation failed%s\n", color(colorRed), color(colorReset))
	for _, p := range problems {
		file := ""
		err := p
		var cerr *flow.CheckError
		if errors.As(p, &cerr) {
			file, err = cerr.File, cerr.Err
		}

		var verr *core.ValidationError
		if errors.As(err, &verr) {
			for _, line := range verr.Flatten() {
				fmt.Fprintf(w, "    %s✗%s %s: %s\n", color(colorRed), color(colorReset), file, line)
			}
			continue
		}
		if file != "" {
			fmt.Fprintf(w, "    %s✗%s %s: %v\n", color(colorRed), color(colorReset), file, err)
		} else {
			fmt.Fprintf(w, "    %s✗%s %v\n", color(colorRed), color(colorReset), err)
		}
	}
}

// parseTemplateVars parses KEY=VALUE pairs.
func parseTemplateVars(vars []string) (map[string]string, error) {
	result := make(map[string]string, len(vars))
	for _, v := range vars {
		parts := strings.SplitN(v, "=", 2)
		if len(parts) != 2 || parts[0] == "" {
			return nil, fmt.Errorf("invalid template variable %q (want KEY=VALUE)", v)
		}
		result[parts[0]] = parts[1]
	}
	return result, nil
}

// loadCapabilities loads WebDriver capabilities from a JSON file.
func loadCapabilities(capsFile string) (map[string]interface{}, error) {
	data, err := os.ReadFile(capsFile) //#nosec G304 -- user-provided caps file
	if err != nil {
		return nil, fmt.Errorf("failed to read caps file: %w", err)
	}

	var caps map[string]interface{}
	if err := json.Unmarshal(data, &caps); err != nil {
		return nil, fmt.Errorf("failed to parse caps JSON: %w", err)
	}
	return caps, nil
}

// cloneCapabilities gives each session its own capabilities map.
func cloneCapabilities(caps map[string]interface{}) map[string]interface{} {
	if caps == nil {
		return nil
	}
	out := make(map[string]interface{}, len(caps))
	for k, v := range caps {
		out[k] = v
	}
	return out
}
