// Package cli provides the command-line interface for botrunner.
package cli

import (
	"fmt"
	"os"

	"github.com/urfave/cli/v2"

	"github.com/devicelab-dev/botrunner/pkg/config"
	"github.com/devicelab-dev/botrunner/pkg/logger"
)

// Version is set at build time.
var Version = "dev"

// configKey is the App.Metadata key holding the loaded *config.Config.
const configKey = "config"

// GlobalFlags are available to all commands.
var GlobalFlags = []cli.Flag{
	&cli.StringFlag{
		Name:    "config",
		Aliases: []string{"c"},
		Usage:   "Path to botrunner.yaml or a directory holding it (default: ./botrunner.yaml, then $BOTRUNNER_HOME)",
		EnvVars: []string{"BOTRUNNER_CONFIG"},
	},
	&cli.StringFlag{
		Name:    "driver",
		Aliases: []string{"d"},
		Usage:   "Driver to use (webdriver, mock)",
		EnvVars: []string{"BOTRUNNER_DRIVER"},
	},
	&cli.StringFlag{
		Name:    "webdriver-url",
		Usage:   "WebDriver server URL (chromedriver, geckodriver, Selenium Grid)",
		EnvVars: []string{"WEBDRIVER_URL"},
	},
	&cli.StringFlag{
		Name:    "caps",
		Usage:   "JSON file with WebDriver capabilities",
		EnvVars: []string{"BOTRUNNER_CAPS"},
	},
	&cli.BoolFlag{
		Name:    "verbose",
		Usage:   "Enable verbose logging",
		EnvVars: []string{"BOTRUNNER_VERBOSE"},
	},
	&cli.StringFlag{
		Name:    "log-file",
		Usage:   "Write JSON logs at every level to this file",
		EnvVars: []string{"BOTRUNNER_LOG_FILE"},
	},
	&cli.BoolFlag{
		Name:  "no-ansi",
		Usage: "Disable ANSI colors",
	},
}

// NewApp builds the botrunner application.
func NewApp() *cli.App {
	return &cli.App{
		Name:    "botrunner",
		Usage:   "Run declarative YAML browser bots",
		Version: Version,
		Description: `botrunner performs YAML bots: ordered steps that drive a browser,
call HTTP APIs and record their outputs for later steps.

Examples:
  botrunner run login.yaml
  botrunner run bots/ --template-var host=staging.example.com
  botrunner --driver mock run bot.yaml --no-screenshots
  botrunner validate bots/
  botrunner actions`,
		Flags: GlobalFlags,
		Commands: []*cli.Command{
			runCommand,
			validateCommand,
			actionsCommand,
			reportCommand,
		},
		Before: setup,
		After: func(*cli.Context) error {
			logger.Close()
			return nil
		},
	}
}

// Execute runs the CLI.
func Execute() {
	if err := NewApp().Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// setup loads the runner config, applies global flag overrides and starts
// the logger.
func setup(c *cli.Context) error {
	if c.Bool("no-ansi") {
		colorsEnabled = false
	}

	var (
		cfg *config.Config
		err error
	)
	if path := c.String("config"); path != "" {
		cfg, err = config.LoadPath(path)
	} else {
		cfg, err = config.LoadDefault()
	}
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	if c.IsSet("driver") {
		cfg.Driver = c.String("driver")
	}
	if c.IsSet("webdriver-url") {
		cfg.WebDriver.URL = c.String("webdriver-url")
	}
	if path := c.String("caps"); path != "" {
		caps, err := loadCapabilities(path)
		if err != nil {
			return err
		}
		cfg.WebDriver.Capabilities = caps
	}
	if c.Bool("verbose") {
		cfg.Log.Level = "debug"
	}
	if c.IsSet("log-file") {
		cfg.Log.File = c.String("log-file")
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	if err := logger.Init(logger.Options{
		Level:   consoleLevel(cfg, c.Bool("verbose")),
		File:    cfg.Log.File,
		Console: c.App.ErrWriter,
	}); err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}

	if c.App.Metadata == nil {
		c.App.Metadata = map[string]interface{}{}
	}
	c.App.Metadata[configKey] = cfg
	return nil
}

// consoleLevel keeps the terminal to warnings unless asked for more, since
// step progress is printed separately.
func consoleLevel(cfg *config.Config, verbose bool) string {
	if verbose {
		return "debug"
	}
	if cfg.Log.Level == "" || cfg.Log.Level == config.DefaultLogLevel {
		return "warn"
	}
	return cfg.Log.Level
}

// getConfig returns the config loaded by setup.
func getConfig(c *cli.Context) *config.Config {
	if cfg, ok := c.App.Metadata[configKey].(*config.Config); ok {
		return cfg
	}
	return config.Default()
}
