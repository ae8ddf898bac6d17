// Package config handles runner configuration for botrunner.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/multierr"
	"gopkg.in/yaml.v3"

	"github.com/devicelab-dev/botrunner/pkg/core"
	"github.com/devicelab-dev/botrunner/pkg/logger"
)

// Driver names accepted in the driver setting.
const (
	DriverWebDriver = "webdriver"
	DriverMock      = "mock"
)

// Defaults applied before the config file is read.
const (
	DefaultWebDriverURL   = "http://localhost:9515"
	DefaultElementTimeout = 10 * time.Second
	DefaultLogLevel       = "info"
)

// Config represents the runner configuration (botrunner.yaml).
type Config struct {
	Driver    string          `yaml:"driver"` // webdriver, mock
	WebDriver WebDriverConfig `yaml:"webdriver"`

	// Execution settings
	Screenshots    ScreenshotConfig  `yaml:"screenshots"`
	Delay          DelayConfig       `yaml:"delay"`
	ElementTimeout time.Duration     `yaml:"element_timeout"`
	Parallel       int               `yaml:"parallel"` // Browser sessions; 0 or 1 runs bots sequentially
	Vars           map[string]string `yaml:"vars"`     // Template variables for bot documents
	HTTPTimeout    time.Duration     `yaml:"http_timeout"`

	// Output
	Log             LogConfig `yaml:"log"`
	Report          string    `yaml:"report"`           // Report directory; empty disables the report
	MetricsTextfile string    `yaml:"metrics_textfile"` // Prometheus textfile; empty disables export
}

// WebDriverConfig configures the browser session.
type WebDriverConfig struct {
	URL             string                 `yaml:"url"`
	Capabilities    map[string]interface{} `yaml:"capabilities"`
	PageLoadTimeout time.Duration          `yaml:"page_load_timeout"`
}

// ScreenshotConfig controls per-step screenshots.
type ScreenshotConfig struct {
	Enabled bool   `yaml:"enabled"`
	Dir     string `yaml:"dir"`
}

// DelayConfig is the pause between top-level steps.
type DelayConfig struct {
	Min time.Duration `yaml:"min"`
	Max time.Duration `yaml:"max"`
}

// LogConfig configures the logger sinks.
type LogConfig struct {
	Level string `yaml:"level"`
	File  string `yaml:"file"`
}

// Default returns the configuration used when no file is present.
func Default() *Config {
	artifacts := core.DefaultArtifactConfig()
	return &Config{
		Driver: DriverWebDriver,
		WebDriver: WebDriverConfig{
			URL: DefaultWebDriverURL,
		},
		Screenshots: ScreenshotConfig{
			Enabled: artifacts.Enabled,
			Dir:     artifacts.Dir,
		},
		ElementTimeout: DefaultElementTimeout,
		Log:            LogConfig{Level: DefaultLogLevel},
	}
}

// Load loads configuration from a file on top of the defaults and
// validates it.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path) //#nosec G304 -- user-provided config file
	if err != nil {
		return nil, err
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}

	logger.Debug("loaded config from %s", path)
	return cfg, nil
}

// LoadFromDir looks for botrunner.yaml or botrunner.yml in the directory.
func LoadFromDir(dir string) (*Config, error) {
	if configPath, ok := findConfig(dir); ok {
		return Load(configPath)
	}

	// No config file found, use defaults
	return Default(), nil
}

// LoadPath loads path as a config file, or as a directory holding one.
func LoadPath(path string) (*Config, error) {
	if info, err := os.Stat(path); err == nil && info.IsDir() {
		return LoadFromDir(path)
	}
	return Load(path)
}

func findConfig(dir string) (string, bool) {
	for _, name := range []string{"botrunner.yaml", "botrunner.yml"} {
		configPath := filepath.Join(dir, name)
		if _, err := os.Stat(configPath); err == nil {
			return configPath, true
		}
	}
	return "", false
}

// Validate reports every invalid setting at once.
func (c *Config) Validate() error {
	var err error
	switch c.Driver {
	case DriverWebDriver:
		if c.WebDriver.URL == "" {
			err = multierr.Append(err, fmt.Errorf("webdriver.url is required for the webdriver driver"))
		}
	case DriverMock:
	default:
		err = multierr.Append(err, fmt.Errorf("unknown driver %q (want %s or %s)", c.Driver, DriverWebDriver, DriverMock))
	}

	if c.Delay.Min < 0 || c.Delay.Max < 0 {
		err = multierr.Append(err, fmt.Errorf("delay must not be negative"))
	}
	if c.Delay.Max > 0 && c.Delay.Max < c.Delay.Min {
		err = multierr.Append(err, fmt.Errorf("delay.max (%s) is below delay.min (%s)", c.Delay.Max, c.Delay.Min))
	}
	if c.ElementTimeout < 0 {
		err = multierr.Append(err, fmt.Errorf("element_timeout must not be negative"))
	}
	if c.Parallel < 0 {
		err = multierr.Append(err, fmt.Errorf("parallel must not be negative"))
	}
	if c.Screenshots.Enabled && c.Screenshots.Dir == "" {
		err = multierr.Append(err, fmt.Errorf("screenshots.dir is required when screenshots are enabled"))
	}
	if _, lerr := logger.ParseLevel(c.Log.Level); lerr != nil {
		err = multierr.Append(err, lerr)
	}
	return err
}

// Artifacts returns the screenshot settings as an artifact config.
func (c *Config) Artifacts() core.ArtifactConfig {
	artifacts := core.DefaultArtifactConfig()
	artifacts.Enabled = c.Screenshots.Enabled
	artifacts.Dir = c.Screenshots.Dir
	return artifacts
}
