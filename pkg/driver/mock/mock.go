// Package mock provides a mock driver for testing and dry runs without a browser.
package mock

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/devicelab-dev/botrunner/pkg/core"
)

// Call records one driver invocation.
type Call struct {
	Method string
	Args   []any
}

func (c Call) String() string {
	return fmt.Sprintf("%s%v", c.Method, c.Args)
}

// Driver is a mock implementation of core.Driver for testing.
type Driver struct {
	// Configuration
	Config Config

	mu     sync.Mutex
	calls  []Call
	url    string
	closed bool
}

// Config configures mock driver behavior.
type Config struct {
	// FailOnCall makes call N fail (1-indexed, counting every method). 0 = never fail.
	FailOnCall int
	// Fail makes every call to the named methods fail.
	Fail map[string]error
	// Missing lists locators that never become present.
	Missing map[string]bool
	// Options maps a select locator to its available option values.
	// Locators not listed accept any option.
	Options map[string][]string
	// Queries maps a node-set query to its results.
	Queries map[string][]any
	// CallDelay adds artificial delay per call
	CallDelay time.Duration
}

// New creates a new mock driver.
func New(cfg Config) *Driver {
	return &Driver{Config: cfg, url: "about:blank"}
}

// Calls returns the recorded calls.
func (d *Driver) Calls() []Call {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]Call(nil), d.calls...)
}

// CallsTo returns the recorded calls to method.
func (d *Driver) CallsTo(method string) []Call {
	var out []Call
	for _, c := range d.Calls() {
		if c.Method == method {
			out = append(out, c)
		}
	}
	return out
}

// Closed reports whether Close was called.
func (d *Driver) Closed() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.closed
}

func (d *Driver) record(method string, args ...any) error {
	if d.Config.CallDelay > 0 {
		time.Sleep(d.Config.CallDelay)
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	d.calls = append(d.calls, Call{Method: method, Args: args})

	if d.Config.FailOnCall > 0 && len(d.calls) == d.Config.FailOnCall {
		return fmt.Errorf("mock failure on call %d (%s)", len(d.calls), method)
	}
	if err, ok := d.Config.Fail[method]; ok {
		if err == nil {
			err = fmt.Errorf("mock failure in %s", method)
		}
		return err
	}
	return nil
}

// Navigate records the navigation and updates the current URL.
func (d *Driver) Navigate(url string) error {
	if err := d.record("Navigate", url); err != nil {
		return err
	}
	d.mu.Lock()
	d.url = url
	d.mu.Unlock()
	return nil
}

// Click records a click.
func (d *Driver) Click(locator string) error {
	if d.Config.Missing[locator] {
		_ = d.record("Click", locator)
		return core.ErrElementNotFound.WithDetails(map[string]any{"locator": locator})
	}
	return d.record("Click", locator)
}

// Type records typed text.
func (d *Driver) Type(locator, text string, clear bool) error {
	return d.record("Type", locator, text, clear)
}

// Select records a selection, failing when the option is not available.
func (d *Driver) Select(locator, option string) error {
	if err := d.record("Select", locator, option); err != nil {
		return err
	}
	options, ok := d.Config.Options[locator]
	if !ok {
		return nil
	}
	for _, o := range options {
		if o == option {
			return nil
		}
	}
	return core.ErrOptionNotFound.WithMessage(fmt.Sprintf("the option %q could not be found", option))
}

// WaitUntilPresent succeeds immediately unless locator is configured missing,
// in which case it waits out the timeout (or ctx) and fails.
func (d *Driver) WaitUntilPresent(ctx context.Context, locator string, timeout time.Duration) error {
	if err := d.record("WaitUntilPresent", locator, timeout); err != nil {
		return err
	}
	if !d.Config.Missing[locator] {
		return nil
	}
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return core.ErrWaitTimeout.WithDetails(map[string]any{"locator": locator})
	}
}

// EvaluateQuery returns the configured results for query.
func (d *Driver) EvaluateQuery(query string) ([]any, error) {
	if err := d.record("EvaluateQuery", query); err != nil {
		return nil, err
	}
	return append([]any{}, d.Config.Queries[query]...), nil
}

// CurrentURL returns the last navigated URL.
func (d *Driver) CurrentURL() (string, error) {
	if err := d.record("CurrentURL"); err != nil {
		return "", err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.url, nil
}

// Screenshot returns a mock PNG image.
func (d *Driver) Screenshot() ([]byte, error) {
	if err := d.record("Screenshot"); err != nil {
		return nil, err
	}
	// Minimal valid PNG (1x1 transparent pixel)
	return []byte{
		0x89, 0x50, 0x4E, 0x47, 0x0D, 0x0A, 0x1A, 0x0A, // PNG signature
		0x00, 0x00, 0x00, 0x0D, 0x49, 0x48, 0x44, 0x52, // IHDR chunk
		0x00, 0x00, 0x00, 0x01, 0x00, 0x00, 0x00, 0x01,
		0x08, 0x06, 0x00, 0x00, 0x00, 0x1F, 0x15, 0xC4,
		0x89, 0x00, 0x00, 0x00, 0x0A, 0x49, 0x44, 0x41,
		0x54, 0x78, 0x9C, 0x63, 0x00, 0x01, 0x00, 0x00,
		0x05, 0x00, 0x01, 0x0D, 0x0A, 0x2D, 0xB4, 0x00,
		0x00, 0x00, 0x00, 0x49, 0x45, 0x4E, 0x44, 0xAE,
		0x42, 0x60, 0x82,
	}, nil
}

// Close marks the driver closed.
func (d *Driver) Close() error {
	if err := d.record("Close"); err != nil {
		return err
	}
	d.mu.Lock()
	d.closed = true
	d.mu.Unlock()
	return nil
}

var _ core.Driver = (*Driver)(nil)
