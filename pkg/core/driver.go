package core

import (
	"context"
	"time"
)

// Driver performs browser actions on behalf of steps.
// Implementations: WebDriver (chromedriver, geckodriver, Selenium Grid), mock.
// The Runner handles bot logic; Driver just executes individual commands.
// Locators are XPath expressions passed through verbatim.
type Driver interface {
	// Navigate loads url in the current window
	Navigate(url string) error

	// Click clicks the element matched by locator
	Click(locator string) error

	// Type sends text to the element matched by locator, clearing it first if clear is set
	Type(locator, text string, clear bool) error

	// Select picks option in the select-like element matched by locator.
	// Returns ErrOptionNotFound when the option does not exist.
	Select(locator, option string) error

	// WaitUntilPresent blocks until locator matches an element or timeout expires.
	// Returns ErrWaitTimeout on expiry.
	WaitUntilPresent(ctx context.Context, locator string, timeout time.Duration) error

	// EvaluateQuery evaluates a node-set query and returns the matched values
	EvaluateQuery(query string) ([]any, error)

	// CurrentURL returns the location of the current page
	CurrentURL() (string, error)

	// Screenshot captures the current page as PNG
	Screenshot() ([]byte, error)

	// Close releases the browser session
	Close() error
}

// HTTPClient sends requests for API-calling steps.
type HTTPClient interface {
	Send(ctx context.Context, req *HTTPRequest) (*HTTPResponse, error)
}

// HTTPRequest is an outgoing API call. Body is JSON-encoded when non-nil.
type HTTPRequest struct {
	Method  string
	URL     string
	Headers map[string]string
	Body    any
}

// HTTPResponse is the outcome of an API call.
// Content holds decoded JSON when the body is decodable as such, else the raw bytes.
type HTTPResponse struct {
	StatusCode int
	Content    any
}
