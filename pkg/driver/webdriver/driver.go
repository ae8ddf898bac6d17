package webdriver

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/devicelab-dev/botrunner/pkg/core"
)

// DefaultPollInterval is how often WaitUntilPresent looks for the element.
const DefaultPollInterval = 250 * time.Millisecond

// Options configures a new browser session.
type Options struct {
	ServerURL    string
	Capabilities map[string]interface{}
	PageLoad     time.Duration // 0 keeps the server default
	PollInterval time.Duration // 0 = DefaultPollInterval
}

// Driver implements core.Driver over one WebDriver session. Locators are
// XPath expressions.
type Driver struct {
	client       *Client
	pollInterval time.Duration
}

// NewDriver starts a browser session.
func NewDriver(ctx context.Context, opts Options) (*Driver, error) {
	client := NewClient(opts.ServerURL)
	if err := client.Connect(ctx, opts.Capabilities); err != nil {
		return nil, err
	}
	if err := client.SetTimeouts(opts.PageLoad, 0); err != nil {
		_ = client.Disconnect()
		return nil, fmt.Errorf("failed to set timeouts: %w", err)
	}
	return newDriver(client, opts.PollInterval), nil
}

func newDriver(client *Client, pollInterval time.Duration) *Driver {
	if pollInterval <= 0 {
		pollInterval = DefaultPollInterval
	}
	return &Driver{client: client, pollInterval: pollInterval}
}

// Navigate loads url.
func (d *Driver) Navigate(url string) error {
	return d.client.NavigateTo(url)
}

// Click clicks the element at locator.
func (d *Driver) Click(locator string) error {
	id, err := d.find(locator)
	if err != nil {
		return err
	}
	return d.client.ClickElement(id)
}

// Type sends text to the element at locator, clearing it first if asked.
func (d *Driver) Type(locator, text string, clear bool) error {
	id, err := d.find(locator)
	if err != nil {
		return err
	}
	if clear {
		if err := d.client.ClearElement(id); err != nil {
			return err
		}
	}
	return d.client.SendKeys(id, text)
}

// Select picks the option of the select element at locator whose value or
// visible text equals option.
func (d *Driver) Select(locator, option string) error {
	id, err := d.find(locator)
	if err != nil {
		return err
	}
	lit := xpathLiteral(option)
	optionID, err := d.client.FindElementFrom(id, "xpath",
		fmt.Sprintf(".//option[@value=%s or normalize-space(.)=%s]", lit, lit))
	if err != nil {
		if IsNoSuchElement(err) {
			return core.ErrOptionNotFound.
				WithMessage(fmt.Sprintf("the option %q could not be found in %s", option, locator)).
				WithCause(err)
		}
		return err
	}
	return d.client.ClickElement(optionID)
}

// WaitUntilPresent polls until locator matches at least one element.
func (d *Driver) WaitUntilPresent(ctx context.Context, locator string, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	for {
		ids, err := d.client.FindElements("xpath", locator)
		if err != nil && !IsNoSuchElement(err) {
			return err
		}
		if len(ids) > 0 {
			return nil
		}
		if time.Now().After(deadline) {
			return core.ErrWaitTimeout.
				WithMessage(fmt.Sprintf("no element matched %s within %s", locator, timeout))
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(d.pollInterval):
		}
	}
}

// evaluateScript returns the nodes selected by an XPath expression as
// strings: text content for elements, the value for text and attribute
// nodes. Scalar results come back as a one-element list.
const evaluateScript = `var result = document.evaluate(arguments[0], document, null, XPathResult.ANY_TYPE, null);
switch (result.resultType) {
case XPathResult.NUMBER_TYPE: return [result.numberValue];
case XPathResult.STRING_TYPE: return [result.stringValue];
case XPathResult.BOOLEAN_TYPE: return [result.booleanValue];
}
var out = [];
for (var node = result.iterateNext(); node; node = result.iterateNext()) {
  out.push(node.nodeType === 1 ? node.textContent : node.nodeValue);
}
return out;`

// EvaluateQuery evaluates an XPath expression in the page.
func (d *Driver) EvaluateQuery(query string) ([]any, error) {
	value, err := d.client.ExecuteScript(evaluateScript, query)
	if err != nil {
		return nil, core.ErrInvalidValue.
			WithMessage(fmt.Sprintf("cannot evaluate %s", query)).
			WithCause(err)
	}
	results, ok := value.([]interface{})
	if !ok {
		if value == nil {
			return []any{}, nil
		}
		return []any{value}, nil
	}
	return results, nil
}

// CurrentURL returns the current page URL.
func (d *Driver) CurrentURL() (string, error) {
	return d.client.CurrentURL()
}

// Screenshot returns the viewport as PNG bytes.
func (d *Driver) Screenshot() ([]byte, error) {
	return d.client.Screenshot()
}

// Close ends the browser session.
func (d *Driver) Close() error {
	return d.client.Disconnect()
}

func (d *Driver) find(locator string) (string, error) {
	id, err := d.client.FindElement("xpath", locator)
	if err != nil {
		if IsNoSuchElement(err) {
			return "", core.ErrElementNotFound.
				WithMessage(fmt.Sprintf("no element matched %s", locator)).
				WithCause(err)
		}
		return "", err
	}
	return id, nil
}

// xpathLiteral quotes s as an XPath 1.0 string literal. XPath has no escape
// sequences, so a value holding both quote kinds is built with concat().
func xpathLiteral(s string) string {
	if !strings.Contains(s, `"`) {
		return `"` + s + `"`
	}
	if !strings.Contains(s, "'") {
		return "'" + s + "'"
	}
	parts := strings.Split(s, `"`)
	quoted := make([]string, len(parts))
	for i, p := range parts {
		quoted[i] = `"` + p + `"`
	}
	return "concat(" + strings.Join(quoted, `, '"', `) + ")"
}

var _ core.Driver = (*Driver)(nil)
