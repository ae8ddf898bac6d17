// Package webdriver implements core.Driver against a W3C WebDriver server
// such as chromedriver, geckodriver or a Selenium Grid.
package webdriver

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/devicelab-dev/botrunner/pkg/core"
	"github.com/devicelab-dev/botrunner/pkg/logger"
)

// W3C WebDriver element identifier key (standard constant)
const w3cElementKey = "element-6066-11e4-a52e-4f735466cecf"

// W3C error codes the driver reacts to.
const (
	errNoSuchElement = "no such element"
	errStaleElement  = "stale element reference"
)

// Error is an error reported by the WebDriver server.
type Error struct {
	Code    string // W3C error code, e.g. "no such element"
	Message string
	Status  int
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// IsNoSuchElement reports whether err is a W3C "no such element" error.
func IsNoSuchElement(err error) bool {
	var wdErr *Error
	return errors.As(err, &wdErr) && (wdErr.Code == errNoSuchElement || wdErr.Code == errStaleElement)
}

// Client handles HTTP communication with the WebDriver server.
type Client struct {
	serverURL string
	sessionID string
	client    *http.Client
}

// NewClient creates a new WebDriver client.
func NewClient(serverURL string) *Client {
	return &Client{
		serverURL: strings.TrimSuffix(serverURL, "/"),
		client: &http.Client{
			Timeout: 2 * time.Minute, // Page loads block the navigate call
		},
	}
}

// Connect creates a new session with the given capabilities.
func (c *Client) Connect(ctx context.Context, capabilities map[string]interface{}) error {
	if capabilities == nil {
		capabilities = map[string]interface{}{}
	}
	body := map[string]interface{}{
		"capabilities": map[string]interface{}{
			"alwaysMatch": capabilities,
		},
	}

	resp, err := c.request(ctx, "POST", "/session", body)
	if err != nil {
		return fmt.Errorf("failed to create session: %w", err)
	}

	value, ok := resp["value"].(map[string]interface{})
	if !ok {
		return fmt.Errorf("invalid session response")
	}

	c.sessionID, _ = value["sessionId"].(string)
	if c.sessionID == "" {
		return fmt.Errorf("no session ID in response")
	}
	return nil
}

// Disconnect closes the session.
func (c *Client) Disconnect() error {
	if c.sessionID == "" {
		return nil
	}
	_, err := c.delete(c.sessionPath())
	c.sessionID = ""
	return err
}

// SessionID returns the active session ID.
func (c *Client) SessionID() string {
	return c.sessionID
}

// Navigation

// NavigateTo loads url in the current browsing context.
func (c *Client) NavigateTo(url string) error {
	_, err := c.post(c.sessionPath()+"/url", map[string]interface{}{
		"url": url,
	})
	return err
}

// CurrentURL returns the URL of the current page.
func (c *Client) CurrentURL() (string, error) {
	resp, err := c.get(c.sessionPath() + "/url")
	if err != nil {
		return "", err
	}
	url, _ := resp["value"].(string)
	return url, nil
}

// Element Operations

// FindElement finds a single element.
func (c *Client) FindElement(strategy, value string) (string, error) {
	return c.findElementFrom(c.sessionPath(), strategy, value)
}

// FindElementFrom finds an element relative to parentID.
func (c *Client) FindElementFrom(parentID, strategy, value string) (string, error) {
	return c.findElementFrom(c.elementPath(parentID), strategy, value)
}

func (c *Client) findElementFrom(base, strategy, value string) (string, error) {
	body := map[string]interface{}{
		"using": strategy,
		"value": value,
	}

	resp, err := c.post(base+"/element", body)
	if err != nil {
		return "", err
	}

	elemValue, ok := resp["value"].(map[string]interface{})
	if !ok {
		return "", &Error{Code: errNoSuchElement, Message: "empty element response"}
	}
	id := extractElementID(elemValue)
	if id == "" {
		return "", &Error{Code: errNoSuchElement, Message: "response carries no element reference"}
	}
	return id, nil
}

// FindElements finds multiple elements.
func (c *Client) FindElements(strategy, value string) ([]string, error) {
	body := map[string]interface{}{
		"using": strategy,
		"value": value,
	}

	resp, err := c.post(c.sessionPath()+"/elements", body)
	if err != nil {
		return nil, err
	}

	values, ok := resp["value"].([]interface{})
	if !ok {
		return nil, nil
	}

	var ids []string
	for _, v := range values {
		if elem, ok := v.(map[string]interface{}); ok {
			if id := extractElementID(elem); id != "" {
				ids = append(ids, id)
			}
		}
	}
	return ids, nil
}

// ClickElement clicks an element.
func (c *Client) ClickElement(elementID string) error {
	_, err := c.post(c.elementPath(elementID)+"/click", map[string]interface{}{})
	return err
}

// ClearElement clears an editable element.
func (c *Client) ClearElement(elementID string) error {
	_, err := c.post(c.elementPath(elementID)+"/clear", map[string]interface{}{})
	return err
}

// SendKeys types text into an element.
func (c *Client) SendKeys(elementID, text string) error {
	_, err := c.post(c.elementPath(elementID)+"/value", map[string]interface{}{
		"text": text,
	})
	return err
}

// Scripts

// ExecuteScript runs a synchronous script in the page and returns its value.
func (c *Client) ExecuteScript(script string, args ...interface{}) (interface{}, error) {
	if args == nil {
		args = []interface{}{}
	}
	resp, err := c.post(c.sessionPath()+"/execute/sync", map[string]interface{}{
		"script": script,
		"args":   args,
	})
	if err != nil {
		return nil, err
	}
	return resp["value"], nil
}

// Screen Operations

// Screenshot returns a screenshot as PNG bytes.
func (c *Client) Screenshot() ([]byte, error) {
	resp, err := c.get(c.sessionPath() + "/screenshot")
	if err != nil {
		return nil, err
	}
	encoded, ok := resp["value"].(string)
	if !ok {
		return nil, fmt.Errorf("invalid screenshot response")
	}
	return base64.StdEncoding.DecodeString(encoded)
}

// Timeouts

// SetTimeouts sets the session's page load and script timeouts.
func (c *Client) SetTimeouts(pageLoad, script time.Duration) error {
	body := map[string]interface{}{}
	if pageLoad > 0 {
		body["pageLoad"] = pageLoad.Milliseconds()
	}
	if script > 0 {
		body["script"] = script.Milliseconds()
	}
	if len(body) == 0 {
		return nil
	}
	_, err := c.post(c.sessionPath()+"/timeouts", body)
	return err
}

// HTTP Helpers

func (c *Client) sessionPath() string {
	return "/session/" + c.sessionID
}

func (c *Client) elementPath(elementID string) string {
	return c.sessionPath() + "/element/" + elementID
}

func (c *Client) get(path string) (map[string]interface{}, error) {
	return c.request(context.Background(), "GET", path, nil)
}

func (c *Client) post(path string, body interface{}) (map[string]interface{}, error) {
	return c.request(context.Background(), "POST", path, body)
}

func (c *Client) delete(path string) (map[string]interface{}, error) {
	return c.request(context.Background(), "DELETE", path, nil)
}

func (c *Client) request(ctx context.Context, method, path string, body interface{}) (map[string]interface{}, error) {
	url := c.serverURL + path

	var bodyReader io.Reader
	if body != nil {
		jsonBody, err := json.Marshal(body)
		if err != nil {
			return nil, err
		}
		bodyReader = bytes.NewReader(jsonBody)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, bodyReader)
	if err != nil {
		return nil, err
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, core.ErrServerUnreachable.
			WithMessage(fmt.Sprintf("webdriver %s %s", method, path)).
			WithCause(err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	fmt.Fprintf(logger.GetWriter(), "webdriver %s %s -> %d\n", method, path, resp.StatusCode)

	var result map[string]interface{}
	if err := json.Unmarshal(respBody, &result); err != nil {
		return nil, fmt.Errorf("failed to parse response (HTTP %d): %w", resp.StatusCode, err)
	}

	// Check for WebDriver error
	if errValue, ok := result["value"].(map[string]interface{}); ok {
		if errType, ok := errValue["error"].(string); ok {
			msg, _ := errValue["message"].(string)
			return result, &Error{Code: errType, Message: msg, Status: resp.StatusCode}
		}
	}

	return result, nil
}

func extractElementID(value map[string]interface{}) string {
	// W3C format
	if id, ok := value[w3cElementKey].(string); ok {
		return id
	}
	// Legacy format
	if id, ok := value["ELEMENT"].(string); ok {
		return id
	}
	return ""
}
