package flow

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/devicelab-dev/botrunner/pkg/core"
	"github.com/devicelab-dev/botrunner/pkg/driver/mock"
)

// fakeRuntime runs nested steps against a flat context with a single scope
// layer, which is enough to exercise the actions in isolation.
type fakeRuntime struct {
	driver   *mock.Driver
	http     *fakeHTTP
	context  map[string]any
	slept    []time.Duration
	subBots  []SubBot
	scopes   []map[string]any
	botValue map[string]any
}

func newFakeRuntime(cfg mock.Config) *fakeRuntime {
	return &fakeRuntime{
		driver:  mock.New(cfg),
		http:    &fakeHTTP{},
		context: map[string]any{},
	}
}

func (r *fakeRuntime) Driver() core.Driver           { return r.driver }
func (r *fakeRuntime) HTTP() core.HTTPClient         { return r.http }
func (r *fakeRuntime) ElementTimeout() time.Duration { return 10 * time.Millisecond }

func (r *fakeRuntime) Sleep(_ context.Context, d time.Duration) error {
	r.slept = append(r.slept, d)
	return nil
}

func (r *fakeRuntime) RunSteps(ctx context.Context, steps *StepList, scope map[string]any) (map[string]any, error) {
	r.scopes = append(r.scopes, scope)
	view := make(map[string]any, len(r.context)+len(scope))
	for k, v := range r.context {
		view[k] = v
	}
	for k, v := range scope {
		view[k] = v
	}

	outputs := make(map[string]any)
	for _, s := range steps.Steps() {
		in, err := s.Resolve(view)
		if err != nil {
			return nil, err
		}
		out, err := s.Execute(ctx, r, in)
		if err != nil {
			return nil, err
		}
		view[s.Title] = out
		r.context[s.Title] = out
		outputs[s.Title] = out
	}
	return outputs, nil
}

func (r *fakeRuntime) RunBot(_ context.Context, req SubBot) (map[string]any, error) {
	r.subBots = append(r.subBots, req)
	return r.botValue, nil
}

type fakeHTTP struct {
	requests []*core.HTTPRequest
	response *core.HTTPResponse
	err      error
}

func (h *fakeHTTP) Send(_ context.Context, req *core.HTTPRequest) (*core.HTTPResponse, error) {
	h.requests = append(h.requests, req)
	if h.err != nil {
		return nil, h.err
	}
	if h.response == nil {
		return &core.HTTPResponse{StatusCode: 200, Content: map[string]any{}}, nil
	}
	return h.response, nil
}

// runOne parses a single step and performs it against rt with ctxValues.
func runOne(t *testing.T, rt *fakeRuntime, spec map[string]any, ctxValues map[string]any) (map[string]any, error) {
	t.Helper()
	s, errs, err := newParser().ValidateStep(spec, "steps[0]")
	require.NoError(t, err)
	require.True(t, errs.Empty(), "validation: %v", errs.Flatten())

	in, err := s.Resolve(ctxValues)
	if err != nil {
		return nil, err
	}
	return s.Execute(context.Background(), rt, in)
}

func TestNavigate(t *testing.T) {
	rt := newFakeRuntime(mock.Config{})
	out, err := runOne(t, rt, step("Go", "navigate", map[string]any{"url": "https://${Site__host}/home"}),
		map[string]any{"Site": map[string]any{"host": "example.com"}})
	require.NoError(t, err)
	assert.Empty(t, out)

	url, _ := rt.driver.CurrentURL()
	assert.Equal(t, "https://example.com/home", url)
}

func TestWait_DeferredSecondsResolvedAtRunTime(t *testing.T) {
	rt := newFakeRuntime(mock.Config{})
	_, err := runOne(t, rt, step("Pause", "wait", map[string]any{"seconds": "${Config__delay}"}),
		map[string]any{"Config": map[string]any{"delay": 3}})
	require.NoError(t, err)
	assert.Equal(t, []time.Duration{3 * time.Second}, rt.slept)
}

func TestWait_DeferredSecondsWithWrongTypeFailsAtExecution(t *testing.T) {
	rt := newFakeRuntime(mock.Config{})
	_, err := runOne(t, rt, step("Pause", "wait", map[string]any{"seconds": "${Config__delay}"}),
		map[string]any{"Config": map[string]any{"delay": "soon"}})
	assert.ErrorIs(t, err, core.ErrInvalidValue)
}

func TestElementActionsWaitFirst(t *testing.T) {
	rt := newFakeRuntime(mock.Config{})

	_, err := runOne(t, rt, step("Name", "type", map[string]any{"element": "//input", "text": "ada", "clear": true}), nil)
	require.NoError(t, err)
	_, err = runOne(t, rt, step("Submit", "click", map[string]any{"element": "//button"}), nil)
	require.NoError(t, err)

	var methods []string
	for _, c := range rt.driver.Calls() {
		methods = append(methods, c.Method)
	}
	assert.Equal(t, []string{"WaitUntilPresent", "Type", "WaitUntilPresent", "Click"}, methods)
	assert.Equal(t, []any{"//input", "ada", true}, rt.driver.CallsTo("Type")[0].Args)
}

func TestClick_MissingElement(t *testing.T) {
	rt := newFakeRuntime(mock.Config{Missing: map[string]bool{"//nope": true}})
	_, err := runOne(t, rt, step("Submit", "click", map[string]any{"element": "//nope"}), nil)

	assert.ErrorIs(t, err, core.ErrElementNotFound)
	assert.Empty(t, rt.driver.CallsTo("Click"))
}

func TestWaitForElement_DefaultTimeout(t *testing.T) {
	rt := newFakeRuntime(mock.Config{})
	_, err := runOne(t, rt, step("Ready", "wait_for_element", map[string]any{"element": "//main"}), nil)
	require.NoError(t, err)

	calls := rt.driver.CallsTo("WaitUntilPresent")
	require.Len(t, calls, 1)
	assert.Equal(t, DefaultElementWait*time.Second, calls[0].Args[1])
}

func TestSelect_UnknownOption(t *testing.T) {
	rt := newFakeRuntime(mock.Config{Options: map[string][]string{"//select": {"a", "b"}}})

	_, err := runOne(t, rt, step("Pick", "select", map[string]any{"element": "//select", "option": "b"}), nil)
	require.NoError(t, err)

	_, err = runOne(t, rt, step("Pick", "select", map[string]any{"element": "//select", "option": "z"}), nil)
	assert.ErrorIs(t, err, core.ErrOptionNotFound)
}

func TestStoreXPath(t *testing.T) {
	rt := newFakeRuntime(mock.Config{Queries: map[string][]any{"//li/text()": {"one", "two"}}})

	out, err := runOne(t, rt, step("Items", "store_xpath", map[string]any{"selector": "//li/text()", "variable": "items"}), nil)
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"items": []any{"one", "two"}}, out)

	out, err = runOne(t, rt, step("First", "store_xpath", map[string]any{
		"selector": "//li/text()", "variable": "item", "select_first": true,
	}), nil)
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"item": "one"}, out)

	out, err = runOne(t, rt, step("None", "store_xpath", map[string]any{
		"selector": "//p", "variable": "item", "select_first": true,
	}), nil)
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"item": nil}, out)
}

func TestStorePageURL(t *testing.T) {
	rt := newFakeRuntime(mock.Config{})
	require.NoError(t, rt.driver.Navigate("https://example.com/a"))

	out, err := runOne(t, rt, step("Where", "store_page_url", nil), nil)
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"url": "https://example.com/a"}, out)
}

func TestMakeRequest(t *testing.T) {
	rt := newFakeRuntime(mock.Config{})
	rt.http.response = &core.HTTPResponse{StatusCode: 201, Content: map[string]any{"id": 7.0}}

	out, err := runOne(t, rt, step("Create", "make_request", map[string]any{
		"url":     "https://api/items",
		"method":  "POST",
		"body":    map[string]any{"name": "${Login__user}"},
		"headers": map[string]any{"X-Count": 2},
	}), map[string]any{"Login": map[string]any{"user": "ada"}})
	require.NoError(t, err)

	assert.Equal(t, map[string]any{"status_code": 201, "content": map[string]any{"id": 7.0}}, out)
	require.Len(t, rt.http.requests, 1)
	req := rt.http.requests[0]
	assert.Equal(t, "POST", req.Method)
	assert.Equal(t, map[string]any{"name": "ada"}, req.Body)
	assert.Equal(t, map[string]string{"X-Count": "2"}, req.Headers)
}

func TestMakeRequest_DefaultsToGetWithoutBody(t *testing.T) {
	rt := newFakeRuntime(mock.Config{})
	_, err := runOne(t, rt, step("Fetch", "make_request", map[string]any{"url": "https://api"}), nil)
	require.NoError(t, err)

	req := rt.http.requests[0]
	assert.Equal(t, "GET", req.Method)
	assert.Nil(t, req.Body)
	assert.Empty(t, req.Headers)
}

func TestMakeRequest_TransportError(t *testing.T) {
	rt := newFakeRuntime(mock.Config{})
	rt.http.err = core.ErrServerUnreachable
	_, err := runOne(t, rt, step("Fetch", "make_request", map[string]any{"url": "https://api"}), nil)
	assert.ErrorIs(t, err, core.ErrServerUnreachable)
}

func TestIterateOver(t *testing.T) {
	rt := newFakeRuntime(mock.Config{})
	out, err := runOne(t, rt, step("Loop", "iterate_over", map[string]any{
		"iterator": "${Search__results}",
		"steps":    step("Open", "navigate", map[string]any{"url": "${current_item}"}),
	}), map[string]any{"Search": map[string]any{"results": []any{"/a", "/b", "/c"}}})
	require.NoError(t, err)

	var urls []any
	for _, c := range rt.driver.CallsTo("Navigate") {
		urls = append(urls, c.Args[0])
	}
	assert.Equal(t, []any{"/a", "/b", "/c"}, urls)
	assert.Len(t, out, 3)
	assert.Contains(t, out, "2")

	require.Len(t, rt.scopes, 3)
	for i, scope := range rt.scopes {
		assert.Equal(t, i, scope[ScopeCurrentIndexZero])
		assert.Equal(t, i+1, scope[ScopeCurrentIndexOne])
	}
}

func TestIterateOver_NotASequence(t *testing.T) {
	rt := newFakeRuntime(mock.Config{})
	_, err := runOne(t, rt, step("Loop", "iterate_over", map[string]any{
		"iterator": "${Search__count}",
	}), map[string]any{"Search": map[string]any{"count": 3}})
	assert.ErrorIs(t, err, core.ErrNotSequence)
}

func TestIterateOver_EmptyIterator(t *testing.T) {
	rt := newFakeRuntime(mock.Config{})
	out, err := runOne(t, rt, step("Loop", "iterate_over", map[string]any{
		"iterator": []any{},
		"steps":    step("Open", "navigate", map[string]any{"url": "x"}),
	}), nil)
	require.NoError(t, err)
	assert.Empty(t, out)
	assert.Empty(t, rt.driver.CallsTo("Navigate"))
}

func TestConditional(t *testing.T) {
	nested := step("Go", "navigate", map[string]any{"url": "https://x"})
	ctxValues := map[string]any{"Count": map[string]any{"value": "5"}}

	tests := []struct {
		name    string
		fields  map[string]any
		success bool
	}{
		{"equal", map[string]any{"value": "${Count__value}", "equals": "5"}, true},
		{"not equal", map[string]any{"value": "${Count__value}", "equals": "3"}, false},
		{"negated", map[string]any{"value": "${Count__value}", "equals": "3", "negate": true}, true},
		{"negated equal", map[string]any{"value": "${Count__value}", "equals": "5", "negate": true}, false},
		{"literal text", map[string]any{"value": "5", "equals": "5"}, true},
		{"numeric", map[string]any{"value": 5, "equals": 5.0}, true},
		{"lists as sets", map[string]any{"value": []any{"a", "b"}, "equals": []any{"b", "a", "a"}}, true},
		{"query matches", map[string]any{"value": "//li/text()", "equals": []any{"2", "1"}}, true},
		{"query differs", map[string]any{"value": "//li/text()", "equals": "1"}, false},
		{"query negated", map[string]any{"value": "//li/text()", "equals": []any{"1", "2"}, "negate": true}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rt := newFakeRuntime(mock.Config{Queries: map[string][]any{"//li/text()": {"1", 2}}})
			fields := map[string]any{"steps": nested}
			for k, v := range tt.fields {
				fields[k] = v
			}

			out, err := runOne(t, rt, step("Check", "conditional", fields), ctxValues)
			require.NoError(t, err)
			assert.Equal(t, tt.success, out["success"])

			if tt.success {
				assert.Contains(t, out, "Go")
				assert.Len(t, rt.driver.CallsTo("Navigate"), 1)
			} else {
				assert.Equal(t, map[string]any{"success": false}, out)
				assert.Empty(t, rt.driver.CallsTo("Navigate"))
			}
		})
	}
}

func TestConditional_LiteralTextIsNotAQuery(t *testing.T) {
	rt := newFakeRuntime(mock.Config{})
	out, err := runOne(t, rt, step("Check", "conditional", map[string]any{
		"value": "ready", "equals": "ready",
	}), nil)
	require.NoError(t, err)
	assert.Equal(t, true, out["success"])
	assert.Empty(t, rt.driver.CallsTo("EvaluateQuery"))
}

func TestConditional_ResolvedPathIsNotAQuery(t *testing.T) {
	rt := newFakeRuntime(mock.Config{})
	out, err := runOne(t, rt, step("Check", "conditional", map[string]any{
		"value": "${Page__path}", "equals": "/home",
	}), map[string]any{"Page": map[string]any{"path": "/home"}})
	require.NoError(t, err)
	assert.Equal(t, true, out["success"])
	assert.Empty(t, rt.driver.CallsTo("EvaluateQuery"))
}

func TestRunBot(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "child.yaml")
	require.NoError(t, os.WriteFile(path, []byte("title: child\nsteps: []\n"), 0o644))

	rt := newFakeRuntime(mock.Config{})
	rt.botValue = map[string]any{"Inner": map[string]any{"url": "x"}}

	out, err := runOne(t, rt, step("Child", "run_bot", map[string]any{
		"path":             path,
		"save_screenshots": false,
		"template_context": map[string]any{"user": "ada"},
	}), nil)
	require.NoError(t, err)
	assert.Equal(t, rt.botValue, out)

	require.Len(t, rt.subBots, 1)
	sub := rt.subBots[0]
	assert.Equal(t, path, sub.Path)
	require.NotNil(t, sub.SaveScreenshots)
	assert.False(t, *sub.SaveScreenshots)
	assert.False(t, sub.ParseTemplate)
	assert.Equal(t, map[string]any{"user": "ada"}, sub.TemplateContext)
}

func TestRunBot_MissingFileFailsValidation(t *testing.T) {
	_, err := newParser().Parse(doc(step("Child", "run_bot", map[string]any{
		"path": filepath.Join(t.TempDir(), "missing.yaml"),
	})))
	var verr *core.ValidationError
	require.True(t, errors.As(err, &verr))
	assert.NotNil(t, verr.Get("Child").Get("path"))
}

func TestStep_ResolveUnresolvable(t *testing.T) {
	s, _, err := newParser().ValidateStep(step("Go", "navigate", map[string]any{"url": "${A__items__x}"}), "steps[0]")
	require.NoError(t, err)

	_, err = s.Resolve(map[string]any{"A": map[string]any{"items": []any{1}}})
	assert.ErrorIs(t, err, core.ErrUnresolvable)
	assert.Equal(t, core.StatusFailed, s.Status())
}

func TestStep_ResolveBeforeValidate(t *testing.T) {
	a, _ := DefaultRegistry().Lookup(ActionNavigate)
	s := NewStep("Go", ActionNavigate, a, map[string]any{"url": "x"})
	_, err := s.Resolve(nil)
	assert.Error(t, err)
}
