package flow

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/devicelab-dev/botrunner/pkg/core"
)

func newParser() *Parser {
	return NewParser(DefaultRegistry())
}

func step(title, action string, fields map[string]any) map[string]any {
	m := map[string]any{"title": title, "action": action}
	for k, v := range fields {
		m[k] = v
	}
	return m
}

func doc(steps ...any) map[string]any {
	return map[string]any{"title": "Demo", "steps": steps}
}

func requireValidationError(t *testing.T, err error) *core.ValidationError {
	t.Helper()
	var verr *core.ValidationError
	require.True(t, errors.As(err, &verr), "expected ValidationError, got %T: %v", err, err)
	return verr
}

func TestParse_ValidBot(t *testing.T) {
	bot, err := newParser().Parse(map[string]any{
		"title": "Demo",
		"steps": []any{
			step("Go", "navigate", map[string]any{"url": "https://x"}),
			step("Type name", "type", map[string]any{"element": "//input", "text": "ada"}),
			step("Fetch", "make_request", map[string]any{"url": "https://api"}),
		},
		"exception_steps": []any{
			step("Where", "store_page_url", nil),
		},
	})
	require.NoError(t, err)

	assert.Equal(t, "Demo", bot.Title)
	assert.Equal(t, []string{"Go", "Type name", "Fetch"}, bot.Steps.Titles())
	assert.Equal(t, []string{"Where"}, bot.ExceptionSteps.Titles())

	typed, _ := bot.Steps.Get("Type name")
	assert.Equal(t, false, typed.ValidatedData()["clear"], "default applied")
	assert.Equal(t, core.StatusValidated, typed.Status())

	fetch, _ := bot.Steps.Get("Fetch")
	assert.Equal(t, "GET", fetch.ValidatedData()["method"])
}

func TestParse_ExceptionStepsOptional(t *testing.T) {
	bot, err := newParser().Parse(doc(step("Go", "navigate", map[string]any{"url": "https://x"})))
	require.NoError(t, err)
	assert.Equal(t, 0, bot.ExceptionSteps.Len())
}

func TestParse_StructuralErrors(t *testing.T) {
	tests := []struct {
		name string
		doc  any
	}{
		{"not a mapping", []any{"x"}},
		{"missing title", map[string]any{"steps": []any{}}},
		{"empty title", map[string]any{"title": "", "steps": []any{}}},
		{"steps not a list", map[string]any{"title": "x", "steps": "nope"}},
		{"exception_steps not a list", map[string]any{"title": "x", "steps": []any{}, "exception_steps": map[string]any{}}},
		{"step not a mapping", doc("navigate")},
		{"step without title", doc(map[string]any{"action": "navigate", "url": "https://x"})},
		{
			"missing title aborts after field errors",
			doc(
				step("Bad", "navigate", nil),
				map[string]any{"action": "navigate"},
			),
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := newParser().Parse(tt.doc)
			var serr *core.StructuralError
			assert.True(t, errors.As(err, &serr), "got %T: %v", err, err)
		})
	}
}

func TestParse_CollectsEveryError(t *testing.T) {
	_, err := newParser().Parse(doc(
		step("Nowhere", "teleport", nil),
		map[string]any{"title": "No action"},
		step("Go", "navigate", nil),
		step("Fetch", "make_request", map[string]any{"url": 5, "method": "DELETE", "headers": "x"}),
		step("Fine", "store_page_url", nil),
	))
	verr := requireValidationError(t, err)

	assert.Equal(t, []string{"Nowhere", "No action", "Go", "Fetch"}, verr.Keys())
	assert.Contains(t, verr.Get("Nowhere").Messages[0], `Unknown action "teleport"`)
	assert.Equal(t, []string{MissingActionMessage}, verr.Get("No action").Messages)
	assert.Equal(t, []string{"This field is required."}, verr.Get("Go").Get("url").Messages)

	fetch := verr.Get("Fetch")
	assert.Equal(t, []string{"url", "method", "headers"}, fetch.Keys())
}

func TestParse_DuplicateTitlesReportedForEveryOccurrence(t *testing.T) {
	_, err := newParser().Parse(doc(
		step("A", "navigate", map[string]any{"url": "https://1"}),
		step("B", "navigate", map[string]any{"url": "https://2"}),
		step("A", "navigate", map[string]any{"url": "https://3"}),
	))
	verr := requireValidationError(t, err)

	assert.Equal(t, []string{"A"}, verr.Keys())
	assert.Equal(t, []string{DuplicateTitleMessage, DuplicateTitleMessage}, verr.Get("A").Messages)
}

func TestParse_DuplicateAcrossSequencesAllowed(t *testing.T) {
	_, err := newParser().Parse(map[string]any{
		"title":           "Demo",
		"steps":           []any{step("A", "store_page_url", nil)},
		"exception_steps": []any{step("A", "store_page_url", nil)},
	})
	assert.NoError(t, err)
}

func TestParse_DeferredPlaceholderFields(t *testing.T) {
	bot, err := newParser().Parse(doc(
		step("Pause", "wait", map[string]any{"seconds": "${Config__delay}"}),
		step("Loop", "iterate_over", map[string]any{
			"iterator": "${Search__results}",
			"steps":    step("Open", "navigate", map[string]any{"url": "${current_item}"}),
		}),
	))
	require.NoError(t, err)

	pause, _ := bot.Steps.Get("Pause")
	assert.True(t, pause.Deferred("seconds"))
	assert.Equal(t, "${Config__delay}", pause.ValidatedData()["seconds"])

	loop, _ := bot.Steps.Get("Loop")
	assert.False(t, loop.Deferred("iterator"), "whole placeholder passes ResolvedOrTyped directly")
	require.Len(t, loop.Children(), 1)
	assert.Equal(t, []string{"Open"}, loop.Children()[0].Titles())
}

func TestParse_TwoPlaceholdersAreNotDeferred(t *testing.T) {
	_, err := newParser().Parse(doc(
		step("Pause", "wait", map[string]any{"seconds": "${a}${b}"}),
	))
	verr := requireValidationError(t, err)
	assert.NotNil(t, verr.Get("Pause").Get("seconds"))
}

func TestParse_NestedStepErrorsKeyedBySubStepTitle(t *testing.T) {
	_, err := newParser().Parse(doc(
		step("Loop", "iterate_over", map[string]any{
			"iterator": []any{1, 2},
			"steps": []any{
				step("Open", "navigate", nil),
				step("Jump", "teleport", nil),
			},
		}),
	))
	verr := requireValidationError(t, err)

	nested := verr.Get("Loop").Get("steps")
	require.NotNil(t, nested)
	assert.Equal(t, []string{"Open", "Jump"}, nested.Keys())
	assert.NotNil(t, nested.Get("Open").Get("url"))
}

func TestParse_NestedStructuralErrorAborts(t *testing.T) {
	_, err := newParser().Parse(doc(
		step("Check", "conditional", map[string]any{
			"value": 1, "equals": 1,
			"steps": []any{map[string]any{"action": "navigate"}},
		}),
	))
	var serr *core.StructuralError
	require.True(t, errors.As(err, &serr))
	assert.Equal(t, "Check.steps[0]", serr.Path)
}

func TestParse_RevalidationIsIdempotent(t *testing.T) {
	raw := doc(
		step("Go", "navigate", map[string]any{"url": "https://x"}),
		step("Fetch", "make_request", map[string]any{"url": "https://api", "body": map[string]any{"a": 1}}),
		step("Pause", "wait", map[string]any{"seconds": "${x}"}),
	)
	p := newParser()

	first, err := p.Parse(raw)
	require.NoError(t, err)
	second, err := p.Parse(raw)
	require.NoError(t, err)
	assert.Equal(t, first.Steps.Titles(), second.Steps.Titles())

	fetch, _ := first.Steps.Get("Fetch")
	before := fetch.ValidatedData()
	ok, err := fetch.Validate(p)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, before, fetch.ValidatedData())
	assert.True(t, fetch.Errors().Empty())

	// raw step data still carries title and action
	assert.Equal(t, "Go", raw["steps"].([]any)[0].(map[string]any)["title"])
}

func TestParse_InvalidStepRevalidatesToSameErrors(t *testing.T) {
	p := newParser()
	s, errs, err := p.ValidateStep(step("Pause", "wait", map[string]any{"seconds": "soon"}), "steps[0]")
	require.NoError(t, err)
	first := errs.Flatten()

	ok, err := s.Validate(p)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, first, s.Errors().Flatten())
	assert.Equal(t, core.StatusValidationFailed, s.Status())
	assert.Nil(t, s.ValidatedData())
}

func TestParseBytes(t *testing.T) {
	data := []byte(`
title: Search bot
steps:
  - title: Open
    action: navigate
    url: https://example.com
  - title: Results
    action: store_xpath
    selector: //li/text()
    variable: items
exception_steps:
  - title: Where
    action: store_page_url
`)
	bot, err := newParser().ParseBytes(data, "search.yaml")
	require.NoError(t, err)
	assert.Equal(t, "Search bot", bot.Title)
	assert.Equal(t, "search.yaml", bot.SourcePath)
	assert.Equal(t, []string{"Open", "Results"}, bot.Steps.Titles())
}

func TestParseBytes_InvalidYAML(t *testing.T) {
	_, err := newParser().ParseBytes([]byte("title: [unclosed"), "bad.yaml")
	var perr *ParseError
	require.True(t, errors.As(err, &perr))
	assert.Equal(t, "bad.yaml", perr.Path)
}

func TestLoadFile_WithTemplate(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bot.yaml")
	content := `
title: Hello {{ .name }}
steps:
  - title: Open
    action: navigate
    url: "{{ .base }}/users/${Login__id}"
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	p := newParser()
	bot, err := p.LoadFile(path, LoadOptions{
		Template:        true,
		TemplateContext: map[string]any{"name": "ada", "base": "https://x"},
	})
	require.NoError(t, err)
	assert.Equal(t, "Hello ada", bot.Title)

	open, _ := bot.Steps.Get("Open")
	assert.Equal(t, "https://x/users/${Login__id}", open.ValidatedData()["url"])

	_, err = p.LoadFile(path, LoadOptions{Template: true})
	assert.Error(t, err, "missing template keys are errors")

	_, err = p.LoadFile(filepath.Join(dir, "missing.yaml"), LoadOptions{})
	assert.Error(t, err)
}

func TestRenderTemplate(t *testing.T) {
	out, err := RenderTemplate("no templates ${here}", nil)
	require.NoError(t, err)
	assert.Equal(t, "no templates ${here}", out)

	out, err = RenderTemplate(`{{ .who | upper }} {{ default "x" .none }}`, map[string]any{"who": "ada", "none": nil})
	require.NoError(t, err)
	assert.Equal(t, "ADA x", out)

	_, err = RenderTemplate("{{ .broken", nil)
	assert.ErrorIs(t, err, ErrTemplateParse)

	_, err = RenderTemplate("{{ .missing }}", map[string]any{})
	assert.ErrorIs(t, err, ErrTemplateRender)
}
