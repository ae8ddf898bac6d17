package flow

import (
	"context"
	"strconv"
	"strings"

	"github.com/devicelab-dev/botrunner/pkg/expr"
	"github.com/devicelab-dev/botrunner/pkg/validator"
)

// Scope keys injected into the context while an iteration runs.
const (
	ScopeCurrentItem      = "current_item"
	ScopeCurrentIndexZero = "current_index_zero"
	ScopeCurrentIndexOne  = "current_index_one"
)

var (
	runBotSchema = Schema{
		{"path", FilePathField(Required())},
		{"save_screenshots", BooleanField()},
		{"parse_template", BooleanField(Default(false))},
		{"template_context", MappingField()},
	}
	iterateOverSchema = Schema{
		{"iterator", ResolvedField(validator.Sequence, Required())},
		{"steps", NestedStepsField()},
	}
	conditionalSchema = Schema{
		{"value", ResolvedField(validator.Any, Required())},
		{"equals", ResolvedField(validator.Any, Required())},
		{"negate", BooleanField(Default(false))},
		{"steps", NestedStepsField()},
	}
)

type runBotAction struct{}

func (runBotAction) Schema() Schema { return runBotSchema }

func (runBotAction) Execute(ctx context.Context, rt Runtime, in *Input) (map[string]any, error) {
	path, err := in.String("path")
	if err != nil {
		return nil, err
	}
	screenshots, err := in.OptionalBool("save_screenshots")
	if err != nil {
		return nil, err
	}
	parseTemplate, err := in.Bool("parse_template")
	if err != nil {
		return nil, err
	}
	templateContext, err := in.Map("template_context")
	if err != nil {
		return nil, err
	}

	return rt.RunBot(ctx, SubBot{
		Path:            path,
		SaveScreenshots: screenshots,
		ParseTemplate:   parseTemplate,
		TemplateContext: templateContext,
	})
}

type iterateOverAction struct{}

func (iterateOverAction) Schema() Schema { return iterateOverSchema }

func (iterateOverAction) Execute(ctx context.Context, rt Runtime, in *Input) (map[string]any, error) {
	items, err := in.List("iterator")
	if err != nil {
		return nil, err
	}
	steps := in.Steps("steps")

	out := make(map[string]any, len(items))
	for i, item := range items {
		outputs, err := rt.RunSteps(ctx, steps, map[string]any{
			ScopeCurrentItem:      item,
			ScopeCurrentIndexZero: i,
			ScopeCurrentIndexOne:  i + 1,
		})
		if err != nil {
			return nil, err
		}
		out[strconv.Itoa(i)] = outputs
	}
	return out, nil
}

type conditionalAction struct{}

func (conditionalAction) Schema() Schema { return conditionalSchema }

func (conditionalAction) Execute(ctx context.Context, rt Runtime, in *Input) (map[string]any, error) {
	negate, err := in.Bool("negate")
	if err != nil {
		return nil, err
	}

	holds, err := evaluateCondition(rt, in)
	if err != nil {
		return nil, err
	}
	if negate {
		holds = !holds
	}
	if !holds {
		return map[string]any{"success": false}, nil
	}

	outputs, err := rt.RunSteps(ctx, in.Steps("steps"), nil)
	if err != nil {
		return nil, err
	}
	out := map[string]any{"success": true}
	for title, output := range outputs {
		out[title] = output
	}
	return out, nil
}

// evaluateCondition compares value and equals. A value that was left
// unsubstituted and reads as an XPath node-set is evaluated through the
// driver and compared as a set against equals.
func evaluateCondition(rt Runtime, in *Input) (bool, error) {
	value, equals := in.Value("value"), in.Value("equals")

	if query, ok := value.(string); ok && query == in.Raw("value") && isNodeSetQuery(query) {
		results, err := rt.Driver().EvaluateQuery(query)
		if err != nil {
			return false, err
		}
		expected, ok := expr.AsList(equals)
		if !ok {
			expected = []any{equals}
		}
		return sameSet(stringifyAll(results), stringifyAll(expected)), nil
	}

	a, aIsList := expr.AsList(value)
	b, bIsList := expr.AsList(equals)
	if aIsList && bIsList {
		return sameSet(a, b), nil
	}
	return expr.Equal(value, equals), nil
}

func isNodeSetQuery(s string) bool {
	return strings.HasPrefix(s, "/") || strings.HasPrefix(s, "./") || strings.HasPrefix(s, "(")
}

func stringifyAll(values []any) []any {
	out := make([]any, len(values))
	for i, v := range values {
		out[i] = expr.Stringify(v)
	}
	return out
}

// sameSet reports whether a and b hold the same distinct elements.
func sameSet(a, b []any) bool {
	return subset(a, b) && subset(b, a)
}

func subset(a, b []any) bool {
	for _, x := range a {
		found := false
		for _, y := range b {
			if expr.Equal(x, y) {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}
