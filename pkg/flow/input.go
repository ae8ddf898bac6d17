package flow

import (
	"fmt"

	"github.com/devicelab-dev/botrunner/pkg/core"
	"github.com/devicelab-dev/botrunner/pkg/expr"
)

// Input holds a step's field values after placeholder substitution.
// The typed getters fail with an ExecutionError when a value resolved at
// run time has the wrong type.
type Input struct {
	title  string
	values map[string]any
	raw    map[string]any
	steps  map[string]*StepList
}

// NewInput builds an Input directly, for actions invoked outside a Step.
func NewInput(title string, values map[string]any) *Input {
	return &Input{title: title, values: values, raw: values}
}

// Title returns the owning step's title.
func (in *Input) Title() string { return in.title }

// Value returns the resolved value of name.
func (in *Input) Value(name string) any { return in.values[name] }

// Raw returns the value of name before substitution.
func (in *Input) Raw(name string) any { return in.raw[name] }

// Values returns a copy of all resolved values.
func (in *Input) Values() map[string]any {
	out := make(map[string]any, len(in.values))
	for k, v := range in.values {
		out[k] = v
	}
	return out
}

// Steps returns the validated nested steps of field name.
func (in *Input) Steps(name string) *StepList {
	if l, ok := in.steps[name]; ok {
		return l
	}
	return NewStepList()
}

func (in *Input) typeError(name, want string, got any) error {
	return core.ErrInvalidValue.WithMessage(
		fmt.Sprintf("field %q: expected %s, got %s %q", name, want, expr.KindOf(got), expr.Stringify(got)))
}

// String returns name as text.
func (in *Input) String(name string) (string, error) {
	v := in.values[name]
	s, ok := v.(string)
	if !ok {
		return "", in.typeError(name, "text", v)
	}
	return s, nil
}

// Int returns name as an integer.
func (in *Input) Int(name string) (int, error) {
	v := in.values[name]
	n, ok := expr.ToInt(v)
	if !ok {
		return 0, in.typeError(name, "an integer", v)
	}
	return n, nil
}

// Bool returns name as a boolean. A missing value is false.
func (in *Input) Bool(name string) (bool, error) {
	v := in.values[name]
	if v == nil {
		return false, nil
	}
	b, ok := v.(bool)
	if !ok {
		return false, in.typeError(name, "a boolean", v)
	}
	return b, nil
}

// OptionalBool returns name as a boolean, or nil when it is absent.
func (in *Input) OptionalBool(name string) (*bool, error) {
	if in.values[name] == nil {
		return nil, nil
	}
	b, err := in.Bool(name)
	if err != nil {
		return nil, err
	}
	return &b, nil
}

// Map returns name as a mapping. A missing value is a nil map.
func (in *Input) Map(name string) (map[string]any, error) {
	v := in.values[name]
	if v == nil {
		return nil, nil
	}
	m, ok := expr.AsMap(v)
	if !ok {
		return nil, in.typeError(name, "a mapping", v)
	}
	return m, nil
}

// List returns name as a sequence.
func (in *Input) List(name string) ([]any, error) {
	v := in.values[name]
	l, ok := expr.AsList(v)
	if !ok {
		return nil, core.ErrNotSequence.WithMessage(
			fmt.Sprintf("field %q: expected a sequence, got %s %q", name, expr.KindOf(v), expr.Stringify(v)))
	}
	return l, nil
}
