package flow

import (
	"context"
	"fmt"

	"github.com/devicelab-dev/botrunner/pkg/core"
	"github.com/devicelab-dev/botrunner/pkg/expr"
)

// Step is one validated unit of a bot: a title, an action and the action's
// field values.
type Step struct {
	Title  string
	Action string

	action    Action
	raw       map[string]any
	validated map[string]any
	nested    map[string]*StepList
	deferred  map[string]bool
	errors    *core.ValidationError
	status    core.StepStatus
}

// NewStep creates an unvalidated step. data holds the field values with
// title and action already removed; it is not modified.
func NewStep(title, actionName string, action Action, data map[string]any) *Step {
	return &Step{
		Title:  title,
		Action: actionName,
		action: action,
		raw:    data,
		status: core.StatusPending,
	}
}

// Status returns the step's lifecycle state.
func (s *Step) Status() core.StepStatus { return s.status }

// Errors returns the errors of the last validation.
func (s *Step) Errors() *core.ValidationError { return s.errors }

// ValidatedData returns the validated field values, or nil if validation
// has not succeeded.
func (s *Step) ValidatedData() map[string]any {
	if s.status == core.StatusValidationFailed || s.validated == nil {
		return nil
	}
	return s.validated
}

// Deferred reports whether field name failed static validation but holds a
// single placeholder and was accepted for resolution at run time.
func (s *Step) Deferred(name string) bool { return s.deferred[name] }

// Schema returns the step's action schema.
func (s *Step) Schema() Schema { return s.action.Schema() }

// Validate checks every field in schema order and collects all errors.
// Nested step fields are validated through p. A non-nil error is a
// structural error in a nested step; field errors are reported by the
// return value and Errors.
func (s *Step) Validate(p *Parser) (bool, error) {
	s.status = core.StatusValidating
	s.validated = make(map[string]any)
	s.nested = make(map[string]*StepList)
	s.deferred = make(map[string]bool)
	s.errors = core.NewValidationError()

	for _, spec := range s.action.Schema() {
		value, present := s.raw[spec.Name]
		if !present || value == nil {
			value = cloneValue(spec.Field.Default)
		}

		if spec.Field.Nested {
			if value == nil {
				if _, msgs := spec.Field.Validate(nil); len(msgs) > 0 {
					s.errors.Child(spec.Name).Add(msgs...)
				} else {
					s.nested[spec.Name] = NewStepList()
				}
				continue
			}
			list, errs, err := p.validateNested(value, s.Title+"."+spec.Name)
			if err != nil {
				s.status = core.StatusValidationFailed
				return false, err
			}
			if !errs.Empty() {
				s.errors.Merge(spec.Name, errs)
				continue
			}
			s.nested[spec.Name] = list
			continue
		}

		out, msgs := spec.Field.Validate(value)
		if len(msgs) == 0 {
			s.validated[spec.Name] = out
			continue
		}
		// Kept unresolved and not re-checked after substitution; a wrong
		// type surfaces as an execution error.
		if expr.CountPlaceholders(value) == 1 {
			s.deferred[spec.Name] = true
			s.validated[spec.Name] = value
			continue
		}
		s.errors.Child(spec.Name).Add(msgs...)
	}

	if !s.errors.Empty() {
		s.status = core.StatusValidationFailed
		return false, nil
	}
	s.status = core.StatusValidated
	return true, nil
}

// Resolve substitutes placeholders in every validated field against ctx.
func (s *Step) Resolve(ctx map[string]any) (*Input, error) {
	if s.status != core.StatusValidated && s.status != core.StatusSucceeded && s.status != core.StatusFailed {
		return nil, fmt.Errorf("step %q has not been validated", s.Title)
	}
	s.status = core.StatusResolving

	in := &Input{
		title:  s.Title,
		values: make(map[string]any, len(s.validated)),
		raw:    s.validated,
		steps:  s.nested,
	}
	for name, value := range s.validated {
		resolved, err := expr.Substitute(value, ctx)
		if err != nil {
			s.status = core.StatusFailed
			return nil, core.ErrUnresolvable.WithMessage(fmt.Sprintf("field %q", name)).WithCause(err)
		}
		in.values[name] = resolved
	}
	s.status = core.StatusResolved
	return in, nil
}

// Execute performs the step with resolved input.
func (s *Step) Execute(ctx context.Context, rt Runtime, in *Input) (map[string]any, error) {
	s.status = core.StatusExecuting
	out, err := s.action.Execute(ctx, rt, in)
	if err != nil {
		s.status = core.StatusFailed
		return nil, err
	}
	if out == nil {
		out = map[string]any{}
	}
	s.status = core.StatusSucceeded
	return out, nil
}

// StepList is an ordered, title-unique sequence of steps.
type StepList struct {
	order []string
	steps map[string]*Step
}

// NewStepList creates an empty list.
func NewStepList() *StepList {
	return &StepList{steps: make(map[string]*Step)}
}

// Add appends step. It returns false if the title is already present.
func (l *StepList) Add(step *Step) bool {
	if _, exists := l.steps[step.Title]; exists {
		return false
	}
	l.steps[step.Title] = step
	l.order = append(l.order, step.Title)
	return true
}

// Get returns the step with the given title.
func (l *StepList) Get(title string) (*Step, bool) {
	if l == nil {
		return nil, false
	}
	s, ok := l.steps[title]
	return s, ok
}

// Titles returns step titles in order.
func (l *StepList) Titles() []string {
	if l == nil {
		return nil
	}
	return append([]string(nil), l.order...)
}

// Steps returns the steps in order.
func (l *StepList) Steps() []*Step {
	if l == nil {
		return nil
	}
	out := make([]*Step, len(l.order))
	for i, title := range l.order {
		out[i] = l.steps[title]
	}
	return out
}

// Len returns the number of steps.
func (l *StepList) Len() int {
	if l == nil {
		return 0
	}
	return len(l.order)
}

func cloneValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, item := range t {
			out[k] = cloneValue(item)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, item := range t {
			out[i] = cloneValue(item)
		}
		return out
	default:
		return v
	}
}

// Children returns the step's validated nested step lists in schema order.
func (s *Step) Children() []*StepList {
	if s.action == nil {
		return nil
	}
	var out []*StepList
	for _, spec := range s.action.Schema() {
		if l, ok := s.nested[spec.Name]; ok {
			out = append(out, l)
		}
	}
	return out
}
