package flow

import (
	"errors"
	"fmt"

	"gopkg.in/yaml.v3"

	"github.com/devicelab-dev/botrunner/pkg/core"
)

// Validation messages reported against a step title.
const (
	DuplicateTitleMessage = "Step titles must be unique"
	MissingActionMessage  = "The step has no action."
)

// Parser validates raw bot documents into Bots using a Registry.
type Parser struct {
	registry *Registry
}

// NewParser creates a parser resolving actions in reg.
func NewParser(reg *Registry) *Parser {
	return &Parser{registry: reg}
}

// Registry returns the parser's registry.
func (p *Parser) Registry() *Registry { return p.registry }

// ParseBytes decodes a YAML bot document and parses it.
func (p *Parser) ParseBytes(data []byte, sourcePath string) (*Bot, error) {
	var doc any
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, &ParseError{Path: sourcePath, Message: fmt.Sprintf("invalid YAML: %v", err)}
	}
	bot, err := p.Parse(normalize(doc))
	if err != nil {
		return nil, err
	}
	bot.SourcePath = sourcePath
	return bot, nil
}

// Parse validates a decoded bot document.
//
// A *core.StructuralError is returned for a malformed document and stops
// validation immediately. Otherwise every step is validated and all problems
// are returned together as a *core.ValidationError keyed by step title.
func (p *Parser) Parse(doc any) (*Bot, error) {
	root, ok := doc.(map[string]any)
	if !ok {
		return nil, core.NewStructuralError("", "bot must be a mapping of {title, steps, exception_steps}")
	}

	title, ok := root["title"].(string)
	if !ok || title == "" {
		return nil, core.NewStructuralError("title", "bot title is required")
	}

	rawSteps, ok := root["steps"].([]any)
	if !ok {
		return nil, core.NewStructuralError("steps", "steps must be a list")
	}

	var rawExceptionSteps []any
	if v, present := root["exception_steps"]; present && v != nil {
		rawExceptionSteps, ok = v.([]any)
		if !ok {
			return nil, core.NewStructuralError("exception_steps", "exception_steps must be a list")
		}
	}

	errs := core.NewValidationError()

	steps, stepErrs, err := p.ValidateSequence(rawSteps, "steps")
	if err != nil {
		return nil, err
	}
	mergeInto(errs, stepErrs)

	exceptionSteps, exceptionErrs, err := p.ValidateSequence(rawExceptionSteps, "exception_steps")
	if err != nil {
		return nil, err
	}
	mergeInto(errs, exceptionErrs)

	if !errs.Empty() {
		return nil, errs
	}
	return &Bot{Title: title, Steps: steps, ExceptionSteps: exceptionSteps}, nil
}

func mergeInto(dst, src *core.ValidationError) {
	for _, key := range src.Keys() {
		dst.Merge(key, src.Get(key))
	}
}

// ValidateSequence validates specs in order. Every occurrence of a repeated
// title is reported; validation continues past field errors and stops only
// on a structural error.
func (p *Parser) ValidateSequence(specs []any, path string) (*StepList, *core.ValidationError, error) {
	list := NewStepList()
	errs := core.NewValidationError()

	seen := make(map[string]int, len(specs))
	for _, spec := range specs {
		if m, ok := spec.(map[string]any); ok {
			if title, ok := m["title"].(string); ok {
				seen[title]++
			}
		}
	}

	for i, spec := range specs {
		step, stepErrs, err := p.ValidateStep(spec, fmt.Sprintf("%s[%d]", path, i))
		if err != nil {
			return nil, nil, err
		}
		duplicate := seen[step.Title] > 1
		if duplicate {
			errs.Child(step.Title).Add(DuplicateTitleMessage)
		}
		if !stepErrs.Empty() {
			errs.Merge(step.Title, stepErrs)
			continue
		}
		if !duplicate {
			list.Add(step)
		}
	}

	if !errs.Empty() {
		return nil, errs, nil
	}
	return list, errs, nil
}

// ValidateStep validates a single raw step spec. The step is returned even
// when it has field errors so callers can attribute them to its title.
func (p *Parser) ValidateStep(spec any, path string) (*Step, *core.ValidationError, error) {
	m, ok := spec.(map[string]any)
	if !ok {
		return nil, nil, core.NewStructuralError(path, "step must be a mapping")
	}

	title, ok := m["title"].(string)
	if !ok || title == "" {
		return nil, nil, core.NewStructuralError(path, "step has no title")
	}

	data := make(map[string]any, len(m))
	for k, v := range m {
		if k != "title" && k != "action" {
			data[k] = v
		}
	}

	errs := core.NewValidationError()
	actionName, _ := m["action"].(string)
	if actionName == "" {
		errs.Add(MissingActionMessage)
		return &Step{Title: title, raw: data, errors: errs, status: core.StatusValidationFailed}, errs, nil
	}

	action, err := p.registry.Lookup(actionName)
	if err != nil {
		if errors.Is(err, ErrActionNotFound) {
			errs.Add(fmt.Sprintf("Unknown action %q.", actionName))
			return &Step{Title: title, Action: actionName, raw: data, errors: errs, status: core.StatusValidationFailed}, errs, nil
		}
		return nil, nil, err
	}

	step := NewStep(title, actionName, action, data)
	if _, err := step.Validate(p); err != nil {
		return nil, nil, err
	}
	return step, step.Errors(), nil
}

// validateNested validates the value of a nested-steps field: one step spec
// or a list of them.
func (p *Parser) validateNested(value any, path string) (*StepList, *core.ValidationError, error) {
	var specs []any
	switch v := value.(type) {
	case []any:
		specs = v
	case map[string]any:
		specs = []any{v}
	default:
		errs := core.NewValidationError()
		errs.Add("Expected a step or a list of steps.")
		return nil, errs, nil
	}
	return p.ValidateSequence(specs, path)
}

// normalize converts mappings with non-string keys, as produced by YAML
// decoding, into map[string]any.
func normalize(v any) any {
	switch t := v.(type) {
	case map[string]any:
		for k, item := range t {
			t[k] = normalize(item)
		}
		return t
	case map[any]any:
		out := make(map[string]any, len(t))
		for k, item := range t {
			out[fmt.Sprint(k)] = normalize(item)
		}
		return out
	case []any:
		for i, item := range t {
			t[i] = normalize(item)
		}
		return t
	default:
		return v
	}
}

// ParseError reports a bot file that could not be read or decoded.
type ParseError struct {
	Path    string
	Line    int
	Message string
}

func (e *ParseError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("%s:%d: %s", e.Path, e.Line, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Path, e.Message)
}
