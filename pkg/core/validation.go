package core

import (
	"encoding/json"
	"strings"
)

// ValidationError is the aggregated result of validating a bot, a step or a
// field. A node holds leaf messages and ordered children keyed by step title
// or field name, so nested step errors stay attributable to their path:
//
//	Login            → ["Step titles must be unique"]
//	Search.url       → ["This field is required."]
//	Loop.steps.Open  → {url: ["..."]}
type ValidationError struct {
	Messages []string
	keys     []string
	children map[string]*ValidationError
}

// NewValidationError returns an empty error node.
func NewValidationError() *ValidationError {
	return &ValidationError{}
}

// Leaf returns a node holding the given messages.
func Leaf(messages ...string) *ValidationError {
	return &ValidationError{Messages: append([]string(nil), messages...)}
}

// Add appends leaf messages to this node.
func (e *ValidationError) Add(messages ...string) {
	e.Messages = append(e.Messages, messages...)
}

// Child returns the child node for key, creating it if needed.
func (e *ValidationError) Child(key string) *ValidationError {
	if c, ok := e.children[key]; ok {
		return c
	}
	if e.children == nil {
		e.children = make(map[string]*ValidationError)
	}
	c := &ValidationError{}
	e.children[key] = c
	e.keys = append(e.keys, key)
	return c
}

// Merge folds other into the child at key. Empty errors are ignored.
func (e *ValidationError) Merge(key string, other *ValidationError) {
	if other.Empty() {
		return
	}
	c := e.Child(key)
	c.Add(other.Messages...)
	for _, k := range other.keys {
		c.Merge(k, other.children[k])
	}
}

// Get returns the child node for key, or nil.
func (e *ValidationError) Get(key string) *ValidationError {
	if e == nil {
		return nil
	}
	return e.children[key]
}

// Keys returns child keys in insertion order.
func (e *ValidationError) Keys() []string {
	if e == nil {
		return nil
	}
	return append([]string(nil), e.keys...)
}

// Empty reports whether the node and all of its children carry no messages.
func (e *ValidationError) Empty() bool {
	if e == nil {
		return true
	}
	if len(e.Messages) > 0 {
		return false
	}
	for _, c := range e.children {
		if !c.Empty() {
			return false
		}
	}
	return true
}

// Flatten returns one line per message, prefixed with its dotted key path.
func (e *ValidationError) Flatten() []string {
	var lines []string
	e.flatten("", &lines)
	return lines
}

func (e *ValidationError) flatten(prefix string, lines *[]string) {
	if e == nil {
		return
	}
	for _, m := range e.Messages {
		if prefix == "" {
			*lines = append(*lines, m)
		} else {
			*lines = append(*lines, prefix+": "+m)
		}
	}
	for _, k := range e.keys {
		path := k
		if prefix != "" {
			path = prefix + "." + k
		}
		e.children[k].flatten(path, lines)
	}
}

func (e *ValidationError) Error() string {
	lines := e.Flatten()
	if len(lines) == 0 {
		return "validation failed"
	}
	return "validation failed: " + strings.Join(lines, "; ")
}

// Value renders the tree as plain data: a list of messages for leaves, a
// mapping for nodes with children. Messages on a node that also has children
// are kept under the "_errors" key.
func (e *ValidationError) Value() any {
	if e == nil {
		return nil
	}
	if len(e.keys) == 0 {
		return append([]string{}, e.Messages...)
	}
	out := make(map[string]any, len(e.keys)+1)
	if len(e.Messages) > 0 {
		out["_errors"] = append([]string{}, e.Messages...)
	}
	for _, k := range e.keys {
		out[k] = e.children[k].Value()
	}
	return out
}

// MarshalJSON encodes the tree as returned by Value.
func (e *ValidationError) MarshalJSON() ([]byte, error) {
	return json.Marshal(e.Value())
}
