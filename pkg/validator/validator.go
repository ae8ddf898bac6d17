// Package validator provides the single-purpose checks that step fields are
// built from. Each check inspects one property of a raw field value and is
// free of side effects.
package validator

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"unicode/utf8"

	"github.com/devicelab-dev/botrunner/pkg/expr"
)

// Validator checks one property of a value.
type Validator interface {
	Check(value any) error
}

// Func adapts a plain function to Validator.
type Func func(value any) error

// Check calls f(value).
func (f Func) Check(value any) error { return f(value) }

// Messages runs every validator against value and returns all failure
// messages, in validator order.
func Messages(value any, validators []Validator) []string {
	var msgs []string
	for _, v := range validators {
		if err := v.Check(value); err != nil {
			msgs = append(msgs, err.Error())
		}
	}
	return msgs
}

// Required rejects a missing (nil) value.
func Required() Validator {
	return Func(func(value any) error {
		if value == nil {
			return errors.New("This field is required.")
		}
		return nil
	})
}

// OfType rejects values that are not of type t.
func OfType(t Type) Validator {
	return Func(func(value any) error {
		if !t.Matches(value) {
			return fmt.Errorf("Expected %s, got %s.", t.article(), describe(value))
		}
		return nil
	})
}

// MaxLength rejects text longer than n characters and sequences or mappings
// with more than n entries. Values without a length are rejected.
func MaxLength(n int) Validator {
	return Func(func(value any) error {
		length, ok := lengthOf(value)
		if !ok {
			return fmt.Errorf("Value of type %s has no length.", describe(value))
		}
		if length > n {
			return fmt.Errorf("Ensure this value has at most %d characters (it has %d).", n, length)
		}
		return nil
	})
}

// OneOf rejects values that are not among options.
func OneOf(options ...any) Validator {
	return Func(func(value any) error {
		for _, opt := range options {
			if expr.Equal(value, opt) {
				return nil
			}
		}
		names := make([]string, len(options))
		for i, opt := range options {
			names[i] = expr.Stringify(opt)
		}
		return fmt.Errorf("%q is not one of %s.", expr.Stringify(value), strings.Join(names, ", "))
	})
}

// FileExists rejects text that does not name an existing file.
func FileExists() Validator {
	return Func(func(value any) error {
		path, ok := value.(string)
		if !ok {
			return fmt.Errorf("Expected a file path, got %s.", describe(value))
		}
		info, err := os.Stat(path)
		if err != nil {
			return fmt.Errorf("The file %q does not exist.", path)
		}
		if info.IsDir() {
			return fmt.Errorf("%q is a directory, not a file.", path)
		}
		return nil
	})
}

// ResolvedOrTyped accepts a value that is exactly one whole-string
// placeholder, to be resolved at run time, or that already has type t.
// With t == Any, any non-nil value is accepted.
func ResolvedOrTyped(t Type) Validator {
	return Func(func(value any) error {
		if _, ok := expr.WholePlaceholder(value); ok {
			return nil
		}
		if t == Any {
			if value == nil {
				return errors.New("Expected a value or a ${...} placeholder.")
			}
			return nil
		}
		if t.Matches(value) {
			return nil
		}
		return fmt.Errorf("Expected %s or a single ${...} placeholder, got %s.", t.article(), describe(value))
	})
}

func lengthOf(value any) (int, bool) {
	if s, ok := value.(string); ok {
		return utf8.RuneCountInString(s), true
	}
	if l, ok := expr.AsList(value); ok {
		return len(l), true
	}
	if m, ok := expr.AsMap(value); ok {
		return len(m), true
	}
	return 0, false
}

func describe(value any) string {
	return string(expr.KindOf(value))
}
