package flow

import (
	"fmt"
	"strings"

	"github.com/devicelab-dev/botrunner/pkg/validator"
)

// Field declares one named input of an action: its type, whether it must be
// present, its default and the checks its value must pass. Fields are
// immutable once built; validation state lives on the Step.
type Field struct {
	Type     validator.Type
	Required bool
	Default  any
	// Nested marks a field whose value is one or more step specs that are
	// validated by the Parser instead of by validators.
	Nested bool
	// Hint describes extra constraints for help output.
	Hint string

	validators []validator.Validator
}

// FieldOption configures a Field at construction.
type FieldOption func(*Field)

// Required makes the field mandatory.
func Required() FieldOption {
	return func(f *Field) { f.Required = true }
}

// Default sets the value used when the field is absent or null.
func Default(v any) FieldOption {
	return func(f *Field) { f.Default = v }
}

// MaxLength limits the field's length.
func MaxLength(n int) FieldOption {
	return func(f *Field) {
		f.validators = append(f.validators, validator.MaxLength(n))
		f.addHint(fmt.Sprintf("max length %d", n))
	}
}

// Choices restricts the field to a fixed set of values.
func Choices(options ...any) FieldOption {
	return func(f *Field) {
		f.validators = append(f.validators, validator.OneOf(options...))
		names := make([]string, len(options))
		for i, o := range options {
			names[i] = fmt.Sprint(o)
		}
		f.addHint("one of " + strings.Join(names, ", "))
	}
}

// With appends custom validators.
func With(validators ...validator.Validator) FieldOption {
	return func(f *Field) { f.validators = append(f.validators, validators...) }
}

func (f *Field) addHint(h string) {
	if f.Hint != "" {
		f.Hint += "; "
	}
	f.Hint += h
}

func newField(t validator.Type, base []validator.Validator, opts []FieldOption) Field {
	f := Field{Type: t}
	f.validators = append(f.validators, base...)
	for _, opt := range opts {
		opt(&f)
	}
	if f.Required {
		f.validators = append([]validator.Validator{validator.Required()}, f.validators...)
	}
	return f
}

// CharField is a text field.
func CharField(opts ...FieldOption) Field {
	return newField(validator.Text, []validator.Validator{validator.OfType(validator.Text)}, opts)
}

// IntegerField is an integer field.
func IntegerField(opts ...FieldOption) Field {
	return newField(validator.Integer, []validator.Validator{validator.OfType(validator.Integer)}, opts)
}

// BooleanField is a boolean field.
func BooleanField(opts ...FieldOption) Field {
	return newField(validator.Boolean, []validator.Validator{validator.OfType(validator.Boolean)}, opts)
}

// MappingField is a field holding a mapping.
func MappingField(opts ...FieldOption) Field {
	return newField(validator.Mapping, []validator.Validator{validator.OfType(validator.Mapping)}, opts)
}

// FilePathField is a text field naming an existing file.
func FilePathField(opts ...FieldOption) Field {
	return newField(validator.Text, []validator.Validator{validator.FileExists()}, opts)
}

// ResolvedField accepts a value of type t or a single whole-string
// placeholder resolved at run time.
func ResolvedField(t validator.Type, opts ...FieldOption) Field {
	return newField(t, []validator.Validator{validator.ResolvedOrTyped(t)}, opts)
}

// NestedStepsField holds one step spec or a list of them.
func NestedStepsField(opts ...FieldOption) Field {
	f := newField(validator.Sequence, nil, opts)
	f.Nested = true
	return f
}

// Validate runs every validator against value and returns all failure
// messages. A null value only fails the presence check.
func (f Field) Validate(value any) (any, []string) {
	if value == nil {
		if f.Required {
			return nil, []string{validator.Required().Check(nil).Error()}
		}
		return nil, nil
	}
	if msgs := validator.Messages(value, f.validators); len(msgs) > 0 {
		return nil, msgs
	}
	return value, nil
}

// Describe summarizes the field for help output.
func (f Field) Describe() string {
	var parts []string
	if f.Nested {
		parts = append(parts, "steps")
	} else {
		parts = append(parts, f.Type.String())
	}
	if f.Required {
		parts = append(parts, "required")
	}
	if f.Default != nil {
		parts = append(parts, fmt.Sprintf("default %v", f.Default))
	}
	if f.Hint != "" {
		parts = append(parts, f.Hint)
	}
	return strings.Join(parts, ", ")
}

// FieldSpec names a Field within a Schema.
type FieldSpec struct {
	Name  string
	Field Field
}

// Schema is an action's ordered field list.
type Schema []FieldSpec

// Names returns the field names in order.
func (s Schema) Names() []string {
	names := make([]string, len(s))
	for i, spec := range s {
		names[i] = spec.Name
	}
	return names
}

// Lookup returns the field called name.
func (s Schema) Lookup(name string) (Field, bool) {
	for _, spec := range s {
		if spec.Name == name {
			return spec.Field, true
		}
	}
	return Field{}, false
}
