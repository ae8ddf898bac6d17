package validator

import (
	"github.com/devicelab-dev/botrunner/pkg/expr"
)

// Type is a field value type.
type Type int

const (
	Any Type = iota
	Text
	Integer
	Number
	Boolean
	Mapping
	Sequence
)

func (t Type) String() string {
	switch t {
	case Text:
		return "text"
	case Integer:
		return "integer"
	case Number:
		return "number"
	case Boolean:
		return "boolean"
	case Mapping:
		return "mapping"
	case Sequence:
		return "sequence"
	default:
		return "any"
	}
}

func (t Type) article() string {
	switch t {
	case Integer:
		return "an integer"
	case Any:
		return "any value"
	default:
		return "a " + t.String()
	}
}

// Matches reports whether value has type t. Integer accepts integral
// floats, since JSON-decoded numbers arrive as float64.
func (t Type) Matches(value any) bool {
	switch t {
	case Any:
		return true
	case Text:
		_, ok := value.(string)
		return ok
	case Integer:
		_, ok := expr.ToInt(value)
		return ok
	case Number:
		return expr.KindOf(value) == expr.KindNumber
	case Boolean:
		_, ok := value.(bool)
		return ok
	case Mapping:
		return expr.KindOf(value) == expr.KindMapping
	case Sequence:
		return expr.KindOf(value) == expr.KindSequence
	}
	return false
}
