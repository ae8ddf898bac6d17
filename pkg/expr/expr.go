// Package expr resolves ${...} placeholders in step field values against the
// execution context.
//
// A placeholder body is a path of segments separated by "__". Each segment
// names a mapping key or a sequence index and may carry a pipeline of
// function calls that transform the value before the next segment is looked
// up:
//
//	${Login__content__users__0__name|upper()}
//	${Search__results|join(", ")}
//	${current_item|split(",")|reverse()}
package expr

import (
	"fmt"
	"strings"
)

// FindPlaceholders returns the bodies of all placeholders in s, in order.
//
// A closing brace inside a quoted function argument does not end the
// placeholder. When the quotes in a body never balance, the first closing
// brace ends it.
func FindPlaceholders(s string) []string {
	var bodies []string
	for i := 0; i < len(s); {
		open := strings.Index(s[i:], "${")
		if open < 0 {
			break
		}
		start := i + open + 2
		end := placeholderEnd(s, start)
		if end < 0 {
			break
		}
		bodies = append(bodies, s[start:end])
		i = end + 1
	}
	return bodies
}

// placeholderEnd returns the index of the brace closing the placeholder body
// that starts at start, or -1.
func placeholderEnd(s string, start int) int {
	var quote byte
	for i := start; i < len(s); i++ {
		c := s[i]
		switch {
		case quote != 0:
			if c == '\\' {
				i++
			} else if c == quote {
				quote = 0
			}
		case c == '"' || c == '\'':
			quote = c
		case c == '}':
			return i
		}
	}
	if j := strings.IndexByte(s[start:], '}'); j >= 0 {
		return start + j
	}
	return -1
}

// CountPlaceholders returns the number of placeholders in value.
// Non-string values never contain placeholders.
func CountPlaceholders(value any) int {
	s, ok := value.(string)
	if !ok {
		return 0
	}
	return len(FindPlaceholders(s))
}

// WholePlaceholder reports whether value is a string made of exactly one
// placeholder and nothing else, returning the placeholder body.
func WholePlaceholder(value any) (string, bool) {
	s, ok := value.(string)
	if !ok {
		return "", false
	}
	bodies := FindPlaceholders(s)
	if len(bodies) != 1 || s != "${"+bodies[0]+"}" {
		return "", false
	}
	return bodies[0], true
}

// Substitute replaces placeholders in value using ctx as the lookup root.
//
// A string that is exactly one placeholder becomes the resolved value with
// its native type. Otherwise every resolved, non-null placeholder is
// stringified and spliced into the text; placeholders that do not resolve
// are left as written. Mappings and sequences are walked recursively.
func Substitute(value any, ctx any) (any, error) {
	switch v := value.(type) {
	case string:
		return substituteString(v, ctx)
	case map[string]any:
		out := make(map[string]any, len(v))
		for key, item := range v {
			resolved, err := Substitute(item, ctx)
			if err != nil {
				return nil, err
			}
			out[key] = resolved
		}
		return out, nil
	case []any:
		out := make([]any, len(v))
		for i, item := range v {
			resolved, err := Substitute(item, ctx)
			if err != nil {
				return nil, err
			}
			out[i] = resolved
		}
		return out, nil
	default:
		return value, nil
	}
}

func substituteString(s string, ctx any) (any, error) {
	bodies := FindPlaceholders(s)
	if len(bodies) == 0 {
		return s, nil
	}

	if body, ok := WholePlaceholder(s); ok {
		resolved, found, err := Resolve(ctx, body)
		if err != nil {
			return nil, fmt.Errorf("resolve %q: %w", s, err)
		}
		if !found {
			return s, nil
		}
		return resolved, nil
	}

	result := s
	for _, body := range bodies {
		resolved, found, err := Resolve(ctx, body)
		if err != nil {
			return nil, fmt.Errorf("resolve %q: %w", "${"+body+"}", err)
		}
		if !found || resolved == nil {
			continue
		}
		result = strings.Replace(result, "${"+body+"}", Stringify(resolved), 1)
	}
	return result, nil
}
