package expr

import (
	"fmt"
	"strconv"
	"strings"
)

// Call is a single function invocation in a segment pipeline.
type Call struct {
	Name   string
	Args   []any
	Kwargs map[string]any
}

// Segment is one "__"-separated part of a placeholder path.
type Segment struct {
	Key      string
	Pipeline []Call
}

// ParsePath splits a placeholder body into segments and parses each
// segment's function pipeline.
func ParsePath(path string) ([]Segment, error) {
	parts, err := splitTopLevel(path, "__")
	if err != nil {
		return nil, err
	}

	segments := make([]Segment, 0, len(parts))
	for _, part := range parts {
		seg, err := parseSegment(part)
		if err != nil {
			return nil, err
		}
		segments = append(segments, seg)
	}
	return segments, nil
}

func parseSegment(text string) (Segment, error) {
	pieces, err := splitTopLevel(text, "|")
	if err != nil {
		return Segment{}, err
	}

	seg := Segment{Key: strings.TrimSpace(pieces[0])}
	if seg.Key == "" {
		return Segment{}, fmt.Errorf("empty path segment in %q", text)
	}
	for _, piece := range pieces[1:] {
		call, err := parseCall(piece)
		if err != nil {
			return Segment{}, err
		}
		seg.Pipeline = append(seg.Pipeline, call)
	}
	return seg, nil
}

func parseCall(text string) (Call, error) {
	text = strings.TrimSpace(text)
	open := strings.IndexByte(text, '(')
	if open < 0 {
		if !isIdentifier(text) {
			return Call{}, fmt.Errorf("invalid function call %q", text)
		}
		return Call{Name: text}, nil
	}
	if !strings.HasSuffix(text, ")") {
		return Call{}, fmt.Errorf("unterminated function call %q", text)
	}

	call := Call{Name: strings.TrimSpace(text[:open])}
	if !isIdentifier(call.Name) {
		return Call{}, fmt.Errorf("invalid function name %q", call.Name)
	}

	inner := text[open+1 : len(text)-1]
	if strings.TrimSpace(inner) == "" {
		return call, nil
	}

	args, err := splitTopLevel(inner, ",")
	if err != nil {
		return Call{}, err
	}
	for _, arg := range args {
		arg = strings.TrimSpace(arg)
		if name, valueText, ok := keywordArgument(arg); ok {
			value, err := parseLiteral(valueText)
			if err != nil {
				return Call{}, fmt.Errorf("%s(): argument %s: %w", call.Name, name, err)
			}
			if call.Kwargs == nil {
				call.Kwargs = make(map[string]any)
			}
			call.Kwargs[name] = value
			continue
		}
		if call.Kwargs != nil {
			return Call{}, fmt.Errorf("%s(): positional argument follows keyword argument", call.Name)
		}
		value, err := parseLiteral(arg)
		if err != nil {
			return Call{}, fmt.Errorf("%s(): %w", call.Name, err)
		}
		call.Args = append(call.Args, value)
	}
	return call, nil
}

// keywordArgument splits "name=value" when the "=" appears before any quote.
func keywordArgument(arg string) (string, string, bool) {
	eq := strings.IndexByte(arg, '=')
	if eq <= 0 {
		return "", "", false
	}
	if q := strings.IndexAny(arg, `"'`); q >= 0 && q < eq {
		return "", "", false
	}
	name := strings.TrimSpace(arg[:eq])
	if !isIdentifier(name) {
		return "", "", false
	}
	return name, strings.TrimSpace(arg[eq+1:]), true
}

// parseLiteral parses a quoted string, integer, float, boolean or null.
func parseLiteral(text string) (any, error) {
	if text == "" {
		return nil, fmt.Errorf("empty argument")
	}
	if q := text[0]; q == '"' || q == '\'' {
		if len(text) < 2 || text[len(text)-1] != q {
			return nil, fmt.Errorf("unterminated string %s", text)
		}
		return unescape(text[1 : len(text)-1]), nil
	}

	switch text {
	case "true", "True":
		return true, nil
	case "false", "False":
		return false, nil
	case "null", "None", "nil":
		return nil, nil
	}

	if n, err := strconv.Atoi(text); err == nil {
		return n, nil
	}
	if f, err := strconv.ParseFloat(text, 64); err == nil {
		return f, nil
	}
	return nil, fmt.Errorf("invalid literal %s", text)
}

func unescape(s string) string {
	if !strings.Contains(s, `\`) {
		return s
	}
	var b strings.Builder
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c != '\\' || i+1 == len(s) {
			b.WriteByte(c)
			continue
		}
		i++
		switch s[i] {
		case 'n':
			b.WriteByte('\n')
		case 't':
			b.WriteByte('\t')
		default:
			b.WriteByte(s[i])
		}
	}
	return b.String()
}

// splitTopLevel splits text on sep, ignoring separators inside quotes or
// parentheses.
func splitTopLevel(text, sep string) ([]string, error) {
	var (
		parts []string
		depth int
		quote byte
		start int
	)
	for i := 0; i < len(text); i++ {
		c := text[i]
		switch {
		case quote != 0:
			if c == '\\' {
				i++
			} else if c == quote {
				quote = 0
			}
		case c == '"' || c == '\'':
			quote = c
		case c == '(':
			depth++
		case c == ')':
			depth--
			if depth < 0 {
				return nil, fmt.Errorf("unbalanced parenthesis in %q", text)
			}
		case depth == 0 && strings.HasPrefix(text[i:], sep):
			parts = append(parts, text[start:i])
			i += len(sep) - 1
			start = i + 1
		}
	}
	if quote != 0 {
		return nil, fmt.Errorf("unterminated string in %q", text)
	}
	if depth != 0 {
		return nil, fmt.Errorf("unbalanced parenthesis in %q", text)
	}
	return append(parts, text[start:]), nil
}

func isIdentifier(s string) bool {
	if s == "" {
		return false
	}
	for i, r := range s {
		switch {
		case r == '_', r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z':
		case i > 0 && r >= '0' && r <= '9':
		default:
			return false
		}
	}
	return true
}
