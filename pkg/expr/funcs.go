package expr

import (
	"fmt"
	"sort"
	"strings"
	"unicode"
	"unicode/utf8"
)

type function func(value any, call Call) (any, error)

// functionTables is the closed set of functions available per value kind.
var functionTables = map[Kind]map[string]function{
	KindText: {
		"split":       textSplit,
		"upper":       func(v any, _ Call) (any, error) { return strings.ToUpper(v.(string)), nil },
		"lower":       func(v any, _ Call) (any, error) { return strings.ToLower(v.(string)), nil },
		"capitalize":  textCapitalize,
		"zfill":       textZeroPad,
		"zero_pad":    textZeroPad,
		"strip":       textStrip,
		"length":      func(v any, _ Call) (any, error) { return utf8.RuneCountInString(v.(string)), nil },
		"starts_with": textStartsWith,
		"ends_with":   textEndsWith,
	},
	KindMapping: {
		"get":    mappingGet,
		"keys":   mappingKeys,
		"items":  mappingItems,
		"length": func(v any, _ Call) (any, error) { m, _ := AsMap(v); return len(m), nil },
	},
	KindSequence: {
		"length":   func(v any, _ Call) (any, error) { l, _ := AsList(v); return len(l), nil },
		"index_of": sequenceIndexOf,
		"reverse":  sequenceReverse,
		"sort":     sequenceSort,
		"join":     sequenceJoin,
	},
}

// FunctionNames returns the sorted function names available for kind.
func FunctionNames(kind Kind) []string {
	names := make([]string, 0, len(functionTables[kind]))
	for name := range functionTables[kind] {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// argument returns the positional argument at pos, or the keyword argument
// name, or def when neither was given.
func argument(call Call, pos int, name string, def any) any {
	if pos < len(call.Args) {
		return call.Args[pos]
	}
	if v, ok := call.Kwargs[name]; ok {
		return v
	}
	return def
}

func stringArgument(call Call, pos int, name string, required bool) (string, bool, error) {
	v := argument(call, pos, name, nil)
	if v == nil {
		if required {
			return "", false, fmt.Errorf("missing argument %s", name)
		}
		return "", false, nil
	}
	s, ok := v.(string)
	if !ok {
		return "", false, fmt.Errorf("argument %s must be text, got %s", name, KindOf(v))
	}
	return s, true, nil
}

func intArgument(call Call, pos int, name string, def int) (int, error) {
	v := argument(call, pos, name, def)
	n, ok := ToInt(v)
	if !ok {
		return 0, fmt.Errorf("argument %s must be an integer, got %s", name, KindOf(v))
	}
	return n, nil
}

func textSplit(v any, call Call) (any, error) {
	s := v.(string)
	sep, hasSep, err := stringArgument(call, 0, "sep", false)
	if err != nil {
		return nil, err
	}
	maxSplit, err := intArgument(call, 1, "maxsplit", -1)
	if err != nil {
		return nil, err
	}

	var parts []string
	switch {
	case !hasSep && maxSplit < 0:
		parts = strings.Fields(s)
	case !hasSep:
		parts = splitFieldsN(s, maxSplit)
	case sep == "":
		return nil, fmt.Errorf("empty separator")
	case maxSplit < 0:
		parts = strings.Split(s, sep)
	default:
		parts = strings.SplitN(s, sep, maxSplit+1)
	}

	out := make([]any, len(parts))
	for i, p := range parts {
		out[i] = p
	}
	return out, nil
}

// splitFieldsN splits on runs of whitespace at most n times; the remainder
// keeps its interior whitespace.
func splitFieldsN(s string, n int) []string {
	var parts []string
	rest := strings.TrimLeftFunc(s, unicode.IsSpace)
	for n > 0 && rest != "" {
		end := strings.IndexFunc(rest, unicode.IsSpace)
		if end < 0 {
			break
		}
		parts = append(parts, rest[:end])
		rest = strings.TrimLeftFunc(rest[end:], unicode.IsSpace)
		n--
	}
	if rest != "" {
		parts = append(parts, rest)
	}
	return parts
}

func textCapitalize(v any, _ Call) (any, error) {
	s := v.(string)
	if s == "" {
		return s, nil
	}
	r, size := utf8.DecodeRuneInString(s)
	return string(unicode.ToUpper(r)) + strings.ToLower(s[size:]), nil
}

func textZeroPad(v any, call Call) (any, error) {
	s := v.(string)
	width, err := intArgument(call, 0, "width", 0)
	if err != nil {
		return nil, err
	}
	n := utf8.RuneCountInString(s)
	if n >= width {
		return s, nil
	}
	sign := ""
	if s != "" && (s[0] == '-' || s[0] == '+') {
		sign, s = s[:1], s[1:]
	}
	return sign + strings.Repeat("0", width-n) + s, nil
}

func textStrip(v any, call Call) (any, error) {
	s := v.(string)
	chars, ok, err := stringArgument(call, 0, "chars", false)
	if err != nil {
		return nil, err
	}
	if !ok {
		return strings.TrimSpace(s), nil
	}
	return strings.Trim(s, chars), nil
}

func textStartsWith(v any, call Call) (any, error) {
	prefix, _, err := stringArgument(call, 0, "prefix", true)
	if err != nil {
		return nil, err
	}
	return strings.HasPrefix(v.(string), prefix), nil
}

func textEndsWith(v any, call Call) (any, error) {
	suffix, _, err := stringArgument(call, 0, "suffix", true)
	if err != nil {
		return nil, err
	}
	return strings.HasSuffix(v.(string), suffix), nil
}

func mappingGet(v any, call Call) (any, error) {
	m, _ := AsMap(v)
	key, _, err := stringArgument(call, 0, "key", true)
	if err != nil {
		return nil, err
	}
	if value, ok := m[key]; ok {
		return value, nil
	}
	return argument(call, 1, "default", nil), nil
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func mappingKeys(v any, _ Call) (any, error) {
	m, _ := AsMap(v)
	keys := sortedKeys(m)
	out := make([]any, len(keys))
	for i, k := range keys {
		out[i] = k
	}
	return out, nil
}

func mappingItems(v any, _ Call) (any, error) {
	m, _ := AsMap(v)
	keys := sortedKeys(m)
	out := make([]any, len(keys))
	for i, k := range keys {
		out[i] = []any{k, m[k]}
	}
	return out, nil
}

func sequenceIndexOf(v any, call Call) (any, error) {
	l, _ := AsList(v)
	if len(call.Args) == 0 {
		if _, ok := call.Kwargs["value"]; !ok {
			return nil, fmt.Errorf("missing argument value")
		}
	}
	target := argument(call, 0, "value", nil)
	for i, item := range l {
		if Equal(item, target) {
			return i, nil
		}
	}
	return -1, nil
}

func sequenceReverse(v any, _ Call) (any, error) {
	l, _ := AsList(v)
	out := make([]any, len(l))
	for i, item := range l {
		out[len(l)-1-i] = item
	}
	return out, nil
}

func sequenceSort(v any, _ Call) (any, error) {
	l, _ := AsList(v)
	out := make([]any, len(l))
	copy(out, l)

	allNumbers, allText := true, true
	for _, item := range out {
		if _, ok := toFloat(item); !ok {
			allNumbers = false
		}
		if _, ok := item.(string); !ok {
			allText = false
		}
	}

	switch {
	case len(out) == 0:
	case allNumbers:
		sort.SliceStable(out, func(i, j int) bool {
			a, _ := toFloat(out[i])
			b, _ := toFloat(out[j])
			return a < b
		})
	case allText:
		sort.SliceStable(out, func(i, j int) bool { return out[i].(string) < out[j].(string) })
	default:
		return nil, fmt.Errorf("can only sort sequences of all numbers or all text")
	}
	return out, nil
}

func sequenceJoin(v any, call Call) (any, error) {
	l, _ := AsList(v)
	delimiter, _, err := stringArgument(call, 0, "delimiter", false)
	if err != nil {
		return nil, err
	}
	parts := make([]string, len(l))
	for i, item := range l {
		parts[i] = Stringify(item)
	}
	return strings.Join(parts, delimiter), nil
}
