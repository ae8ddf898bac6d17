package expr

import (
	"fmt"
	"strconv"
)

// Resolve looks up path in root.
//
// found is false when a mapping key is absent or a sequence index is out of
// range; that is not an error. A non-numeric index into a sequence, a lookup
// into a scalar, or a failing function call is.
func Resolve(root any, path string) (value any, found bool, err error) {
	segments, err := ParsePath(path)
	if err != nil {
		return nil, false, err
	}
	return resolveSegments(root, segments)
}

func resolveSegments(current any, segments []Segment) (any, bool, error) {
	if len(segments) == 0 {
		return current, true, nil
	}
	seg := segments[0]

	var candidate any
	if m, ok := AsMap(current); ok {
		v, present := m[seg.Key]
		if !present {
			return nil, false, nil
		}
		candidate = v
	} else if list, ok := AsList(current); ok {
		idx, err := strconv.Atoi(seg.Key)
		if err != nil || idx < 0 {
			return nil, false, fmt.Errorf("%q must be a non-negative integer index into a sequence", seg.Key)
		}
		if idx >= len(list) {
			return nil, false, nil
		}
		candidate = list[idx]
	} else {
		return nil, false, fmt.Errorf("cannot look up %q in %s value", seg.Key, KindOf(current))
	}

	transformed, err := applyPipeline(candidate, seg.Pipeline)
	if err != nil {
		return nil, false, err
	}
	return resolveSegments(transformed, segments[1:])
}

func applyPipeline(value any, pipeline []Call) (any, error) {
	for _, call := range pipeline {
		kind := KindOf(value)
		table, ok := functionTables[kind]
		if !ok {
			return nil, fmt.Errorf("%s(): functions cannot be applied to %s values", call.Name, kind)
		}
		fn, ok := table[call.Name]
		if !ok {
			return nil, fmt.Errorf("%s() is not a %s function", call.Name, kind)
		}
		result, err := fn(value, call)
		if err != nil {
			return nil, fmt.Errorf("%s(): %w", call.Name, err)
		}
		value = result
	}
	return value, nil
}
