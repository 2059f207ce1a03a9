// Package expr interpolates `{{path.to.value}}` template expressions
// against a nested context built up during a workflow run.
package expr

import (
	"encoding/json"
	"regexp"
	"strings"

	"github.com/tidwall/gjson"
)

// tokenPattern matches a single {{ ... }} token; non-greedy so that
// "{{a}} and {{b}}" yields two tokens, not one spanning both.
var tokenPattern = regexp.MustCompile(`\{\{(.+?)\}\}`)

// fullTokenPattern additionally anchors the token to the whole string, used
// to decide whether a native-typed value should replace the string outright.
var fullTokenPattern = regexp.MustCompile(`^\{\{(.+?)\}\}$`)

// Interpolate recursively walks value (a string, map, slice, or scalar) and
// substitutes every {{path}} token found in any string it contains. Maps
// and slices are walked structurally; scalars other than strings pass
// through unchanged. The function never errors: an unresolved path yields
// the absent value (nil, or "" when embedded in a larger string).
func Interpolate(value any, ctx map[string]any) any {
	switch v := value.(type) {
	case string:
		return interpolateString(v, ctx)
	case map[string]any:
		out := make(map[string]any, len(v))
		for k, vv := range v {
			out[k] = Interpolate(vv, ctx)
		}
		return out
	case []any:
		out := make([]any, len(v))
		for i, vv := range v {
			out[i] = Interpolate(vv, ctx)
		}
		return out
	default:
		return value
	}
}

func interpolateString(s string, ctx map[string]any) any {
	if m := fullTokenPattern.FindStringSubmatch(s); m != nil {
		val, ok := Resolve(m[1], ctx)
		if !ok {
			return nil
		}
		return val
	}

	if !tokenPattern.MatchString(s) {
		return s
	}

	return tokenPattern.ReplaceAllStringFunc(s, func(tok string) string {
		inner := tok[2 : len(tok)-2]
		val, ok := Resolve(inner, ctx)
		if !ok || val == nil {
			return ""
		}
		return stringify(val)
	})
}

// Resolve walks a dot-separated path against ctx. Each segment is either a
// map key or, when the current value is a sequence, a non-negative integer
// index. The walk short-circuits to (nil, false) the moment a segment can't
// be resolved: unknown key, out-of-range or non-numeric index, or a
// scalar encountered with segments still remaining.
func Resolve(path string, ctx map[string]any) (any, bool) {
	segments := strings.Split(path, ".")
	for i := range segments {
		segments[i] = strings.TrimSpace(segments[i])
	}
	clean := strings.Join(segments, ".")

	data, err := json.Marshal(ctx)
	if err != nil {
		return nil, false
	}

	result := gjson.GetBytes(data, clean)
	if !result.Exists() {
		return nil, false
	}
	return result.Value(), true
}

func stringify(v any) string {
	switch s := v.(type) {
	case string:
		return s
	case nil:
		return ""
	default:
		b, err := json.Marshal(v)
		if err != nil {
			return ""
		}
		return string(b)
	}
}
