package value

import (
	"bytes"
	"math"
	"reflect"
	"strconv"
	"time"
)

type kind int

const (
	kindNil kind = iota
	kindBool
	kindInt
	kindUint
	kindFloat
	kindString
	kindBytes
	kindTime
	kindOther
)

// scalar is a value reduced to one of the comparable kinds.
type scalar struct {
	kind kind
	b    bool
	i    int64
	u    uint64
	f    float64
	s    string
	raw  []byte
	t    time.Time
	v    any
}

// Equal reports whether two column values represent the same stored value.
// See the package documentation for the full table.
func Equal(a, b any) bool {
	sa, sb := reduce(a), reduce(b)

	if sa.kind == kindNil || sb.kind == kindNil {
		return sa.kind == kindNil && sb.kind == kindNil
	}

	switch {
	case sa.kind == sb.kind:
		return sameKind(sa, sb)
	case sa.kind == kindString && sb.kind == kindBytes:
		return sa.s == string(sb.raw)
	case sa.kind == kindBytes && sb.kind == kindString:
		return string(sa.raw) == sb.s
	case sa.kind == kindTime || sb.kind == kindTime:
		return timeEqual(sa, sb)
	case sa.kind == kindString:
		return stringNumberEqual(sa.s, sb)
	case sb.kind == kindString:
		return stringNumberEqual(sb.s, sa)
	case isNumeric(sa) && isNumeric(sb):
		return numberEqual(sa, sb)
	}

	return reflect.DeepEqual(sa.v, sb.v)
}

func sameKind(a, b scalar) bool {
	switch a.kind {
	case kindBool:
		return a.b == b.b
	case kindInt:
		return a.i == b.i
	case kindUint:
		return a.u == b.u
	case kindFloat:
		return a.f == b.f
	case kindString:
		return a.s == b.s
	case kindBytes:
		return bytes.Equal(a.raw, b.raw)
	case kindTime:
		return a.t.Equal(b.t)
	}
	return reflect.DeepEqual(a.v, b.v)
}

// stringNumberEqual compares a string against a non-string scalar. Empty
// strings never match; numeric strings are compared by value.
func stringNumberEqual(s string, other scalar) bool {
	if s == "" || !isNumeric(other) {
		return false
	}
	parsed, ok := parseNumber(s)
	if !ok {
		return false
	}
	return numberEqual(parsed, other)
}

func timeEqual(a, b scalar) bool {
	ta, okA := asTime(a)
	tb, okB := asTime(b)
	if !okA || !okB {
		return false
	}
	return ta.Equal(tb)
}

// timeLayouts are the textual forms SQLite drivers hand back for DATETIME
// columns.
var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02 15:04:05.999999999-07:00",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

func asTime(s scalar) (time.Time, bool) {
	switch s.kind {
	case kindTime:
		return s.t, true
	case kindString:
		for _, layout := range timeLayouts {
			if t, err := time.Parse(layout, s.s); err == nil {
				return t, true
			}
		}
	}
	return time.Time{}, false
}

func isNumeric(s scalar) bool {
	switch s.kind {
	case kindBool, kindInt, kindUint, kindFloat:
		return true
	}
	return false
}

func numberEqual(a, b scalar) bool {
	a, b = boolToInt(a), boolToInt(b)

	switch {
	case a.kind == kindInt && b.kind == kindInt:
		return a.i == b.i
	case a.kind == kindUint && b.kind == kindUint:
		return a.u == b.u
	case a.kind == kindInt && b.kind == kindUint:
		return a.i >= 0 && uint64(a.i) == b.u
	case a.kind == kindUint && b.kind == kindInt:
		return b.i >= 0 && uint64(b.i) == a.u
	}

	fa, fb := toFloat(a), toFloat(b)
	if math.IsNaN(fa) || math.IsNaN(fb) {
		return false
	}
	return fa == fb
}

func boolToInt(s scalar) scalar {
	if s.kind != kindBool {
		return s
	}
	if s.b {
		return scalar{kind: kindInt, i: 1, v: s.v}
	}
	return scalar{kind: kindInt, i: 0, v: s.v}
}

func toFloat(s scalar) float64 {
	switch s.kind {
	case kindInt:
		return float64(s.i)
	case kindUint:
		return float64(s.u)
	case kindFloat:
		return s.f
	}
	return math.NaN()
}

// parseNumber interprets a numeric string, preferring integer forms so that
// large identifiers do not lose precision.
func parseNumber(s string) (scalar, bool) {
	if i, err := strconv.ParseInt(s, 10, 64); err == nil {
		return scalar{kind: kindInt, i: i}, true
	}
	if u, err := strconv.ParseUint(s, 10, 64); err == nil {
		return scalar{kind: kindUint, u: u}, true
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil && !math.IsInf(f, 0) && !math.IsNaN(f) {
		return scalar{kind: kindFloat, f: f}, true
	}
	return scalar{}, false
}

// reduce dereferences pointers and classifies v.
func reduce(v any) scalar {
	if v == nil {
		return scalar{kind: kindNil}
	}

	switch x := v.(type) {
	case bool:
		return scalar{kind: kindBool, b: x, v: v}
	case string:
		return scalar{kind: kindString, s: x, v: v}
	case []byte:
		if x == nil {
			return scalar{kind: kindNil}
		}
		return scalar{kind: kindBytes, raw: x, v: v}
	case time.Time:
		return scalar{kind: kindTime, t: x, v: v}
	case int:
		return scalar{kind: kindInt, i: int64(x), v: v}
	case int64:
		return scalar{kind: kindInt, i: x, v: v}
	case float64:
		return scalar{kind: kindFloat, f: x, v: v}
	}

	rv := reflect.ValueOf(v)
	for rv.Kind() == reflect.Pointer || rv.Kind() == reflect.Interface {
		if rv.IsNil() {
			return scalar{kind: kindNil}
		}
		rv = rv.Elem()
	}

	switch rv.Kind() {
	case reflect.Bool:
		return scalar{kind: kindBool, b: rv.Bool(), v: v}
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return scalar{kind: kindInt, i: rv.Int(), v: v}
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		return scalar{kind: kindUint, u: rv.Uint(), v: v}
	case reflect.Float32, reflect.Float64:
		return scalar{kind: kindFloat, f: rv.Float(), v: v}
	case reflect.String:
		return scalar{kind: kindString, s: rv.String(), v: v}
	case reflect.Slice:
		if rv.Type().Elem().Kind() == reflect.Uint8 {
			return scalar{kind: kindBytes, raw: rv.Bytes(), v: v}
		}
	case reflect.Struct:
		if t, ok := rv.Interface().(time.Time); ok {
			return scalar{kind: kindTime, t: t, v: v}
		}
	}

	return scalar{kind: kindOther, v: rv.Interface()}
}

// IsNull reports whether v is nil or a nil pointer.
func IsNull(v any) bool {
	return reduce(v).kind == kindNil
}

// Diff returns the entries of next that are not Equal to the matching entry
// in prev. Keys present in prev but missing from next are ignored.
func Diff(prev, next map[string]any) map[string]any {
	changes := make(map[string]any)
	for k, v := range next {
		old, ok := prev[k]
		if !ok || !Equal(old, v) {
			changes[k] = v
		}
	}
	return changes
}

// Clone returns a shallow copy of m. A nil map clones to an empty map.
func Clone(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
