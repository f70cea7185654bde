package value

import (
	"errors"
	"math"
	"strconv"
	"strings"
	"time"

	"golang.org/x/text/unicode/norm"
)

// ErrNullKey is returned when a key component is null. Null values are never
// indexed.
var ErrNullKey = errors.New("null value cannot be part of an index key")

// keySeparator joins composite key components (ASCII unit separator).
const keySeparator = "\x1f"

// Key returns the normalized index form of a single value. Values that are
// Equal and share a numeric interpretation produce the same key:
// Key(1) == Key(int64(1)) == Key("1") == Key(true).
//
// Strings are NFC normalized so that canonically equivalent spellings of the
// same text collide.
func Key(v any) (string, error) {
	s := reduce(v)
	switch s.kind {
	case kindNil:
		return "", ErrNullKey
	case kindBool:
		if s.b {
			return "1", nil
		}
		return "0", nil
	case kindInt:
		return strconv.FormatInt(s.i, 10), nil
	case kindUint:
		return strconv.FormatUint(s.u, 10), nil
	case kindFloat:
		if s.f == math.Trunc(s.f) && math.Abs(s.f) < 1<<53 {
			return strconv.FormatInt(int64(s.f), 10), nil
		}
		return strconv.FormatFloat(s.f, 'g', -1, 64), nil
	case kindString:
		return norm.NFC.String(s.s), nil
	case kindBytes:
		return norm.NFC.String(string(s.raw)), nil
	case kindTime:
		return s.t.UTC().Format(time.RFC3339Nano), nil
	}
	return "", errors.New("unsupported index key type")
}

// CompositeKey joins the keys of several values. It fails if any component
// is null or unsupported.
func CompositeKey(values ...any) (string, error) {
	parts := make([]string, len(values))
	for i, v := range values {
		k, err := Key(v)
		if err != nil {
			return "", err
		}
		parts[i] = k
	}
	return strings.Join(parts, keySeparator), nil
}
