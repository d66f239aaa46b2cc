package storage

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// Filter selects vectors by exact payload equality. Every key must be
// present in the payload with an equal value. Numbers compare by value,
// so int 3 matches float64 3 after a JSON round trip. A string matches a
// number or bool when it parses to the same value, so metadata stored as
// "2024" matches a filter value of 2024.
type Filter map[string]any

// Matches reports whether payload satisfies every condition of f.
func (f Filter) Matches(payload Payload) bool {
	for key, want := range f {
		got, ok := payload[key]
		if !ok || !equalValues(got, want) {
			return false
		}
	}
	return true
}

// FilterFor returns a filter selecting all chunks of one document.
func FilterFor(documentID string) Filter {
	return Filter{PayloadDocumentID: documentID}
}

// ParseFilter builds a filter from "key=value" pairs. Values that parse as
// integers or floats become numbers, "true"/"false" become booleans.
func ParseFilter(pairs []string) (Filter, error) {
	if len(pairs) == 0 {
		return nil, nil
	}
	f := make(Filter, len(pairs))
	for _, pair := range pairs {
		key, value, ok := strings.Cut(pair, "=")
		key = strings.TrimSpace(key)
		if !ok || key == "" {
			return nil, fmt.Errorf("%w: filter %q is not key=value", ErrInvalidQuery, pair)
		}
		f[key] = parseScalar(strings.TrimSpace(value))
	}
	return f, nil
}

func parseScalar(s string) any {
	if i, err := strconv.ParseInt(s, 10, 64); err == nil {
		return i
	}
	if fl, err := strconv.ParseFloat(s, 64); err == nil {
		return fl
	}
	if s == "true" || s == "false" {
		return s == "true"
	}
	return s
}

func equalValues(a, b any) bool {
	if as, ok := a.(string); ok {
		if bs, ok := b.(string); ok {
			return as == bs
		}
		return stringEquals(as, b)
	}
	if bs, ok := b.(string); ok {
		return stringEquals(bs, a)
	}
	if af, ok := toFloat(a); ok {
		bf, ok := toFloat(b)
		return ok && af == bf
	}
	if av, ok := a.(bool); ok {
		bv, ok := b.(bool)
		return ok && av == bv
	}
	return false
}

// stringEquals compares s with a number or bool by parsed value.
func stringEquals(s string, v any) bool {
	if vf, ok := toFloat(v); ok {
		sf, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
		return err == nil && sf == vf
	}
	if vb, ok := v.(bool); ok {
		sb, err := strconv.ParseBool(strings.TrimSpace(s))
		return err == nil && sb == vb
	}
	return false
}

// FormatScalar returns the text form of a number or bool filter value, as
// a string payload holding the same value would spell it. ok is false for
// other types.
func FormatScalar(v any) (text string, ok bool) {
	switch x := v.(type) {
	case bool:
		return strconv.FormatBool(x), true
	case int:
		return strconv.Itoa(x), true
	case int32:
		return strconv.FormatInt(int64(x), 10), true
	case int64:
		return strconv.FormatInt(x, 10), true
	case uint:
		return strconv.FormatUint(uint64(x), 10), true
	case uint32:
		return strconv.FormatUint(uint64(x), 10), true
	case uint64:
		return strconv.FormatUint(x, 10), true
	case float32:
		return strconv.FormatFloat(float64(x), 'f', -1, 32), true
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64), true
	case json.Number:
		return x.String(), true
	}
	return "", false
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	}
	return 0, false
}

// Int reads an integer payload value, tolerating the float64 values that
// JSON decoding produces.
func (p Payload) Int(key string) (int, bool) {
	f, ok := toFloat(p[key])
	if !ok {
		if s, isStr := p[key].(string); isStr {
			i, err := strconv.Atoi(s)
			return i, err == nil
		}
		return 0, false
	}
	return int(f), true
}

// String reads a string payload value.
func (p Payload) String(key string) string {
	s, _ := p[key].(string)
	return s
}
