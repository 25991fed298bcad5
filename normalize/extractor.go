package normalize

import (
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
)

// ExtractValue probes an ordered list of dot-separated paths against a
// parsed payload tree and returns the first hit. Paths replace the
// hard-coded per-marketplace conditionals the handlers used to carry.
func ExtractValue(data map[string]any, paths ...string) (any, bool) {
	for _, path := range paths {
		if value, ok := lookupPath(data, path); ok {
			return value, true
		}
	}
	return nil, false
}

func ExtractString(data map[string]any, paths ...string) string {
	value, ok := ExtractValue(data, paths...)
	if !ok || value == nil {
		return ""
	}
	switch v := scalar(value).(type) {
	case string:
		return strings.TrimSpace(v)
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case int64:
		return strconv.FormatInt(v, 10)
	case bool:
		return strconv.FormatBool(v)
	default:
		return ""
	}
}

// ExtractInt coerces numeric payload values that arrive as JSON numbers or
// XML character data.
func ExtractInt(data map[string]any, paths ...string) (int64, bool) {
	value, ok := ExtractValue(data, paths...)
	if !ok {
		return 0, false
	}
	switch v := scalar(value).(type) {
	case float64:
		return int64(v), true
	case int:
		return int64(v), true
	case int64:
		return v, true
	case string:
		parsed, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64)
		if err != nil {
			return 0, false
		}
		return parsed, true
	default:
		return 0, false
	}
}

func ExtractDecimal(data map[string]any, paths ...string) (decimal.Decimal, bool) {
	value, ok := ExtractValue(data, paths...)
	if !ok {
		return decimal.Zero, false
	}
	switch v := scalar(value).(type) {
	case float64:
		return decimal.NewFromFloat(v), true
	case int64:
		return decimal.NewFromInt(v), true
	case string:
		parsed, err := decimal.NewFromString(strings.TrimSpace(v))
		if err != nil {
			return decimal.Zero, false
		}
		return parsed, true
	default:
		return decimal.Zero, false
	}
}

// ExtractMap returns a nested object at the first matching path.
func ExtractMap(data map[string]any, paths ...string) (map[string]any, bool) {
	value, ok := ExtractValue(data, paths...)
	if !ok {
		return nil, false
	}
	m, ok := value.(map[string]any)
	return m, ok
}

// ExtractSlice returns a list at the first matching path. Single XML
// children that did not collapse into a slice are wrapped.
func ExtractSlice(data map[string]any, paths ...string) ([]any, bool) {
	value, ok := ExtractValue(data, paths...)
	if !ok || value == nil {
		return nil, false
	}
	if list, ok := value.([]any); ok {
		return list, true
	}
	return []any{value}, true
}

// scalar unwraps an XML element that carried attributes: its character data
// lives under "#text" next to the "@attr" keys.
func scalar(value any) any {
	if node, ok := value.(map[string]any); ok {
		if text, ok := node["#text"]; ok {
			return text
		}
	}
	return value
}

func lookupPath(data map[string]any, path string) (any, bool) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, false
	}
	var current any = data
	for _, segment := range strings.Split(path, ".") {
		node, ok := current.(map[string]any)
		if !ok {
			return nil, false
		}
		current, ok = node[segment]
		if !ok {
			return nil, false
		}
	}
	return current, true
}
