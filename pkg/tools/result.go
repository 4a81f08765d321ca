package tools

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// EncodeResult renders a tool result as conversation text.
// Strings pass through; everything else is indented JSON.
func EncodeResult(result any) string {
	switch v := result.(type) {
	case nil:
		return "null"
	case string:
		return v
	case []byte:
		return string(v)
	}
	data, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return fmt.Sprintf("%v", result)
	}
	return string(data)
}

// EncodeError renders an error as a JSON object so the model sees a consistent shape.
func EncodeError(err error) string {
	data, _ := json.Marshal(map[string]string{"error": err.Error()}) //nolint:errchkjson // map of strings always marshals
	return string(data)
}

// StringArg returns a trimmed string argument or def when absent.
func StringArg(args map[string]any, key, def string) string {
	v, ok := args[key]
	if !ok || v == nil {
		return def
	}
	switch s := v.(type) {
	case string:
		if strings.TrimSpace(s) == "" {
			return def
		}
		return strings.TrimSpace(s)
	default:
		return fmt.Sprintf("%v", s)
	}
}

// RequireString returns a non-empty string argument or an error naming the missing field.
func RequireString(args map[string]any, key string) (string, error) {
	s := StringArg(args, key, "")
	if s == "" {
		return "", &ArgumentError{Field: key}
	}
	return s, nil
}

// IntArg accepts JSON numbers, ints, and numeric strings.
func IntArg(args map[string]any, key string, def int) int {
	v, ok := args[key]
	if !ok || v == nil {
		return def
	}
	switch n := v.(type) {
	case int:
		return n
	case int32:
		return int(n)
	case int64:
		return int(n)
	case float64:
		return int(n)
	case float32:
		return int(n)
	case json.Number:
		if i, err := n.Int64(); err == nil {
			return int(i)
		}
	case string:
		if i, err := strconv.Atoi(strings.TrimSpace(n)); err == nil {
			return i
		}
	}
	return def
}

// BoolArg accepts booleans and the strings "true"/"false".
func BoolArg(args map[string]any, key string, def bool) bool {
	v, ok := args[key]
	if !ok || v == nil {
		return def
	}
	switch b := v.(type) {
	case bool:
		return b
	case string:
		if parsed, err := strconv.ParseBool(strings.TrimSpace(b)); err == nil {
			return parsed
		}
	}
	return def
}

// StringSliceArg accepts a JSON array of strings or a comma-separated string.
func StringSliceArg(args map[string]any, key string) []string {
	v, ok := args[key]
	if !ok || v == nil {
		return nil
	}
	var out []string
	switch s := v.(type) {
	case []string:
		out = append(out, s...)
	case []any:
		for _, item := range s {
			if str, ok := item.(string); ok && strings.TrimSpace(str) != "" {
				out = append(out, strings.TrimSpace(str))
			}
		}
	case string:
		for _, part := range strings.Split(s, ",") {
			if p := strings.TrimSpace(part); p != "" {
				out = append(out, p)
			}
		}
	}
	return out
}
