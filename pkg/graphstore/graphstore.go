package graphstore

import (
	"context"
	"fmt"
	"math"
)

// Record is one result row keyed by the returned variable names.
type Record map[string]any

// Runner executes parameterized statements. Values are always bound as
// parameters; only labels and relationship types from fixed enums are ever
// rendered into statement text.
type Runner interface {
	// Run executes a statement with write routing.
	Run(ctx context.Context, query string, params map[string]any) ([]Record, error)
	// Read executes a statement with read routing.
	Read(ctx context.Context, query string, params map[string]any) ([]Record, error)
}

// Store is a Runner owning a connection.
type Store interface {
	Runner
	Close(ctx context.Context) error
}

func (r Record) String(key string) string {
	switch v := r[key].(type) {
	case string:
		return v
	case nil:
		return ""
	default:
		return fmt.Sprint(v)
	}
}

// Int returns an integral value. Floats are truncated; missing values are 0.
func (r Record) Int(key string) int64 {
	v, _ := AsInt(r[key])
	return v
}

// Float reports false for missing or non-numeric values.
func (r Record) Float(key string) (float64, bool) {
	return AsFloat(r[key])
}

func (r Record) Bool(key string) bool {
	b, _ := r[key].(bool)
	return b
}

func (r Record) Strings(key string) []string {
	return AsStrings(r[key])
}

// Maps returns a list of map values, skipping entries of other types.
func (r Record) Maps(key string) []map[string]any {
	list, _ := r[key].([]any)
	out := make([]map[string]any, 0, len(list))
	for _, item := range list {
		if m, ok := item.(map[string]any); ok {
			out = append(out, m)
		}
	}
	return out
}

func AsInt(v any) (int64, bool) {
	switch n := v.(type) {
	case int64:
		return n, true
	case int:
		return int64(n), true
	case int32:
		return int64(n), true
	case float64:
		return int64(math.Trunc(n)), true
	}
	return 0, false
}

func AsFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		if math.IsNaN(n) {
			return 0, false
		}
		return n, true
	case int64:
		return float64(n), true
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	}
	return 0, false
}

func AsStrings(v any) []string {
	switch list := v.(type) {
	case []string:
		return list
	case []any:
		out := make([]string, 0, len(list))
		for _, item := range list {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}
