package enrich

import (
	"math"

	"solana-trade-inspector/internal/bucket"
)

// Transportable reports whether a float can be serialized as a plain number.
// Infinities, NaN and the unbounded bucket sentinel are rejected.
func Transportable(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0) && f != bucket.Unbounded && f != -bucket.Unbounded
}

// Clean sanitizes v with Transportable.
func Clean(v any) any {
	return Sanitize(v, Transportable)
}

// Sanitize walks v through nested maps and slices and replaces every float
// rejected by keep with nil. Containers are copied; v is not modified.
// Applying it twice is the same as applying it once.
func Sanitize(v any, keep func(float64) bool) any {
	switch t := v.(type) {
	case float64:
		if !keep(t) {
			return nil
		}
		return t
	case float32:
		if !keep(float64(t)) {
			return nil
		}
		return t
	case *float64:
		if t == nil || !keep(*t) {
			return nil
		}
		return *t
	case Row:
		out := make(Row, len(t))
		for k, e := range t {
			out[k] = Sanitize(e, keep)
		}
		return out
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, e := range t {
			out[k] = Sanitize(e, keep)
		}
		return out
	case map[int]any:
		out := make(map[int]any, len(t))
		for k, e := range t {
			out[k] = Sanitize(e, keep)
		}
		return out
	case []Row:
		out := make([]Row, len(t))
		for i, e := range t {
			out[i] = Sanitize(e, keep).(Row)
		}
		return out
	case []map[string]any:
		out := make([]map[string]any, len(t))
		for i, e := range t {
			out[i] = Sanitize(e, keep).(map[string]any)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = Sanitize(e, keep)
		}
		return out
	case []float64:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = Sanitize(e, keep)
		}
		return out
	}
	return v
}
