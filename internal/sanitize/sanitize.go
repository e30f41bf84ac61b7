// Package sanitize scrubs tool results before they are returned to the caller.
package sanitize

import (
	"encoding/json"
	"reflect"

	"github.com/webmcp/relay/internal/risk"
)

// FilteredMarker replaces any string value the detector flags.
const FilteredMarker = "[FILTERED_PROMPT_INJECTION]"

// Sanitizer walks JSON-like values and replaces risky strings wholesale.
type Sanitizer struct {
	detector risk.Detector
	enabled  bool
}

// New returns a sanitizer. When enabled is false Sanitize returns its input.
func New(detector risk.Detector, enabled bool) *Sanitizer {
	return &Sanitizer{detector: detector, enabled: enabled && detector != nil}
}

// Enabled reports whether output filtering is active.
func (s *Sanitizer) Enabled() bool {
	return s.enabled
}

// Sanitize returns a copy of v with every risky string leaf replaced by
// FilteredMarker, and the number of replacements made. Map keys are kept.
// Non-string scalars pass through. Containers other than []any, []string,
// map[string]any and map[string]string come back in their plain JSON shape.
func (s *Sanitizer) Sanitize(v any) (any, int) {
	if !s.enabled {
		return v, 0
	}
	n := 0
	out := s.walk(v, &n)
	return out, n
}

func (s *Sanitizer) walk(v any, n *int) any {
	switch t := v.(type) {
	case string:
		return s.text(t, n)
	case []any:
		out := make([]any, len(t))
		for i, item := range t {
			out[i] = s.walk(item, n)
		}
		return out
	case []string:
		out := make([]string, len(t))
		for i, item := range t {
			out[i] = s.text(item, n)
		}
		return out
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, item := range t {
			out[k] = s.walk(item, n)
		}
		return out
	case map[string]string:
		out := make(map[string]string, len(t))
		for k, item := range t {
			out[k] = s.text(item, n)
		}
		return out
	default:
		return s.walkOther(v, n)
	}
}

// walkOther handles typed containers, structs, pointers and named string
// types by reducing them to their JSON form first. Values that cannot be
// encoded are returned unchanged.
func (s *Sanitizer) walkOther(v any, n *int) any {
	if v == nil {
		return nil
	}
	switch reflect.ValueOf(v).Kind() {
	case reflect.String, reflect.Slice, reflect.Array, reflect.Map,
		reflect.Struct, reflect.Pointer, reflect.Interface:
	default:
		return v
	}

	raw, err := json.Marshal(v)
	if err != nil {
		return v
	}
	var plain any
	if err := json.Unmarshal(raw, &plain); err != nil {
		return v
	}
	return s.walk(plain, n)
}

func (s *Sanitizer) text(str string, n *int) string {
	if hit, _ := s.detector.Match(str); hit {
		*n++
		return FilteredMarker
	}
	return str
}
