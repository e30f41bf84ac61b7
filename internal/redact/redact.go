// Package redact builds the truncated, redacted summaries stored in audit
// entries. Raw argument and result values never reach the audit log.
package redact

import (
	"bytes"
	"encoding/json"
	"math"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/webmcp/relay/internal/protocol"
)

// Markers written in place of values.
const (
	Redacted       = "[REDACTED]"
	Complex        = "[COMPLEX]"
	None           = "[NONE]"
	Unserializable = "[UNSERIALIZABLE]"
)

const (
	maxArgumentChars = 80
	maxResultChars   = 200
)

// DefaultKeys are the sensitive key substrings used when none are configured.
var DefaultKeys = []string{"password", "token", "secret", "email", "address", "card", "ssn"}

// Summarizer redacts by side effect class and by argument key name.
type Summarizer struct {
	keys []string
}

// New returns a summarizer matching the given key substrings
// case-insensitively. Blank entries are dropped; an empty list falls back to
// DefaultKeys.
func New(keys []string) *Summarizer {
	normalized := make([]string, 0, len(keys))
	for _, k := range keys {
		k = strings.ToLower(strings.TrimSpace(k))
		if k != "" {
			normalized = append(normalized, k)
		}
	}
	if len(normalized) == 0 {
		normalized = append(normalized, DefaultKeys...)
	}
	return &Summarizer{keys: normalized}
}

// ParseKeys splits a comma-separated key list as found in configuration,
// dropping blank entries.
func ParseKeys(csv string) []string {
	var keys []string
	for _, k := range strings.Split(csv, ",") {
		if k = strings.TrimSpace(k); k != "" {
			keys = append(keys, k)
		}
	}
	return keys
}

// Keys returns the active sensitive key substrings.
func (s *Summarizer) Keys() []string {
	return append([]string(nil), s.keys...)
}

// SensitiveKey reports whether key contains any configured substring.
func (s *Summarizer) SensitiveKey(key string) bool {
	lower := strings.ToLower(key)
	for _, k := range s.keys {
		if strings.Contains(lower, k) {
			return true
		}
	}
	return false
}

// SummarizeArguments maps each argument key to a redacted or truncated string.
// Every value of a non-read tool is redacted.
func (s *Summarizer) SummarizeArguments(args map[string]any, effect protocol.SideEffect) map[string]string {
	out := make(map[string]string, len(args))
	for k, v := range args {
		if effect != protocol.SideEffectRead || s.SensitiveKey(k) {
			out[k] = Redacted
			continue
		}
		out[k] = summarizeValue(v)
	}
	return out
}

// SummarizeResult serializes a read tool's result and truncates it. Results of
// non-read tools are always redacted.
func (s *Summarizer) SummarizeResult(result any, effect protocol.SideEffect) string {
	if effect != protocol.SideEffectRead {
		return Redacted
	}
	if result == nil {
		return None
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(result); err != nil {
		return Unserializable
	}
	serialized := strings.TrimSuffix(buf.String(), "\n")
	if serialized == "" {
		return None
	}
	return truncate(serialized, maxResultChars)
}

func summarizeValue(v any) string {
	switch t := v.(type) {
	case nil:
		return "null"
	case string:
		return truncate(t, maxArgumentChars)
	case bool:
		return strconv.FormatBool(t)
	case float64:
		return formatNumber(t)
	case float32:
		return formatNumber(float64(t))
	case int:
		return strconv.Itoa(t)
	case int64:
		return strconv.FormatInt(t, 10)
	case json.Number:
		return t.String()
	default:
		return Complex
	}
}

// formatNumber renders integral values without a fractional part (20, not
// 20.000000) and switches to exponent form only for very large or small
// magnitudes.
func formatNumber(f float64) string {
	switch {
	case math.IsNaN(f):
		return "NaN"
	case math.IsInf(f, 1):
		return "Infinity"
	case math.IsInf(f, -1):
		return "-Infinity"
	}
	abs := math.Abs(f)
	if abs != 0 && (abs >= 1e21 || abs < 1e-6) {
		return strconv.FormatFloat(f, 'g', -1, 64)
	}
	return strconv.FormatFloat(f, 'f', -1, 64)
}

// truncate keeps s when it fits in max characters, otherwise cuts it to
// max-3 characters plus "...".
func truncate(s string, max int) string {
	if utf8.RuneCountInString(s) <= max {
		return s
	}
	runes := []rune(s)
	return string(runes[:max-3]) + "..."
}
