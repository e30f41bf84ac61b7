package redact

import (
	"math"
	"strings"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/webmcp/relay/internal/protocol"
)

func TestSummarizeArguments_ReadTool(t *testing.T) {
	s := New(nil)
	long := strings.Repeat("x", 100)

	got := s.SummarizeArguments(map[string]any{
		"text":      "hello",
		"a":         20.0,
		"b":         1.5,
		"flag":      true,
		"missing":   nil,
		"long":      long,
		"nested":    map[string]any{"k": "v"},
		"list":      []any{1.0},
		"apiToken":  "abc",
		"UserEmail": "a@example.com",
	}, protocol.SideEffectRead)

	want := map[string]string{
		"text":      "hello",
		"a":         "20",
		"b":         "1.5",
		"flag":      "true",
		"missing":   "null",
		"long":      strings.Repeat("x", 77) + "...",
		"nested":    Complex,
		"list":      Complex,
		"apiToken":  Redacted,
		"UserEmail": Redacted,
	}
	for k, w := range want {
		if got[k] != w {
			t.Errorf("%s: expected %q, got %q", k, w, got[k])
		}
	}
	if len(got) != len(want) {
		t.Errorf("expected %d keys, got %d", len(want), len(got))
	}
}

func TestSummarizeArguments_Boundary(t *testing.T) {
	s := New(nil)
	exact := strings.Repeat("y", 80)
	got := s.SummarizeArguments(map[string]any{"text": exact}, protocol.SideEffectRead)
	if got["text"] != exact {
		t.Errorf("80-char value must be kept verbatim, got %d chars", len(got["text"]))
	}
}

func TestSummarizeArguments_NilArgs(t *testing.T) {
	got := New(nil).SummarizeArguments(nil, protocol.SideEffectRead)
	if got == nil || len(got) != 0 {
		t.Errorf("expected empty map, got %#v", got)
	}
}

func TestSummarizeArguments_CustomKeys(t *testing.T) {
	s := New(ParseKeys(" Session , ,PIN"))
	got := s.SummarizeArguments(map[string]any{
		"sessionHint": "x",
		"pinCode":     "1234",
		"password":    "kept",
	}, protocol.SideEffectRead)

	if got["sessionHint"] != Redacted || got["pinCode"] != Redacted {
		t.Errorf("configured keys should redact: %v", got)
	}
	if got["password"] != "kept" {
		t.Errorf("custom list replaces defaults: %v", got)
	}
	if keys := s.Keys(); len(keys) != 2 || keys[0] != "session" || keys[1] != "pin" {
		t.Errorf("unexpected normalized keys: %v", keys)
	}
}

func TestSummarizeResult(t *testing.T) {
	s := New(nil)
	tests := []struct {
		name   string
		result any
		effect protocol.SideEffect
		want   string
	}{
		{"read object", map[string]any{"value": 42.0}, protocol.SideEffectRead, `{"value":42}`},
		{"read nil", nil, protocol.SideEffectRead, None},
		{"html not escaped", map[string]any{"text": "<b>"}, protocol.SideEffectRead, `{"text":"<b>"}`},
		{"unserializable", map[string]any{"v": math.NaN()}, protocol.SideEffectRead, Unserializable},
		{"write", map[string]any{"count": 1}, protocol.SideEffectWrite, Redacted},
		{"sensitive nil", nil, protocol.SideEffectSensitive, Redacted},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := s.SummarizeResult(tt.result, tt.effect); got != tt.want {
				t.Errorf("expected %q, got %q", tt.want, got)
			}
		})
	}
}

func TestSummarizeResult_Truncates(t *testing.T) {
	got := New(nil).SummarizeResult(map[string]any{"text": strings.Repeat("z", 300)}, protocol.SideEffectRead)
	if len([]rune(got)) != 200 || !strings.HasSuffix(got, "...") {
		t.Errorf("expected 200 chars ending in ..., got %d chars", len([]rune(got)))
	}
}

func TestFormatNumber(t *testing.T) {
	tests := map[float64]string{
		20:     "20",
		-3:     "-3",
		0.25:   "0.25",
		1e21:   "1e+21",
		0:      "0",
		123456: "123456",
	}
	for in, want := range tests {
		if got := formatNumber(in); got != want {
			t.Errorf("formatNumber(%v) = %q, want %q", in, got, want)
		}
	}
}

func TestRedaction_NonReadAlwaysRedacted(t *testing.T) {
	s := New(nil)
	properties := gopter.NewProperties(nil)

	properties.Property("non-read arguments and results are fully redacted", prop.ForAll(
		func(keys []string, text string, sensitive bool) bool {
			effect := protocol.SideEffectWrite
			if sensitive {
				effect = protocol.SideEffectSensitive
			}
			args := make(map[string]any, len(keys))
			for _, k := range keys {
				args[k] = text
			}
			summary := s.SummarizeArguments(args, effect)
			if len(summary) != len(args) {
				return false
			}
			for _, v := range summary {
				if v != Redacted {
					return false
				}
			}
			return s.SummarizeResult(map[string]any{"text": text}, effect) == Redacted
		},
		gen.SliceOf(gen.Identifier()),
		gen.AnyString(),
		gen.Bool(),
	))

	properties.TestingRun(t)
}

func TestRedaction_ReadSummariesAreBounded(t *testing.T) {
	s := New(nil)
	properties := gopter.NewProperties(nil)

	properties.Property("read argument summaries never exceed 80 characters", prop.ForAll(
		func(text string) bool {
			got := s.SummarizeArguments(map[string]any{"text": text}, protocol.SideEffectRead)["text"]
			return len([]rune(got)) <= 80
		},
		gen.AnyString(),
	))

	properties.TestingRun(t)
}
