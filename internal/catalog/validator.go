package catalog

import (
	"encoding/json"
	"fmt"
	"math"
	"reflect"
	"sort"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v6"
	"github.com/webmcp/relay/internal/protocol"
)

// compileSchema builds the exact-shape JSON Schema for a descriptor: only the
// declared inputs are allowed, all of them are required, and each has its
// declared primitive type.
func compileSchema(d protocol.ToolDescriptor) (*jsonschema.Schema, error) {
	props := make(map[string]any, len(d.Input))
	required := make([]any, 0, len(d.Input))
	for _, name := range sortedInputs(d.Input) {
		kind := d.Input[name]
		switch kind {
		case protocol.KindString, protocol.KindNumber, protocol.KindBoolean:
		default:
			return nil, fmt.Errorf("input %q has unsupported kind %q", name, kind)
		}
		props[name] = map[string]any{"type": string(kind)}
		required = append(required, name)
	}

	doc := map[string]any{
		"type":                 "object",
		"properties":           props,
		"required":             required,
		"additionalProperties": false,
	}

	url := d.Name + ".schema.json"
	c := jsonschema.NewCompiler()
	if err := c.AddResource(url, doc); err != nil {
		return nil, fmt.Errorf("schema compile error: %w", err)
	}
	sch, err := c.Compile(url)
	if err != nil {
		return nil, fmt.Errorf("schema compile error: %w", err)
	}
	return sch, nil
}

// Validate checks caller-supplied arguments against the tool's schema and its
// extra check. Nil arguments are treated as an empty object. The returned Args
// is a fresh map owned by the caller.
func (c *Catalog) Validate(name string, raw map[string]any) (Args, error) {
	e, ok := c.byName[name]
	if !ok {
		return nil, &ArgumentError{Tool: name, Detail: "unknown tool"}
	}
	d := e.tool.Descriptor

	if raw == nil {
		raw = map[string]any{}
	}

	// In-process callers may pass Go ints or json.Number; executors only
	// ever see float64.
	args := make(Args, len(raw))
	for k, v := range raw {
		if f, numeric, ok := toFloat(v); numeric {
			if !ok || math.IsNaN(f) || math.IsInf(f, 0) {
				return nil, &ArgumentError{Tool: d.Name, Detail: fmt.Sprintf("%q must be a finite number", k)}
			}
			v = f
		}
		args[k] = v
	}

	if err := e.schema.Validate(map[string]any(args)); err != nil {
		return nil, &ArgumentError{Tool: d.Name, Detail: "expected " + expectedShape(d.Input)}
	}

	if e.tool.Check != nil {
		if err := e.tool.Check(args); err != nil {
			return nil, &ArgumentError{Tool: d.Name, Detail: err.Error()}
		}
	}
	return args, nil
}

// toFloat converts any Go numeric value to float64. numeric reports whether v
// is a number at all; ok is false when a json.Number does not parse.
func toFloat(v any) (f float64, numeric, ok bool) {
	if n, isNum := v.(json.Number); isNum {
		f, err := n.Float64()
		return f, true, err == nil
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Float32, reflect.Float64:
		return rv.Float(), true, true
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return float64(rv.Int()), true, true
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		return float64(rv.Uint()), true, true
	default:
		return 0, false, false
	}
}

// expectedShape renders the declared input map, e.g. "{ a: number, b: number }".
func expectedShape(input map[string]protocol.Kind) string {
	if len(input) == 0 {
		return "{} (no arguments)"
	}
	parts := make([]string, 0, len(input))
	for _, name := range sortedInputs(input) {
		parts = append(parts, name+": "+string(input[name]))
	}
	return "{ " + strings.Join(parts, ", ") + " }"
}

func sortedInputs(input map[string]protocol.Kind) []string {
	names := make([]string, 0, len(input))
	for name := range input {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
