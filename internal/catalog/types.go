package catalog

import (
	"context"
	"fmt"

	"github.com/webmcp/relay/internal/protocol"
)

// CallContext is the per-request context handed to a tool executor.
type CallContext struct {
	RequestID string
	SessionID string // empty when absent
	Confirmed bool
}

// Args is a validated argument map. Only declared keys are present and every
// value has its declared kind.
type Args map[string]any

// String returns a declared string argument.
func (a Args) String(key string) string {
	s, _ := a[key].(string)
	return s
}

// Number returns a declared number argument.
func (a Args) Number(key string) float64 {
	f, _ := a[key].(float64)
	return f
}

// Bool returns a declared boolean argument.
func (a Args) Bool(key string) bool {
	b, _ := a[key].(bool)
	return b
}

// Executor runs a tool against validated arguments. The result must be a
// JSON-like value (maps, slices, strings, numbers, booleans, nil).
type Executor func(ctx context.Context, args Args, call CallContext) (any, error)

// Tool is a registered tool: its public descriptor, an optional extra
// argument check run after schema validation, and its executor.
type Tool struct {
	Descriptor protocol.ToolDescriptor
	Check      func(args Args) error
	Execute    Executor
}

// ArgumentError is returned by Validate. Its message always names the tool.
type ArgumentError struct {
	Tool   string
	Detail string
}

func (e *ArgumentError) Error() string {
	return fmt.Sprintf("Invalid arguments for tool %q: %s", e.Tool, e.Detail)
}
