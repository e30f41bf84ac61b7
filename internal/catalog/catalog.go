// Package catalog is the static tool registry. It is built and validated once
// at process start and is read-only afterwards.
package catalog

import (
	"errors"
	"fmt"
	"regexp"

	"github.com/santhosh-tekuri/jsonschema/v6"
	"github.com/webmcp/relay/internal/protocol"
	"github.com/webmcp/relay/internal/risk"
)

var (
	ErrEmptyToolName   = errors.New("empty tool name")
	ErrInvalidToolName = errors.New("invalid tool name")
	ErrDuplicateTool   = errors.New("duplicate tool name")
	ErrRiskyDescriptor = errors.New("risky descriptor text")
	ErrInvalidTool     = errors.New("invalid tool definition")
)

var toolNameRe = regexp.MustCompile(`^[A-Za-z0-9_.\-]{1,64}$`)

type entry struct {
	tool   Tool
	schema *jsonschema.Schema
}

// Catalog holds tools in registration order.
type Catalog struct {
	entries []*entry
	byName  map[string]*entry
}

// New validates the tools and builds a catalog. Any integrity violation is
// returned as an error wrapping one of the package sentinels; callers treat it
// as fatal.
func New(detector risk.Detector, tools ...Tool) (*Catalog, error) {
	c := &Catalog{
		entries: make([]*entry, 0, len(tools)),
		byName:  make(map[string]*entry, len(tools)),
	}

	for _, t := range tools {
		d := t.Descriptor
		if d.Name == "" {
			return nil, ErrEmptyToolName
		}
		if !toolNameRe.MatchString(d.Name) {
			return nil, fmt.Errorf("%w: %q", ErrInvalidToolName, d.Name)
		}
		if _, dup := c.byName[d.Name]; dup {
			return nil, fmt.Errorf("%w: %q", ErrDuplicateTool, d.Name)
		}
		if detector != nil {
			if hit, detail := detector.Match(d.Name); hit {
				return nil, fmt.Errorf("%w in name of tool %q: %s", ErrRiskyDescriptor, d.Name, detail)
			}
			if hit, detail := detector.Match(d.Description); hit {
				return nil, fmt.Errorf("%w in description of tool %q: %s", ErrRiskyDescriptor, d.Name, detail)
			}
		}
		if !d.SideEffect.Valid() {
			return nil, fmt.Errorf("%w: tool %q has side effect %q", ErrInvalidTool, d.Name, d.SideEffect)
		}
		if t.Execute == nil {
			return nil, fmt.Errorf("%w: tool %q has no executor", ErrInvalidTool, d.Name)
		}

		sch, err := compileSchema(d)
		if err != nil {
			return nil, fmt.Errorf("%w: tool %q: %v", ErrInvalidTool, d.Name, err)
		}

		e := &entry{tool: t, schema: sch}
		c.entries = append(c.entries, e)
		c.byName[d.Name] = e
	}

	return c, nil
}

// List returns every descriptor in registration order. The slice and the
// descriptors' input maps are copies.
func (c *Catalog) List() []protocol.ToolDescriptor {
	out := make([]protocol.ToolDescriptor, 0, len(c.entries))
	for _, e := range c.entries {
		out = append(out, copyDescriptor(e.tool.Descriptor))
	}
	return out
}

// Descriptor returns the descriptor for name, if registered.
func (c *Catalog) Descriptor(name string) (protocol.ToolDescriptor, bool) {
	e, ok := c.byName[name]
	if !ok {
		return protocol.ToolDescriptor{}, false
	}
	return copyDescriptor(e.tool.Descriptor), true
}

// Lookup returns the registered tool for name.
func (c *Catalog) Lookup(name string) (Tool, bool) {
	e, ok := c.byName[name]
	if !ok {
		return Tool{}, false
	}
	return e.tool, true
}

// Len returns the number of registered tools.
func (c *Catalog) Len() int {
	return len(c.entries)
}

func copyDescriptor(d protocol.ToolDescriptor) protocol.ToolDescriptor {
	input := make(map[string]protocol.Kind, len(d.Input))
	for k, v := range d.Input {
		input[k] = v
	}
	d.Input = input
	return d
}
