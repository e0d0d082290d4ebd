package agent

import (
	"fmt"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// Registry holds the tool set in a fixed registration order. It is
// built once at startup and read-only afterward, so it is safe to share
// across requests without locking. Stable ordering matters: the system
// prompt is generated from it and must be reproducible.
type Registry struct {
	order   []string
	tools   map[string]Tool
	schemas map[string]*jsonschema.Schema
}

// NewRegistry compiles each tool's parameter schema and registers the
// tools in argument order. Duplicate names and invalid schemas are
// construction errors.
func NewRegistry(tools ...Tool) (*Registry, error) {
	r := &Registry{
		order:   make([]string, 0, len(tools)),
		tools:   make(map[string]Tool, len(tools)),
		schemas: make(map[string]*jsonschema.Schema, len(tools)),
	}
	for _, tool := range tools {
		name := tool.Name()
		if name == "" {
			return nil, fmt.Errorf("tool with empty name")
		}
		if _, exists := r.tools[name]; exists {
			return nil, fmt.Errorf("duplicate tool name %q", name)
		}
		schema, err := jsonschema.CompileString(name+".schema.json", string(tool.ParameterSchema()))
		if err != nil {
			return nil, fmt.Errorf("compile schema for %q: %w", name, err)
		}
		r.order = append(r.order, name)
		r.tools[name] = tool
		r.schemas[name] = schema
	}
	return r, nil
}

// Get returns the named tool.
func (r *Registry) Get(name string) (Tool, bool) {
	tool, ok := r.tools[name]
	return tool, ok
}

// List returns the tools in registration order.
func (r *Registry) List() []Tool {
	out := make([]Tool, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.tools[name])
	}
	return out
}

// Len returns the number of registered tools.
func (r *Registry) Len() int {
	return len(r.order)
}

// Definitions returns the provider-facing tool catalog in registration
// order.
func (r *Registry) Definitions() []Definition {
	defs := make([]Definition, 0, len(r.order))
	for _, name := range r.order {
		tool := r.tools[name]
		defs = append(defs, Definition{
			Name:        tool.Name(),
			Description: tool.Description(),
			Schema:      tool.ParameterSchema(),
		})
	}
	return defs
}

// ValidateParams checks args against the named tool's compiled
// parameter schema. The returned error text is user-facing; it is fed
// back to the model inside a validation_error output.
func (r *Registry) ValidateParams(name string, args map[string]any) error {
	schema, ok := r.schemas[name]
	if !ok {
		return fmt.Errorf("tool %q not found", name)
	}
	if err := schema.Validate(normalizeForSchema(args)); err != nil {
		return fmt.Errorf("Invalid parameters: %s", flattenSchemaError(err))
	}
	return nil
}

// normalizeForSchema converts decoded JSON values into the shapes the
// schema validator expects. Arguments arrive already decoded from the
// model's JSON, so this is the identity for well-formed input.
func normalizeForSchema(args map[string]any) any {
	if args == nil {
		return map[string]any{}
	}
	return args
}

// flattenSchemaError reduces a jsonschema validation error tree to its
// most specific message.
func flattenSchemaError(err error) string {
	ve, ok := err.(*jsonschema.ValidationError)
	if !ok {
		return err.Error()
	}
	leaf := ve
	for len(leaf.Causes) > 0 {
		leaf = leaf.Causes[0]
	}
	loc := strings.TrimPrefix(leaf.InstanceLocation, "/")
	if loc == "" {
		return leaf.Message
	}
	return fmt.Sprintf("%s: %s", loc, leaf.Message)
}
