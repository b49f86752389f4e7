// Package metatool implements the Meta-tool Set (C7): built-in tools
// resolved entirely in-process by the Router before any backend lookup.
package metatool

import (
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/santhosh-tekuri/jsonschema/v6"

	"goblin/internal/gwerr"
)

// objectSchema is a small builder for the mcp.ToolInputSchema values every
// meta-tool advertises, mirroring the inline map literals toolhive's own
// built-in tools use.
func objectSchema(required []string, props map[string]any) mcp.ToolInputSchema {
	return mcp.ToolInputSchema{
		Type:       "object",
		Properties: props,
		Required:   required,
	}
}

func stringProp(description string) map[string]any {
	return map[string]any{"type": "string", "description": description}
}

// compiledValidator compiles a mcp.ToolInputSchema once at registration time
// so every call only pays for Validate, not for re-parsing the schema.
type compiledValidator struct {
	schema *jsonschema.Schema
}

func compileSchema(name string, s mcp.ToolInputSchema) (*compiledValidator, error) {
	raw, err := json.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("marshal schema for %s: %w", name, err)
	}
	var doc any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("unmarshal schema for %s: %w", name, err)
	}
	c := jsonschema.NewCompiler()
	resource := name + ".json"
	if err := c.AddResource(resource, doc); err != nil {
		return nil, fmt.Errorf("add schema resource for %s: %w", name, err)
	}
	compiled, err := c.Compile(resource)
	if err != nil {
		return nil, fmt.Errorf("compile schema for %s: %w", name, err)
	}
	return &compiledValidator{schema: compiled}, nil
}

// validate rejects arguments that don't satisfy the schema with a
// ValidationError, the only error kind meta-tools raise before dispatch.
func (v *compiledValidator) validate(toolName string, args map[string]any) error {
	if v == nil || v.schema == nil {
		return nil
	}
	// jsonschema.Validate wants plain any values (no map[string]any is
	// required specifically, but round-tripping through JSON guarantees the
	// numeric/string kinds match what the schema compiler expects).
	raw, err := json.Marshal(args)
	if err != nil {
		return gwerr.ValidationError(fmt.Sprintf("%s: arguments not serializable", toolName), nil)
	}
	var doc any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return gwerr.ValidationError(fmt.Sprintf("%s: arguments not serializable", toolName), nil)
	}
	if err := v.schema.Validate(doc); err != nil {
		return gwerr.ValidationError(fmt.Sprintf("%s: %s", toolName, err.Error()), map[string]any{"tool": toolName})
	}
	return nil
}
