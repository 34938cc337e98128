package mcp

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// ValidateArguments checks args against tool's JSON Schema inputSchema, if
// the server declared one. A tool with no inputSchema accepts any
// arguments unchecked, matching MCP's own "inputSchema is optional" rule.
func ValidateArguments(tool Tool, args map[string]interface{}) error {
	if tool.InputSchema == nil {
		return nil
	}

	schemaBytes, err := json.Marshal(tool.InputSchema)
	if err != nil {
		return fmt.Errorf("mcp: marshal input schema for %q: %w", tool.Name, err)
	}

	url := "mem://openfang/mcp/" + tool.Name + "/inputSchema.json"
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource(url, bytes.NewReader(schemaBytes)); err != nil {
		return fmt.Errorf("mcp: add input schema resource for %q: %w", tool.Name, err)
	}
	schema, err := compiler.Compile(url)
	if err != nil {
		return fmt.Errorf("mcp: compile input schema for %q: %w", tool.Name, err)
	}

	argBytes, err := json.Marshal(args)
	if err != nil {
		return fmt.Errorf("mcp: marshal arguments for %q: %w", tool.Name, err)
	}
	var instance interface{}
	if err := json.Unmarshal(argBytes, &instance); err != nil {
		return fmt.Errorf("mcp: unmarshal arguments for %q: %w", tool.Name, err)
	}

	if err := schema.Validate(instance); err != nil {
		return fmt.Errorf("mcp: arguments for %q do not satisfy inputSchema: %w", tool.Name, err)
	}
	return nil
}
