package toolkit

import (
	"encoding/json"
	"fmt"
	"reflect"
	"sync"

	"github.com/invopop/jsonschema"
	jsonschemav6 "github.com/santhosh-tekuri/jsonschema/v6"
)

// EmitSchema derives a JSON Schema document from a Go type, for tools whose
// parameters are defined as a struct rather than hand-written JSON Schema.
// The result is the canonical representation stored on ToolSpec.ParameterSchema.
func EmitSchema(v any) (map[string]any, error) {
	reflector := &jsonschema.Reflector{
		DoNotReference:            true,
		ExpandedStruct:            true,
		AllowAdditionalProperties: false,
	}
	schema := reflector.ReflectFromType(reflect.TypeOf(v))
	encoded, err := json.Marshal(schema)
	if err != nil {
		return nil, fmt.Errorf("toolkit: emit schema: %w", err)
	}
	var doc map[string]any
	if err := json.Unmarshal(encoded, &doc); err != nil {
		return nil, fmt.Errorf("toolkit: emit schema: %w", err)
	}
	return doc, nil
}

// schemaCache compiles each tool's parameter schema once, on the first
// validation for that tool name, and reuses the compiled validator on every
// later call, per the "dynamic
// schemas" design note: schemas are a single canonical JSON Schema
// representation, validators compiled once per tool.
type schemaCache struct {
	mu         sync.Mutex
	compiled   map[string]*jsonschemav6.Schema
}

func newSchemaCache() *schemaCache {
	return &schemaCache{compiled: make(map[string]*jsonschemav6.Schema)}
}

// compile returns the cached compiled schema for toolName, compiling and
// caching it on first use.
func (c *schemaCache) compile(toolName string, doc map[string]any) (*jsonschemav6.Schema, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if s, ok := c.compiled[toolName]; ok {
		return s, nil
	}
	if doc == nil {
		return nil, nil
	}

	compiler := jsonschemav6.NewCompiler()
	const resourceURL = "mem://tool-schema.json"
	if err := compiler.AddResource(resourceURL, doc); err != nil {
		return nil, fmt.Errorf("toolkit: add schema resource for %q: %w", toolName, err)
	}
	schema, err := compiler.Compile(resourceURL)
	if err != nil {
		return nil, fmt.Errorf("toolkit: compile schema for %q: %w", toolName, err)
	}
	c.compiled[toolName] = schema
	return schema, nil
}

// validate validates input against toolName's compiled schema. A nil
// schema (tool declares no parameter schema) always validates.
func (c *schemaCache) validate(toolName string, doc map[string]any, input map[string]any) error {
	schema, err := c.compile(toolName, doc)
	if err != nil {
		return err
	}
	if schema == nil {
		return nil
	}
	return schema.Validate(input)
}

// fieldPaths extracts the JSON pointer paths of every leaf validation
// failure from a jsonschema validation error. The executor does not call
// it: VALIDATION_ERROR results carry only the validator's error message.
func fieldPaths(err error) []string {
	ve, ok := err.(*jsonschemav6.ValidationError)
	if !ok {
		return nil
	}
	var paths []string
	var walk func(*jsonschemav6.ValidationError)
	walk = func(e *jsonschemav6.ValidationError) {
		if len(e.Causes) == 0 {
			paths = append(paths, joinPointer(e.InstanceLocation))
			return
		}
		for _, cause := range e.Causes {
			walk(cause)
		}
	}
	walk(ve)
	return paths
}

func joinPointer(segments []string) string {
	if len(segments) == 0 {
		return "/"
	}
	out := ""
	for _, s := range segments {
		out += "/" + s
	}
	return out
}
