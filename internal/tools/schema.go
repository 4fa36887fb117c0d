package tools

import (
	"bytes"
	"encoding/json"
	"fmt"

	invopop "github.com/invopop/jsonschema"
	jsonschema "github.com/santhosh-tekuri/jsonschema/v6"
)

// compileSchema reflects a JSON Schema from the input struct and compiles
// it into a validator. Reflection runs once per tool at construction, so
// a bad input type fails at startup, not when the model first calls it.
func compileSchema(input any) (json.RawMessage, *jsonschema.Schema, error) {
	reflector := invopop.Reflector{
		DoNotReference: true,
		ExpandedStruct: true,
	}
	reflected := reflector.Reflect(input)
	// The model never benefits from schema metadata; keep the payload lean.
	reflected.Version = ""

	raw, err := json.Marshal(reflected)
	if err != nil {
		return nil, nil, fmt.Errorf("marshal reflected schema: %w", err)
	}

	doc, err := jsonschema.UnmarshalJSON(bytes.NewReader(raw))
	if err != nil {
		return nil, nil, fmt.Errorf("parse reflected schema: %w", err)
	}

	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("schema.json", doc); err != nil {
		return nil, nil, fmt.Errorf("add schema resource: %w", err)
	}
	compiled, err := compiler.Compile("schema.json")
	if err != nil {
		return nil, nil, fmt.Errorf("compile schema: %w", err)
	}

	return raw, compiled, nil
}
