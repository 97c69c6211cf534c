package ward

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v6"
)

// SchemaValidator validates Input.Payload (expected to already be, or be
// convertible to, a JSON-compatible value) against a compiled JSON Schema.
// It backs the phase runner's SCHEMA_VALIDATION state (output_schema) and
// any ward declared with an inputs_schema/output_schema.
type SchemaValidator struct {
	schema *jsonschema.Schema
}

// CompileSchema compiles a JSON Schema document (as a Go value, typically
// decoded from the cascade config's YAML/JSON) into a SchemaValidator.
func CompileSchema(name string, doc any) (*SchemaValidator, error) {
	raw, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("ward: marshal schema %q: %w", name, err)
	}
	var unmarshaled any
	if err := json.Unmarshal(raw, &unmarshaled); err != nil {
		return nil, fmt.Errorf("ward: decode schema %q: %w", name, err)
	}

	c := jsonschema.NewCompiler()
	if err := c.AddResource(name, unmarshaled); err != nil {
		return nil, fmt.Errorf("ward: add schema resource %q: %w", name, err)
	}
	schema, err := c.Compile(name)
	if err != nil {
		return nil, fmt.Errorf("ward: compile schema %q: %w", name, err)
	}
	return &SchemaValidator{schema: schema}, nil
}

// Validate implements Validator.
func (v *SchemaValidator) Validate(_ context.Context, in Input) (Result, error) {
	raw, err := json.Marshal(in.Payload)
	if err != nil {
		return Result{}, fmt.Errorf("ward: marshal payload: %w", err)
	}
	var instance any
	if err := json.Unmarshal(raw, &instance); err != nil {
		return Result{}, fmt.Errorf("ward: decode payload: %w", err)
	}

	if err := v.schema.Validate(instance); err != nil {
		if verr, ok := err.(*jsonschema.ValidationError); ok {
			return Result{
				OK:      false,
				Message: verr.Error(),
				Details: map[string]any{"location": verr.InstanceLocation},
			}, nil
		}
		return Result{OK: false, Message: err.Error()}, nil
	}
	return Result{OK: true}, nil
}

// NonEmpty fails when Payload is nil or an empty string.
func NonEmpty() ValidatorFunc {
	return func(_ context.Context, in Input) (Result, error) {
		switch v := in.Payload.(type) {
		case nil:
			return Result{OK: false, Message: "payload is empty"}, nil
		case string:
			if v == "" {
				return Result{OK: false, Message: "payload is an empty string"}, nil
			}
		}
		return Result{OK: true}, nil
	}
}

// IsJSON fails when Payload cannot be marshaled to JSON.
func IsJSON() ValidatorFunc {
	return func(_ context.Context, in Input) (Result, error) {
		if _, err := json.Marshal(in.Payload); err != nil {
			return Result{OK: false, Message: "payload is not JSON-serializable: " + err.Error()}, nil
		}
		return Result{OK: true}, nil
	}
}
