// Package jsonschema validates ToolRouter call arguments against a tool's
// declared parameter schema before the call is routed to a ToolHandler.
// Grounded on haasonsaas-nexus's pkg/pluginsdk/validation.go compile-cache
// pattern, adapted from plugin-config validation to tool-call-argument
// validation.
package jsonschema

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/agentorg/runtime/internal/domain/toolcall"
)

// Validator compiles and caches schemas declared on toolcall.Schema values
// and validates candidate call arguments against them.
type Validator struct {
	cache sync.Map // map[string]*jsonschema.Schema, keyed by tool name
}

// NewValidator returns a ready-to-use Validator.
func NewValidator() *Validator {
	return &Validator{}
}

// Validate checks args against schema.Parameters. A nil or empty
// Parameters map is treated as "no constraints" and always passes.
func (v *Validator) Validate(schema toolcall.Schema, args map[string]any) error {
	if len(schema.Parameters) == 0 {
		return nil
	}

	compiled, err := v.compile(schema)
	if err != nil {
		return fmt.Errorf("jsonschema: compile %s: %w", schema.Name, err)
	}

	payload, err := json.Marshal(args)
	if err != nil {
		return fmt.Errorf("jsonschema: encode args: %w", err)
	}
	var decoded any
	if err := json.Unmarshal(payload, &decoded); err != nil {
		return fmt.Errorf("jsonschema: decode args: %w", err)
	}

	if err := compiled.Validate(decoded); err != nil {
		return fmt.Errorf("jsonschema: %s: arguments invalid: %w", schema.Name, err)
	}
	return nil
}

func (v *Validator) compile(schema toolcall.Schema) (*jsonschema.Schema, error) {
	if cached, ok := v.cache.Load(schema.Name); ok {
		if compiled, ok := cached.(*jsonschema.Schema); ok {
			return compiled, nil
		}
	}

	raw, err := json.Marshal(schema.Parameters)
	if err != nil {
		return nil, fmt.Errorf("encode schema: %w", err)
	}

	compiled, err := jsonschema.CompileString(schema.Name+".schema.json", string(raw))
	if err != nil {
		return nil, err
	}
	v.cache.Store(schema.Name, compiled)
	return compiled, nil
}
