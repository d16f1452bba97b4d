// Package nativeschema validates a host's declarative native-function
// manifest (SPEC_FULL.md §6.2) before the caller wires each entry into
// a VM with vm.RegisterNative. Grounded on the teacher pack's
// core/types/validation.go: compile a JSON Schema document with
// santhosh-tekuri/jsonschema/v5 and validate host-supplied JSON
// against it, with the same security posture (no remote $ref
// resolution, draft 2020-12).
package nativeschema

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// manifestSchema is the JSON Schema a native manifest document must
// satisfy: a top-level array of {name, arity, protected?} entries.
const manifestSchema = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "array",
  "items": {
    "type": "object",
    "properties": {
      "name": { "type": "string", "minLength": 1, "pattern": "^[A-Za-z_][A-Za-z0-9_]*$" },
      "arity": { "type": "integer", "minimum": 0 },
      "protected": { "type": "boolean" }
    },
    "required": ["name", "arity"],
    "additionalProperties": false
  }
}`

// Entry is one validated manifest record.
type Entry struct {
	Name      string `json:"name"`
	Arity     int    `json:"arity"`
	Protected bool   `json:"protected"`
}

// Validator compiles the manifest schema once and validates repeated
// documents against it.
type Validator struct {
	schema *jsonschema.Schema
}

// NewValidator compiles the manifest schema. The error return exists
// only for symmetry with a host-supplied schema variant; with the
// fixed schema above it never fails.
func NewValidator() (*Validator, error) {
	compiler := jsonschema.NewCompiler()
	compiler.Draft = jsonschema.Draft2020
	// Security: no network or filesystem reference resolution — the
	// manifest schema above is fully self-contained.
	compiler.LoadURL = func(url string) (io.ReadCloser, error) {
		return nil, fmt.Errorf("nativeschema: $ref resolution is disabled, got %q", url)
	}

	url := "schema://native-manifest.json"
	if err := compiler.AddResource(url, strings.NewReader(manifestSchema)); err != nil {
		return nil, fmt.Errorf("nativeschema: add resource: %w", err)
	}
	schema, err := compiler.Compile(url)
	if err != nil {
		return nil, fmt.Errorf("nativeschema: compile: %w", err)
	}
	return &Validator{schema: schema}, nil
}

// Validate parses and schema-checks manifestJSON, returning the
// decoded entries on success.
func (v *Validator) Validate(manifestJSON []byte) ([]Entry, error) {
	var doc interface{}
	if err := json.Unmarshal(manifestJSON, &doc); err != nil {
		return nil, fmt.Errorf("nativeschema: invalid JSON: %w", err)
	}
	if err := v.schema.Validate(doc); err != nil {
		return nil, fmt.Errorf("nativeschema: manifest failed validation: %w", err)
	}

	var entries []Entry
	if err := json.Unmarshal(manifestJSON, &entries); err != nil {
		return nil, fmt.Errorf("nativeschema: decode entries: %w", err)
	}
	return entries, nil
}
