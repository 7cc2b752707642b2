// Package schema holds the JSON Schema of chordsync.yml and validates raw
// configuration against it.
package schema

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

//go:embed chordsync.schema.json
var embeddedSchemaData []byte

const resourceName = "chordsync.json"

var (
	compileOnce sync.Once
	compiled    *jsonschema.Schema
	compileErr  error
)

// Validator validates configuration against the embedded JSON Schema.
type Validator struct {
	schema *jsonschema.Schema
}

// NewValidator returns a validator for the embedded schema. The schema is
// compiled once per process.
func NewValidator() (*Validator, error) {
	compileOnce.Do(func() {
		compiler := jsonschema.NewCompiler()
		compiler.Draft = jsonschema.Draft7
		if err := compiler.AddResource(resourceName, bytes.NewReader(embeddedSchemaData)); err != nil {
			compileErr = fmt.Errorf("failed to add embedded schema resource: %w", err)
			return
		}
		compiled, compileErr = compiler.Compile(resourceName)
		if compileErr != nil {
			compileErr = fmt.Errorf("failed to compile embedded schema: %w", compileErr)
		}
	})
	if compileErr != nil {
		return nil, compileErr
	}
	return &Validator{schema: compiled}, nil
}

// Bytes returns the embedded schema document.
func Bytes() []byte {
	return append([]byte(nil), embeddedSchemaData...)
}

// Validate validates configData against the schema. configData is
// round-tripped through JSON first, so structs and YAML/TOML maps are
// checked the same way.
func (v *Validator) Validate(configData interface{}) error {
	jsonData, err := json.Marshal(configData)
	if err != nil {
		return fmt.Errorf("failed to marshal config to JSON for validation: %w", err)
	}

	var doc interface{}
	if err := json.Unmarshal(jsonData, &doc); err != nil {
		return fmt.Errorf("failed to unmarshal JSON for validation: %w", err)
	}

	if err := v.schema.Validate(doc); err != nil {
		if validationErr, ok := err.(*jsonschema.ValidationError); ok {
			violations := &ViolationsError{}
			collectErrors(validationErr, &violations.Violations)
			return violations
		}
		return fmt.Errorf("schema validation failed: %w", err)
	}
	return nil
}

// ViolationsError lists every schema violation of a document, one
// "- <location>: <message>" entry each.
type ViolationsError struct {
	Violations []string
}

func (e *ViolationsError) Error() string {
	return "schema validation failed:\n" + strings.Join(e.Violations, "\n")
}

// collectErrors flattens the leaf causes of err, one line per location.
func collectErrors(err *jsonschema.ValidationError, messages *[]string) {
	if len(err.Causes) == 0 {
		location := err.InstanceLocation
		if location == "" {
			location = "/"
		}
		*messages = append(*messages, fmt.Sprintf("- %s: %s", location, err.Message))
		return
	}
	for _, cause := range err.Causes {
		collectErrors(cause, messages)
	}
}
