package config

import (
	"encoding/json"

	"github.com/invopop/jsonschema"
)

// GenerateSchema generates the JSON Schema for chordsync.yml from Config.
// Unknown top-level sections are extensions and must be objects.
func GenerateSchema() ([]byte, error) {
	r := &jsonschema.Reflector{
		AllowAdditionalProperties: false,
		ExpandedStruct:            true,
		DoNotReference:            true,
		FieldNameTag:              "yaml",
	}

	schema := r.Reflect(&Config{})
	schema.Title = "chordsync configuration"
	schema.Description = "Schema for chordsync.yml and chordsync.toml."
	schema.Version = "http://json-schema.org/draft-07/schema#"
	schema.AdditionalProperties = &jsonschema.Schema{Type: "object"}

	return json.MarshalIndent(schema, "", "  ")
}
