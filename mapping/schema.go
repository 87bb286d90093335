package mapping

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/goccy/go-yaml"
	"github.com/google/jsonschema-go/jsonschema"
)

// mappingSchema is the structural JSON Schema for mapping config files.
// Semantic constraints (duplicate slots, datatype tokens, origin
// exclusivity) are enforced separately by [Config.check].
//
// The slot schema appears at three positions (properties, both defaults
// blocks) and [jsonschema.Schema.Resolve] requires the schema graph to
// be a tree, so every position gets its own instance from the factory.
func mappingSchema() *jsonschema.Schema {
	stringOrNull := func() *jsonschema.Schema {
		return &jsonschema.Schema{Types: []string{"string", "null"}}
	}

	fieldRuleSchema := func() *jsonschema.Schema {
		return &jsonschema.Schema{
			Type: "object",
			Properties: map[string]*jsonschema.Schema{
				"source":            {Type: "string"},
				"target":            {Type: "string"},
				"datatype":          {Type: "string"},
				"optional":          {Type: "boolean"},
				"multi_value_split": {Type: "string"},
				"value":             {Type: "string"},
				"value_id":          {Type: "string"},
				"transform": {
					AnyOf: []*jsonschema.Schema{
						{Type: "string"},
						{Type: "array", Items: &jsonschema.Schema{Type: "string"}},
						{Type: "null"},
					},
				},
			},
			AdditionalProperties: &jsonschema.Schema{Not: &jsonschema.Schema{}},
		}
	}

	slotSchema := func() *jsonschema.Schema {
		return &jsonschema.Schema{
			Type: "object",
			Properties: map[string]*jsonschema.Schema{
				"type":                    {Type: "string"},
				"cardinality":             {Type: "string", Enum: []any{"single", "multiple"}},
				"split_on":                {Type: "string"},
				"include_record_status":   {Type: "boolean"},
				"include_data_collection": {Type: "boolean"},
				"fields": {
					Type:                 "object",
					AdditionalProperties: fieldRuleSchema(),
				},
			},
			AdditionalProperties: &jsonschema.Schema{Not: &jsonschema.Schema{}},
		}
	}

	return &jsonschema.Schema{
		Type: "object",
		Properties: map[string]*jsonschema.Schema{
			"shape":        {Type: "string"},
			"type":         {Type: "string"},
			"context_url":  stringOrNull(),
			"context_file": stringOrNull(),
			"base_uri":     {Type: "string"},
			"id_source":    {Type: "string"},
			"id_transform": stringOrNull(),
			"properties": {
				Type:                 "object",
				AdditionalProperties: slotSchema(),
			},
			"record_status_defaults":   slotSchema(),
			"data_collection_defaults": slotSchema(),
		},
		Required:             []string{"shape", "id_source"},
		AdditionalProperties: &jsonschema.Schema{Not: &jsonschema.Schema{}},
	}
}

var resolveSchemaOnce = sync.OnceValues(func() (*jsonschema.Resolved, error) {
	return mappingSchema().Resolve(nil)
})

// checkSchema validates YAML bytes against the mapping schema. The YAML
// is round-tripped through JSON so numbers and nested maps take the
// shapes the validator expects.
func checkSchema(data []byte) error {
	var doc map[string]any

	err := yaml.Unmarshal(data, &doc)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrConfigParse, err)
	}

	jsonBytes, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrConfigParse, err)
	}

	var instance any
	if err := json.Unmarshal(jsonBytes, &instance); err != nil {
		return fmt.Errorf("%w: %w", ErrConfigParse, err)
	}

	resolved, err := resolveSchemaOnce()
	if err != nil {
		return fmt.Errorf("%w: resolve mapping schema: %w", ErrConfigParse, err)
	}

	err = resolved.Validate(instance)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrConfigParse, err)
	}

	return nil
}
