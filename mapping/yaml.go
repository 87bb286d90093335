package mapping

import (
	"fmt"

	"github.com/goccy/go-yaml"
)

// EncodeYAML renders a config back to mapping-file YAML, preserving slot
// and field declaration order. Zero-valued optional keys are omitted.
func EncodeYAML(cfg *Config) ([]byte, error) {
	root := yaml.MapSlice{
		{Key: "shape", Value: cfg.Shape},
		{Key: "type", Value: cfg.Type},
	}

	appendScalar := func(key, val string) {
		if val != "" {
			root = append(root, yaml.MapItem{Key: key, Value: val})
		}
	}

	appendScalar("context_url", cfg.ContextURL)
	appendScalar("context_file", cfg.ContextFile)
	appendScalar("base_uri", cfg.BaseURI)

	root = append(root, yaml.MapItem{Key: "id_source", Value: cfg.IDSource})

	appendScalar("id_transform", cfg.IDTransform)

	if len(cfg.Properties) > 0 {
		slots := make(yaml.MapSlice, 0, len(cfg.Properties))
		for i := range cfg.Properties {
			slots = append(slots, yaml.MapItem{
				Key:   cfg.Properties[i].Name,
				Value: slotToYAML(&cfg.Properties[i]),
			})
		}

		root = append(root, yaml.MapItem{Key: "properties", Value: slots})
	}

	if cfg.RecordStatusDefaults != nil {
		root = append(root, yaml.MapItem{Key: "record_status_defaults", Value: slotToYAML(cfg.RecordStatusDefaults)})
	}

	if cfg.DataCollectionDefaults != nil {
		root = append(root, yaml.MapItem{Key: "data_collection_defaults", Value: slotToYAML(cfg.DataCollectionDefaults)})
	}

	out, err := yaml.Marshal(root)
	if err != nil {
		return nil, fmt.Errorf("encode mapping config: %w", err)
	}

	return out, nil
}

func slotToYAML(slot *SlotPlan) yaml.MapSlice {
	out := yaml.MapSlice{
		{Key: "type", Value: slot.Type},
		{Key: "cardinality", Value: slot.Cardinality},
	}

	if slot.SplitOn != "" {
		out = append(out, yaml.MapItem{Key: "split_on", Value: slot.SplitOn})
	}

	if slot.IncludeRecordStatus {
		out = append(out, yaml.MapItem{Key: "include_record_status", Value: true})
	}

	if slot.IncludeDataCollection {
		out = append(out, yaml.MapItem{Key: "include_data_collection", Value: true})
	}

	fields := make(yaml.MapSlice, 0, len(slot.Fields))
	for _, f := range slot.Fields {
		fields = append(fields, yaml.MapItem{Key: f.Target, Value: fieldToYAML(f)})
	}

	out = append(out, yaml.MapItem{Key: "fields", Value: fields})

	return out
}

func fieldToYAML(f FieldRule) yaml.MapSlice {
	out := yaml.MapSlice{}

	switch {
	case f.HasValue:
		out = append(out, yaml.MapItem{Key: "value", Value: f.Value})
	case f.ValueID != "":
		out = append(out, yaml.MapItem{Key: "value_id", Value: f.ValueID})
	default:
		out = append(out, yaml.MapItem{Key: "source", Value: f.Source})
	}

	if f.Datatype != "" {
		out = append(out, yaml.MapItem{Key: "datatype", Value: f.Datatype})
	}

	switch len(f.Transforms) {
	case 0:
	case 1:
		out = append(out, yaml.MapItem{Key: "transform", Value: f.Transforms[0]})
	default:
		out = append(out, yaml.MapItem{Key: "transform", Value: f.Transforms})
	}

	if f.Optional {
		out = append(out, yaml.MapItem{Key: "optional", Value: true})
	}

	if f.MultiValueSplit != "" {
		out = append(out, yaml.MapItem{Key: "multi_value_split", Value: f.MultiValueSplit})
	}

	return out
}
