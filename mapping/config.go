package mapping

import (
	"errors"
	"fmt"

	"github.com/goccy/go-yaml"
)

// Cardinality of a sub-shape slot.
const (
	CardinalitySingle   = "single"
	CardinalityMultiple = "multiple"
)

// Datatype tokens accepted in field rules.
var knownDatatypes = map[string]bool{
	"":             true,
	"plain":        true,
	"xsd:string":   true,
	"xsd:date":     true,
	"xsd:dateTime": true,
	"xsd:integer":  true,
	"xsd:token":    true,
	"xsd:boolean":  true,
	"xsd:decimal":  true,
	"xsd:anyURI":   true,
}

var (
	// ErrConfigParse indicates the mapping file is not valid YAML or does
	// not match the mapping schema.
	ErrConfigParse = errors.New("parse mapping config")
	// ErrConfigInvalid indicates a semantically invalid mapping config.
	ErrConfigInvalid = errors.New("invalid mapping config")
)

// Config is a parsed mapping plan. Configs are immutable after parsing;
// [Compose] and [Mapper.WithOverrides] derive new values instead of
// mutating.
type Config struct {
	// Shape is the target node-shape name.
	Shape string
	// Type is the JSON-LD @type of the root document.
	Type string
	// ContextURL is the IRI serialized under @context, if any.
	ContextURL string
	// ContextFile is a local context path used for validation and term
	// resolution.
	ContextFile string
	// BaseURI prefixes every document @id. Must end in "/" or "#".
	BaseURI string
	// IDSource is the source field providing the document identifier.
	IDSource string
	// IDTransform optionally names a transform applied to the identifier.
	IDTransform string
	// Properties holds the sub-shape slots in declaration order.
	Properties []SlotPlan
	// RecordStatusDefaults is the default-valued sub-shape injected where
	// include_record_status is set.
	RecordStatusDefaults *SlotPlan
	// DataCollectionDefaults is the default-valued sub-shape injected
	// where include_data_collection is set.
	DataCollectionDefaults *SlotPlan
}

// SlotPlan describes one sub-shape slot.
type SlotPlan struct {
	// Name is the document key for this slot.
	Name string
	// Type is the sub-shape @type.
	Type string
	// Cardinality is [CardinalitySingle] or [CardinalityMultiple].
	Cardinality string
	// SplitOn is the outer delimiter producing multiple sub-shapes.
	SplitOn string
	// IncludeRecordStatus injects the record-status defaults sub-shape.
	IncludeRecordStatus bool
	// IncludeDataCollection injects the data-collection defaults
	// sub-shape.
	IncludeDataCollection bool
	// Fields holds the field rules in declaration order.
	Fields []FieldRule
}

// Field returns the field rule for a target term.
func (s *SlotPlan) Field(target string) (FieldRule, bool) {
	for _, f := range s.Fields {
		if f.Target == target {
			return f, true
		}
	}

	return FieldRule{}, false
}

// FieldRule moves one source column to one target term.
type FieldRule struct {
	// Source is the source column name. Empty when Value or ValueID is
	// set.
	Source string
	// Target is the target term (the key under which the value is
	// emitted).
	Target string
	// Datatype is one of the xsd tokens, or "plain"/empty.
	Datatype string
	// Transforms are applied in order.
	Transforms []string
	// Optional fields are dropped when the source value is empty.
	Optional bool
	// MultiValueSplit is the inner delimiter producing a list value.
	MultiValueSplit string
	// Value is a literal default emitted when no source is bound. A rule
	// with a literal is effectively non-optional.
	Value string
	// HasValue distinguishes an empty literal from an absent one.
	HasValue bool
	// ValueID is a literal IRI default emitted when no source is bound.
	ValueID string
}

// Parse reads a mapping config from YAML bytes. Key order of `properties`
// and `fields` is preserved. The document is checked structurally against
// the mapping schema before being walked.
func Parse(data []byte) (*Config, error) {
	if err := checkSchema(data); err != nil {
		return nil, err
	}

	var root yaml.MapSlice

	err := yaml.UnmarshalWithOptions(data, &root, yaml.UseOrderedMap())
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrConfigParse, err)
	}

	cfg := &Config{}

	for _, item := range root {
		key := fmt.Sprint(item.Key)

		switch key {
		case "shape":
			cfg.Shape = asString(item.Value)
		case "type":
			cfg.Type = asString(item.Value)
		case "context_url":
			cfg.ContextURL = asString(item.Value)
		case "context_file":
			cfg.ContextFile = asString(item.Value)
		case "base_uri":
			cfg.BaseURI = asString(item.Value)
		case "id_source":
			cfg.IDSource = asString(item.Value)
		case "id_transform":
			cfg.IDTransform = asString(item.Value)

		case "properties":
			slots, err := parseSlots(item.Value)
			if err != nil {
				return nil, err
			}

			cfg.Properties = slots

		case "record_status_defaults":
			slot, err := parseSlot("record_status_defaults", item.Value)
			if err != nil {
				return nil, err
			}

			cfg.RecordStatusDefaults = slot

		case "data_collection_defaults":
			slot, err := parseSlot("data_collection_defaults", item.Value)
			if err != nil {
				return nil, err
			}

			cfg.DataCollectionDefaults = slot

		default:
			return nil, fmt.Errorf("%w: unknown top-level key %q", ErrConfigParse, key)
		}
	}

	if err := cfg.check(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// check enforces the semantic constraints that the structural schema
// cannot express.
func (c *Config) check() error {
	if c.Shape == "" {
		return fmt.Errorf("%w: missing shape", ErrConfigInvalid)
	}

	if c.IDSource == "" {
		return fmt.Errorf("%w: shape %q: missing id_source", ErrConfigInvalid, c.Shape)
	}

	seen := make(map[string]bool, len(c.Properties))

	for i := range c.Properties {
		slot := &c.Properties[i]

		if seen[slot.Name] {
			return fmt.Errorf("%w: duplicate property %q", ErrConfigInvalid, slot.Name)
		}

		seen[slot.Name] = true

		if err := slot.check(); err != nil {
			return err
		}
	}

	return nil
}

func (s *SlotPlan) check() error {
	switch s.Cardinality {
	case CardinalitySingle, CardinalityMultiple:
	case "":
		s.Cardinality = CardinalitySingle
	default:
		return fmt.Errorf("%w: property %q: cardinality must be %q or %q, got %q",
			ErrConfigInvalid, s.Name, CardinalitySingle, CardinalityMultiple, s.Cardinality)
	}

	if s.SplitOn != "" && s.Cardinality != CardinalityMultiple {
		return fmt.Errorf("%w: property %q: split_on requires cardinality: multiple", ErrConfigInvalid, s.Name)
	}

	for _, f := range s.Fields {
		if !knownDatatypes[f.Datatype] {
			return fmt.Errorf("%w: property %q field %q: unknown datatype %q",
				ErrConfigInvalid, s.Name, f.Target, f.Datatype)
		}

		origins := 0
		if f.Source != "" {
			origins++
		}

		if f.HasValue {
			origins++
		}

		if f.ValueID != "" {
			origins++
		}

		if origins > 1 {
			return fmt.Errorf("%w: property %q field %q: source, value, and value_id are mutually exclusive",
				ErrConfigInvalid, s.Name, f.Target)
		}
	}

	return nil
}

func parseSlots(v any) ([]SlotPlan, error) {
	ms, ok := v.(yaml.MapSlice)
	if !ok {
		return nil, fmt.Errorf("%w: properties is not a mapping", ErrConfigParse)
	}

	slots := make([]SlotPlan, 0, len(ms))

	for _, item := range ms {
		slot, err := parseSlot(fmt.Sprint(item.Key), item.Value)
		if err != nil {
			return nil, err
		}

		slots = append(slots, *slot)
	}

	return slots, nil
}

func parseSlot(name string, v any) (*SlotPlan, error) {
	ms, ok := v.(yaml.MapSlice)
	if !ok {
		return nil, fmt.Errorf("%w: property %q is not a mapping", ErrConfigParse, name)
	}

	slot := &SlotPlan{Name: name}

	for _, item := range ms {
		key := fmt.Sprint(item.Key)

		switch key {
		case "type":
			slot.Type = asString(item.Value)
		case "cardinality":
			slot.Cardinality = asString(item.Value)
		case "split_on":
			slot.SplitOn = asString(item.Value)
		case "include_record_status":
			slot.IncludeRecordStatus = asBool(item.Value)
		case "include_data_collection":
			slot.IncludeDataCollection = asBool(item.Value)

		case "fields":
			fields, err := parseFields(name, item.Value)
			if err != nil {
				return nil, err
			}

			slot.Fields = fields

		default:
			return nil, fmt.Errorf("%w: property %q: unknown key %q", ErrConfigParse, name, key)
		}
	}

	return slot, nil
}

func parseFields(slotName string, v any) ([]FieldRule, error) {
	ms, ok := v.(yaml.MapSlice)
	if !ok {
		return nil, fmt.Errorf("%w: property %q: fields is not a mapping", ErrConfigParse, slotName)
	}

	fields := make([]FieldRule, 0, len(ms))

	for _, item := range ms {
		rule, err := parseFieldRule(slotName, fmt.Sprint(item.Key), item.Value)
		if err != nil {
			return nil, err
		}

		fields = append(fields, rule)
	}

	return fields, nil
}

func parseFieldRule(slotName, target string, v any) (FieldRule, error) {
	rule := FieldRule{Target: target}

	ms, ok := v.(yaml.MapSlice)
	if !ok {
		return rule, fmt.Errorf("%w: property %q field %q is not a mapping", ErrConfigParse, slotName, target)
	}

	for _, item := range ms {
		key := fmt.Sprint(item.Key)

		switch key {
		case "source":
			rule.Source = asString(item.Value)
		case "target":
			rule.Target = asString(item.Value)
		case "datatype":
			rule.Datatype = asString(item.Value)
		case "optional":
			rule.Optional = asBool(item.Value)
		case "multi_value_split":
			rule.MultiValueSplit = asString(item.Value)

		case "value":
			rule.Value = asString(item.Value)
			rule.HasValue = true

		case "value_id":
			rule.ValueID = asString(item.Value)

		case "transform":
			switch tv := item.Value.(type) {
			case nil:
			case string:
				rule.Transforms = []string{tv}
			case []any:
				for _, t := range tv {
					rule.Transforms = append(rule.Transforms, asString(t))
				}
			default:
				return rule, fmt.Errorf("%w: property %q field %q: transform must be a name or list of names",
					ErrConfigParse, slotName, target)
			}

		default:
			return rule, fmt.Errorf("%w: property %q field %q: unknown key %q", ErrConfigParse, slotName, target, key)
		}
	}

	return rule, nil
}

func asString(v any) string {
	if v == nil {
		return ""
	}

	if s, ok := v.(string); ok {
		return s
	}

	return fmt.Sprint(v)
}

func asBool(v any) bool {
	b, ok := v.(bool)

	return ok && b
}
