package shacl

import (
	"fmt"
	"strings"

	"github.com/edulake/shapeld/jsonld"
	"github.com/edulake/shapeld/mapping"
)

const xsdNS = "http://www.w3.org/2001/XMLSchema#"

// xsdTokens maps XML Schema datatype IRIs to the compact tokens used in
// mapping files. xsd:string and xsd:token render as plain strings, so
// they get no token at all.
var xsdTokens = map[string]string{
	xsdNS + "date":     "xsd:date",
	xsdNS + "dateTime": "xsd:dateTime",
	xsdNS + "integer":  "xsd:integer",
	xsdNS + "boolean":  "xsd:boolean",
	xsdNS + "decimal":  "xsd:decimal",
	xsdNS + "anyURI":   "xsd:anyURI",
}

// DatatypeToken returns the compact mapping-file token for an XML
// Schema datatype IRI, or the empty string for plain-string datatypes
// and unknown IRIs.
func DatatypeToken(iri string) string {
	return xsdTokens[iri]
}

// TemplateOptions configure mapping generation from a shape.
type TemplateOptions struct {
	// ContextURL is written to the template's context_url key.
	ContextURL string
	// ContextFile is written to the template's context_file key.
	ContextFile string
	// BaseURI is written to the template's base_uri key.
	BaseURI string
}

// GenerateMapping builds a skeleton mapping config from a root node
// shape. Every source column is guessed as the local name of the
// property path; the result is meant to be edited, not used as is.
//
// Properties referencing a RecordStatus or DataCollection shape become
// record_status_defaults and data_collection_defaults blocks instead of
// mapped slots, and nested references to those shapes set the slot's
// include flags.
func GenerateMapping(root *NodeShapeInfo, ctx *jsonld.Context, opts TemplateOptions) (*mapping.Config, error) {
	if len(root.Properties) == 0 {
		return nil, fmt.Errorf("%w: shape %q has no properties", ErrInvalidShape, root.Name)
	}

	cfg := &mapping.Config{
		Shape:       root.Name,
		Type:        typeNameFor(root, ctx),
		ContextURL:  opts.ContextURL,
		ContextFile: opts.ContextFile,
		BaseURI:     opts.BaseURI,
	}

	for _, prop := range root.Properties {
		child, hasChild := root.ChildShapes[prop.LocalName]

		if hasChild && child.IsStructural() {
			defaults := structuralDefaults(child, ctx)

			switch structuralKind(child) {
			case "RecordStatus":
				cfg.RecordStatusDefaults = defaults
			case "DataCollection":
				cfg.DataCollectionDefaults = defaults
			}

			continue
		}

		slot := mapping.SlotPlan{
			Name:        termFor(prop.Path, ctx),
			Cardinality: mapping.CardinalitySingle,
		}

		if prop.MaxCount != 1 {
			slot.Cardinality = mapping.CardinalityMultiple
			slot.SplitOn = "|"
		}

		if hasChild {
			slot.Type = typeNameFor(child, ctx)
			slot.Fields = fieldsFor(child, ctx, &slot)
		} else {
			// A scalar property on the root becomes a one-field slot
			// keyed by its own term.
			slot.Type = slot.Name
			slot.Fields = []mapping.FieldRule{fieldFor(&prop, ctx)}
		}

		// The first mapped column of the first slot is as good a guess
		// as any for the record identifier.
		if cfg.IDSource == "" && len(slot.Fields) > 0 {
			cfg.IDSource = slot.Fields[0].Source
		}

		cfg.Properties = append(cfg.Properties, slot)
	}

	if cfg.IDSource == "" {
		return nil, fmt.Errorf("%w: shape %q yields no mappable columns", ErrInvalidShape, root.Name)
	}

	return cfg, nil
}

func fieldsFor(child *NodeShapeInfo, ctx *jsonld.Context, slot *mapping.SlotPlan) []mapping.FieldRule {
	fields := make([]mapping.FieldRule, 0, len(child.Properties))

	for _, prop := range child.Properties {
		if grandchild, ok := child.ChildShapes[prop.LocalName]; ok && grandchild.IsStructural() {
			switch structuralKind(grandchild) {
			case "RecordStatus":
				slot.IncludeRecordStatus = true
			case "DataCollection":
				slot.IncludeDataCollection = true
			}

			continue
		}

		fields = append(fields, fieldFor(&prop, ctx))
	}

	return fields
}

func fieldFor(prop *PropertyInfo, ctx *jsonld.Context) mapping.FieldRule {
	rule := mapping.FieldRule{
		Target:   termFor(prop.Path, ctx),
		Source:   prop.LocalName,
		Datatype: xsdTokens[prop.Datatype],
		Optional: prop.MinCount == 0,
	}

	return rule
}

// structuralDefaults turns a RecordStatus or DataCollection shape into a
// defaults block with empty literal values to be filled in by hand.
func structuralDefaults(shape *NodeShapeInfo, ctx *jsonld.Context) *mapping.SlotPlan {
	plan := &mapping.SlotPlan{
		Name:        shape.Name,
		Type:        typeNameFor(shape, ctx),
		Cardinality: mapping.CardinalitySingle,
	}

	for _, prop := range shape.Properties {
		plan.Fields = append(plan.Fields, mapping.FieldRule{
			Target:   termFor(prop.Path, ctx),
			HasValue: true,
			Datatype: xsdTokens[prop.Datatype],
		})
	}

	return plan
}

// structuralKind names the structural class a shape targets, or returns
// the empty string.
func structuralKind(shape *NodeShapeInfo) string {
	if name := LocalName(shape.TargetClass); structuralClasses[name] {
		return name
	}

	if structuralClasses[shape.Name] {
		return shape.Name
	}

	return ""
}

// termFor prefers the context's compact term for an IRI, falling back to
// the IRI's local name.
func termFor(iri string, ctx *jsonld.Context) string {
	if ctx != nil {
		if term, ok := ctx.TermForIRI(iri); ok {
			return term
		}
	}

	return LocalName(iri)
}

func typeNameFor(shape *NodeShapeInfo, ctx *jsonld.Context) string {
	if shape.TargetClass != "" {
		return termFor(shape.TargetClass, ctx)
	}

	return strings.TrimSuffix(shape.Name, "Shape")
}
