package shacl

import (
	"fmt"

	"github.com/edulake/shapeld/jsonld"
	"github.com/edulake/shapeld/mapping"
)

// Severity grades a mapping check finding.
type Severity string

const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
)

// Issue is one finding from [CheckMapping].
type Issue struct {
	Severity Severity
	// Slot is the mapping slot the finding concerns, empty for
	// top-level findings.
	Slot string
	// Field is the field target within the slot, if any.
	Field string
	// Message describes the finding.
	Message string
}

func (i Issue) String() string {
	loc := i.Slot
	if i.Field != "" {
		loc = loc + "." + i.Field
	}

	if loc == "" {
		return fmt.Sprintf("%s: %s", i.Severity, i.Message)
	}

	return fmt.Sprintf("%s: %s: %s", i.Severity, loc, i.Message)
}

// HasErrors reports whether any issue has error severity.
func HasErrors(issues []Issue) bool {
	for _, is := range issues {
		if is.Severity == SeverityError {
			return true
		}
	}

	return false
}

// CheckMapping cross-validates a mapping config against a root node
// shape. Required shape properties without a mapped slot or field are
// errors, as are slots and fields with no corresponding shape property.
// Unmapped optional properties and datatype disagreements are warnings.
func CheckMapping(cfg *mapping.Config, root *NodeShapeInfo, ctx *jsonld.Context) []Issue {
	var issues []Issue

	slotByProp := make(map[string]*mapping.SlotPlan)

	for i := range cfg.Properties {
		slot := &cfg.Properties[i]

		prop := propertyForKey(root, slot.Name, ctx)
		if prop == nil {
			issues = append(issues, Issue{
				Severity: SeverityError,
				Slot:     slot.Name,
				Message:  fmt.Sprintf("no property in shape %q matches this slot", root.Name),
			})

			continue
		}

		slotByProp[prop.LocalName] = slot

		if prop.MaxCount == 1 && slot.Cardinality == mapping.CardinalityMultiple {
			issues = append(issues, Issue{
				Severity: SeverityWarning,
				Slot:     slot.Name,
				Message:  "slot is multiple but the shape caps the property at one value",
			})
		}

		if child, ok := root.ChildShapes[prop.LocalName]; ok {
			issues = append(issues, checkSlotFields(slot, child, ctx)...)
		}
	}

	for _, prop := range root.Properties {
		if _, mapped := slotByProp[prop.LocalName]; mapped {
			continue
		}

		if child, ok := root.ChildShapes[prop.LocalName]; ok && child.IsStructural() {
			// Covered by defaults blocks, not mapped slots.
			continue
		}

		if prop.Required() {
			issues = append(issues, Issue{
				Severity: SeverityError,
				Message:  fmt.Sprintf("required property %q has no mapped slot", prop.LocalName),
			})
		} else {
			issues = append(issues, Issue{
				Severity: SeverityWarning,
				Message:  fmt.Sprintf("optional property %q is not mapped", prop.LocalName),
			})
		}
	}

	return issues
}

func checkSlotFields(slot *mapping.SlotPlan, child *NodeShapeInfo, ctx *jsonld.Context) []Issue {
	var issues []Issue

	fieldByProp := make(map[string]*mapping.FieldRule)

	for i := range slot.Fields {
		rule := &slot.Fields[i]

		prop := propertyForKey(child, rule.Target, ctx)
		if prop == nil {
			issues = append(issues, Issue{
				Severity: SeverityError,
				Slot:     slot.Name,
				Field:    rule.Target,
				Message:  fmt.Sprintf("no property in shape %q matches this field", child.Name),
			})

			continue
		}

		fieldByProp[prop.LocalName] = rule

		if want, got := xsdTokens[prop.Datatype], rule.Datatype; want != "" && got != want {
			if got == "" {
				got = "plain"
			}

			issues = append(issues, Issue{
				Severity: SeverityWarning,
				Slot:     slot.Name,
				Field:    rule.Target,
				Message:  fmt.Sprintf("datatype %s does not match shape datatype %s", got, want),
			})
		}

		if prop.Required() && rule.Optional {
			issues = append(issues, Issue{
				Severity: SeverityWarning,
				Slot:     slot.Name,
				Field:    rule.Target,
				Message:  "field is optional but the shape requires the property",
			})
		}
	}

	for _, prop := range child.Properties {
		if _, mapped := fieldByProp[prop.LocalName]; mapped {
			continue
		}

		if grandchild, ok := child.ChildShapes[prop.LocalName]; ok && grandchild.IsStructural() {
			continue
		}

		if prop.Required() {
			issues = append(issues, Issue{
				Severity: SeverityError,
				Slot:     slot.Name,
				Message:  fmt.Sprintf("required property %q has no mapped field", prop.LocalName),
			})
		} else {
			issues = append(issues, Issue{
				Severity: SeverityWarning,
				Slot:     slot.Name,
				Message:  fmt.Sprintf("optional property %q is not mapped", prop.LocalName),
			})
		}
	}

	return issues
}

// propertyForKey matches a mapping key (slot name or field target)
// against a shape's properties, by expanded IRI first and then by local
// name.
func propertyForKey(shape *NodeShapeInfo, key string, ctx *jsonld.Context) *PropertyInfo {
	if ctx != nil {
		iri := ctx.Expand(key)

		for i := range shape.Properties {
			if shape.Properties[i].Path == iri {
				return &shape.Properties[i]
			}
		}
	}

	for i := range shape.Properties {
		if shape.Properties[i].LocalName == key {
			return &shape.Properties[i]
		}
	}

	return nil
}
