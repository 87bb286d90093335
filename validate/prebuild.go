package validate

import (
	"fmt"
	"math"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/edulake/shapeld/mapping"
	"github.com/edulake/shapeld/sanitize"
	"github.com/edulake/shapeld/shacl"
)

// Rule is one pre-build check, derived from a mapping field rule and
// optionally tightened by the SHACL shape.
type Rule struct {
	// Slot is the sub-shape slot the rule belongs to.
	Slot string
	// Target is the target term.
	Target string
	// Source is the raw column checked.
	Source string
	// Required fails the record when the source value is empty.
	Required bool
	// Datatype is the declared datatype token, empty for plain.
	Datatype string
	// Transformed marks rules whose value passes through transforms
	// before coercion; datatype findings are then warnings, since the
	// transform may normalize the raw form.
	Transformed bool
	// Enum lists allowed values from sh:in, as IRIs.
	Enum []string
}

// PreBuild runs fast pure checks over raw records before mapping.
// Construction compiles the rule set once; validation is a traversal.
type PreBuild struct {
	rules    []Rule
	idSource string
}

// NewPreBuild derives the rule set from a mapping config alone.
func NewPreBuild(cfg *mapping.Config) *PreBuild {
	return newPreBuild(cfg, nil)
}

// NewPreBuildFromShape derives the rule set from a mapping config
// tightened by the introspected shape: required from sh:minCount, enums
// from sh:in, datatypes from sh:datatype.
func NewPreBuildFromShape(cfg *mapping.Config, root *shacl.NodeShapeInfo) *PreBuild {
	return newPreBuild(cfg, root)
}

func newPreBuild(cfg *mapping.Config, root *shacl.NodeShapeInfo) *PreBuild {
	p := &PreBuild{idSource: cfg.IDSource}

	for i := range cfg.Properties {
		slot := &cfg.Properties[i]

		var child *shacl.NodeShapeInfo
		if root != nil {
			if prop, ok := root.Property(slot.Name); ok {
				child = root.ChildShapes[prop.LocalName]
			}
		}

		for _, fr := range slot.Fields {
			if fr.Source == "" {
				// Literal defaults need no source check.
				continue
			}

			rule := Rule{
				Slot:        slot.Name,
				Target:      fr.Target,
				Source:      fr.Source,
				Required:    !fr.Optional && !fr.HasValue && fr.ValueID == "",
				Datatype:    fr.Datatype,
				Transformed: len(fr.Transforms) > 0,
			}

			if child != nil {
				if prop, ok := child.Property(fr.Target); ok {
					if prop.Required() && !fr.HasValue && fr.ValueID == "" {
						rule.Required = true
					}

					if rule.Datatype == "" {
						rule.Datatype = shacl.DatatypeToken(prop.Datatype)
					}

					rule.Enum = prop.AllowedValues
				}
			}

			p.rules = append(p.rules, rule)
		}
	}

	return p
}

// Rules exposes the compiled rule set.
func (p *PreBuild) Rules() []Rule {
	return p.rules
}

var (
	datePattern     = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$`)
	dateTimePattern = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}T\d{2}:\d{2}:\d{2}`)
	integerPattern  = regexp.MustCompile(`^[+-]?\d+$`)
)

// Record checks one raw record and returns its findings.
func (p *PreBuild) Record(raw mapping.Record) []Issue {
	var issues []Issue

	id := recordID(raw, p.idSource)

	for i := range p.rules {
		issues = append(issues, p.checkRule(&p.rules[i], raw, id)...)
	}

	if p.idSource != "" {
		if val, ok := stringValue(raw[p.idSource]); ok && val != "" {
			if safe, err := sanitize.Component(val); err != nil || safe != val {
				issues = append(issues, Issue{
					RecordID:  id,
					FieldPath: "@id",
					Severity:  SeverityWarning,
					Kind:      KindUnsafeIRI,
					Message:   fmt.Sprintf("id column %q value %q requires sanitization", p.idSource, val),
				})
			}
		}
	}

	return issues
}

func (p *PreBuild) checkRule(rule *Rule, raw mapping.Record, id string) []Issue {
	var issues []Issue

	val, scalar := stringValue(raw[rule.Source])
	if !scalar {
		issues = append(issues, Issue{
			RecordID:  id,
			FieldPath: rule.Target,
			Severity:  SeverityError,
			Kind:      KindBadDatatype,
			Message:   fmt.Sprintf("column %q holds a non-scalar or non-finite value", rule.Source),
		})

		return issues
	}

	if val == "" {
		if rule.Required {
			issues = append(issues, Issue{
				RecordID:  id,
				FieldPath: rule.Target,
				Severity:  SeverityError,
				Kind:      KindRequiredMissing,
				Message: fmt.Sprintf("column %q is empty; available columns: %s",
					rule.Source, strings.Join(columns(raw), ", ")),
			})
		}

		return issues
	}

	if kind, ok := datatypeIssue(rule, val); ok {
		severity := SeverityError
		if rule.Transformed {
			// A transform may still normalize the raw form.
			severity = SeverityWarning
		}

		issues = append(issues, Issue{
			RecordID:  id,
			FieldPath: rule.Target,
			Severity:  severity,
			Kind:      KindBadDatatype,
			Message:   fmt.Sprintf("column %q value %q is not a plausible %s", rule.Source, val, kind),
		})
	}

	if len(rule.Enum) > 0 && !enumMatch(rule.Enum, val) {
		issues = append(issues, Issue{
			RecordID:  id,
			FieldPath: rule.Target,
			Severity:  SeverityError,
			Kind:      KindEnumViolation,
			Message: fmt.Sprintf("column %q value %q is not in the allowed set: %s",
				rule.Source, val, strings.Join(enumNames(rule.Enum), ", ")),
		})
	}

	return issues
}

func datatypeIssue(rule *Rule, val string) (string, bool) {
	switch rule.Datatype {
	case "xsd:date":
		if !datePattern.MatchString(val) {
			return "xsd:date (YYYY-MM-DD)", true
		}
	case "xsd:dateTime":
		if !dateTimePattern.MatchString(val) {
			return "xsd:dateTime (YYYY-MM-DDTHH:MM:SS)", true
		}
	case "xsd:integer":
		if !integerPattern.MatchString(val) {
			return "xsd:integer", true
		}
	}

	return "", false
}

// enumMatch accepts a raw value that equals an allowed IRI's local name
// or its suffix after the concept-scheme prefix, so "Female" satisfies
// an enum of Sex_Female before the sex_prefix transform runs.
func enumMatch(enum []string, val string) bool {
	for _, iri := range enum {
		local := shacl.LocalName(iri)
		if val == local || strings.HasSuffix(local, "_"+val) {
			return true
		}
	}

	return false
}

func enumNames(enum []string) []string {
	names := make([]string, 0, len(enum))
	for _, iri := range enum {
		names = append(names, shacl.LocalName(iri))
	}

	return names
}

// Validate checks a batch of raw records under the given mode. Strict
// mode returns ErrValidation on the first error; report accumulates;
// sample checks a seeded fraction.
func (p *PreBuild) Validate(records []mapping.Record, mode Mode, opts Options) (*Result, error) {
	result := NewResult()
	s := newSampler(mode, opts)

	for _, raw := range records {
		if !s.take() {
			continue
		}

		for _, issue := range p.Record(raw) {
			result.Add(issue)

			if mode == ModeStrict && issue.Severity == SeverityError {
				return result, fmt.Errorf("%w: %s", ErrValidation, issue)
			}
		}
	}

	return result, nil
}

// stringValue renders a raw scalar for checking. The second result is
// false for nested structures and non-finite floats.
func stringValue(v any) (string, bool) {
	switch val := v.(type) {
	case nil:
		return "", true
	case string:
		return strings.TrimSpace(val), true
	case bool:
		return strconv.FormatBool(val), true
	case int:
		return strconv.Itoa(val), true
	case int64:
		return strconv.FormatInt(val, 10), true
	case uint64:
		return strconv.FormatUint(val, 10), true
	case float64:
		if math.IsNaN(val) || math.IsInf(val, 0) {
			return "", false
		}

		return strconv.FormatFloat(val, 'f', -1, 64), true
	case time.Time:
		return val.Format("2006-01-02"), true
	default:
		return "", false
	}
}

func recordID(raw mapping.Record, idSource string) string {
	if idSource == "" {
		return ""
	}

	id, _ := stringValue(raw[idSource])

	return id
}

func columns(raw mapping.Record) []string {
	cols := make([]string, 0, len(raw))
	for col := range raw {
		cols = append(cols, col)
	}

	sort.Strings(cols)

	return cols
}
