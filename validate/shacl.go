package validate

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/piprate/json-gold/ld"
	"gonum.org/v1/gonum/graph/formats/rdf"

	"github.com/edulake/shapeld/jsonld"
	"github.com/edulake/shapeld/shacl"
)

const (
	rdfTypeIRI   = "http://www.w3.org/1999/02/22-rdf-syntax-ns#type"
	xsdStringIRI = "http://www.w3.org/2001/XMLSchema#string"
)

// SHACL validates built documents by the full round trip: serialize to
// JSON-LD, expand to N-Quads, and check the triples against the shape
// graph. The document's @context is replaced with the locally loaded
// context before expansion, so no network fetch ever happens.
type SHACL struct {
	root *shacl.NodeShapeInfo
	ctx  *jsonld.Context

	ctxDoc map[string]any
	proc   *ld.JsonLdProcessor
}

// NewSHACL builds a validator for the given root shape. ctx must be the
// shape's parsed JSON-LD context; it is embedded into documents before
// RDF expansion and used to reverse IRIs to readable field paths.
func NewSHACL(root *shacl.NodeShapeInfo, ctx *jsonld.Context) (*SHACL, error) {
	raw, err := jsonld.Marshal(ctx.Raw())
	if err != nil {
		return nil, fmt.Errorf("embed context: %w", err)
	}

	var ctxDoc map[string]any
	if err := json.Unmarshal(raw, &ctxDoc); err != nil {
		return nil, fmt.Errorf("embed context: %w", err)
	}

	return &SHACL{
		root:   root,
		ctx:    ctx,
		ctxDoc: ctxDoc,
		proc:   ld.NewJsonLdProcessor(),
	}, nil
}

// Document validates one document and returns its findings. The error
// covers round-trip failures, not conformance.
func (v *SHACL) Document(doc *jsonld.Object) ([]Issue, error) {
	id, _ := doc.Get("@id")
	recordID, _ := id.(string)

	index, err := v.toTriples(doc)
	if err != nil {
		return nil, err
	}

	subject := "<" + recordID + ">"
	if _, ok := index[subject]; !ok {
		return nil, fmt.Errorf("round trip lost the root subject %q", recordID)
	}

	var issues []Issue

	v.checkNode(index, subject, v.root, recordID, &issues)

	return issues, nil
}

// Validate checks documents under the given mode. Sample is the default
// posture for bulk workloads; strict returns ErrValidation on the first
// violation.
func (v *SHACL) Validate(docs []*jsonld.Object, mode Mode, opts Options) (*Result, error) {
	result := NewResult()
	s := newSampler(mode, opts)

	for _, doc := range docs {
		if !s.take() {
			continue
		}

		issues, err := v.Document(doc)
		if err != nil {
			return result, err
		}

		for _, issue := range issues {
			result.Add(issue)

			if mode == ModeStrict && issue.Severity == SeverityError {
				return result, fmt.Errorf("%w: %s", ErrValidation, issue)
			}
		}
	}

	return result, nil
}

// tripleIndex maps subject term text to predicate IRI text to objects.
type tripleIndex map[string]map[string][]rdf.Term

func (v *SHACL) toTriples(doc *jsonld.Object) (tripleIndex, error) {
	data, err := jsonld.Marshal(doc)
	if err != nil {
		return nil, err
	}

	var generic map[string]any
	if err := json.Unmarshal(data, &generic); err != nil {
		return nil, fmt.Errorf("reparse document: %w", err)
	}

	generic["@context"] = v.ctxDoc

	opts := ld.NewJsonLdOptions("")
	opts.Format = "application/n-quads"

	out, err := v.proc.ToRDF(generic, opts)
	if err != nil {
		return nil, fmt.Errorf("expand to RDF: %w", err)
	}

	quads, ok := out.(string)
	if !ok {
		return nil, fmt.Errorf("expand to RDF: unexpected result type %T", out)
	}

	index := make(tripleIndex)

	for _, line := range strings.Split(quads, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		stmt, err := rdf.ParseNQuad(line)
		if err != nil {
			return nil, fmt.Errorf("parse n-quad %q: %w", line, err)
		}

		preds, ok := index[stmt.Subject.Value]
		if !ok {
			preds = make(map[string][]rdf.Term)
			index[stmt.Subject.Value] = preds
		}

		pred := termIRI(stmt.Predicate)
		preds[pred] = append(preds[pred], stmt.Object)
	}

	return index, nil
}

func (v *SHACL) checkNode(index tripleIndex, subject string, shape *shacl.NodeShapeInfo, recordID string, issues *[]Issue) {
	preds := index[subject]

	known := make(map[string]bool, len(shape.Properties)+len(shape.IgnoredProperties)+1)
	known[rdfTypeIRI] = true

	for _, iri := range shape.IgnoredProperties {
		known[iri] = true
	}

	for i := range shape.Properties {
		prop := &shape.Properties[i]
		known[prop.Path] = true

		objs := preds[prop.Path]
		path := v.fieldPath(prop)

		if len(objs) < prop.MinCount {
			*issues = append(*issues, v.violation(recordID, path,
				fmt.Sprintf("%d values, sh:minCount is %d", len(objs), prop.MinCount)))
		}

		if prop.MaxCount != shacl.MaxUnbounded && len(objs) > prop.MaxCount {
			*issues = append(*issues, v.violation(recordID, path,
				fmt.Sprintf("%d values, sh:maxCount is %d", len(objs), prop.MaxCount)))
		}

		for _, obj := range objs {
			v.checkObject(index, shape, prop, path, obj, recordID, issues)
		}
	}

	if shape.Closed {
		for pred := range preds {
			if !known[pred] {
				term := pred
				if t, ok := v.ctx.TermForIRI(pred); ok {
					term = t
				}

				*issues = append(*issues, v.violation(recordID, term,
					fmt.Sprintf("property %s is not allowed by the closed shape %s", pred, shape.Name)))
			}
		}
	}
}

func (v *SHACL) checkObject(index tripleIndex, shape *shacl.NodeShapeInfo, prop *shacl.PropertyInfo, path string, obj rdf.Term, recordID string, issues *[]Issue) {
	value, datatype, isLiteral := literalParts(obj)

	if prop.Datatype != "" {
		if !isLiteral {
			*issues = append(*issues, v.violation(recordID, path,
				fmt.Sprintf("IRI value where a %s literal is required", shacl.LocalName(prop.Datatype))))
		} else if datatype != prop.Datatype {
			*issues = append(*issues, v.violation(recordID, path,
				fmt.Sprintf("value %q has datatype %s, sh:datatype is %s",
					value, shacl.LocalName(datatype), shacl.LocalName(prop.Datatype))))
		}
	}

	if len(prop.AllowedValues) > 0 && !termAllowed(obj, prop.AllowedValues) {
		*issues = append(*issues, v.violation(recordID, path,
			fmt.Sprintf("value %s is not in the sh:in list", obj.Value)))
	}

	if prop.NodeClass != "" && !isLiteral {
		if !hasType(index, obj.Value, prop.NodeClass) {
			*issues = append(*issues, v.violation(recordID, path,
				fmt.Sprintf("node is not typed %s", shacl.LocalName(prop.NodeClass))))
		}
	}

	if prop.NodeShapeRef != "" && !isLiteral {
		if child, ok := shape.ChildShapes[prop.LocalName]; ok {
			v.checkNode(index, obj.Value, child, recordID, issues)
		}
	}
}

func hasType(index tripleIndex, subject, class string) bool {
	for _, obj := range index[subject][rdfTypeIRI] {
		if termIRI(obj) == class {
			return true
		}
	}

	return false
}

func termAllowed(obj rdf.Term, allowed []string) bool {
	value := termIRI(obj)
	if lit, _, ok := literalParts(obj); ok {
		value = lit
	}

	for _, iri := range allowed {
		if value == iri || value == shacl.LocalName(iri) {
			return true
		}
	}

	return false
}

func (v *SHACL) violation(recordID, path, msg string) Issue {
	return Issue{
		RecordID:  recordID,
		FieldPath: path,
		Severity:  SeverityError,
		Kind:      KindSHACLViolation,
		Message:   msg,
	}
}

func (v *SHACL) fieldPath(prop *shacl.PropertyInfo) string {
	if term, ok := v.ctx.TermForIRI(prop.Path); ok {
		return term
	}

	return prop.LocalName
}

// termIRI strips the angle brackets from an IRI term's text form.
func termIRI(t rdf.Term) string {
	if strings.HasPrefix(t.Value, "<") && strings.HasSuffix(t.Value, ">") {
		return t.Value[1 : len(t.Value)-1]
	}

	return t.Value
}

// literalParts splits a literal term's text form into its lexical value
// and datatype IRI. Plain literals get xsd:string.
func literalParts(t rdf.Term) (value, datatype string, isLiteral bool) {
	text := t.Value
	if !strings.HasPrefix(text, `"`) {
		return "", "", false
	}

	quoted := text
	datatype = xsdStringIRI

	switch {
	case strings.HasSuffix(text, `"`):
		// Plain literal.
	case strings.Contains(text, `"^^<`):
		idx := strings.LastIndex(text, `"^^<`)
		quoted = text[:idx+1]
		datatype = strings.TrimSuffix(text[idx+4:], ">")
	case strings.Contains(text, `"@`):
		idx := strings.LastIndex(text, `"@`)
		quoted = text[:idx+1]
		datatype = "http://www.w3.org/1999/02/22-rdf-syntax-ns#langString"
	}

	unquoted, err := strconv.Unquote(quoted)
	if err != nil {
		return "", "", false
	}

	return unquoted, datatype, true
}
