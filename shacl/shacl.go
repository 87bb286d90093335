package shacl

import (
	"bytes"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/deiu/rdf2go"
)

// Vocabulary namespaces.
const (
	shNS  = "http://www.w3.org/ns/shacl#"
	rdfNS = "http://www.w3.org/1999/02/22-rdf-syntax-ns#"
)

var (
	// ErrParse indicates the Turtle input could not be parsed.
	ErrParse = errors.New("parse SHACL")
	// ErrInvalidShape indicates a shape graph that parses but is not
	// usable, such as a property shape without a path.
	ErrInvalidShape = errors.New("invalid shape")
	// ErrUnknownShape indicates a shape name with no definition in the
	// graph.
	ErrUnknownShape = errors.New("unknown shape")
)

// MaxUnbounded marks an absent sh:maxCount.
const MaxUnbounded = -1

// Structural target classes injected via mapping defaults rather than
// mapped from source columns.
var structuralClasses = map[string]bool{
	"RecordStatus":   true,
	"DataCollection": true,
}

// NodeShapeInfo is one sh:NodeShape with its property constraints and
// resolved child shapes.
type NodeShapeInfo struct {
	// Name is the local name of the shape IRI.
	Name string
	// IRI is the shape's full IRI.
	IRI string
	// TargetClass is the sh:targetClass IRI, if any.
	TargetClass string
	// Closed reflects sh:closed.
	Closed bool
	// IgnoredProperties lists sh:ignoredProperties IRIs.
	IgnoredProperties []string
	// Properties holds the property shapes in graph declaration order.
	Properties []PropertyInfo
	// ChildShapes maps a property's local path name to the node shape
	// referenced by sh:node.
	ChildShapes map[string]*NodeShapeInfo
}

// PropertyInfo is one sh:property constraint.
type PropertyInfo struct {
	// Path is the sh:path IRI.
	Path string
	// LocalName is the local name of Path.
	LocalName string
	// Datatype is the sh:datatype IRI, if any.
	Datatype string
	// MinCount is sh:minCount, zero when absent.
	MinCount int
	// MaxCount is sh:maxCount, [MaxUnbounded] when absent.
	MaxCount int
	// AllowedValues holds sh:in members (IRIs or literal values).
	AllowedValues []string
	// NodeShapeRef is the sh:node IRI, if any.
	NodeShapeRef string
	// NodeClass is the sh:class IRI, if any.
	NodeClass string
}

// Required reports whether the property has sh:minCount >= 1.
func (p *PropertyInfo) Required() bool {
	return p.MinCount >= 1
}

// IsStructural reports whether the shape targets one of the well-known
// structural classes (RecordStatus, DataCollection).
func (n *NodeShapeInfo) IsStructural() bool {
	return structuralClasses[LocalName(n.TargetClass)] || structuralClasses[n.Name]
}

// Property returns the property shape whose path has the given local
// name.
func (n *NodeShapeInfo) Property(localName string) (*PropertyInfo, bool) {
	for i := range n.Properties {
		if n.Properties[i].LocalName == localName {
			return &n.Properties[i], true
		}
	}

	return nil, false
}

// Introspector holds a parsed shape graph.
type Introspector struct {
	graph   *rdf2go.Graph
	byName  map[string]*NodeShapeInfo
	byIRI   map[string]*NodeShapeInfo
	ordered []*NodeShapeInfo
}

// Parse reads a Turtle document and introspects every sh:NodeShape in
// it.
func Parse(data []byte) (*Introspector, error) {
	g := rdf2go.NewGraph("http://example.org/")

	err := g.Parse(bytes.NewReader(data), "text/turtle")
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrParse, err)
	}

	in := &Introspector{
		graph:  g,
		byName: make(map[string]*NodeShapeInfo),
		byIRI:  make(map[string]*NodeShapeInfo),
	}

	typePred := rdf2go.NewResource(rdfNS + "type")
	nodeShape := rdf2go.NewResource(shNS + "NodeShape")

	for _, t := range g.All(nil, typePred, nodeShape) {
		shape, err := in.parseNodeShape(t.Subject)
		if err != nil {
			return nil, err
		}

		in.byName[shape.Name] = shape
		in.byIRI[shape.IRI] = shape
		in.ordered = append(in.ordered, shape)
	}

	if len(in.ordered) == 0 {
		return nil, fmt.Errorf("%w: no sh:NodeShape found", ErrInvalidShape)
	}

	in.linkChildren()

	return in, nil
}

// Shapes returns every node shape in graph declaration order.
func (in *Introspector) Shapes() []*NodeShapeInfo {
	return in.ordered
}

// Shape returns the node shape with the given local name.
func (in *Introspector) Shape(name string) (*NodeShapeInfo, error) {
	if shape, ok := in.byName[name]; ok {
		return shape, nil
	}

	known := make([]string, 0, len(in.ordered))
	for _, s := range in.ordered {
		known = append(known, s.Name)
	}

	return nil, fmt.Errorf("%w: %q (graph defines: %s)", ErrUnknownShape, name, strings.Join(known, ", "))
}

// Root returns the first shape that no other shape references via
// sh:node.
func (in *Introspector) Root() *NodeShapeInfo {
	referenced := make(map[string]bool)

	for _, shape := range in.ordered {
		for _, p := range shape.Properties {
			if p.NodeShapeRef != "" {
				referenced[p.NodeShapeRef] = true
			}
		}
	}

	for _, shape := range in.ordered {
		if !referenced[shape.IRI] {
			return shape
		}
	}

	return in.ordered[0]
}

// Graph exposes the underlying triple graph for validation use.
func (in *Introspector) Graph() *rdf2go.Graph {
	return in.graph
}

func (in *Introspector) parseNodeShape(subject rdf2go.Term) (*NodeShapeInfo, error) {
	iri := subject.RawValue()

	shape := &NodeShapeInfo{
		Name:        LocalName(iri),
		IRI:         iri,
		ChildShapes: make(map[string]*NodeShapeInfo),
	}

	if t := in.graph.One(subject, sh("targetClass"), nil); t != nil {
		shape.TargetClass = t.Object.RawValue()
	}

	if t := in.graph.One(subject, sh("closed"), nil); t != nil {
		shape.Closed = t.Object.RawValue() == "true"
	}

	if t := in.graph.One(subject, sh("ignoredProperties"), nil); t != nil {
		for _, member := range in.list(t.Object) {
			shape.IgnoredProperties = append(shape.IgnoredProperties, member.RawValue())
		}
	}

	for _, t := range in.graph.All(subject, sh("property"), nil) {
		prop, err := in.parseProperty(shape, t.Object)
		if err != nil {
			return nil, err
		}

		shape.Properties = append(shape.Properties, *prop)
	}

	return shape, nil
}

func (in *Introspector) parseProperty(shape *NodeShapeInfo, subject rdf2go.Term) (*PropertyInfo, error) {
	pathTriple := in.graph.One(subject, sh("path"), nil)
	if pathTriple == nil {
		return nil, fmt.Errorf("%w: shape %q has a property without sh:path", ErrInvalidShape, shape.Name)
	}

	prop := &PropertyInfo{
		Path:     pathTriple.Object.RawValue(),
		MaxCount: MaxUnbounded,
	}
	prop.LocalName = LocalName(prop.Path)

	if t := in.graph.One(subject, sh("datatype"), nil); t != nil {
		prop.Datatype = t.Object.RawValue()
	}

	if t := in.graph.One(subject, sh("minCount"), nil); t != nil {
		n, err := strconv.Atoi(t.Object.RawValue())
		if err != nil {
			return nil, fmt.Errorf("%w: shape %q property %q: bad sh:minCount: %w",
				ErrInvalidShape, shape.Name, prop.LocalName, err)
		}

		prop.MinCount = n
	}

	if t := in.graph.One(subject, sh("maxCount"), nil); t != nil {
		n, err := strconv.Atoi(t.Object.RawValue())
		if err != nil {
			return nil, fmt.Errorf("%w: shape %q property %q: bad sh:maxCount: %w",
				ErrInvalidShape, shape.Name, prop.LocalName, err)
		}

		prop.MaxCount = n
	}

	if t := in.graph.One(subject, sh("in"), nil); t != nil {
		for _, member := range in.list(t.Object) {
			prop.AllowedValues = append(prop.AllowedValues, member.RawValue())
		}
	}

	if t := in.graph.One(subject, sh("node"), nil); t != nil {
		prop.NodeShapeRef = t.Object.RawValue()
	}

	if t := in.graph.One(subject, sh("class"), nil); t != nil {
		prop.NodeClass = t.Object.RawValue()
	}

	return prop, nil
}

// list walks an rdf:first/rdf:rest collection.
func (in *Introspector) list(head rdf2go.Term) []rdf2go.Term {
	var out []rdf2go.Term

	first := rdf2go.NewResource(rdfNS + "first")
	rest := rdf2go.NewResource(rdfNS + "rest")
	nilNode := rdfNS + "nil"

	node := head

	for node != nil && node.RawValue() != nilNode {
		ft := in.graph.One(node, first, nil)
		if ft == nil {
			break
		}

		out = append(out, ft.Object)

		rt := in.graph.One(node, rest, nil)
		if rt == nil {
			break
		}

		node = rt.Object
	}

	return out
}

func (in *Introspector) linkChildren() {
	for _, shape := range in.ordered {
		for i := range shape.Properties {
			ref := shape.Properties[i].NodeShapeRef
			if ref == "" {
				continue
			}

			child, ok := in.byIRI[ref]
			if !ok {
				continue
			}

			shape.ChildShapes[shape.Properties[i].LocalName] = child
		}
	}
}

func sh(local string) rdf2go.Term {
	return rdf2go.NewResource(shNS + local)
}

// LocalName returns the fragment or final path segment of an IRI.
func LocalName(iri string) string {
	if iri == "" {
		return ""
	}

	if idx := strings.LastIndex(iri, "#"); idx >= 0 {
		return iri[idx+1:]
	}

	if idx := strings.LastIndex(iri, "/"); idx >= 0 {
		return iri[idx+1:]
	}

	return iri
}
