package jsonld

import (
	"errors"
	"fmt"
	"strings"
)

// ErrInvalidContext indicates a JSON-LD context file could not be parsed.
var ErrInvalidContext = errors.New("invalid context")

// Term is one term definition from a JSON-LD context.
type Term struct {
	// Name is the compact term used as a document key.
	Name string
	// IRI is the term's @id value, possibly a compact IRI.
	IRI string
	// Type is the term's @type value ("@id" or a datatype IRI), if any.
	Type string
	// Container is the term's @container value ("@set" or "@list"), if
	// any.
	Container string
}

// Context is a parsed JSON-LD context: term definitions, prefix
// declarations, and the @base/@vocab IRIs. A Context is immutable after
// parsing and safe for concurrent use.
type Context struct {
	Base  string
	Vocab string

	terms    map[string]Term
	prefixes map[string]string
	byIRI    map[string]string
	raw      *Object
}

// ParseContext parses the bytes of a JSON-LD context file. The file may
// be either a bare context object or a document with a top-level
// "@context" key.
func ParseContext(data []byte) (*Context, error) {
	doc, err := Unmarshal(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidContext, err)
	}

	body := doc

	if inner, ok := doc.Get("@context"); ok {
		innerObj, ok := inner.(*Object)
		if !ok {
			return nil, fmt.Errorf("%w: @context is not an object", ErrInvalidContext)
		}

		body = innerObj
	}

	ctx := &Context{
		terms:    make(map[string]Term),
		prefixes: make(map[string]string),
		byIRI:    make(map[string]string),
		raw:      body,
	}

	for _, key := range body.Keys() {
		val, _ := body.Get(key)

		switch key {
		case "@base":
			s, ok := val.(string)
			if !ok {
				return nil, fmt.Errorf("%w: @base is not a string", ErrInvalidContext)
			}

			ctx.Base = s

		case "@vocab":
			s, ok := val.(string)
			if !ok {
				return nil, fmt.Errorf("%w: @vocab is not a string", ErrInvalidContext)
			}

			ctx.Vocab = s

		case "@version":
			// Accepted and ignored.

		default:
			term, err := parseTerm(key, val)
			if err != nil {
				return nil, err
			}

			ctx.terms[key] = term

			// A term whose IRI ends in a separator doubles as a prefix.
			if strings.HasSuffix(term.IRI, "/") || strings.HasSuffix(term.IRI, "#") {
				ctx.prefixes[key] = term.IRI
			}
		}
	}

	// Reverse index from absolute IRIs to terms, first definition wins.
	for _, key := range body.Keys() {
		term, ok := ctx.terms[key]
		if !ok {
			continue
		}

		iri := ctx.Expand(term.IRI)
		if _, exists := ctx.byIRI[iri]; !exists {
			ctx.byIRI[iri] = key
		}
	}

	return ctx, nil
}

func parseTerm(key string, val any) (Term, error) {
	switch v := val.(type) {
	case string:
		return Term{Name: key, IRI: v}, nil

	case *Object:
		term := Term{Name: key}

		if id, ok := v.Get("@id"); ok {
			s, ok := id.(string)
			if !ok {
				return Term{}, fmt.Errorf("%w: term %q has non-string @id", ErrInvalidContext, key)
			}

			term.IRI = s
		}

		if typ, ok := v.Get("@type"); ok {
			s, ok := typ.(string)
			if !ok {
				return Term{}, fmt.Errorf("%w: term %q has non-string @type", ErrInvalidContext, key)
			}

			term.Type = s
		}

		if container, ok := v.Get("@container"); ok {
			s, ok := container.(string)
			if !ok {
				return Term{}, fmt.Errorf("%w: term %q has non-string @container", ErrInvalidContext, key)
			}

			term.Container = s
		}

		return term, nil

	default:
		return Term{}, fmt.Errorf("%w: term %q has unsupported definition type %T", ErrInvalidContext, key, val)
	}
}

// Term returns the definition of a context term.
func (c *Context) Term(name string) (Term, bool) {
	t, ok := c.terms[name]

	return t, ok
}

// HasTerm reports whether name is defined in the context.
func (c *Context) HasTerm(name string) bool {
	_, ok := c.terms[name]

	return ok
}

// Terms returns the names of all defined terms, in undefined order.
func (c *Context) Terms() []string {
	out := make([]string, 0, len(c.terms))
	for name := range c.terms {
		out = append(out, name)
	}

	return out
}

// Expand resolves a term, compact IRI, or absolute IRI to an absolute
// IRI. Keywords (leading "@") are returned unchanged, as are strings
// that cannot be resolved against the context.
func (c *Context) Expand(name string) string {
	if name == "" || strings.HasPrefix(name, "@") {
		return name
	}

	if term, ok := c.terms[name]; ok && term.IRI != name {
		return c.Expand(term.IRI)
	}

	if prefix, local, ok := strings.Cut(name, ":"); ok {
		if base, found := c.prefixes[prefix]; found {
			return base + local
		}

		// Already absolute (scheme present).
		return name
	}

	if c.Vocab != "" {
		return c.Vocab + name
	}

	return name
}

// TermForIRI returns the compact term mapped to an absolute IRI, if any.
func (c *Context) TermForIRI(iri string) (string, bool) {
	term, ok := c.byIRI[iri]

	return term, ok
}

// IsSetContainer reports whether the term is declared with a @set or
// @list container, in which case single-element arrays must not be
// unwrapped.
func (c *Context) IsSetContainer(name string) bool {
	term, ok := c.terms[name]

	return ok && (term.Container == "@set" || term.Container == "@list")
}

// Raw returns the context body as an ordered object, suitable for
// embedding under a document's @context key.
func (c *Context) Raw() *Object {
	return c.raw
}
