package builder

import (
	"errors"
	"fmt"
	"math"

	"github.com/edulake/shapeld/jsonld"
	"github.com/edulake/shapeld/mapping"
	"github.com/edulake/shapeld/sanitize"
)

// Per-record build failures.
var (
	// ErrIDEmpty indicates an empty or slash-only document identifier.
	ErrIDEmpty = errors.New("empty document id")
	// ErrInvalidIRI indicates a base URI that cannot prefix document ids.
	ErrInvalidIRI = errors.New("invalid iri")
	// ErrUnwrappableStructure indicates a mapped value the document
	// format cannot express, such as a nested map under a scalar term.
	ErrUnwrappableStructure = errors.New("unwrappable structure")
	// ErrMissingContext indicates a config with neither a context URL
	// nor a parsed context to embed.
	ErrMissingContext = errors.New("missing context")
)

// Builder turns mapped records into documents. A Builder is immutable
// and safe for concurrent use.
type Builder struct {
	cfg *mapping.Config
	ctx *jsonld.Context
}

// New validates the config's base URI and context and returns a builder.
// ctx may be nil when the config carries a context URL; it is then also
// unavailable for container hints and every single-element list is
// unwrapped.
func New(cfg *mapping.Config, ctx *jsonld.Context) (*Builder, error) {
	if err := sanitize.BaseURI(cfg.BaseURI); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidIRI, err)
	}

	if cfg.ContextURL == "" && ctx == nil {
		return nil, fmt.Errorf("%w: config %q has no context_url and no context was supplied",
			ErrMissingContext, cfg.Shape)
	}

	return &Builder{cfg: cfg, ctx: ctx}, nil
}

// Build renders one mapped record. id is the raw identifier before
// sanitization, as produced by the mapper's IDFor.
func (b *Builder) Build(id string, mapped mapping.Mapped) (*jsonld.Object, error) {
	safeID, err := sanitize.Component(id)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrIDEmpty, err)
	}

	doc := jsonld.NewObject()

	if b.cfg.ContextURL != "" {
		doc.Set("@context", b.cfg.ContextURL)
	} else {
		doc.Set("@context", b.ctx.Raw())
	}

	doc.Set("@type", b.cfg.Type)
	doc.Set("@id", b.cfg.BaseURI+safeID)

	for i := range b.cfg.Properties {
		slot := &b.cfg.Properties[i]

		if err := b.buildSlot(doc, slot, mapped[slot.Name]); err != nil {
			return nil, err
		}
	}

	if err := b.buildDefaults(doc, mapping.RecordStatusKey, b.cfg.RecordStatusDefaults, mapped); err != nil {
		return nil, err
	}

	if err := b.buildDefaults(doc, mapping.DataCollectionKey, b.cfg.DataCollectionDefaults, mapped); err != nil {
		return nil, err
	}

	return doc, nil
}

func (b *Builder) buildSlot(doc *jsonld.Object, slot *mapping.SlotPlan, val any) error {
	switch v := val.(type) {
	case nil:

	case mapping.Payload:
		obj, err := b.renderPayload(slot, v)
		if err != nil {
			return err
		}

		if obj != nil {
			doc.Set(slot.Name, obj)
		}

	case []mapping.Payload:
		objs := make([]any, 0, len(v))

		for _, payload := range v {
			obj, err := b.renderPayload(slot, payload)
			if err != nil {
				return err
			}

			if obj != nil {
				objs = append(objs, obj)
			}
		}

		switch {
		case len(objs) == 0:
		case len(objs) == 1 && !b.isSetContainer(slot.Name):
			doc.Set(slot.Name, objs[0])
		default:
			doc.Set(slot.Name, objs)
		}

	default:
		return fmt.Errorf("%w: slot %q holds %T", ErrUnwrappableStructure, slot.Name, val)
	}

	return nil
}

func (b *Builder) buildDefaults(doc *jsonld.Object, key string, plan *mapping.SlotPlan, mapped mapping.Mapped) error {
	if plan == nil {
		return nil
	}

	payload, ok := mapped[key].(mapping.Payload)
	if !ok {
		return nil
	}

	obj, err := b.renderPayload(plan, payload)
	if err != nil {
		return err
	}

	if obj != nil {
		doc.Set(key, obj)
	}

	return nil
}

// renderPayload renders one sub-shape payload: a @type key, then one key
// per field rule in declaration order. A payload with no non-empty
// fields renders to nil.
func (b *Builder) renderPayload(plan *mapping.SlotPlan, payload mapping.Payload) (*jsonld.Object, error) {
	obj := jsonld.NewObject()
	obj.Set("@type", plan.Type)

	for _, rule := range plan.Fields {
		val, ok := payload[rule.Target]
		if !ok {
			continue
		}

		rendered, keep, err := b.renderValue(rule.Target, val)
		if err != nil {
			return nil, fmt.Errorf("slot %q: %w", plan.Name, err)
		}

		if keep {
			obj.Set(rule.Target, rendered)
		}
	}

	if obj.Len() == 1 {
		return nil, nil
	}

	if err := b.renderNested(obj, plan, payload, mapping.RecordStatusKey, b.cfg.RecordStatusDefaults); err != nil {
		return nil, err
	}

	if err := b.renderNested(obj, plan, payload, mapping.DataCollectionKey, b.cfg.DataCollectionDefaults); err != nil {
		return nil, err
	}

	return obj, nil
}

// renderNested injects a defaults sub-shape the mapper placed inside a
// slot payload via the include flags.
func (b *Builder) renderNested(obj *jsonld.Object, plan *mapping.SlotPlan, payload mapping.Payload, key string, defaults *mapping.SlotPlan) error {
	if defaults == nil {
		return nil
	}

	nested, ok := payload[key].(mapping.Payload)
	if !ok {
		return nil
	}

	rendered, err := b.renderPayload(defaults, nested)
	if err != nil {
		return fmt.Errorf("slot %q: %w", plan.Name, err)
	}

	if rendered != nil {
		obj.Set(key, rendered)
	}

	return nil
}

// renderValue converts one mapped field value to its document form. The
// second result reports whether the field appears at all: empty values
// and non-finite floats are omitted.
func (b *Builder) renderValue(term string, val any) (any, bool, error) {
	switch v := val.(type) {
	case nil:
		return nil, false, nil

	case string:
		return v, v != "", nil

	case jsonld.TypedLiteral:
		return v, v.Value != "", nil

	case float64:
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return nil, false, nil
		}

		return v, true, nil

	case []any:
		kept := make([]any, 0, len(v))

		for _, elem := range v {
			rendered, keep, err := b.renderValue(term, elem)
			if err != nil {
				return nil, false, err
			}

			if keep {
				kept = append(kept, rendered)
			}
		}

		switch {
		case len(kept) == 0:
			return nil, false, nil
		case len(kept) == 1 && !b.isSetContainer(term):
			return kept[0], true, nil
		default:
			return kept, true, nil
		}

	default:
		return nil, false, fmt.Errorf("%w: field %q holds %T", ErrUnwrappableStructure, term, val)
	}
}

func (b *Builder) isSetContainer(term string) bool {
	return b.ctx != nil && b.ctx.IsSetContainer(term)
}
