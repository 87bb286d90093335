package mapping

import (
	"errors"
	"fmt"
	"log/slog"
	"math"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/edulake/shapeld/jsonld"
	"github.com/edulake/shapeld/transform"
)

// Document keys under which default sub-shapes are injected.
const (
	RecordStatusKey   = "hasRecordStatus"
	DataCollectionKey = "hasDataCollection"
)

// Per-record mapping failures.
var (
	// ErrRequiredMissing indicates an empty value for a required field.
	ErrRequiredMissing = errors.New("required field missing")
	// ErrRaggedMultiValue indicates split_on groups of unequal length.
	ErrRaggedMultiValue = errors.New("ragged multi-value groups")
	// ErrTypeMismatch indicates a value incompatible with the declared
	// datatype, such as a boolean in a string field.
	ErrTypeMismatch = errors.New("type mismatch")
	// ErrInvalidScalar indicates a value that is not a usable scalar:
	// nested structures and non-finite floats.
	ErrInvalidScalar = errors.New("invalid scalar")
)

// Record is a raw source record: column name to scalar value.
type Record = map[string]any

// Payload is one mapped sub-shape: target term to scalar, list, or typed
// literal.
type Payload = map[string]any

// Mapped is a mapped record: slot name to Payload (single cardinality) or
// []Payload (multiple).
type Mapped = map[string]any

// Overrides derives a variant mapper without touching the base mapping.
type Overrides struct {
	// IDSource replaces the config's id_source when non-empty.
	IDSource string
	// IDTransform replaces the config's id_transform when non-empty.
	IDTransform string
	// SourceOverrides rebinds source columns per slot and target term.
	SourceOverrides map[string]map[string]string
	// Transforms adds or replaces user transforms for the derived mapper.
	Transforms map[string]transform.Func
}

// Mapper executes a mapping config over raw records. The config is
// snapshotted and every field rule is pre-bound to its transform chain
// and datatype coercer at construction, so [Mapper.Map] is a plain
// traversal. A Mapper is immutable and safe for concurrent use.
type Mapper struct {
	cfg    *Config
	reg    *transform.Registry
	extra  map[string]transform.Func
	logger *slog.Logger

	slots          []slotExec
	recordStatus   *slotExec
	dataCollection *slotExec
}

type slotExec struct {
	plan   SlotPlan
	fields []fieldExec
}

type fieldExec struct {
	rule FieldRule
	fns  []transform.Func
}

// Option configures a [Mapper].
type Option func(*Mapper)

// WithTransforms supplies user transforms visible only to this mapper.
// Names shadow registry entries. A built-in name makes [NewMapper]
// fail with [transform.ErrBuiltinRedefinition].
func WithTransforms(fns map[string]transform.Func) Option {
	return func(m *Mapper) {
		for name, fn := range fns {
			m.extra[name] = fn
		}
	}
}

// WithLogger sets the logger used for per-record warnings.
func WithLogger(logger *slog.Logger) Option {
	return func(m *Mapper) {
		m.logger = logger
	}
}

// NewMapper compiles cfg into an executable mapper. Unknown transform
// names and malformed plans are reported here rather than per record.
func NewMapper(cfg *Config, reg *transform.Registry, opts ...Option) (*Mapper, error) {
	if cfg == nil {
		return nil, fmt.Errorf("%w: nil config", ErrConfigInvalid)
	}

	m := &Mapper{
		cfg:    cfg.Clone(),
		reg:    reg,
		extra:  make(map[string]transform.Func),
		logger: slog.Default(),
	}

	for _, opt := range opts {
		opt(m)
	}

	extraNames := make([]string, 0, len(m.extra))
	for name := range m.extra {
		extraNames = append(extraNames, name)
	}

	sort.Strings(extraNames)

	for _, name := range extraNames {
		if m.reg.IsBuiltin(name) {
			return nil, fmt.Errorf("%w: %w: %q", ErrConfigInvalid, transform.ErrBuiltinRedefinition, name)
		}
	}

	if m.cfg.IDTransform != "" {
		if _, err := m.resolveTransforms([]string{m.cfg.IDTransform}); err != nil {
			return nil, fmt.Errorf("id_transform: %w", err)
		}
	}

	for i := range m.cfg.Properties {
		exec, err := m.compileSlot(&m.cfg.Properties[i])
		if err != nil {
			return nil, err
		}

		m.slots = append(m.slots, *exec)
	}

	var err error

	m.recordStatus, err = m.compileDefaults(m.cfg.RecordStatusDefaults)
	if err != nil {
		return nil, err
	}

	m.dataCollection, err = m.compileDefaults(m.cfg.DataCollectionDefaults)
	if err != nil {
		return nil, err
	}

	return m, nil
}

// Config returns the mapper's config snapshot. Callers must treat it as
// read-only.
func (m *Mapper) Config() *Config {
	return m.cfg
}

// WithOverrides returns a new mapper whose plan is the receiver's config
// deep-merged with the overlay. The receiver is never modified.
func (m *Mapper) WithOverrides(o Overrides) (*Mapper, error) {
	overlay := &Config{
		IDSource:    o.IDSource,
		IDTransform: o.IDTransform,
	}

	for slotName, fields := range o.SourceOverrides {
		slot := SlotPlan{Name: slotName}

		targets := make([]string, 0, len(fields))
		for target := range fields {
			targets = append(targets, target)
		}

		sort.Strings(targets)

		for _, target := range targets {
			slot.Fields = append(slot.Fields, FieldRule{Target: target, Source: fields[target]})
		}

		overlay.Properties = append(overlay.Properties, slot)
	}

	merged := Compose(m.cfg, overlay)

	fns := make(map[string]transform.Func, len(m.extra)+len(o.Transforms))
	for name, fn := range m.extra {
		fns[name] = fn
	}

	for name, fn := range o.Transforms {
		fns[name] = fn
	}

	return NewMapper(merged, m.reg, WithTransforms(fns), WithLogger(m.logger))
}

// Map applies the compiled plan to one raw record.
func (m *Mapper) Map(raw Record) (Mapped, error) {
	if err := checkScalars(raw); err != nil {
		return nil, err
	}

	out := make(Mapped, len(m.slots)+2)

	for i := range m.slots {
		exec := &m.slots[i]

		if exec.plan.Cardinality == CardinalityMultiple {
			payloads, err := m.mapMultiple(exec, raw)
			if err != nil {
				return nil, err
			}

			if len(payloads) > 0 {
				out[exec.plan.Name] = payloads
			}

			continue
		}

		payload, err := m.mapGroup(exec, raw, nil, 0)
		if err != nil {
			return nil, err
		}

		if len(payload) > 0 {
			out[exec.plan.Name] = payload
		}
	}

	if m.recordStatus != nil {
		payload, err := m.mapGroup(m.recordStatus, nil, nil, 0)
		if err != nil {
			return nil, err
		}

		out[RecordStatusKey] = payload
	}

	if m.dataCollection != nil {
		payload, err := m.mapGroup(m.dataCollection, nil, nil, 0)
		if err != nil {
			return nil, err
		}

		out[DataCollectionKey] = payload
	}

	return out, nil
}

// mapMultiple splits the slot's source values into groups and maps each
// group to one payload.
func (m *Mapper) mapMultiple(exec *slotExec, raw Record) ([]Payload, error) {
	groups, count, err := splitGroups(exec, raw)
	if err != nil {
		return nil, err
	}

	payloads := make([]Payload, 0, count)

	for g := 0; g < count; g++ {
		if count > 1 && groupAllEmpty(exec, groups, g) {
			m.logger.Warn("dropping empty multi-value group",
				slog.String("slot", exec.plan.Name),
				slog.Int("group", g),
			)

			continue
		}

		payload, err := m.mapGroup(exec, raw, groups, g)
		if err != nil {
			return nil, err
		}

		if len(payload) > 0 {
			payloads = append(payloads, payload)
		}
	}

	return payloads, nil
}

// splitGroups splits every contributing source value on the slot's outer
// delimiter. All values that carry the delimiter must yield the same
// number of segments.
func splitGroups(exec *slotExec, raw Record) (map[string][]string, int, error) {
	groups := make(map[string][]string, len(exec.fields))
	count := 1

	var split []string

	for _, f := range exec.fields {
		if f.rule.Source == "" {
			continue
		}

		str, err := renderScalar(raw[f.rule.Source], f.rule)
		if err != nil {
			return nil, 0, fmt.Errorf("column %q: %w", f.rule.Source, err)
		}

		parts := []string{str}
		if exec.plan.SplitOn != "" && str != "" {
			parts = strings.Split(str, exec.plan.SplitOn)
		}

		groups[f.rule.Source] = parts

		if len(parts) > 1 {
			if count > 1 && len(parts) != count {
				return nil, 0, fmt.Errorf(
					"%w: slot %q: column %q has %d values, %s",
					ErrRaggedMultiValue, exec.plan.Name, f.rule.Source, len(parts),
					raggedDetail(split, count),
				)
			}

			count = len(parts)
			split = append(split, f.rule.Source)
		}
	}

	// A single unsplit value cannot feed a multi-segment group.
	if count > 1 {
		for source, parts := range groups {
			if len(parts) == 1 && parts[0] != "" {
				return nil, 0, fmt.Errorf(
					"%w: slot %q: column %q has 1 value, %s",
					ErrRaggedMultiValue, exec.plan.Name, source, raggedDetail(split, count),
				)
			}
		}
	}

	return groups, count, nil
}

func raggedDetail(split []string, count int) string {
	return fmt.Sprintf("columns %v have %d", split, count)
}

// groupAllEmpty reports whether every source-bound field of group g is
// empty.
func groupAllEmpty(exec *slotExec, groups map[string][]string, g int) bool {
	for _, f := range exec.fields {
		if f.rule.Source == "" {
			continue
		}

		parts := groups[f.rule.Source]
		if g < len(parts) && parts[g] != "" {
			return false
		}
	}

	return true
}

// mapGroup maps one group (or the single row) of a slot to a payload.
// groups is nil for single cardinality; defaults slots pass a nil record.
func (m *Mapper) mapGroup(exec *slotExec, raw Record, groups map[string][]string, g int) (Payload, error) {
	payload := make(Payload, len(exec.fields)+1)

	for _, f := range exec.fields {
		value, err := m.resolveValue(&f, raw, groups, g)
		if err != nil {
			return nil, fmt.Errorf("slot %q: %w", exec.plan.Name, err)
		}

		if value != nil {
			payload[f.rule.Target] = value
		}
	}

	if len(payload) == 0 {
		return payload, nil
	}

	if exec.plan.IncludeRecordStatus && m.recordStatus != nil {
		nested, err := m.mapGroup(m.recordStatus, nil, nil, 0)
		if err != nil {
			return nil, err
		}

		payload[RecordStatusKey] = nested
	}

	if exec.plan.IncludeDataCollection && m.dataCollection != nil {
		nested, err := m.mapGroup(m.dataCollection, nil, nil, 0)
		if err != nil {
			return nil, err
		}

		payload[DataCollectionKey] = nested
	}

	return payload, nil
}

// resolveValue produces the final value for one field rule: origin
// resolution, transform chain, inner split, and datatype coercion.
// A nil result means the field is dropped.
func (m *Mapper) resolveValue(f *fieldExec, raw Record, groups map[string][]string, g int) (any, error) {
	var str string

	switch {
	case f.rule.Source != "":
		var err error

		str, err = sourceValue(f, raw, groups, g)
		if err != nil {
			return nil, err
		}

	case f.rule.HasValue:
		str = f.rule.Value

	case f.rule.ValueID != "":
		str = f.rule.ValueID
	}

	if f.rule.Source != "" && str == "" {
		// Literal defaults backstop an empty source.
		switch {
		case f.rule.HasValue:
			str = f.rule.Value
		case f.rule.ValueID != "":
			str = f.rule.ValueID
		}
	}

	if str == "" && !f.rule.HasValue {
		if f.rule.Optional {
			return nil, nil
		}

		return nil, m.requiredMissing(f, raw)
	}

	if f.rule.MultiValueSplit != "" {
		parts := strings.Split(str, f.rule.MultiValueSplit)
		values := make([]any, 0, len(parts))

		for _, part := range parts {
			v, err := m.finishValue(f, strings.TrimSpace(part))
			if err != nil {
				return nil, err
			}

			if v != nil {
				values = append(values, v)
			}
		}

		if len(values) == 0 {
			if f.rule.Optional {
				return nil, nil
			}

			return nil, m.requiredMissing(f, raw)
		}

		return values, nil
	}

	return m.finishValue(f, str)
}

func sourceValue(f *fieldExec, raw Record, groups map[string][]string, g int) (string, error) {
	if groups != nil {
		parts, ok := groups[f.rule.Source]
		if !ok || g >= len(parts) {
			return "", nil
		}

		return strings.TrimSpace(parts[g]), nil
	}

	str, err := renderScalar(raw[f.rule.Source], f.rule)
	if err != nil {
		return "", fmt.Errorf("column %q: %w", f.rule.Source, err)
	}

	return strings.TrimSpace(str), nil
}

// finishValue applies the transform chain and datatype coercion to one
// scalar string. A nil result means the (optional) value vanished.
func (m *Mapper) finishValue(f *fieldExec, str string) (any, error) {
	for i, fn := range f.fns {
		var err error

		str, err = fn(str)
		if err != nil {
			return nil, fmt.Errorf("%w: field %q transform %q: %w",
				ErrInvalidScalar, f.rule.Target, f.rule.Transforms[i], err)
		}
	}

	if str == "" {
		if f.rule.Optional {
			return nil, nil
		}

		return nil, fmt.Errorf("%w: field %q became empty after transforms", ErrRequiredMissing, f.rule.Target)
	}

	return coerce(str, f.rule)
}

func (m *Mapper) requiredMissing(f *fieldExec, raw Record) error {
	available := make([]string, 0, len(raw))
	for col := range raw {
		available = append(available, col)
	}

	sort.Strings(available)

	source := f.rule.Source
	if source == "" {
		source = "(no source)"
	}

	return fmt.Errorf("%w: field %q (source column %q) is empty; available columns: %s",
		ErrRequiredMissing, f.rule.Target, source, strings.Join(available, ", "))
}

var (
	integerPattern  = regexp.MustCompile(`^[+-]?\d+$`)
	decimalPattern  = regexp.MustCompile(`^[+-]?(\d+(\.\d*)?|\.\d+)$`)
	dateTimePattern = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}T\d{2}:\d{2}:\d{2}`)
)

// coerce validates str against the rule's datatype and wraps it in a
// typed literal where the output format requires one. Strings and tokens
// stay bare strings.
func coerce(str string, rule FieldRule) (any, error) {
	switch rule.Datatype {
	case "", "plain", "xsd:string", "xsd:token":
		return str, nil

	case "xsd:date":
		normalized, err := transform.DateFormat(str)
		if err != nil {
			return nil, fmt.Errorf("%w: field %q: %w", ErrTypeMismatch, rule.Target, err)
		}

		return jsonld.TypedLiteral{Value: normalized, Datatype: rule.Datatype}, nil

	case "xsd:dateTime":
		if !dateTimePattern.MatchString(str) {
			return nil, fmt.Errorf("%w: field %q: %q is not an xsd:dateTime", ErrTypeMismatch, rule.Target, str)
		}

		return jsonld.TypedLiteral{Value: str, Datatype: rule.Datatype}, nil

	case "xsd:integer":
		if !integerPattern.MatchString(str) {
			return nil, fmt.Errorf("%w: field %q: %q is not an xsd:integer", ErrTypeMismatch, rule.Target, str)
		}

		return jsonld.TypedLiteral{Value: str, Datatype: rule.Datatype}, nil

	case "xsd:decimal":
		if !decimalPattern.MatchString(str) {
			return nil, fmt.Errorf("%w: field %q: %q is not an xsd:decimal", ErrTypeMismatch, rule.Target, str)
		}

		return jsonld.TypedLiteral{Value: str, Datatype: rule.Datatype}, nil

	case "xsd:boolean":
		switch str {
		case "true", "false":
		default:
			return nil, fmt.Errorf("%w: field %q: %q is not an xsd:boolean", ErrTypeMismatch, rule.Target, str)
		}

		return jsonld.TypedLiteral{Value: str, Datatype: rule.Datatype}, nil

	case "xsd:anyURI":
		return jsonld.TypedLiteral{Value: str, Datatype: rule.Datatype}, nil
	}

	return nil, fmt.Errorf("%w: field %q: unknown datatype %q", ErrTypeMismatch, rule.Target, rule.Datatype)
}

// renderScalar converts one raw scalar to its string form, enforcing the
// scalar coercion rules: booleans only feed boolean fields, non-finite
// floats are rejected everywhere, and nested structures are errors.
func renderScalar(v any, rule FieldRule) (string, error) {
	switch val := v.(type) {
	case nil:
		return "", nil

	case string:
		return val, nil

	case bool:
		if rule.Datatype != "xsd:boolean" {
			return "", fmt.Errorf("%w: boolean value for non-boolean field %q", ErrTypeMismatch, rule.Target)
		}

		return strconv.FormatBool(val), nil

	case int:
		return strconv.Itoa(val), nil
	case int64:
		return strconv.FormatInt(val, 10), nil
	case uint64:
		return strconv.FormatUint(val, 10), nil

	case float64:
		if math.IsNaN(val) || math.IsInf(val, 0) {
			return "", fmt.Errorf("%w: non-finite float for field %q", ErrInvalidScalar, rule.Target)
		}

		return strconv.FormatFloat(val, 'f', -1, 64), nil

	case time.Time:
		if rule.Datatype == "xsd:dateTime" {
			return val.Format("2006-01-02T15:04:05"), nil
		}

		return val.Format("2006-01-02"), nil

	default:
		return "", fmt.Errorf("%w: field %q: unsupported value type %T", ErrInvalidScalar, rule.Target, v)
	}
}

// checkScalars rejects nested structures anywhere in the raw record.
func checkScalars(raw Record) error {
	for col, v := range raw {
		switch v.(type) {
		case map[string]any, []any, []string:
			return fmt.Errorf("%w: column %q holds a nested structure", ErrInvalidScalar, col)
		}
	}

	return nil
}

func (m *Mapper) compileSlot(plan *SlotPlan) (*slotExec, error) {
	exec := &slotExec{plan: *plan}

	for _, rule := range plan.Fields {
		fns, err := m.resolveTransforms(rule.Transforms)
		if err != nil {
			return nil, fmt.Errorf("slot %q field %q: %w", plan.Name, rule.Target, err)
		}

		exec.fields = append(exec.fields, fieldExec{rule: rule, fns: fns})
	}

	return exec, nil
}

func (m *Mapper) compileDefaults(plan *SlotPlan) (*slotExec, error) {
	if plan == nil {
		return nil, nil
	}

	return m.compileSlot(plan)
}

func (m *Mapper) resolveTransforms(names []string) ([]transform.Func, error) {
	fns := make([]transform.Func, 0, len(names))

	for _, name := range names {
		if fn, ok := m.extra[name]; ok {
			fns = append(fns, fn)

			continue
		}

		fn, ok := m.reg.Get(name)
		if !ok {
			return nil, fmt.Errorf("%w: %q (known: %s)",
				transform.ErrUnknownTransform, name, strings.Join(m.reg.Names(), ", "))
		}

		fns = append(fns, fn)
	}

	return fns, nil
}

// IDFor computes the raw (unsanitized) document identifier for a record:
// the id_source value with id_transform applied.
func (m *Mapper) IDFor(raw Record) (string, error) {
	str, err := renderScalar(raw[m.cfg.IDSource], FieldRule{Target: "@id", Source: m.cfg.IDSource})
	if err != nil {
		return "", err
	}

	str = strings.TrimSpace(str)

	if m.cfg.IDTransform != "" {
		fns, err := m.resolveTransforms([]string{m.cfg.IDTransform})
		if err != nil {
			return "", err
		}

		str, err = fns[0](str)
		if err != nil {
			return "", fmt.Errorf("%w: id_transform %q: %w", ErrInvalidScalar, m.cfg.IDTransform, err)
		}
	}

	return str, nil
}
